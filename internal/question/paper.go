package question

import (
	"math/rand"
	"strconv"
	"strings"
)

type RandomSet struct {
	ID           int64   `json:"id"`
	Marks        float64 `json:"marks"`
	NumQuestions int     `json:"num_questions"`
	QuestionIDs  []int64 `json:"question_ids"`
}

type Paper struct {
	ID                 int64       `json:"id"`
	QuizID             int64       `json:"quiz_id"`
	FixedQuestionIDs   []int64     `json:"fixed_question_ids"`
	FixedQuestionOrder string      `json:"fixed_question_order"`
	RandomSets         []RandomSet `json:"random_sets"`
	ShuffleQuestions   bool        `json:"shuffle_questions"`
	TotalMarks         float64     `json:"total_marks"`
}

// OrderedFixedIDs applies FixedQuestionOrder to the fixed set. Fixed
// questions missing from the order string follow in their natural order.
func (p *Paper) OrderedFixedIDs() []int64 {
	members := make(map[int64]bool, len(p.FixedQuestionIDs))
	for _, id := range p.FixedQuestionIDs {
		members[id] = true
	}

	out := make([]int64, 0, len(p.FixedQuestionIDs))
	seen := make(map[int64]bool, len(p.FixedQuestionIDs))
	for _, id := range parseOrder(p.FixedQuestionOrder) {
		if members[id] && !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	for _, id := range p.FixedQuestionIDs {
		if !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	return out
}

// SetFixedQuestions replaces the fixed set and its display order together.
func (p *Paper) SetFixedQuestions(ids []int64) {
	p.FixedQuestionIDs = append([]int64(nil), ids...)
	p.FixedQuestionOrder = joinOrder(ids)
}

// RemoveFixedQuestion drops id from both the fixed set and the order string.
func (p *Paper) RemoveFixedQuestion(id int64) bool {
	found := false
	kept := p.FixedQuestionIDs[:0:0]
	for _, v := range p.FixedQuestionIDs {
		if v == id {
			found = true
			continue
		}
		kept = append(kept, v)
	}
	if !found {
		return false
	}
	order := make([]int64, 0, len(kept))
	for _, v := range parseOrder(p.FixedQuestionOrder) {
		if v != id {
			order = append(order, v)
		}
	}
	p.FixedQuestionIDs = kept
	p.FixedQuestionOrder = joinOrder(order)
	return true
}

// ComputeTotalMarks sums fixed question points and random set marks.
func (p *Paper) ComputeTotalMarks(points map[int64]float64) float64 {
	total := 0.0
	for _, id := range p.FixedQuestionIDs {
		total += points[id]
	}
	for _, s := range p.RandomSets {
		total += s.Marks * float64(drawCount(s.NumQuestions, len(s.QuestionIDs)))
	}
	return total
}

// Compose resolves the question sequence for a new attempt. Each random
// set is sampled independently without replacement; a question already in
// the sequence is never repeated.
func (p *Paper) Compose(rng *rand.Rand) []int64 {
	out := p.OrderedFixedIDs()
	seen := make(map[int64]bool, len(out))
	for _, id := range out {
		seen[id] = true
	}

	for _, s := range p.RandomSets {
		pool := make([]int64, 0, len(s.QuestionIDs))
		for _, id := range s.QuestionIDs {
			if !seen[id] {
				pool = append(pool, id)
			}
		}
		n := drawCount(s.NumQuestions, len(pool))
		for _, idx := range rng.Perm(len(pool))[:n] {
			out = append(out, pool[idx])
			seen[pool[idx]] = true
		}
	}

	if p.ShuffleQuestions {
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	return out
}

func parseOrder(s string) []int64 {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		out = append(out, id)
	}
	return out
}

func joinOrder(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

// drawCount bounds a set's requested question count to [0, available].
func drawCount(requested, available int) int {
	if requested < 0 {
		return 0
	}
	if requested > available {
		return available
	}
	return requested
}
