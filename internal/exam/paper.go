package exam

import (
	"encoding/json"
	"math"
	"time"
)

type Status string

const (
	StatusInProgress Status = "inprogress"
	StatusCompleted  Status = "completed"
	StatusQuit       Status = "quit"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusQuit
}

// HardStopSeconds is how far past zero TimeLeft may fall before the attempt
// stops accepting work; it absorbs network latency on the final submission.
const HardStopSeconds = -10

// Answer is one stored submission. Skipped answers are code snapshots kept
// when a student moves past a question without submitting it.
type Answer struct {
	ID         int64           `json:"id"`
	QuestionID int64           `json:"question_id"`
	Value      json.RawMessage `json:"answer"`
	Correct    bool            `json:"correct"`
	Marks      float64         `json:"marks"`
	Error      []string        `json:"error,omitempty"`
	Skipped    bool            `json:"skipped"`
	Pending    bool            `json:"pending"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`

	dirty bool
}

// AnswerPaper is one user's attempt at a question paper.
type AnswerPaper struct {
	ID                int64      `json:"id"`
	UserID            int64      `json:"user_id"`
	QuestionPaperID   int64      `json:"question_paper_id"`
	QuizID            int64      `json:"quiz_id"`
	CourseID          int64      `json:"course_id"`
	AttemptNumber     int        `json:"attempt_number"`
	Status            Status     `json:"status"`
	Questions         []int64    `json:"questions"`
	Completed         []int64    `json:"questions_answered"`
	Answers           []Answer   `json:"answers"`
	CurrentQuestionID int64      `json:"current_question"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	ExtraTime         float64    `json:"extra_time"`
	Duration          int        `json:"duration"`
	PassCriteria      float64    `json:"pass_criteria"`
	TotalMarks        float64    `json:"total_marks"`
	AllowSkip         bool       `json:"allow_skip"`
	MarksObtained     float64    `json:"marks_obtained"`
	Percent           float64    `json:"percent"`
	Passed            bool       `json:"passed"`
	UserIP            string     `json:"user_ip,omitempty"`
}

// Clone returns a deep copy so callers can mutate without sharing slices.
func (p *AnswerPaper) Clone() *AnswerPaper {
	cp := *p
	cp.Questions = append([]int64(nil), p.Questions...)
	cp.Completed = append([]int64(nil), p.Completed...)
	cp.Answers = make([]Answer, len(p.Answers))
	for i, a := range p.Answers {
		a.Value = append(json.RawMessage(nil), a.Value...)
		a.Error = append([]string(nil), a.Error...)
		cp.Answers[i] = a
	}
	if p.EndTime != nil {
		t := *p.EndTime
		cp.EndTime = &t
	}
	return &cp
}

func (p *AnswerPaper) HasQuestion(id int64) bool {
	for _, q := range p.Questions {
		if q == id {
			return true
		}
	}
	return false
}

// TimeLeft is the number of seconds remaining, floored at HardStopSeconds.
func (p *AnswerPaper) TimeLeft(now time.Time) float64 {
	total := float64(p.Duration)*60 + p.ExtraTime*60
	left := total - now.Sub(p.StartTime).Seconds()
	return math.Max(left, HardStopSeconds)
}

// IsAttemptInProgress reports whether the paper still accepts answers.
func (p *AnswerPaper) IsAttemptInProgress(now time.Time) bool {
	return p.Status == StatusInProgress && p.TimeLeft(now) > HardStopSeconds
}

func (p *AnswerPaper) isCompleted(id int64) bool {
	for _, c := range p.Completed {
		if c == id {
			return true
		}
	}
	return false
}

func (p *AnswerPaper) hasCorrectAnswer(id int64) bool {
	for _, a := range p.Answers {
		if a.QuestionID == id && !a.Skipped && a.Correct {
			return true
		}
	}
	return false
}

// satisfied questions are no longer offered as the current question.
func (p *AnswerPaper) satisfied(id int64) bool {
	return p.isCompleted(id) || p.hasCorrectAnswer(id)
}

// CurrentQuestion returns the question the student should see, or 0 when
// every question is satisfied.
func (p *AnswerPaper) CurrentQuestion() int64 {
	if p.CurrentQuestionID != 0 && p.HasQuestion(p.CurrentQuestionID) && !p.satisfied(p.CurrentQuestionID) {
		return p.CurrentQuestionID
	}
	for _, q := range p.Questions {
		if !p.satisfied(q) {
			return q
		}
	}
	return 0
}

// NextQuestion returns the first unsatisfied question after the given one,
// wrapping around to the start. The given question itself is never returned.
func (p *AnswerPaper) NextQuestion(after int64) int64 {
	start := -1
	for i, q := range p.Questions {
		if q == after {
			start = i
			break
		}
	}
	n := len(p.Questions)
	for step := 1; step <= n; step++ {
		q := p.Questions[(start+step+n)%n]
		if q == after {
			continue
		}
		if !p.satisfied(q) {
			return q
		}
	}
	return 0
}

// AddCompletedQuestion marks id as done and returns the next question.
func (p *AnswerPaper) AddCompletedQuestion(id int64) int64 {
	if !p.isCompleted(id) {
		p.Completed = append(p.Completed, id)
	}
	next := p.NextQuestion(id)
	p.CurrentQuestionID = next
	return next
}

// QuestionsAnswered lists paper questions that have a non-skipped answer.
func (p *AnswerPaper) QuestionsAnswered() []int64 {
	out := make([]int64, 0, len(p.Questions))
	for _, q := range p.Questions {
		if p.attempted(q) {
			out = append(out, q)
		}
	}
	return out
}

func (p *AnswerPaper) QuestionsUnanswered() []int64 {
	out := make([]int64, 0, len(p.Questions))
	for _, q := range p.Questions {
		if !p.attempted(q) {
			out = append(out, q)
		}
	}
	return out
}

func (p *AnswerPaper) attempted(id int64) bool {
	for _, a := range p.Answers {
		if a.QuestionID == id && !a.Skipped {
			return true
		}
	}
	return false
}

// UpdateMarks recomputes marks from the best non-skipped answer of each
// question. Status is never changed here.
func (p *AnswerPaper) UpdateMarks() {
	best := make(map[int64]float64, len(p.Questions))
	for _, a := range p.Answers {
		if a.Skipped {
			continue
		}
		if cur, ok := best[a.QuestionID]; !ok || a.Marks > cur {
			best[a.QuestionID] = a.Marks
		}
	}
	total := 0.0
	for _, q := range p.Questions {
		total += best[q]
	}
	p.MarksObtained = math.Round(total*1e4) / 1e4
	if p.TotalMarks > 0 {
		p.Percent = math.Round(p.MarksObtained/p.TotalMarks*1e4) / 100
	} else {
		p.Percent = 0
	}
	p.Passed = p.Percent >= p.PassCriteria
}

// SetEndTime completes an in-progress paper. It reports false when the
// paper was already terminal.
func (p *AnswerPaper) SetEndTime(t time.Time) bool {
	if p.Status != StatusInProgress {
		return false
	}
	t = t.UTC()
	p.EndTime = &t
	p.Status = StatusCompleted
	return true
}

// Quit abandons an in-progress paper without touching its marks.
func (p *AnswerPaper) Quit(t time.Time) bool {
	if p.Status != StatusInProgress {
		return false
	}
	t = t.UTC()
	p.EndTime = &t
	p.Status = StatusQuit
	return true
}

// LatestAnswer returns the newest answer for a question, optionally
// restricted to skipped snapshots or to real submissions.
func (p *AnswerPaper) LatestAnswer(questionID int64, skipped bool) *Answer {
	for i := len(p.Answers) - 1; i >= 0; i-- {
		a := &p.Answers[i]
		if a.QuestionID == questionID && a.Skipped == skipped {
			return a
		}
	}
	return nil
}

func (p *AnswerPaper) AnswerByID(id int64) *Answer {
	for i := range p.Answers {
		if p.Answers[i].ID == id {
			return &p.Answers[i]
		}
	}
	return nil
}

// RecordAnswer stores a submission. With keepHistory every submission is a
// new row; otherwise the latest answer of the same kind is overwritten.
// The stored answer is returned.
func (p *AnswerPaper) RecordAnswer(a Answer, keepHistory bool, now time.Time) *Answer {
	now = now.UTC()
	if !keepHistory || a.Skipped {
		if cur := p.LatestAnswer(a.QuestionID, a.Skipped); cur != nil {
			cur.Value = a.Value
			cur.Correct = a.Correct
			cur.Marks = a.Marks
			cur.Error = a.Error
			cur.Pending = a.Pending
			cur.UpdatedAt = now
			cur.dirty = true
			return cur
		}
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	a.dirty = true
	p.Answers = append(p.Answers, a)
	return &p.Answers[len(p.Answers)-1]
}

// SetResult overwrites the grading outcome of a stored answer.
func (a *Answer) SetResult(correct bool, marks float64, errs []string, pending bool, now time.Time) {
	a.Correct = correct
	a.Marks = marks
	a.Error = errs
	a.Pending = pending
	a.markDirty(now)
}

// OverrideMarks applies a staff-awarded mark to the latest submitted answer
// of a question. Earlier submissions are capped at the same mark so the
// best-of recomputation in UpdateMarks yields exactly marks. It returns the
// overridden answer, or nil when the question has no submission.
func (p *AnswerPaper) OverrideMarks(questionID int64, marks float64, correct bool, now time.Time) *Answer {
	latest := p.LatestAnswer(questionID, false)
	if latest == nil {
		return nil
	}
	for i := range p.Answers {
		a := &p.Answers[i]
		if a == latest || a.QuestionID != questionID || a.Skipped {
			continue
		}
		if a.Marks > marks || (a.Correct && !correct) {
			a.Marks = math.Min(a.Marks, marks)
			a.Correct = a.Correct && correct
			a.markDirty(now)
		}
	}
	latest.SetResult(correct, marks, latest.Error, false, now)
	return latest
}

// markDirty flags an answer for persistence after an in-place edit.
func (a *Answer) markDirty(now time.Time) {
	a.UpdatedAt = now.UTC()
	a.dirty = true
}

func (p *AnswerPaper) dirtyAnswers() []*Answer {
	var out []*Answer
	for i := range p.Answers {
		if p.Answers[i].dirty {
			out = append(out, &p.Answers[i])
		}
	}
	return out
}

func (p *AnswerPaper) clearDirty() {
	for i := range p.Answers {
		p.Answers[i].dirty = false
	}
}
