package question

import (
	"context"
	"sync"
)

// Source is the read side of the question bank.
type Source interface {
	Question(ctx context.Context, id int64) (*Question, error)
	Questions(ctx context.Context, ids []int64) (map[int64]*Question, error)
	Paper(ctx context.Context, id int64) (*Paper, error)
	Quiz(ctx context.Context, id int64) (*Quiz, error)
}

// MemoryBank is an in-process Source.
type MemoryBank struct {
	mu        sync.RWMutex
	questions map[int64]*Question
	papers    map[int64]*Paper
	quizzes   map[int64]*Quiz
}

func NewMemoryBank() *MemoryBank {
	return &MemoryBank{
		questions: make(map[int64]*Question),
		papers:    make(map[int64]*Paper),
		quizzes:   make(map[int64]*Quiz),
	}
}

func (b *MemoryBank) PutQuestion(q *Question) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *q
	if cp.Language == "" {
		cp.Language = DefaultLanguage
	}
	b.questions[q.ID] = &cp
}

// PutPaper stores p and refreshes its cached total marks.
func (b *MemoryBank) PutPaper(p *Paper) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *p
	points := make(map[int64]float64, len(cp.FixedQuestionIDs))
	for _, id := range cp.FixedQuestionIDs {
		if q, ok := b.questions[id]; ok {
			points[id] = q.Points
		}
	}
	cp.TotalMarks = cp.ComputeTotalMarks(points)
	b.papers[p.ID] = &cp
}

func (b *MemoryBank) PutQuiz(q *Quiz) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *q
	b.quizzes[q.ID] = &cp
}

func (b *MemoryBank) Question(_ context.Context, id int64) (*Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.questions[id]
	if !ok {
		return nil, ErrQuestionNotFound
	}
	cp := *q
	return &cp, nil
}

func (b *MemoryBank) Questions(_ context.Context, ids []int64) (map[int64]*Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[int64]*Question, len(ids))
	for _, id := range ids {
		q, ok := b.questions[id]
		if !ok {
			return nil, ErrQuestionNotFound
		}
		cp := *q
		out[id] = &cp
	}
	return out, nil
}

func (b *MemoryBank) Paper(_ context.Context, id int64) (*Paper, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.papers[id]
	if !ok {
		return nil, ErrPaperNotFound
	}
	cp := *p
	return &cp, nil
}

func (b *MemoryBank) Quiz(_ context.Context, id int64) (*Quiz, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quizzes[id]
	if !ok {
		return nil, ErrQuizNotFound
	}
	cp := *q
	return &cp, nil
}
