package exam

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps papers in process. Each paper has its own lock so
// updates to one attempt serialize without blocking the others.
type MemoryStore struct {
	mu         sync.Mutex
	papers     map[int64]*AnswerPaper
	locks      map[int64]*sync.Mutex
	answerOf   map[int64]int64
	nextPaper  int64
	nextAnswer int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		papers:   make(map[int64]*AnswerPaper),
		locks:    make(map[int64]*sync.Mutex),
		answerOf: make(map[int64]int64),
	}
}

func (s *MemoryStore) LastAttempt(_ context.Context, key AttemptKey) (*AnswerPaper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *AnswerPaper
	for _, p := range s.papers {
		if p.UserID != key.UserID || p.QuestionPaperID != key.QuestionPaperID || p.CourseID != key.CourseID {
			continue
		}
		if last == nil || p.AttemptNumber > last.AttemptNumber {
			last = p
		}
	}
	if last == nil {
		return nil, ErrAttemptNotFound
	}
	return last.Clone(), nil
}

func (s *MemoryStore) CreatePaper(_ context.Context, p *AnswerPaper) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.papers {
		if cur.UserID != p.UserID || cur.QuestionPaperID != p.QuestionPaperID || cur.CourseID != p.CourseID {
			continue
		}
		if cur.AttemptNumber == p.AttemptNumber || (cur.Status == StatusInProgress && p.Status == StatusInProgress) {
			return ErrDuplicateAttempt
		}
	}
	s.nextPaper++
	p.ID = s.nextPaper
	cp := p.Clone()
	s.assignAnswerIDs(cp)
	s.papers[cp.ID] = cp
	s.locks[cp.ID] = &sync.Mutex{}
	p.Answers = cp.Clone().Answers
	return nil
}

func (s *MemoryStore) GetPaper(_ context.Context, id int64) (*AnswerPaper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.papers[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) UpdatePaper(_ context.Context, id int64, fn func(*AnswerPaper) error) (*AnswerPaper, error) {
	s.mu.Lock()
	lock, ok := s.locks[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrAttemptNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	work := s.papers[id].Clone()
	s.mu.Unlock()

	if err := fn(work); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.assignAnswerIDs(work)
	s.papers[id] = work.Clone()
	s.mu.Unlock()
	return work.Clone(), nil
}

// assignAnswerIDs must be called with s.mu held.
func (s *MemoryStore) assignAnswerIDs(p *AnswerPaper) {
	for i := range p.Answers {
		a := &p.Answers[i]
		if a.ID == 0 {
			s.nextAnswer++
			a.ID = s.nextAnswer
		}
		s.answerOf[a.ID] = p.ID
		a.dirty = false
	}
}

func (s *MemoryStore) NewAnswerID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAnswer++
	return s.nextAnswer, nil
}

func (s *MemoryStore) FindAnswer(_ context.Context, answerID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	paperID, ok := s.answerOf[answerID]
	if !ok {
		return 0, ErrAnswerNotFound
	}
	return paperID, nil
}

func (s *MemoryStore) ListPapers(_ context.Context, f PaperFilter) ([]*AnswerPaper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*AnswerPaper, 0)
	for _, p := range s.papers {
		if f.matches(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PendingCodeAnswers has no question types to consult, so it returns every
// pending submission; callers skip the ones that are not code.
func (s *MemoryStore) PendingCodeAnswers(_ context.Context, olderThan time.Time, limit int) ([]PendingAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PendingAnswer
	for _, p := range s.papers {
		for _, a := range p.Answers {
			if !a.Pending || a.Skipped || a.UpdatedAt.After(olderThan) {
				continue
			}
			out = append(out, PendingAnswer{PaperID: p.ID, AnswerID: a.ID, QuestionID: a.QuestionID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnswerID < out[j].AnswerID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
