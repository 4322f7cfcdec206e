package exam

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrAnswerNotFound   = errors.New("answer not found")
	ErrDuplicateAttempt = errors.New("attempt already exists")
)

// AttemptKey identifies the attempt series of one user on one paper.
type AttemptKey struct {
	UserID          int64
	QuestionPaperID int64
	CourseID        int64
}

type PaperFilter struct {
	QuestionPaperID int64
	UserID          int64
	CourseID        int64
	Statuses        []Status
}

func (f PaperFilter) matches(p *AnswerPaper) bool {
	if f.QuestionPaperID != 0 && p.QuestionPaperID != f.QuestionPaperID {
		return false
	}
	if f.UserID != 0 && p.UserID != f.UserID {
		return false
	}
	if f.CourseID != 0 && p.CourseID != f.CourseID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if p.Status == s {
			return true
		}
	}
	return false
}

// PendingAnswer is a code answer still waiting for a sandbox verdict.
type PendingAnswer struct {
	PaperID    int64
	AnswerID   int64
	QuestionID int64
}

// Store persists answer papers and their answers.
type Store interface {
	// LastAttempt returns the attempt with the highest number for key.
	LastAttempt(ctx context.Context, key AttemptKey) (*AnswerPaper, error)
	// CreatePaper inserts p and sets its id. ErrDuplicateAttempt is returned
	// when another in-progress paper or the same attempt number exists.
	CreatePaper(ctx context.Context, p *AnswerPaper) error
	GetPaper(ctx context.Context, id int64) (*AnswerPaper, error)
	// UpdatePaper runs fn against a locked copy of the paper and persists it
	// together with every answer fn touched, unless fn fails.
	UpdatePaper(ctx context.Context, id int64, fn func(*AnswerPaper) error) (*AnswerPaper, error)
	NewAnswerID(ctx context.Context) (int64, error)
	// FindAnswer returns the paper id owning an answer.
	FindAnswer(ctx context.Context, answerID int64) (int64, error)
	ListPapers(ctx context.Context, f PaperFilter) ([]*AnswerPaper, error)
	PendingCodeAnswers(ctx context.Context, olderThan time.Time, limit int) ([]PendingAnswer, error)
}
