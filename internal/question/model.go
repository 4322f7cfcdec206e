package question

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrPaperNotFound    = errors.New("question paper not found")
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrInvalidQuestion  = errors.New("invalid question")
)

type Type string

const (
	TypeMCQ     Type = "mcq"
	TypeMCC     Type = "mcc"
	TypeInteger Type = "integer"
	TypeFloat   Type = "float"
	TypeString  Type = "string"
	TypeCode    Type = "code"
	TypeUpload  Type = "upload"
	TypeArrange Type = "arrange"
)

func (t Type) Valid() bool {
	switch t {
	case TypeMCQ, TypeMCC, TypeInteger, TypeFloat, TypeString, TypeCode, TypeUpload, TypeArrange:
		return true
	}
	return false
}

// KeepsHistory reports whether every submission is stored as a new answer
// instead of overwriting the latest one.
func (t Type) KeepsHistory() bool {
	return t == TypeCode || t == TypeUpload
}

const DefaultLanguage = "python"

type Question struct {
	ID             int64      `json:"id"`
	Summary        string     `json:"summary"`
	Description    string     `json:"description"`
	Type           Type       `json:"type"`
	Language       string     `json:"language"`
	Points         float64    `json:"points"`
	PartialGrading bool       `json:"partial_grading"`
	MinTime        int        `json:"min_time"`
	Snippet        string     `json:"snippet,omitempty"`
	Solution       string     `json:"-"`
	Active         bool       `json:"active"`
	TestCases      []TestCase `json:"-"`
}

// Title is the short label shown in status listings.
func (q *Question) Title() string {
	if s := strings.TrimSpace(q.Summary); s != "" {
		return s
	}
	if d := strings.TrimSpace(q.Description); d != "" {
		r := []rune(d)
		if len(r) > 50 {
			return string(r[:50]) + "..."
		}
		return d
	}
	return fmt.Sprintf("Question %d", q.ID)
}

func (q *Question) Validate() error {
	if !q.Type.Valid() {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidQuestion, q.Type)
	}
	if q.Points <= 0 {
		return fmt.Errorf("%w: points must be positive", ErrInvalidQuestion)
	}
	return validateTestCases(q.Type, q.TestCases)
}

// CorrectOptionIDs returns the ids of mcq test cases flagged correct.
func (q *Question) CorrectOptionIDs() []int64 {
	out := make([]int64, 0, 2)
	for _, tc := range q.TestCases {
		if m, ok := tc.(MCQTestCase); ok && m.Correct {
			out = append(out, m.ID)
		}
	}
	return out
}

// Quiz carries the attempt policy of a question paper.
type Quiz struct {
	ID                  int64      `json:"id"`
	ModuleID            int64      `json:"module_id"`
	Description         string     `json:"description"`
	Duration            int        `json:"duration"`
	AttemptsAllowed     int        `json:"attempts_allowed"`
	TimeBetweenAttempts float64    `json:"time_between_attempts"`
	PassCriteria        float64    `json:"pass_criteria"`
	AllowSkip           bool       `json:"allow_skip"`
	Active              bool       `json:"active"`
	IsExercise          bool       `json:"is_exercise"`
	Weightage           float64    `json:"weightage"`
	StartAt             *time.Time `json:"start_at,omitempty"`
	EndAt               *time.Time `json:"end_at,omitempty"`
}

// Cooldown is the minimum gap between two attempts.
func (q *Quiz) Cooldown() time.Duration {
	if q.TimeBetweenAttempts <= 0 {
		return 0
	}
	return time.Duration(q.TimeBetweenAttempts * float64(time.Hour))
}

func (q *Quiz) OpenAt(now time.Time) bool {
	if !q.Active {
		return false
	}
	if q.StartAt != nil && now.Before(*q.StartAt) {
		return false
	}
	if q.EndAt != nil && now.After(*q.EndAt) {
		return false
	}
	return true
}
