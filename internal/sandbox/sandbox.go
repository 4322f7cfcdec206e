package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrUnavailable = errors.New("grading sandbox unavailable")
	ErrJobNotFound = errors.New("sandbox job not found")
)

type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
)

type TestCase struct {
	ID     int64           `json:"id"`
	Kind   string          `json:"kind"`
	Weight float64         `json:"weight"`
	Hidden bool            `json:"hidden"`
	Params json.RawMessage `json:"params"`
}

// Job is keyed by the id of the answer it grades.
type Job struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	Language    string     `json:"language"`
	TestCases   []TestCase `json:"test_cases"`
	SubmittedAt time.Time  `json:"submitted_at"`
}

type CaseVerdict struct {
	TestCaseID int64   `json:"test_case_id"`
	Passed     bool    `json:"passed"`
	Weight     float64 `json:"weight"`
	Hidden     bool    `json:"hidden"`
	Stdout     string  `json:"stdout,omitempty"`
	Stderr     string  `json:"stderr,omitempty"`
}

type Verdict struct {
	Success bool          `json:"success"`
	Cases   []CaseVerdict `json:"cases"`
	Error   []string      `json:"error,omitempty"`
}

type Result struct {
	Status  Status   `json:"status"`
	Verdict *Verdict `json:"verdict,omitempty"`
}

// Queue hands code to an external execution service and reads its verdicts.
type Queue interface {
	Submit(ctx context.Context, job Job) (string, error)
	Poll(ctx context.Context, id string) (Result, error)
}
