package sandbox

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process Queue for tests and local runs.
type MemoryQueue struct {
	mu      sync.Mutex
	jobs    map[string]Job
	results map[string]Verdict
	down    bool
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs:    make(map[string]Job),
		results: make(map[string]Verdict),
	}
}

// SetDown makes every call fail with ErrUnavailable while true.
func (q *MemoryQueue) SetDown(down bool) {
	q.mu.Lock()
	q.down = down
	q.mu.Unlock()
}

func (q *MemoryQueue) Submit(_ context.Context, job Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.down {
		return "", ErrUnavailable
	}
	q.jobs[job.ID] = job
	delete(q.results, job.ID)
	return job.ID, nil
}

func (q *MemoryQueue) Poll(_ context.Context, id string) (Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.down {
		return Result{}, ErrUnavailable
	}
	if v, ok := q.results[id]; ok {
		return Result{Status: StatusDone, Verdict: &v}, nil
	}
	if _, ok := q.jobs[id]; ok {
		return Result{Status: StatusPending}, nil
	}
	return Result{}, ErrJobNotFound
}

func (q *MemoryQueue) Complete(_ context.Context, id string, v Verdict) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.down {
		return ErrUnavailable
	}
	q.results[id] = v
	return nil
}

// Job returns a submitted job.
func (q *MemoryQueue) Job(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	return j, ok
}
