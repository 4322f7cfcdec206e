package regrade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quizengine/internal/exam"

	"github.com/google/uuid"
)

type memoryJobQueue struct {
	mu      sync.Mutex
	pending chan string
	jobs    map[string]Job
}

func newMemoryJobQueue() *memoryJobQueue {
	return &memoryJobQueue{pending: make(chan string, 16), jobs: make(map[string]Job)}
}

func (q *memoryJobQueue) Push(_ context.Context, job Job) error {
	q.mu.Lock()
	q.jobs[job.ID] = job
	q.mu.Unlock()
	q.pending <- job.ID
	return nil
}

func (q *memoryJobQueue) Pop(ctx context.Context, block time.Duration) (*Job, error) {
	select {
	case id := <-q.pending:
		return q.Get(ctx, id)
	case <-time.After(block):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *memoryJobQueue) Save(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.ID] = job
	return nil
}

func (q *memoryJobQueue) Get(_ context.Context, id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func TestDispatcherSubmit(t *testing.T) {
	q := newMemoryJobQueue()
	d := NewDispatcher(q)

	if _, err := d.Submit(context.Background(), Scope{}, 1); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}

	job, err := d.Submit(context.Background(), Scope{QuestionPaperID: questionPaperID}, 9)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := uuid.Parse(job.ID); err != nil {
		t.Fatalf("job id is not a uuid: %q", job.ID)
	}
	got, err := d.Status(context.Background(), job.ID)
	if err != nil || got.Status != JobQueued || got.RequestedBy != 9 {
		t.Fatalf("status got=%+v err=%v", got, err)
	}
	if _, err := d.Status(context.Background(), "not-a-uuid"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestWorkerRunsQueuedJob(t *testing.T) {
	f := newFixture(t)
	p := f.seed(t, 1, exam.StatusCompleted, exam.Answer{QuestionID: qInteger, Value: raw(`41`)})
	f.putIntegerKey(41)

	q := newMemoryJobQueue()
	d := NewDispatcher(q)
	w := NewWorker(q, f.aggregator(), nil)
	w.block = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- w.Run(ctx) }()

	job, err := d.Submit(ctx, Scope{QuestionPaperID: questionPaperID}, 9)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	var got *Job
	for time.Now().Before(deadline) {
		got, _ = d.Status(context.Background(), job.ID)
		if got != nil && (got.Status == JobDone || got.Status == JobFailed) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-stopped; err != nil {
		t.Fatalf("worker returned %v", err)
	}

	if got == nil || got.Status != JobDone || got.Summary == nil || got.Summary.Papers != 1 {
		t.Fatalf("unexpected job: %+v", got)
	}
	paper, _ := f.store.GetPaper(context.Background(), p.ID)
	if paper.MarksObtained != 5 {
		t.Fatalf("marks got=%v want=5", paper.MarksObtained)
	}
}
