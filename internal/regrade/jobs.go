package regrade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrJobNotFound = errors.New("regrade job not found")

type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

type Job struct {
	ID          string    `json:"id"`
	Scope       Scope     `json:"scope"`
	Status      JobStatus `json:"status"`
	Summary     *Summary  `json:"summary,omitempty"`
	Error       string    `json:"error,omitempty"`
	RequestedBy int64     `json:"requested_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JobQueue carries regrade jobs from the API to the worker.
type JobQueue interface {
	Push(ctx context.Context, job Job) error
	// Pop waits up to block for a job; it returns nil, nil when none arrived.
	Pop(ctx context.Context, block time.Duration) (*Job, error)
	Save(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (*Job, error)
}

const (
	regradeJobsKey   = "regrade:jobs"
	regradeStatusKey = "regrade:job:"
)

type RedisJobQueue struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisJobQueue(rdb *redis.Client, ttl time.Duration) *RedisJobQueue {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisJobQueue{rdb: rdb, ttl: ttl}
}

func (q *RedisJobQueue) Push(ctx context.Context, job Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode regrade job: %w", err)
	}
	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, regradeStatusKey+job.ID, b, q.ttl)
	pipe.LPush(ctx, regradeJobsKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push regrade job: %w", err)
	}
	return nil
}

func (q *RedisJobQueue) Pop(ctx context.Context, block time.Duration) (*Job, error) {
	res, err := q.rdb.BRPop(ctx, block, regradeJobsKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop regrade job: %w", err)
	}
	if len(res) != 2 {
		return nil, nil
	}
	return q.Get(ctx, res[1])
}

func (q *RedisJobQueue) Save(ctx context.Context, job Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode regrade job: %w", err)
	}
	if err := q.rdb.Set(ctx, regradeStatusKey+job.ID, b, q.ttl).Err(); err != nil {
		return fmt.Errorf("save regrade job: %w", err)
	}
	return nil
}

func (q *RedisJobQueue) Get(ctx context.Context, id string) (*Job, error) {
	raw, err := q.rdb.Get(ctx, regradeStatusKey+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get regrade job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode regrade job: %w", err)
	}
	return &job, nil
}

// Dispatcher accepts regrade requests and hands them to the worker.
type Dispatcher struct {
	queue JobQueue
	now   func() time.Time
}

func NewDispatcher(queue JobQueue) *Dispatcher {
	return &Dispatcher{queue: queue, now: time.Now}
}

func (d *Dispatcher) Submit(ctx context.Context, scope Scope, requestedBy int64) (*Job, error) {
	if scope.QuestionPaperID <= 0 {
		return nil, ErrInvalidScope
	}
	now := d.now().UTC()
	job := Job{
		ID:          uuid.NewString(),
		Scope:       scope,
		Status:      JobQueued,
		RequestedBy: requestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.queue.Push(ctx, job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (d *Dispatcher) Status(ctx context.Context, id string) (*Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrJobNotFound
	}
	return d.queue.Get(ctx, id)
}

// Worker runs queued regrade jobs one at a time; each job fans out over
// papers inside the Aggregator.
type Worker struct {
	queue JobQueue
	agg   *Aggregator
	log   *zap.Logger
	block time.Duration
	now   func() time.Time
}

func NewWorker(queue JobQueue, agg *Aggregator, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{queue: queue, agg: agg, log: log, block: 5 * time.Second, now: time.Now}
}

// Run consumes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		job, err := w.queue.Pop(ctx, w.block)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn("regrade queue", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		w.process(ctx, *job)
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	job.Status = JobRunning
	job.UpdatedAt = w.now().UTC()
	if err := w.queue.Save(ctx, job); err != nil {
		w.log.Warn("save regrade job", zap.String("job_id", job.ID), zap.Error(err))
	}

	sum, err := w.agg.Regrade(ctx, job.Scope)
	job.UpdatedAt = w.now().UTC()
	job.Summary = &sum
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		w.log.Error("regrade job failed", zap.String("job_id", job.ID), zap.Error(err))
	} else {
		job.Status = JobDone
		w.log.Info("regrade job done", zap.String("job_id", job.ID), zap.Int("papers", sum.Papers))
	}
	if err := w.queue.Save(context.WithoutCancel(ctx), job); err != nil {
		w.log.Warn("save regrade job", zap.String("job_id", job.ID), zap.Error(err))
	}
}
