package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobsKey      = "sandbox:jobs"
	pendingKey   = "sandbox:pending:"
	resultKey    = "sandbox:result:"
	defaultTTL   = 24 * time.Hour
	popBlockTime = 5 * time.Second
)

// RedisQueue pushes jobs onto a list consumed by the execution service,
// which writes verdicts back under a per-job result key.
type RedisQueue struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisQueue(rdb *redis.Client, ttl time.Duration) *RedisQueue {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisQueue{rdb: rdb, ttl: ttl}
}

func (q *RedisQueue) Submit(ctx context.Context, job Job) (string, error) {
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	b, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode sandbox job: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, pendingKey+job.ID, b, q.ttl)
	pipe.Del(ctx, resultKey+job.ID)
	pipe.LPush(ctx, jobsKey, b)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("%w: push job: %v", ErrUnavailable, err)
	}
	return job.ID, nil
}

func (q *RedisQueue) Poll(ctx context.Context, id string) (Result, error) {
	raw, err := q.rdb.Get(ctx, resultKey+id).Bytes()
	if err == nil {
		var v Verdict
		if err := json.Unmarshal(raw, &v); err != nil {
			return Result{}, fmt.Errorf("decode verdict: %w", err)
		}
		return Result{Status: StatusDone, Verdict: &v}, nil
	}
	if !errors.Is(err, redis.Nil) {
		return Result{}, fmt.Errorf("%w: read result: %v", ErrUnavailable, err)
	}

	n, err := q.rdb.Exists(ctx, pendingKey+id).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: read pending: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return Result{}, ErrJobNotFound
	}
	return Result{Status: StatusPending}, nil
}

// Next blocks until a job is available or ctx is done. It is the consumer
// side used by execution workers.
func (q *RedisQueue) Next(ctx context.Context) (*Job, error) {
	for {
		res, err := q.rdb.BRPop(ctx, popBlockTime, jobsKey).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: pop job: %v", ErrUnavailable, err)
		}
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return nil, fmt.Errorf("decode sandbox job: %w", err)
		}
		return &job, nil
	}
}

// Complete stores the verdict for a job and clears its pending marker.
func (q *RedisQueue) Complete(ctx context.Context, id string, v Verdict) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, resultKey+id, b, q.ttl)
	pipe.Del(ctx, pendingKey+id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: store verdict: %v", ErrUnavailable, err)
	}
	return nil
}
