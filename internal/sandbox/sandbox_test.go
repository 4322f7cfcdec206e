package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryQueueLifecycle(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	if _, err := q.Poll(ctx, "7"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("unknown job: expected ErrJobNotFound, got %v", err)
	}

	id, err := q.Submit(ctx, Job{ID: "7", Code: "print(1)", Language: "python"})
	if err != nil || id != "7" {
		t.Fatalf("submit got id=%q err=%v", id, err)
	}
	res, err := q.Poll(ctx, id)
	if err != nil || res.Status != StatusPending || res.Verdict != nil {
		t.Fatalf("expected pending, got %+v err=%v", res, err)
	}

	if err := q.Complete(ctx, id, Verdict{Success: true}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	res, err = q.Poll(ctx, id)
	if err != nil || res.Status != StatusDone || !res.Verdict.Success {
		t.Fatalf("expected done verdict, got %+v err=%v", res, err)
	}

	// Resubmitting clears the old verdict.
	if _, err := q.Submit(ctx, Job{ID: id}); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if res, _ := q.Poll(ctx, id); res.Status != StatusPending {
		t.Fatalf("expected pending after resubmit, got %s", res.Status)
	}
}

func TestMemoryQueueDown(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	q.SetDown(true)

	if _, err := q.Submit(ctx, Job{ID: "1"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("submit: expected ErrUnavailable, got %v", err)
	}
	if _, err := q.Poll(ctx, "1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("poll: expected ErrUnavailable, got %v", err)
	}
}

func TestRedisQueueUnreachableIsUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	q := NewRedisQueue(rdb, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := q.Submit(ctx, Job{ID: "1"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("submit: expected ErrUnavailable, got %v", err)
	}
	if _, err := q.Poll(ctx, "1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("poll: expected ErrUnavailable, got %v", err)
	}
}
