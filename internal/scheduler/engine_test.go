package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/novaos/novaos/internal/kvs"
	"github.com/novaos/novaos/internal/telemetry"
)

func newTestKV(t *testing.T) kvs.Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return kvs.NewRedisStoreFromClient(client, "enginetest:")
}

func TestSchedulerRunsHandlerOnceWhenDue(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)

	runs := 0
	registry := NewRegistry()
	registry.Register(Job{
		ID:          "test_job",
		Schedule:    "@every 1m",
		Handler:     func(ctx context.Context, tick time.Time) error { runs++; return nil },
		LeaseMs:     1000,
		MaxAttempts: 1,
		BackoffBase: time.Millisecond,
	})

	s := New(registry, kv, "worker-1", telemetry.NewLogger("text", "error"), nil)
	// Seed the cold-start next_due in the past so the next poll fires.
	if err := kv.Set(ctx, nextDueKey("test_job"), formatTick(time.Now().Add(-time.Minute)), 0); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s.pollOnce(ctx)
	if runs != 1 {
		t.Fatalf("expected handler to run once, ran %d times", runs)
	}
}

func TestSchedulerSkipsWhenNotYetDue(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)

	runs := 0
	registry := NewRegistry()
	registry.Register(Job{
		ID:          "test_job2",
		Schedule:    "@every 1h",
		Handler:     func(ctx context.Context, tick time.Time) error { runs++; return nil },
		LeaseMs:     1000,
		MaxAttempts: 1,
		BackoffBase: time.Millisecond,
	})

	s := New(registry, kv, "worker-1", telemetry.NewLogger("text", "error"), nil)
	if err := kv.Set(ctx, nextDueKey("test_job2"), formatTick(time.Now().Add(time.Hour)), 0); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s.pollOnce(ctx)
	if runs != 0 {
		t.Fatalf("expected handler not to run, ran %d times", runs)
	}
}

func TestSchedulerLeaseConflictPreventsDoubleRun(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)

	registry := NewRegistry()
	job := Job{
		ID:          "test_job3",
		Schedule:    "@every 1m",
		Handler:     func(ctx context.Context, tick time.Time) error { return nil },
		LeaseMs:     60000,
		MaxAttempts: 1,
		BackoffBase: time.Millisecond,
	}
	registry.Register(job)

	tick := time.Now().Add(-time.Minute)
	if err := kv.Set(ctx, nextDueKey(job.ID), formatTick(tick), 0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Simulate another worker already holding the lease for this tick.
	acquired, err := kv.SetNX(ctx, leaseKey(job.ID, tick), "other-worker", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("seed lease: ok=%v err=%v", acquired, err)
	}

	s := New(registry, kv, "worker-1", telemetry.NewLogger("text", "error"), nil)
	s.runTick(ctx, job, tick)

	held, _, err := kv.Get(ctx, leaseKey(job.ID, tick))
	if err != nil {
		t.Fatalf("get lease: %v", err)
	}
	if held != "other-worker" {
		t.Fatalf("expected lease to remain held by other-worker, got %q", held)
	}
}
