package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sethvargo/go-retry"

	"github.com/novaos/novaos/internal/kvs"
	"github.com/novaos/novaos/internal/telemetry"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler runs the tick/lease/execute loop of spec §4.10 over a fixed
// Registry. Any number of worker processes may run a Scheduler against the
// same KVS; the lease CAS in internal/kvs.Store.SetNX ensures at most one
// of them executes a given (jobId, tick).
type Scheduler struct {
	registry *Registry
	kv       kvs.Store
	workerID string
	log      *slog.Logger
	metrics  *telemetry.Metrics

	pollInterval time.Duration
}

func New(registry *Registry, kv kvs.Store, workerID string, log *slog.Logger, metrics *telemetry.Metrics) *Scheduler {
	return &Scheduler{
		registry:     registry,
		kv:           kv,
		workerID:     workerID,
		log:          log,
		metrics:      metrics,
		pollInterval: 15 * time.Second,
	}
}

func nextDueKey(id JobID) string         { return fmt.Sprintf("scheduler:next_due:%s", id) }
func leaseKey(id JobID, tick time.Time) string {
	return fmt.Sprintf("scheduler:lease:%s:%d", id, tick.Unix())
}

// Run drives the poll loop until ctx is cancelled. Each poll checks every
// registered job's next_due marker and executes any job whose tick has
// arrived (spec §4.10 step 1: "Tick: determine due (jobId, tick) pairs").
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Scheduler) pollOnce(ctx context.Context) {
	now := time.Now()
	for _, job := range s.registry.All() {
		due, tick, err := s.dueTick(ctx, job, now)
		if err != nil {
			s.log.Error("scheduler: computing due tick failed", "job", job.ID, "error", err)
			continue
		}
		if !due {
			continue
		}
		s.runTick(ctx, job, tick)
	}
}

// dueTick reads scheduler:next_due:{jobId}; if absent, seeds it from the
// schedule's next occurrence after now without running (cold start should
// not replay history). Returns due=true when now >= next_due.
func (s *Scheduler) dueTick(ctx context.Context, job Job, now time.Time) (bool, time.Time, error) {
	raw, ok, err := s.kv.Get(ctx, nextDueKey(job.ID))
	if err != nil {
		return false, time.Time{}, err
	}
	schedule, err := cronParser.Parse(job.Schedule)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("scheduler: parsing schedule for %s: %w", job.ID, err)
	}
	if !ok {
		seed := schedule.Next(now)
		if err := s.kv.Set(ctx, nextDueKey(job.ID), formatTick(seed), 0); err != nil {
			return false, time.Time{}, err
		}
		return false, time.Time{}, nil
	}
	nextDue, err := parseTick(raw)
	if err != nil {
		return false, time.Time{}, err
	}
	if now.Before(nextDue) {
		return false, time.Time{}, nil
	}
	return true, nextDue, nil
}

func (s *Scheduler) runTick(ctx context.Context, job Job, tick time.Time) {
	acquired, err := s.kv.SetNX(ctx, leaseKey(job.ID, tick), s.workerID, time.Duration(job.LeaseMs)*time.Millisecond)
	if err != nil {
		s.log.Error("scheduler: lease acquisition failed", "job", job.ID, "error", err)
		return
	}
	if !acquired {
		s.recordTick(job.ID, ExecutionLeaseConflict)
		return
	}

	exec := s.executeWithRetry(ctx, job, tick)
	s.recordTick(job.ID, exec.Result)
	if s.metrics != nil {
		s.metrics.SchedulerDuration.WithLabelValues(string(job.ID)).Observe(exec.Finished.Sub(exec.Started).Seconds())
	}

	schedule, err := cronParser.Parse(job.Schedule)
	if err != nil {
		s.log.Error("scheduler: re-parsing schedule failed", "job", job.ID, "error", err)
		return
	}
	if err := s.kv.Set(ctx, nextDueKey(job.ID), formatTick(schedule.Next(tick)), 0); err != nil {
		s.log.Error("scheduler: advancing next_due failed", "job", job.ID, "error", err)
	}
}

// executeWithRetry runs the handler within a timeout derived from LeaseMs,
// retrying with exponential backoff up to MaxAttempts (spec §4.10 steps
// 3-5). A long-running handler is expected to finish within its own lease;
// renewal is left to the handler via context plumbing in a future worker
// generation — the current lease window is the hard ceiling.
func (s *Scheduler) executeWithRetry(ctx context.Context, job Job, tick time.Time) JobExecution {
	started := time.Now()
	exec := JobExecution{JobID: job.ID, Tick: tick, Started: started}

	backoff, err := retry.NewExponential(job.BackoffBase)
	if err != nil {
		exec.Result = ExecutionFailed
		exec.Err = err.Error()
		exec.Finished = time.Now()
		return exec
	}
	backoff = retry.WithMaxRetries(uint64(job.MaxAttempts-1), backoff)

	attempt := 0
	runErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, time.Duration(job.LeaseMs)*time.Millisecond)
		defer cancel()
		if err := job.Handler(callCtx, tick); err != nil {
			s.log.Warn("scheduler: handler attempt failed", "job", job.ID, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})

	exec.Attempt = attempt
	exec.Finished = time.Now()
	if runErr != nil {
		exec.Result = ExecutionFailed
		exec.Err = runErr.Error()
		s.log.Error("scheduler: job exhausted retries", "job", job.ID, "attempts", attempt, "error", runErr)
		return exec
	}
	exec.Result = ExecutionCompleted
	return exec
}

func (s *Scheduler) recordTick(id JobID, result ExecutionResult) {
	if s.metrics != nil {
		s.metrics.SchedulerTick.WithLabelValues(string(id), string(result)).Inc()
	}
}

func formatTick(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func parseTick(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("scheduler: malformed next_due value: " + s)
	}
	return t, nil
}
