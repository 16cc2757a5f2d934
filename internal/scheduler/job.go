// Package scheduler implements the Spark Scheduler (spec §2 component 14,
// §4.10): a durable cron-like engine over the KVS that drives step
// generation, reminder escalation, reconciliation, and retention.
// Grounded on oriys-nova's internal/scheduler (robfig/cron registration
// loop) generalized from a dynamic per-tenant schedule store to a fixed,
// enumerated job registry, with lease/retry machinery adapted from the
// teacher's worker-pool idiom.
package scheduler

import (
	"context"
	"time"
)

// JobID enumerates the fixed set of scheduler jobs (spec §4.10).
type JobID string

const (
	JobGenerateDailySteps    JobID = "generate_daily_steps"
	JobMorningSparks         JobID = "morning_sparks"
	JobReminderEscalation    JobID = "reminder_escalation"
	JobDayEndReconciliation  JobID = "day_end_reconciliation"
	JobKnownSourcesHealth    JobID = "known_sources_health"
	JobRetentionEnforcement JobID = "retention_enforcement"
)

// Handler runs one tick of a job. A handler must be idempotent over
// (jobId, tick): re-running the same tick must produce the same
// observable state (spec §4.10).
type Handler func(ctx context.Context, tick time.Time) error

// Job is one registry entry: schedule + handler + lease/retry policy.
type Job struct {
	ID          JobID
	Schedule    string // cron expression, or "@every 3h" style interval
	Handler     Handler
	LeaseMs     int64
	MaxAttempts int
	BackoffBase time.Duration
}

// ExecutionResult is the outcome recorded for one (jobId, tick) attempt.
type ExecutionResult string

const (
	ExecutionCompleted     ExecutionResult = "completed"
	ExecutionFailed        ExecutionResult = "failed"
	ExecutionLeaseConflict ExecutionResult = "lease_conflict"
)

// JobExecution is the audit-visible record of one run attempt.
type JobExecution struct {
	JobID    JobID
	Tick     time.Time
	Attempt  int
	Result   ExecutionResult
	Err      string
	Started  time.Time
	Finished time.Time
}

// Registry is the fixed, enumerated set of jobs the scheduler drives.
type Registry struct {
	jobs map[JobID]Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[JobID]Job)}
}

func (r *Registry) Register(j Job) {
	r.jobs[j.ID] = j
}

func (r *Registry) Get(id JobID) (Job, bool) {
	j, ok := r.jobs[id]
	return j, ok
}

func (r *Registry) All() []Job {
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	return out
}
