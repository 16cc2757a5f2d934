package scheduler

import "time"

// DefaultRegistry wires the six spec §4.10 handlers against their
// schedules, lease windows, and retry policy.
func DefaultRegistry(h *HandlerSet) *Registry {
	r := NewRegistry()
	r.Register(Job{
		ID:          JobGenerateDailySteps,
		Schedule:    "0 0 * * *",
		Handler:     h.GenerateDailySteps,
		LeaseMs:     5 * 60 * 1000,
		MaxAttempts: 3,
		BackoffBase: time.Second,
	})
	r.Register(Job{
		ID:          JobMorningSparks,
		Schedule:    "0 6 * * *",
		Handler:     h.MorningSparks,
		LeaseMs:     5 * 60 * 1000,
		MaxAttempts: 3,
		BackoffBase: time.Second,
	})
	r.Register(Job{
		ID:          JobReminderEscalation,
		Schedule:    "@every 3h",
		Handler:     h.ReminderEscalation,
		LeaseMs:     2 * 60 * 1000,
		MaxAttempts: 3,
		BackoffBase: time.Second,
	})
	r.Register(Job{
		ID:          JobDayEndReconciliation,
		Schedule:    "59 23 * * *",
		Handler:     h.DayEndReconciliation,
		LeaseMs:     5 * 60 * 1000,
		MaxAttempts: 3,
		BackoffBase: time.Second,
	})
	r.Register(Job{
		ID:          JobKnownSourcesHealth,
		Schedule:    "0 3 * * 0",
		Handler:     h.KnownSourcesHealth,
		LeaseMs:     2 * 60 * 1000,
		MaxAttempts: 2,
		BackoffBase: 2 * time.Second,
	})
	r.Register(Job{
		ID:          JobRetentionEnforcement,
		Schedule:    "0 4 * * *",
		Handler:     h.RetentionEnforcement,
		LeaseMs:     10 * 60 * 1000,
		MaxAttempts: 2,
		BackoffBase: 5 * time.Second,
	})
	return r
}
