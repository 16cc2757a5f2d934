package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/novaos/novaos/internal/sword"
)

// HandlerSet wires the six job handlers (spec §4.10) against a shared
// sword.Store, Notifier, and SourceHealth tracker. Registered jobs call
// through to these methods; the Scheduler engine only ever sees Handler
// closures, never these dependencies directly.
type HandlerSet struct {
	store    *sword.Store
	notifier *Notifier
	health   *SourceHealth
	retain   *RetentionEnforcer
	log      *slog.Logger
}

func NewHandlerSet(store *sword.Store, notifier *Notifier, health *SourceHealth, retain *RetentionEnforcer, log *slog.Logger) *HandlerSet {
	return &HandlerSet{store: store, notifier: notifier, health: health, retain: retain, log: log}
}

// GenerateDailySteps creates tomorrow's step record for every user with an
// active goal and active quest, if one doesn't already exist (spec §4.10,
// idempotent over (jobId, tick): re-running the same tick must not
// duplicate steps).
func (h *HandlerSet) GenerateDailySteps(ctx context.Context, tick time.Time) error {
	tomorrow := tick.AddDate(0, 0, 1)
	dateKey := tomorrow.Format("2006-01-02")

	users, err := h.store.ListAllUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("generate_daily_steps: listing users: %w", err)
	}
	for _, uid := range users {
		goals, err := h.store.ListGoalsForUser(ctx, uid)
		if err != nil {
			return err
		}
		for _, g := range goals {
			if g.Status != sword.GoalActive {
				continue
			}
			quests, err := h.store.ListQuestsForGoal(ctx, g.ID)
			if err != nil {
				return err
			}
			for _, q := range quests {
				if q.Status != sword.QuestActive {
					continue
				}
				existing, err := h.store.ListStepsForDate(ctx, dateKey, q.ID)
				if err != nil {
					return err
				}
				if len(existing) > 0 {
					continue
				}
				step := sword.Step{
					ID:           uuid.NewString(),
					QuestID:      q.ID,
					OwnerID:      uid,
					Title:        fmt.Sprintf("%s — daily step", q.Title),
					Status:       sword.StepPending,
					ScheduledFor: tomorrow,
					CreatedAt:    tick,
				}
				if err := h.store.AddStepToQuest(ctx, step); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// MorningSparks creates a spark for every step scheduled today that
// doesn't already have one (spec §4.10).
func (h *HandlerSet) MorningSparks(ctx context.Context, tick time.Time) error {
	dateKey := tick.Format("2006-01-02")

	users, err := h.store.ListAllUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("morning_sparks: listing users: %w", err)
	}
	for _, uid := range users {
		goals, err := h.store.ListGoalsForUser(ctx, uid)
		if err != nil {
			return err
		}
		for _, g := range goals {
			quests, err := h.store.ListQuestsForGoal(ctx, g.ID)
			if err != nil {
				return err
			}
			for _, q := range quests {
				steps, err := h.store.ListStepsForDate(ctx, dateKey, q.ID)
				if err != nil {
					return err
				}
				for _, st := range steps {
					if st.Status != sword.StepPending && st.Status != sword.StepActive {
						continue
					}
					if err := h.ensureSparkForStep(ctx, uid, st, tick); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (h *HandlerSet) ensureSparkForStep(ctx context.Context, uid string, st sword.Step, tick time.Time) error {
	sparks, err := h.store.ListSparksForUser(ctx, uid)
	if err != nil {
		return err
	}
	for _, sp := range sparks {
		if sp.StepID == st.ID && (sp.Status == sword.SparkSuggested || sp.Status == sword.SparkAccepted) {
			return nil
		}
	}
	sp := sword.Spark{
		ID:        uuid.NewString(),
		StepID:    st.ID,
		OwnerID:   uid,
		Status:    sword.SparkSuggested,
		CreatedAt: tick,
		ExpiresAt: tick.Add(sword.SparkExpiry),
	}
	return h.store.SaveSpark(ctx, sp)
}

// ReminderEscalation runs every 3h: for each active spark, compute
// targetLevel = min(floor(ageHours/3), 3); escalate and notify when it
// exceeds the current level (spec §4.10).
func (h *HandlerSet) ReminderEscalation(ctx context.Context, tick time.Time) error {
	users, err := h.store.ListAllUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("reminder_escalation: listing users: %w", err)
	}
	for _, uid := range users {
		sparks, err := h.store.ListSparksForUser(ctx, uid)
		if err != nil {
			return err
		}
		for _, sp := range sparks {
			if sp.Status != sword.SparkSuggested && sp.Status != sword.SparkAccepted {
				continue
			}
			ageHours := tick.Sub(sp.CreatedAt).Hours()
			targetLevel := int(math.Min(math.Floor(ageHours/3), 3))
			if targetLevel <= sp.EscalationLevel {
				continue
			}
			sp.EscalationLevel = targetLevel
			if err := h.store.SaveSpark(ctx, sp); err != nil {
				return err
			}
			msg := fmt.Sprintf("reminder: spark %s is still pending (escalation level %d)", sp.ID, targetLevel)
			if err := h.notifier.Enqueue(ctx, uid, msg); err != nil {
				return err
			}
		}
	}
	return nil
}

// DayEndReconciliation marks uncompleted today-steps missed, breaks
// streaks, and expires associated sparks (spec §4.10).
func (h *HandlerSet) DayEndReconciliation(ctx context.Context, tick time.Time) error {
	dateKey := tick.Format("2006-01-02")

	users, err := h.store.ListAllUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("day_end_reconciliation: listing users: %w", err)
	}
	for _, uid := range users {
		goals, err := h.store.ListGoalsForUser(ctx, uid)
		if err != nil {
			return err
		}
		for _, g := range goals {
			quests, err := h.store.ListQuestsForGoal(ctx, g.ID)
			if err != nil {
				return err
			}
			for _, q := range quests {
				steps, err := h.store.ListStepsForDate(ctx, dateKey, q.ID)
				if err != nil {
					return err
				}
				for _, st := range steps {
					if err := h.reconcileStep(ctx, uid, g.ID, st); err != nil {
						return err
					}
				}
			}
		}

		sparks, err := h.store.ListSparksForUser(ctx, uid)
		if err != nil {
			return err
		}
		for _, sp := range sparks {
			if sp.Status == sword.SparkSuggested || sp.Status == sword.SparkAccepted {
				if _, _, err := h.store.TransitionSpark(ctx, sp.ID, sword.EventExpire); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (h *HandlerSet) reconcileStep(ctx context.Context, uid, goalID string, st sword.Step) error {
	switch st.Status {
	case sword.StepCompleted:
		if _, err := h.store.IncrementStreak(ctx, uid, goalID); err != nil {
			return err
		}
	case sword.StepPending, sword.StepActive:
		if _, _, err := h.store.TransitionStep(ctx, st.ID, sword.EventMiss); err != nil {
			return err
		}
		if err := h.store.ResetStreak(ctx, uid, goalID); err != nil {
			return err
		}
	}
	return nil
}

// KnownSourcesHealth applies the weekly failed->disabled->active flip
// (spec §4.10); the heavy lifting lives in SourceHealth.ReconcileAll.
func (h *HandlerSet) KnownSourcesHealth(ctx context.Context, tick time.Time) error {
	return h.health.ReconcileAll(ctx, tick)
}

// RetentionEnforcement runs the archive-then-delete sweep (spec §4.10).
func (h *HandlerSet) RetentionEnforcement(ctx context.Context, tick time.Time) error {
	return h.retain.Run(ctx, tick)
}
