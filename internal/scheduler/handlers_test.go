package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/novaos/novaos/internal/kvs"
	"github.com/novaos/novaos/internal/sword"
	"github.com/novaos/novaos/internal/telemetry"
)

func newTestHandlerSet(t *testing.T) (*HandlerSet, *sword.Store, kvs.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	kv := kvs.NewRedisStoreFromClient(client, "schedtest:")

	store := sword.NewStore(kv)
	notifier := NewNotifier(kv, "", "", false, telemetry.NewLogger("text", "error"))
	health := NewSourceHealth(kv)
	retain := NewRetentionEnforcer(kv, nil, nil, telemetry.NewLogger("text", "error"))
	return NewHandlerSet(store, notifier, health, retain, telemetry.NewLogger("text", "error")), store, kv
}

func TestGenerateDailyStepsIsIdempotentPerTick(t *testing.T) {
	ctx := context.Background()
	h, store, _ := newTestHandlerSet(t)

	goal := sword.Goal{ID: "g1", OwnerID: "u1", Status: sword.GoalActive}
	quest := sword.Quest{ID: "q1", GoalID: "g1", OwnerID: "u1", Title: "Training", Status: sword.QuestActive}
	if err := store.SaveGoal(ctx, goal); err != nil {
		t.Fatalf("save goal: %v", err)
	}
	if err := store.SaveQuest(ctx, quest); err != nil {
		t.Fatalf("save quest: %v", err)
	}

	tick := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	if err := h.GenerateDailySteps(ctx, tick); err != nil {
		t.Fatalf("first run: %v", err)
	}
	tomorrow := tick.AddDate(0, 0, 1).Format("2006-01-02")
	steps, err := store.ListStepsForDate(ctx, tomorrow, "q1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected exactly one step, got %d", len(steps))
	}

	if err := h.GenerateDailySteps(ctx, tick); err != nil {
		t.Fatalf("second run: %v", err)
	}
	steps, err = store.ListStepsForDate(ctx, tomorrow, "q1")
	if err != nil {
		t.Fatalf("list again: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected re-run to be idempotent, got %d steps", len(steps))
	}
}

func TestMorningSparksCreatesExactlyOneSparkPerStep(t *testing.T) {
	ctx := context.Background()
	h, store, _ := newTestHandlerSet(t)

	tick := time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC)
	goal := sword.Goal{ID: "g2", OwnerID: "u2", Status: sword.GoalActive}
	quest := sword.Quest{ID: "q2", GoalID: "g2", OwnerID: "u2", Status: sword.QuestActive}
	step := sword.Step{ID: "s1", QuestID: "q2", OwnerID: "u2", Status: sword.StepPending, ScheduledFor: tick}

	if err := store.SaveGoal(ctx, goal); err != nil {
		t.Fatalf("save goal: %v", err)
	}
	if err := store.SaveQuest(ctx, quest); err != nil {
		t.Fatalf("save quest: %v", err)
	}
	if err := store.AddStepToQuest(ctx, step); err != nil {
		t.Fatalf("save step: %v", err)
	}

	if err := h.MorningSparks(ctx, tick); err != nil {
		t.Fatalf("first run: %v", err)
	}
	sparks, err := store.ListSparksForUser(ctx, "u2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sparks) != 1 {
		t.Fatalf("expected one spark, got %d", len(sparks))
	}

	if err := h.MorningSparks(ctx, tick); err != nil {
		t.Fatalf("second run: %v", err)
	}
	sparks, err = store.ListSparksForUser(ctx, "u2")
	if err != nil {
		t.Fatalf("list again: %v", err)
	}
	if len(sparks) != 1 {
		t.Fatalf("expected re-run to create no additional sparks, got %d", len(sparks))
	}
}

func TestReminderEscalationRaisesLevelWithAge(t *testing.T) {
	ctx := context.Background()
	h, store, _ := newTestHandlerSet(t)

	created := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	sp := sword.Spark{ID: "sp1", StepID: "s1", OwnerID: "u3", Status: sword.SparkSuggested, CreatedAt: created, ExpiresAt: created.Add(sword.SparkExpiry)}
	if err := store.SaveSpark(ctx, sp); err != nil {
		t.Fatalf("save: %v", err)
	}

	tick := created.Add(7 * time.Hour) // floor(7/3) = 2
	if err := h.ReminderEscalation(ctx, tick); err != nil {
		t.Fatalf("run: %v", err)
	}
	fetched, _, err := store.GetSpark(ctx, "sp1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.EscalationLevel != 2 {
		t.Fatalf("expected escalation level 2, got %d", fetched.EscalationLevel)
	}
}

func TestDayEndReconciliationMissesUncompletedSteps(t *testing.T) {
	ctx := context.Background()
	h, store, _ := newTestHandlerSet(t)

	tick := time.Date(2026, 7, 30, 23, 59, 0, 0, time.UTC)
	goal := sword.Goal{ID: "g4", OwnerID: "u4", Status: sword.GoalActive}
	quest := sword.Quest{ID: "q4", GoalID: "g4", OwnerID: "u4", Status: sword.QuestActive}
	step := sword.Step{ID: "s4", QuestID: "q4", OwnerID: "u4", Status: sword.StepPending, ScheduledFor: tick}

	if err := store.SaveGoal(ctx, goal); err != nil {
		t.Fatalf("save goal: %v", err)
	}
	if err := store.SaveQuest(ctx, quest); err != nil {
		t.Fatalf("save quest: %v", err)
	}
	if err := store.AddStepToQuest(ctx, step); err != nil {
		t.Fatalf("save step: %v", err)
	}

	if err := h.DayEndReconciliation(ctx, tick); err != nil {
		t.Fatalf("run: %v", err)
	}
	fetched, _, err := store.GetStep(ctx, "s4")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Status != sword.StepMissed {
		t.Fatalf("expected missed, got %s", fetched.Status)
	}
}

func TestKnownSourcesHealthDisablesAfterThreeFailures(t *testing.T) {
	ctx := context.Background()
	h, _, _ := newTestHandlerSet(t)

	for i := 0; i < 3; i++ {
		if err := h.health.RecordResult(ctx, "stock", false); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := h.KnownSourcesHealth(ctx, time.Now()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	s, err := h.health.get(ctx, "stock")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Status != SourceDisabled {
		t.Fatalf("expected disabled after reconcile, got %s", s.Status)
	}
}
