package sword

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/novaos/novaos/internal/kvs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(kvs.NewRedisStoreFromClient(client, "swordtest:"))
}

func TestGoalActivateAndComplete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	g := Goal{ID: "g1", OwnerID: "u1", Title: "Run a marathon", Status: GoalDraft}
	if err := s.SaveGoal(ctx, g); err != nil {
		t.Fatalf("save: %v", err)
	}

	updated, res, err := s.TransitionGoal(ctx, "g1", EventActivate)
	if err != nil || !res.Success {
		t.Fatalf("activate: err=%v res=%+v", err, res)
	}
	if updated.Status != GoalActive {
		t.Fatalf("expected active, got %s", updated.Status)
	}

	_, res, err = s.TransitionGoal(ctx, "g1", EventComplete)
	if err != nil || !res.Success {
		t.Fatalf("complete: err=%v res=%+v", err, res)
	}
	fetched, _, _ := s.GetGoal(ctx, "g1")
	if fetched.Status != GoalCompleted {
		t.Fatalf("expected completed, got %s", fetched.Status)
	}
}

func TestGoalRejectsInvalidTransition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	g := Goal{ID: "g2", OwnerID: "u1", Status: GoalDraft}
	if err := s.SaveGoal(ctx, g); err != nil {
		t.Fatalf("save: %v", err)
	}

	_, res, err := s.TransitionGoal(ctx, "g2", EventComplete)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected COMPLETE from draft to be rejected")
	}
}

func TestStepCompletionCascadesToQuestAndGoal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	goal := Goal{ID: "g3", OwnerID: "u1", Status: GoalActive}
	quest := Quest{ID: "q1", GoalID: "g3", OwnerID: "u1", Status: QuestActive, StepIDs: []string{"s1", "s2"}}
	step1 := Step{ID: "s1", QuestID: "q1", OwnerID: "u1", Status: StepActive, ScheduledFor: time.Now()}
	step2 := Step{ID: "s2", QuestID: "q1", OwnerID: "u1", Status: StepActive, ScheduledFor: time.Now()}

	if err := s.SaveGoal(ctx, goal); err != nil {
		t.Fatalf("save goal: %v", err)
	}
	if err := s.SaveQuest(ctx, quest); err != nil {
		t.Fatalf("save quest: %v", err)
	}
	if err := s.SaveStep(ctx, step1); err != nil {
		t.Fatalf("save step1: %v", err)
	}
	if err := s.SaveStep(ctx, step2); err != nil {
		t.Fatalf("save step2: %v", err)
	}

	if _, res, err := s.TransitionStep(ctx, "s1", EventComplete); err != nil || !res.Success {
		t.Fatalf("complete s1: err=%v res=%+v", err, res)
	}
	q, _, _ := s.GetQuest(ctx, "q1")
	if q.Progress != 50 {
		t.Fatalf("expected 50%% quest progress after one of two steps, got %v", q.Progress)
	}
	if q.Status != QuestActive {
		t.Fatalf("expected quest still active, got %s", q.Status)
	}

	if _, res, err := s.TransitionStep(ctx, "s2", EventComplete); err != nil || !res.Success {
		t.Fatalf("complete s2: err=%v res=%+v", err, res)
	}

	q, _, _ = s.GetQuest(ctx, "q1")
	if q.Progress != 100 {
		t.Fatalf("expected 100%% quest progress, got %v", q.Progress)
	}
	if q.Status != QuestCompleted {
		t.Fatalf("expected quest auto-completed, got %s", q.Status)
	}

	g, _, _ := s.GetGoal(ctx, "g3")
	if g.Progress != 100 {
		t.Fatalf("expected 100%% goal progress, got %v", g.Progress)
	}
	if g.Status != GoalCompleted {
		t.Fatalf("expected goal auto-completed by cascade, got %s", g.Status)
	}
}

func TestSparkLifecycleAndUserIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sp := Spark{ID: "sp1", StepID: "s1", OwnerID: "u9", Status: SparkSuggested, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(SparkExpiry)}
	if err := s.SaveSpark(ctx, sp); err != nil {
		t.Fatalf("save: %v", err)
	}

	sparks, err := s.ListSparksForUser(ctx, "u9")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sparks) != 1 || sparks[0].ID != "sp1" {
		t.Fatalf("expected one indexed spark, got %+v", sparks)
	}

	if _, res, err := s.TransitionSpark(ctx, "sp1", EventActivate); err != nil || !res.Success {
		t.Fatalf("accept: err=%v res=%+v", err, res)
	}
	if _, res, err := s.TransitionSpark(ctx, "sp1", EventComplete); err != nil || !res.Success {
		t.Fatalf("complete: err=%v res=%+v", err, res)
	}
	fetched, _, _ := s.GetSpark(ctx, "sp1")
	if fetched.Status != SparkCompleted {
		t.Fatalf("expected completed, got %s", fetched.Status)
	}
}

func TestListGoalsForUserUsesSecondaryIndexNotScan(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		g := Goal{ID: string(rune('a' + i)), OwnerID: "u42", Status: GoalDraft}
		if err := s.SaveGoal(ctx, g); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	goals, err := s.ListGoalsForUser(ctx, "u42")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(goals) != 3 {
		t.Fatalf("expected 3 goals, got %d", len(goals))
	}
}
