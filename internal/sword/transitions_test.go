package sword

import "testing"

func TestQuestBlockAndUnblock(t *testing.T) {
	q := Quest{ID: "q1", Status: QuestActive}

	blocked, res := ApplyQuestEvent(q, EventBlock)
	if !res.Success || blocked.Status != QuestBlocked {
		t.Fatalf("expected blocked, got %+v (res=%+v)", blocked, res)
	}

	unblocked, res := ApplyQuestEvent(blocked, EventUnblock)
	if !res.Success || unblocked.Status != QuestActive {
		t.Fatalf("expected active again, got %+v (res=%+v)", unblocked, res)
	}
}

func TestSparkExpireFromSuggested(t *testing.T) {
	sp := Spark{ID: "sp1", Status: SparkSuggested}
	expired, res := ApplySparkEvent(sp, EventExpire)
	if !res.Success || expired.Status != SparkExpired {
		t.Fatalf("expected expired, got %+v (res=%+v)", expired, res)
	}
}

func TestSparkCannotCompleteFromSuggested(t *testing.T) {
	sp := Spark{ID: "sp1", Status: SparkSuggested}
	_, res := ApplySparkEvent(sp, EventComplete)
	if res.Success {
		t.Fatal("expected COMPLETE from suggested (must go through accepted) to be rejected")
	}
}

func TestRecomputeQuestProgressEmptySteps(t *testing.T) {
	if got := RecomputeQuestProgress(nil); got != 0 {
		t.Fatalf("expected 0 progress for no steps, got %v", got)
	}
}

func TestRecomputeGoalProgressAveragesQuests(t *testing.T) {
	quests := []Quest{{Progress: 100}, {Progress: 50}, {Progress: 0}}
	if got := RecomputeGoalProgress(quests); got != 50 {
		t.Fatalf("expected average 50, got %v", got)
	}
}
