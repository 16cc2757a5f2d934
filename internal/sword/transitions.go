package sword

import "fmt"

// TransitionResult is the pure output of applying an event to an entity
// (spec §4.9: "(entity, event, payload) → {success, entity', sideEffects[]}").
type TransitionResult struct {
	Success     bool
	Reason      string
	SideEffects []SideEffect
}

var goalTransitions = map[GoalStatus]map[Event]GoalStatus{
	GoalDraft:     {EventActivate: GoalActive},
	GoalActive:    {EventPause: GoalPaused, EventComplete: GoalCompleted, EventAbandon: GoalAbandoned},
	GoalPaused:    {EventResume: GoalActive, EventAbandon: GoalAbandoned},
}

var questTransitions = map[QuestStatus]map[Event]QuestStatus{
	QuestDraft:   {EventActivate: QuestActive},
	QuestActive:  {EventPause: QuestPaused, EventComplete: QuestCompleted, EventAbandon: QuestAbandoned, EventBlock: QuestBlocked},
	QuestPaused:  {EventResume: QuestActive, EventAbandon: QuestAbandoned},
	QuestBlocked: {EventUnblock: QuestActive, EventAbandon: QuestAbandoned},
}

var stepTransitions = map[StepStatus]map[Event]StepStatus{
	StepPending: {EventActivate: StepActive, EventSkip: StepSkipped, EventMiss: StepMissed},
	StepActive:  {EventComplete: StepCompleted, EventMiss: StepMissed, EventSkip: StepSkipped},
}

var sparkTransitions = map[SparkStatus]map[Event]SparkStatus{
	SparkSuggested: {EventActivate: SparkAccepted, EventSkip: SparkSkipped, EventExpire: SparkExpired},
	SparkAccepted:  {EventComplete: SparkCompleted, EventSkip: SparkSkipped, EventExpire: SparkExpired},
}

// ApplyGoalEvent transitions a Goal. The returned Goal is a fresh value;
// callers must replace, never mutate in place.
func ApplyGoalEvent(g Goal, ev Event) (Goal, TransitionResult) {
	next, ok := goalTransitions[g.Status][ev]
	if !ok {
		return g, TransitionResult{Success: false, Reason: fmt.Sprintf("event %s not permitted from goal status %s", ev, g.Status)}
	}
	updated := g
	updated.Status = next
	var effects []SideEffect
	if ev == EventComplete {
		effects = append(effects, SideEffect{Type: SideEffectEmit, Target: "goal", ID: g.ID, Payload: map[string]string{"event": "goal_completed"}})
	}
	return updated, TransitionResult{Success: true, SideEffects: effects}
}

func ApplyQuestEvent(q Quest, ev Event) (Quest, TransitionResult) {
	next, ok := questTransitions[q.Status][ev]
	if !ok {
		return q, TransitionResult{Success: false, Reason: fmt.Sprintf("event %s not permitted from quest status %s", ev, q.Status)}
	}
	updated := q
	updated.Status = next
	var effects []SideEffect
	if ev == EventComplete {
		effects = append(effects,
			SideEffect{Type: SideEffectUpdateProgress, Target: "goal", ID: q.GoalID},
			SideEffect{Type: SideEffectEmit, Target: "quest", ID: q.ID, Payload: map[string]string{"event": "quest_completed"}},
		)
	}
	return updated, TransitionResult{Success: true, SideEffects: effects}
}

// ApplyStepEvent transitions a Step. COMPLETE, MISS and SKIP all trigger the
// owning quest's progress recomputation (spec §4.9 side effect processing).
func ApplyStepEvent(s Step, ev Event) (Step, TransitionResult) {
	next, ok := stepTransitions[s.Status][ev]
	if !ok {
		return s, TransitionResult{Success: false, Reason: fmt.Sprintf("event %s not permitted from step status %s", ev, s.Status)}
	}
	updated := s
	updated.Status = next
	var effects []SideEffect
	if ev == EventComplete || ev == EventMiss || ev == EventSkip {
		effects = append(effects, SideEffect{Type: SideEffectUpdateProgress, Target: "quest", ID: s.QuestID})
	}
	return updated, TransitionResult{Success: true, SideEffects: effects}
}

func ApplySparkEvent(sp Spark, ev Event) (Spark, TransitionResult) {
	next, ok := sparkTransitions[sp.Status][ev]
	if !ok {
		return sp, TransitionResult{Success: false, Reason: fmt.Sprintf("event %s not permitted from spark status %s", ev, sp.Status)}
	}
	updated := sp
	updated.Status = next
	var effects []SideEffect
	if ev == EventComplete {
		effects = append(effects, SideEffect{Type: SideEffectEmit, Target: "spark", ID: sp.ID, Payload: map[string]string{"event": "spark_completed"}})
	}
	return updated, TransitionResult{Success: true, SideEffects: effects}
}

// RecomputeQuestProgress is quest progress = fraction of completed steps
// (spec §3 invariant (c)). Skipped/missed steps count toward the
// denominator but never the numerator.
func RecomputeQuestProgress(steps []Step) float64 {
	if len(steps) == 0 {
		return 0
	}
	completed := 0
	for _, s := range steps {
		if s.Status == StepCompleted {
			completed++
		}
	}
	return 100 * float64(completed) / float64(len(steps))
}

// RecomputeGoalProgress is goal progress = average of child quest progress.
func RecomputeGoalProgress(quests []Quest) float64 {
	if len(quests) == 0 {
		return 0
	}
	sum := 0.0
	for _, q := range quests {
		sum += q.Progress
	}
	return sum / float64(len(quests))
}
