package sword

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/novaos/novaos/internal/kvs"
)

// TTLs per entity class (spec §4.9 / §6 persisted-state layout).
const (
	GoalTTL  = 365 * 24 * time.Hour
	QuestTTL = 180 * 24 * time.Hour
	StepTTL  = 180 * 24 * time.Hour
	SparkTTL = 7 * 24 * time.Hour

	SparkExpiry = 24 * time.Hour
)

// Store persists Goal/Quest/Step/Spark entities and applies transitions,
// recomputing aggregates and cascading completion (spec §4.9). A
// transition is a read, a pure apply and a write with nothing guarding the
// gap, so it is not atomic against a concurrent writer of the same entity.
// Grounded on the teacher's internal/store "clone then replace" write
// discipline, generalized to a four-level entity hierarchy.
type Store struct {
	kv kvs.Store
}

func NewStore(kv kvs.Store) *Store {
	return &Store{kv: kv}
}

func goalKey(id string) string       { return fmt.Sprintf("sword:goal:%s", id) }
func userGoalsKey(uid string) string { return fmt.Sprintf("sword:user:%s:goals", uid) }
func questKey(id string) string      { return fmt.Sprintf("sword:quest:%s", id) }
func goalQuestsKey(gid string) string { return fmt.Sprintf("sword:goal:%s:quests", gid) }
func stepKey(id string) string       { return fmt.Sprintf("sword:step:%s", id) }
func stepDateKey(date, questID string) string {
	return fmt.Sprintf("sword:step:date:%s:%s", date, questID)
}
func sparkKey(id string) string { return fmt.Sprintf("sword:spark:%s", id) }
func sparkActiveKey(uid, id string) string {
	return fmt.Sprintf("sword:spark:active:%s:%s", uid, id)
}
func userSparksKey(uid string) string  { return fmt.Sprintf("sword:user:%s:sparks", uid) }
func streakKey(uid, gid string) string { return fmt.Sprintf("sword:streak:%s:%s", uid, gid) }

const allUsersKey = "sword:users:all"

// --- Goal ---

func (s *Store) SaveGoal(ctx context.Context, g Goal) error {
	g.UpdatedAt = time.Now()
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("sword: marshal goal: %w", err)
	}
	if err := s.kv.Set(ctx, goalKey(g.ID), string(raw), GoalTTL); err != nil {
		return fmt.Errorf("sword: save goal: %w", err)
	}
	if err := s.kv.SetAdd(ctx, userGoalsKey(g.OwnerID), g.ID); err != nil {
		return err
	}
	return s.kv.SetAdd(ctx, allUsersKey, g.OwnerID)
}

// ListAllUserIDs reads the secondary index of users that have ever saved a
// goal or a spark. Needed by the scheduler's per-user jobs, which
// must enumerate users without a full key scan (same rationale as spec §9
// open question 2 for sparks).
func (s *Store) ListAllUserIDs(ctx context.Context) ([]string, error) {
	return s.kv.SetMembers(ctx, allUsersKey)
}

func (s *Store) GetGoal(ctx context.Context, id string) (Goal, bool, error) {
	raw, ok, err := s.kv.Get(ctx, goalKey(id))
	if err != nil || !ok {
		return Goal{}, ok, err
	}
	var g Goal
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return Goal{}, false, fmt.Errorf("sword: unmarshal goal: %w", err)
	}
	return g, true, nil
}

// ListGoalsForUser reads the authoritative user→goals set membership
// (spec §9: no full key scan on the request path).
func (s *Store) ListGoalsForUser(ctx context.Context, uid string) ([]Goal, error) {
	ids, err := s.kv.SetMembers(ctx, userGoalsKey(uid))
	if err != nil {
		return nil, err
	}
	goals := make([]Goal, 0, len(ids))
	for _, id := range ids {
		g, ok, err := s.GetGoal(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			goals = append(goals, g)
		}
	}
	return goals, nil
}

// --- Quest ---

func (s *Store) SaveQuest(ctx context.Context, q Quest) error {
	q.UpdatedAt = time.Now()
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("sword: marshal quest: %w", err)
	}
	if err := s.kv.Set(ctx, questKey(q.ID), string(raw), QuestTTL); err != nil {
		return fmt.Errorf("sword: save quest: %w", err)
	}
	return s.kv.SetAdd(ctx, goalQuestsKey(q.GoalID), q.ID)
}

// AddStepToQuest appends stepID to the quest's ordered child list and
// persists both the step and the updated quest. Used by generate_daily_steps
// when creating tomorrow's step record.
func (s *Store) AddStepToQuest(ctx context.Context, st Step) error {
	q, ok, err := s.GetQuest(ctx, st.QuestID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("sword: quest %s not found", st.QuestID)
	}
	if err := s.SaveStep(ctx, st); err != nil {
		return err
	}
	for _, id := range q.StepIDs {
		if id == st.ID {
			return nil
		}
	}
	q.StepIDs = append(q.StepIDs, st.ID)
	return s.SaveQuest(ctx, q)
}

func (s *Store) GetQuest(ctx context.Context, id string) (Quest, bool, error) {
	raw, ok, err := s.kv.Get(ctx, questKey(id))
	if err != nil || !ok {
		return Quest{}, ok, err
	}
	var q Quest
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return Quest{}, false, fmt.Errorf("sword: unmarshal quest: %w", err)
	}
	return q, true, nil
}

func (s *Store) ListQuestsForGoal(ctx context.Context, gid string) ([]Quest, error) {
	ids, err := s.kv.SetMembers(ctx, goalQuestsKey(gid))
	if err != nil {
		return nil, err
	}
	quests := make([]Quest, 0, len(ids))
	for _, id := range ids {
		q, ok, err := s.GetQuest(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			quests = append(quests, q)
		}
	}
	return quests, nil
}

// --- Step ---

func (s *Store) SaveStep(ctx context.Context, st Step) error {
	st.UpdatedAt = time.Now()
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("sword: marshal step: %w", err)
	}
	if err := s.kv.Set(ctx, stepKey(st.ID), string(raw), StepTTL); err != nil {
		return fmt.Errorf("sword: save step: %w", err)
	}
	date := st.ScheduledFor.Format("2006-01-02")
	return s.kv.SetAdd(ctx, stepDateKey(date, st.QuestID), st.ID)
}

func (s *Store) GetStep(ctx context.Context, id string) (Step, bool, error) {
	raw, ok, err := s.kv.Get(ctx, stepKey(id))
	if err != nil || !ok {
		return Step{}, ok, err
	}
	var st Step
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return Step{}, false, fmt.Errorf("sword: unmarshal step: %w", err)
	}
	return st, true, nil
}

func (s *Store) ListStepsForQuest(ctx context.Context, questID string, quest Quest) ([]Step, error) {
	steps := make([]Step, 0, len(quest.StepIDs))
	for _, id := range quest.StepIDs {
		st, ok, err := s.GetStep(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			steps = append(steps, st)
		}
	}
	return steps, nil
}

func (s *Store) ListStepsForDate(ctx context.Context, date, questID string) ([]Step, error) {
	ids, err := s.kv.SetMembers(ctx, stepDateKey(date, questID))
	if err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(ids))
	for _, id := range ids {
		st, ok, err := s.GetStep(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			steps = append(steps, st)
		}
	}
	return steps, nil
}

// --- Streaks ---

// IncrementStreak bumps the user's consecutive-completion counter for a
// goal and returns the new value.
func (s *Store) IncrementStreak(ctx context.Context, uid, gid string) (int64, error) {
	return s.kv.Incr(ctx, streakKey(uid, gid), 1)
}

// ResetStreak clears the streak, e.g. when day_end_reconciliation finds an
// uncompleted step.
func (s *Store) ResetStreak(ctx context.Context, uid, gid string) error {
	return s.kv.Set(ctx, streakKey(uid, gid), "0", 0)
}

func (s *Store) GetStreak(ctx context.Context, uid, gid string) (int64, error) {
	raw, ok, err := s.kv.Get(ctx, streakKey(uid, gid))
	if err != nil || !ok {
		return 0, err
	}
	var n int64
	_, err = fmt.Sscanf(raw, "%d", &n)
	return n, err
}

// --- Spark ---

func (s *Store) SaveSpark(ctx context.Context, sp Spark) error {
	sp.UpdatedAt = time.Now()
	raw, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("sword: marshal spark: %w", err)
	}
	if err := s.kv.Set(ctx, sparkKey(sp.ID), string(raw), SparkTTL); err != nil {
		return fmt.Errorf("sword: save spark: %w", err)
	}
	if err := s.kv.SetAdd(ctx, userSparksKey(sp.OwnerID), sp.ID); err != nil {
		return err
	}
	if err := s.kv.SetAdd(ctx, allUsersKey, sp.OwnerID); err != nil {
		return err
	}
	if sp.Status == SparkSuggested || sp.Status == SparkAccepted {
		return s.kv.SetAdd(ctx, sparkActiveKey(sp.OwnerID, sp.ID), sp.ID)
	}
	return s.kv.SetRemove(ctx, sparkActiveKey(sp.OwnerID, sp.ID), sp.ID)
}

func (s *Store) GetSpark(ctx context.Context, id string) (Spark, bool, error) {
	raw, ok, err := s.kv.Get(ctx, sparkKey(id))
	if err != nil || !ok {
		return Spark{}, ok, err
	}
	var sp Spark
	if err := json.Unmarshal([]byte(raw), &sp); err != nil {
		return Spark{}, false, fmt.Errorf("sword: unmarshal spark: %w", err)
	}
	return sp, true, nil
}

// ListSparksForUser reads the secondary index directly (spec open question
// 2, resolved: the index is authoritative, never KVS.Scan here). SaveSpark
// writes the index in separate calls after the spark itself, not in one
// transaction.
func (s *Store) ListSparksForUser(ctx context.Context, uid string) ([]Spark, error) {
	ids, err := s.kv.SetMembers(ctx, userSparksKey(uid))
	if err != nil {
		return nil, err
	}
	sparks := make([]Spark, 0, len(ids))
	for _, id := range ids {
		sp, ok, err := s.GetSpark(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			sparks = append(sparks, sp)
		}
	}
	return sparks, nil
}

// --- Transactional transition application ---

// TransitionGoal applies ev to the stored Goal, persists the result, and
// processes side effects. No parent recomputation is needed: Goal is the
// hierarchy root.
func (s *Store) TransitionGoal(ctx context.Context, id string, ev Event) (Goal, TransitionResult, error) {
	g, ok, err := s.GetGoal(ctx, id)
	if err != nil {
		return Goal{}, TransitionResult{}, err
	}
	if !ok {
		return Goal{}, TransitionResult{}, fmt.Errorf("sword: goal %s not found", id)
	}
	updated, res := ApplyGoalEvent(g, ev)
	if !res.Success {
		return g, res, nil
	}
	if err := s.SaveGoal(ctx, updated); err != nil {
		return g, res, err
	}
	return updated, res, nil
}

// TransitionQuest applies ev, persists, and — on a side effect naming the
// goal — recomputes and cascades (spec §4.9: "re-reading affected parents
// and recomputing aggregates").
func (s *Store) TransitionQuest(ctx context.Context, id string, ev Event) (Quest, TransitionResult, error) {
	q, ok, err := s.GetQuest(ctx, id)
	if err != nil {
		return Quest{}, TransitionResult{}, err
	}
	if !ok {
		return Quest{}, TransitionResult{}, fmt.Errorf("sword: quest %s not found", id)
	}
	updated, res := ApplyQuestEvent(q, ev)
	if !res.Success {
		return q, res, nil
	}
	if err := s.SaveQuest(ctx, updated); err != nil {
		return q, res, err
	}
	if err := s.processSideEffects(ctx, res.SideEffects); err != nil {
		return updated, res, err
	}
	return updated, res, nil
}

// TransitionStep applies ev, persists, then recomputes the owning quest's
// progress and cascades to goal completion when applicable.
func (s *Store) TransitionStep(ctx context.Context, id string, ev Event) (Step, TransitionResult, error) {
	st, ok, err := s.GetStep(ctx, id)
	if err != nil {
		return Step{}, TransitionResult{}, err
	}
	if !ok {
		return Step{}, TransitionResult{}, fmt.Errorf("sword: step %s not found", id)
	}
	updated, res := ApplyStepEvent(st, ev)
	if !res.Success {
		return st, res, nil
	}
	if err := s.SaveStep(ctx, updated); err != nil {
		return st, res, err
	}
	if err := s.processSideEffects(ctx, res.SideEffects); err != nil {
		return updated, res, err
	}
	return updated, res, nil
}

func (s *Store) TransitionSpark(ctx context.Context, id string, ev Event) (Spark, TransitionResult, error) {
	sp, ok, err := s.GetSpark(ctx, id)
	if err != nil {
		return Spark{}, TransitionResult{}, err
	}
	if !ok {
		return Spark{}, TransitionResult{}, fmt.Errorf("sword: spark %s not found", id)
	}
	updated, res := ApplySparkEvent(sp, ev)
	if !res.Success {
		return sp, res, nil
	}
	if err := s.SaveSpark(ctx, updated); err != nil {
		return sp, res, err
	}
	return updated, res, nil
}

// processSideEffects re-reads affected parents and recomputes aggregates,
// cascading COMPLETE when progress reaches 100 on an active parent (spec
// §4.9 "Auto-completion rule").
func (s *Store) processSideEffects(ctx context.Context, effects []SideEffect) error {
	for _, eff := range effects {
		if eff.Type != SideEffectUpdateProgress {
			continue
		}
		switch eff.Target {
		case "quest":
			if err := s.recomputeQuest(ctx, eff.ID); err != nil {
				return err
			}
		case "goal":
			if err := s.recomputeGoal(ctx, eff.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) recomputeQuest(ctx context.Context, questID string) error {
	q, ok, err := s.GetQuest(ctx, questID)
	if err != nil || !ok {
		return err
	}
	steps, err := s.ListStepsForQuest(ctx, questID, q)
	if err != nil {
		return err
	}
	q.Progress = RecomputeQuestProgress(steps)
	if q.Progress == 100 && q.Status == QuestActive {
		updated, res := ApplyQuestEvent(q, EventComplete)
		if res.Success {
			q = updated
		}
		if err := s.SaveQuest(ctx, q); err != nil {
			return err
		}
		return s.processSideEffects(ctx, res.SideEffects)
	}
	return s.SaveQuest(ctx, q)
}

func (s *Store) recomputeGoal(ctx context.Context, goalID string) error {
	g, ok, err := s.GetGoal(ctx, goalID)
	if err != nil || !ok {
		return err
	}
	quests, err := s.ListQuestsForGoal(ctx, goalID)
	if err != nil {
		return err
	}
	g.Progress = RecomputeGoalProgress(quests)
	if g.Progress == 100 && g.Status == GoalActive {
		updated, _ := ApplyGoalEvent(g, EventComplete)
		g = updated
	}
	return s.SaveGoal(ctx, g)
}
