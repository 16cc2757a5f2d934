// Package gate implements the Gate Pipeline Orchestrator (spec §2
// component 10, §4.1): a deterministic, stage-ordered evaluator that
// coordinates classification, safety vetoes, evidence retrieval,
// response generation, constitutional post-edit and audit. Grounded on
// the teacher's incident-escalation state machine (internal/incident) for
// its clone-then-replace mutation discipline, generalized from a fixed
// severity-escalation chain to an arbitrary ordered gate sequence.
package gate

import (
	"time"

	"github.com/novaos/novaos/internal/ack"
	"github.com/novaos/novaos/internal/evidence"
)

// Stance is the subsystem the request is routed to (spec §3 PipelineState).
type Stance string

const (
	StanceLens    Stance = "lens"
	StanceSword   Stance = "sword"
	StanceShield  Stance = "shield"
	StanceControl Stance = "control"
)

// Intent is Intent gate's classification output (spec §4.1 stage 1).
type Intent struct {
	PrimaryRoute    string
	StanceHint      Stance
	Urgency         string
	LiveData        bool
	LearningIntent  bool
	Topic           string
}

// LensResult is the Lens gate's output (spec §3).
type LensResult struct {
	RequiredCategories []string
	Qualitative        bool
	FreshnessRequired  bool
}

// RiskSummary is the Shield gate's output (spec §3).
type RiskSummary struct {
	InterventionLevel string // none|nudge|friction|veto
	VetoType          string // ""|soft|hard
	StakesLevel       string
	Reason            string
	AuditID           string
	PendingAck        *PendingAck
	ControlTrigger    string
	CrisisResources   []string
	OverrideApplied   bool
}

// PendingAck carries the issued token payload back to the caller (spec
// §4.3 "Return {ackToken, requiredText, expiresAt, auditId}").
type PendingAck struct {
	Token        *ack.Token
	RequiredText string
	ExpiresAt    time.Time
	AuditID      string
}

// Generation is the Model gate's output.
type Generation struct {
	Text       string
	Model      string
	TokensUsed int
	Degraded   bool
}

// PipelineState is the evolving per-request record (spec §3). It mutates
// only through clone-then-replace: every gate receives an immutable
// reference and returns a new state via With* helpers.
type PipelineState struct {
	RequestID         string
	UserID            string
	UserMessage       string
	NormalizedMessage string

	AckToken      *ack.Token
	AckText       string
	AckTokenValid bool

	Intent       *Intent
	LensResult   *LensResult
	Stance       Stance
	RiskSummary  *RiskSummary
	EvidencePack *evidence.Pack
	Generation   *Generation

	RegenerationCount int
	SwordMode         bool

	StoppedAt     string
	StoppedReason string
	RedirectTo    string

	GatesExecuted []string
	StartTime     time.Time
}

// clone returns a shallow copy; gates that want to mutate nested pointer
// fields must replace the pointer, never mutate through it.
func (s PipelineState) clone() PipelineState {
	next := s
	next.GatesExecuted = append([]string(nil), s.GatesExecuted...)
	return next
}

func (s PipelineState) WithIntent(i *Intent) PipelineState {
	next := s.clone()
	next.Intent = i
	return next
}

func (s PipelineState) WithLensResult(l *LensResult) PipelineState {
	next := s.clone()
	next.LensResult = l
	return next
}

func (s PipelineState) WithStance(st Stance) PipelineState {
	next := s.clone()
	next.Stance = st
	return next
}

func (s PipelineState) WithRiskSummary(r *RiskSummary) PipelineState {
	next := s.clone()
	next.RiskSummary = r
	return next
}

func (s PipelineState) WithEvidencePack(e *evidence.Pack) PipelineState {
	next := s.clone()
	next.EvidencePack = e
	return next
}

func (s PipelineState) WithGeneration(g *Generation) PipelineState {
	next := s.clone()
	next.Generation = g
	return next
}

// WithRegeneration increments regenerationCount and resets only
// generation (spec §3 invariant: "regeneration increments
// regenerationCount and resets only generation").
func (s PipelineState) WithRegeneration(g *Generation) PipelineState {
	next := s.clone()
	next.Generation = g
	next.RegenerationCount++
	return next
}

func (s PipelineState) WithSwordMode(v bool) PipelineState {
	next := s.clone()
	next.SwordMode = v
	return next
}

func (s PipelineState) WithStopped(gateID, reason string) PipelineState {
	next := s.clone()
	next.StoppedAt = gateID
	next.StoppedReason = reason
	return next
}

func (s PipelineState) WithRedirect(target string) PipelineState {
	next := s.clone()
	next.RedirectTo = target
	return next
}

func (s PipelineState) WithGateExecuted(gateID string) PipelineState {
	next := s.clone()
	next.GatesExecuted = append(next.GatesExecuted, gateID)
	return next
}
