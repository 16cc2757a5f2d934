package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/novaos/novaos/internal/ack"
	"github.com/novaos/novaos/internal/llm"
)

const shieldRubric = `You are a safety classifier. Given a user message, respond with JSON only: ` +
	`{"riskLevel": "none|low|medium|high|critical", "category": "safe|death_risk|harm_risk|reckless_decision", ` +
	`"confidence": number, "reasoning": string}.`

type shieldClassification struct {
	RiskLevel  string  `json:"riskLevel"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ShieldGate computes RiskSummary from the decision table in spec §4.2.
type ShieldGate struct {
	classifier llm.Provider
	ackSvc     *ack.Service
}

func NewShieldGate(classifier llm.Provider, ackSvc *ack.Service) *ShieldGate {
	return &ShieldGate{classifier: classifier, ackSvc: ackSvc}
}

// Run evaluates the Shield gate (spec §4.2). The Open-Question decision
// D1 applies here unconditionally: an upstream-asserted AckTokenValid is
// never read; the presented token/text is validated here instead.
func (g *ShieldGate) Run(ctx context.Context, state PipelineState) Result[*RiskSummary] {
	start := time.Now()

	if state.AckToken != nil {
		valid, failure, err := g.ackSvc.Validate(ctx, state.AckToken, state.UserMessage, state.AckText)
		if err == nil && valid {
			return Pass("shield", &RiskSummary{
				InterventionLevel: "none",
				Reason:            "acknowledgment accepted",
				OverrideApplied:   true,
			}, time.Since(start))
		}
		_ = failure // the failure mode is not recorded; Shield proceeds to re-classify
	}

	classification, err := g.classify(ctx, state.NormalizedMessage)
	if err != nil {
		return Pass("shield", &RiskSummary{
			InterventionLevel: "none",
			Reason:            "risk assessment unavailable",
		}, time.Since(start))
	}

	summary, action := applyDecisionTable(classification)

	switch action {
	case ActionStop:
		return Stop("shield", summary, summary.Reason, time.Since(start))
	case ActionAwaitAck:
		tok, requiredText, err := g.ackSvc.Issue(state.RequestID, state.UserID, state.UserMessage, summary.Reason, summary.AuditID)
		if err != nil {
			// Fail open rather than block the user on an ack-issuance bug.
			summary.InterventionLevel = "none"
			return Pass("shield", summary, time.Since(start))
		}
		summary.PendingAck = &PendingAck{Token: tok, RequiredText: requiredText, ExpiresAt: tok.ExpiresAt, AuditID: summary.AuditID}
		return AwaitAck("shield", summary, summary.Reason, time.Since(start))
	default:
		return Pass("shield", summary, time.Since(start))
	}
}

func (g *ShieldGate) classify(ctx context.Context, message string) (*shieldClassification, error) {
	if g.classifier == nil || !g.classifier.IsAvailable() {
		return nil, fmt.Errorf("shield: classifier unavailable")
	}
	completion, err := g.classifier.Complete(ctx, shieldRubric, nil, message, llm.Params{Temperature: 0})
	if err != nil {
		return nil, fmt.Errorf("shield: classifier call failed: %w", err)
	}

	raw := completion.Text
	if start := strings.IndexByte(raw, '{'); start >= 0 {
		if end := strings.LastIndexByte(raw, '}'); end >= start {
			raw = raw[start : end+1]
		}
	}

	var c shieldClassification
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("shield: parsing classifier response: %w", err)
	}
	normalizeConsistency(&c)
	return &c, nil
}

// normalizeConsistency enforces category<->riskLevel mapping so a
// classifier that disagrees with itself doesn't produce an
// under-escalated decision (spec §4.2 "Consistency normalizer").
func normalizeConsistency(c *shieldClassification) {
	switch c.Category {
	case "death_risk":
		if c.RiskLevel != "critical" {
			c.RiskLevel = "critical"
		}
	case "harm_risk":
		if c.RiskLevel != "high" && c.RiskLevel != "critical" {
			c.RiskLevel = "high"
		}
	case "reckless_decision":
		if c.RiskLevel == "none" || c.RiskLevel == "" {
			c.RiskLevel = "medium"
		}
	}
}

func applyDecisionTable(c *shieldClassification) (*RiskSummary, Action) {
	summary := &RiskSummary{StakesLevel: c.RiskLevel, Reason: c.Reasoning}

	switch {
	case c.Category == "death_risk" && c.RiskLevel == "critical":
		summary.InterventionLevel = "veto"
		summary.ControlTrigger = c.Reasoning
		summary.CrisisResources = []string{"988 Suicide & Crisis Lifeline", "Crisis Text Line: text HOME to 741741"}
		return summary, ActionContinue // not stopped here; the orchestrator switches the stance to control on ControlTrigger
	case c.Category == "harm_risk" && c.RiskLevel == "high":
		summary.InterventionLevel = "veto"
		summary.VetoType = "hard"
		if summary.Reason == "" {
			summary.Reason = "this request cannot be fulfilled"
		}
		return summary, ActionStop
	case c.Category == "reckless_decision" && c.RiskLevel == "medium":
		summary.InterventionLevel = "veto"
		summary.VetoType = "soft"
		summary.AuditID = fmt.Sprintf("audit-%d", time.Now().UnixNano())
		if summary.Reason == "" {
			summary.Reason = "this looks like a high-stakes decision"
		}
		return summary, ActionAwaitAck
	default:
		summary.InterventionLevel = "none"
		if isNudgeDomain(c.Reasoning) {
			summary.InterventionLevel = "nudge"
		}
		return summary, ActionContinue
	}
}

func isNudgeDomain(reasoning string) bool {
	lower := strings.ToLower(reasoning)
	for _, domain := range []string{"health", "legal", "finance", "mental_health", "mental health"} {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}
