package gate

import (
	"context"
	"time"
)

// StanceGate picks {lens, sword, control, shield} and may redirect to a
// different subsystem (spec §4.1 stage 4). Per the Open-Question decision
// D3, Shield's own veto always wins over Stance's routing: the
// orchestrator checks Shield's action before invoking Stance at all, so by
// the time Stance runs, a hard/await-ack veto has already short-circuited
// the pipeline.
type StanceGate struct{}

func NewStanceGate() *StanceGate { return &StanceGate{} }

func (g *StanceGate) Run(_ context.Context, state PipelineState) Result[Stance] {
	start := time.Now()

	if state.RiskSummary != nil && state.RiskSummary.InterventionLevel == "veto" && state.RiskSummary.ControlTrigger != "" {
		return Redirect("stance", StanceControl, "control", time.Since(start))
	}

	if state.Intent != nil && state.Intent.PrimaryRoute == "sword" {
		return Pass("stance", StanceSword, time.Since(start))
	}
	if state.LensResult != nil && len(state.LensResult.RequiredCategories) > 0 {
		return Pass("stance", StanceLens, time.Since(start))
	}
	if state.Intent != nil && state.Intent.StanceHint != "" {
		return Pass("stance", state.Intent.StanceHint, time.Since(start))
	}
	return Pass("stance", StanceLens, time.Since(start))
}
