package gate

import (
	"context"
	"time"

	"github.com/novaos/novaos/internal/constitutional"
)

// ConstitutionalGate classifies the generated reply and requests
// regeneration on violation (spec §4.1 stage 7, §4.7).
type ConstitutionalGate struct {
	validator *constitutional.Validator
}

func NewConstitutionalGate(validator *constitutional.Validator) *ConstitutionalGate {
	return &ConstitutionalGate{validator: validator}
}

func (g *ConstitutionalGate) Run(ctx context.Context, state PipelineState) Result[constitutional.Verdict] {
	start := time.Now()
	if state.Generation == nil {
		return Pass("constitutional", constitutional.Verdict{}, time.Since(start))
	}

	verdict := g.validator.Check(ctx, state.Generation.Text)
	if verdict.Violates {
		return Regenerate("constitutional", verdict, verdict.Fix, time.Since(start))
	}
	return Pass("constitutional", verdict, time.Since(start))
}
