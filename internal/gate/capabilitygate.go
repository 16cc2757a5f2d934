package gate

import (
	"context"
	"time"

	"github.com/novaos/novaos/internal/capability"
	"github.com/novaos/novaos/internal/evidence"
	"github.com/novaos/novaos/internal/providers"
)

// CapabilityOutput is the Capability gate's output: either a sword
// short-circuit, or an assembled evidence pack (spec §4.1 stage 5).
type CapabilityOutput struct {
	SwordMode    bool
	EvidencePack *evidence.Pack
	Errors       []error
}

// CapabilityGate either short-circuits for sword stance or selects and
// runs live-data capability plugins, producing an EvidencePack (spec
// §4.1 stage 5, §4.5).
type CapabilityGate struct {
	registry          *providers.Registry
	freshnessPolicies map[string]time.Duration
	perCallTimeout    time.Duration
	healthRecorder    capability.HealthRecorder
}

func NewCapabilityGate(registry *providers.Registry, freshnessPolicies map[string]time.Duration, perCallTimeout time.Duration, healthRecorder capability.HealthRecorder) *CapabilityGate {
	return &CapabilityGate{registry: registry, freshnessPolicies: freshnessPolicies, perCallTimeout: perCallTimeout, healthRecorder: healthRecorder}
}

func (g *CapabilityGate) Run(ctx context.Context, state PipelineState) Result[*CapabilityOutput] {
	start := time.Now()

	if state.Stance == StanceSword {
		return Pass("capability", &CapabilityOutput{SwordMode: true}, time.Since(start))
	}

	var requiredCategories []string
	qualitative := true
	if state.LensResult != nil {
		requiredCategories = state.LensResult.RequiredCategories
		qualitative = state.LensResult.Qualitative
	}

	lens := capability.LensResult{RequiredCategories: requiredCategories, NormalizedMessage: state.NormalizedMessage}
	selected := capability.SelectFallback(lens)

	entities := map[string]string{}
	for _, name := range selected {
		entities[name] = extractEntityGuess(state.NormalizedMessage)
	}

	exec := capability.Execute(ctx, g.registry, selected, entities, g.perCallTimeout, g.healthRecorder)
	pack := evidence.Build(exec.Results, exec.Errors, g.freshnessPolicies, requiredCategories, qualitative, time.Now())

	return Pass("capability", &CapabilityOutput{EvidencePack: pack, Errors: exec.Errors}, time.Since(start))
}

// extractEntityGuess returns the message unchanged, so every selected
// provider receives the whole normalized message as its entity string. No
// ticker, symbol, location or timezone is extracted from it.
func extractEntityGuess(msg string) string {
	return msg
}
