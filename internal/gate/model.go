package gate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/novaos/novaos/internal/llm"
)

const basePolicyPrompt = "You are NovaOS, a careful and direct assistant. Answer the user's question clearly."

// ModelGate builds the final prompt with evidence injection and calls the
// LLM chain (spec §4.1 stage 6, §4.6).
type ModelGate struct {
	chain       *llm.Chain
	constraints llm.GenerationConstraints
	params      llm.Params
}

func NewModelGate(chain *llm.Chain, constraints llm.GenerationConstraints, params llm.Params) *ModelGate {
	return &ModelGate{chain: chain, constraints: constraints, params: params}
}

func (g *ModelGate) Run(ctx context.Context, state PipelineState) Result[*Generation] {
	start := time.Now()

	constraints := constraintsForState(g.constraints, state)
	systemPrompt := llm.ComposeSystemPrompt(basePolicyPrompt, constraints)
	userPrompt := state.UserMessage
	if state.EvidencePack != nil {
		if envelope, err := state.EvidencePack.Envelope(state.UserMessage); err == nil {
			userPrompt = envelope
		}
	}

	completion, providerName, err := g.chain.Complete(ctx, systemPrompt, nil, userPrompt, g.params)
	if err != nil {
		return Stop("model", nil, fmt.Sprintf("all providers unavailable: %v", err), time.Since(start))
	}

	text := llm.ApplyPostConstraints(completion.Text, constraints)
	gen := &Generation{Text: text, Model: providerName, TokensUsed: completion.TokensUsed}
	return Pass("model", gen, time.Since(start))
}

// constraintsForState layers the Shield gate's crisis resources (spec
// §4.2 decision-table side effect "prepend crisis resources", §8 S3) onto
// the gate's static constraints, per request rather than per process.
func constraintsForState(base llm.GenerationConstraints, state PipelineState) llm.GenerationConstraints {
	if state.RiskSummary == nil || len(state.RiskSummary.CrisisResources) == 0 {
		return base
	}
	c := base
	c.MustPrepend = strings.Join(state.RiskSummary.CrisisResources, "\n") + "\n\n" + c.MustPrepend
	return c
}

// RunRegeneration rebuilds the user prompt as "original + FIX: <guidance>"
// and re-invokes the chain (spec §4.1 "Regeneration loop").
func (g *ModelGate) RunRegeneration(ctx context.Context, state PipelineState, guidance string) Result[*Generation] {
	start := time.Now()

	constraints := constraintsForState(g.constraints, state)
	systemPrompt := llm.ComposeSystemPrompt(basePolicyPrompt, constraints)
	userPrompt := state.UserMessage + "\n\nFIX: " + guidance
	if state.EvidencePack != nil {
		if envelope, err := state.EvidencePack.Envelope(userPrompt); err == nil {
			userPrompt = envelope
		}
	}

	completion, providerName, err := g.chain.Complete(ctx, systemPrompt, nil, userPrompt, g.params)
	if err != nil {
		return Stop("model", nil, fmt.Sprintf("all providers unavailable: %v", err), time.Since(start))
	}

	text := llm.ApplyPostConstraints(completion.Text, constraints)
	gen := &Generation{Text: text, Model: providerName, TokensUsed: completion.TokensUsed}
	return Pass("model", gen, time.Since(start))
}
