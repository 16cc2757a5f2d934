// Package llm implements the Model Gate's Provider Abstraction (spec §2
// component 11, §4.6): an ordered fallback chain of providers, each
// wrapped in its own circuit breaker, terminating in a deterministic stub
// that always succeeds so pipeline completion is guaranteed. Grounded on
// the teacher's pkg/mattermost.Client adapter shape (thin HTTP wrapper
// around a vendor API) generalized to a provider-neutral chat interface,
// with circuit breaking adopted from the pack's incident-response stack.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// Params carries the provider-neutral call parameters (spec §6 "Downstream
// LLM: provider-neutral chat interface").
type Params struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Message is one turn of conversation history.
type Message struct {
	Role    string // "user" | "assistant"
	Content string
}

// Completion is the provider-neutral result of a chat call.
type Completion struct {
	Text       string
	TokensUsed int
	Model      string
}

// Provider is one vendor adapter (spec §6: "provider SDKs are adapters").
type Provider interface {
	Name() string
	IsAvailable() bool
	Complete(ctx context.Context, systemText string, history []Message, userText string, params Params) (*Completion, error)
}

// breakerProvider wraps a Provider in its own circuit breaker so one
// vendor's outage does not keep being retried on every request (spec
// §4.6: "on failure ... the next is tried", generalized to also open the
// circuit on repeated failures rather than probing every call).
type breakerProvider struct {
	Provider
	breaker *gobreaker.CircuitBreaker
}

func wrapWithBreaker(p Provider) *breakerProvider {
	settings := gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &breakerProvider{Provider: p, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breakerProvider) Complete(ctx context.Context, systemText string, history []Message, userText string, params Params) (*Completion, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.Provider.Complete(ctx, systemText, history, userText, params)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Completion), nil
}

// Chain tries each provider in order (spec §4.6). The stub provider must
// always be last and must always succeed.
type Chain struct {
	providers []*breakerProvider
}

func NewChain(providers ...Provider) *Chain {
	wrapped := make([]*breakerProvider, 0, len(providers))
	for _, p := range providers {
		wrapped = append(wrapped, wrapWithBreaker(p))
	}
	return &Chain{providers: wrapped}
}

// Complete tries each provider in order, skipping any whose IsAvailable()
// is false, and falling through to the next on error, empty content, or an
// open circuit.
func (c *Chain) Complete(ctx context.Context, systemText string, history []Message, userText string, params Params) (*Completion, string, error) {
	var lastErr error
	for _, p := range c.providers {
		if !p.IsAvailable() {
			continue
		}
		completion, err := p.Complete(ctx, systemText, history, userText, params)
		if err != nil {
			lastErr = err
			continue
		}
		if completion == nil || completion.Text == "" {
			lastErr = fmt.Errorf("llm: provider %s returned empty content", p.Name())
			continue
		}
		return completion, p.Name(), nil
	}
	return nil, "", fmt.Errorf("llm: all providers exhausted: %w", lastErr)
}
