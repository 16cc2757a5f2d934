// Package capability implements capability selection and parallel
// execution (spec §2 component under 4.5/4.6: "Capability Selection &
// Evidence Builder"): a deterministic keyword-match selector, and
// concurrent execution of the chosen plugins with per-capability timeouts.
// The Selector type declares the shape of an LLM-driven selector; nothing
// in the module implements it, and the Capability gate selects by keyword
// match only. Grounded on the teacher's worker-pool
// pattern (internal/scheduler-equivalent fan-out in the incident
// escalation path) generalized from a fixed job set to a dynamic plugin
// subset, using golang.org/x/sync/errgroup for the fan-out.
package capability

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/novaos/novaos/internal/providers"
)

// LensResult is the minimal input Stance/Lens hands to selection (spec
// §4.5: "LLM receives the registry menu and lens result").
type LensResult struct {
	RequiredCategories []string
	NormalizedMessage  string
}

// keywordMap is the deterministic fallback selector's category → keyword
// set (spec §4.5 "fallback — deterministic keyword match").
var keywordMap = map[string][]string{
	"stock":   {"stock", "share price", "ticker", "equity"},
	"fx":      {"exchange rate", "currency", "forex", "fx"},
	"crypto":  {"bitcoin", "crypto", "ethereum", "token price"},
	"weather": {"weather", "forecast", "temperature"},
	"time":    {"what time", "current time", "time zone", "timezone"},
}

// providerForCategory maps a category name to its registered plugin name.
var providerForCategory = map[string]string{
	"stock":   "stock_fetcher",
	"fx":      "fx_fetcher",
	"crypto":  "crypto_fetcher",
	"weather": "weather_fetcher",
	"time":    "time_fetcher",
}

// SelectFallback deterministically selects capability names by keyword
// match on the normalized message (spec §4.5). It is the only selection
// path the Capability gate uses.
func SelectFallback(lens LensResult) []string {
	msg := strings.ToLower(lens.NormalizedMessage)
	seen := map[string]bool{}
	var selected []string

	for _, category := range lens.RequiredCategories {
		if name, ok := providerForCategory[category]; ok && !seen[name] {
			seen[name] = true
			selected = append(selected, name)
		}
	}
	for category, keywords := range keywordMap {
		for _, kw := range keywords {
			if strings.Contains(msg, kw) {
				if name, ok := providerForCategory[category]; ok && !seen[name] {
					seen[name] = true
					selected = append(selected, name)
				}
				break
			}
		}
	}
	return selected
}

// Selector is the function shape of an LLM-driven pick of capability names
// from the menu and lens result. Nothing in the module implements or calls
// it; it is kept abstract here so capability execution doesn't depend on
// internal/llm directly.
type Selector func(ctx context.Context, menu []providers.Provider, lens LensResult) ([]string, error)

// Execution is the (evidenceItems[], errors[]) pair spec §4.5 names.
type Execution struct {
	Results []*providers.Result
	Errors  []error
}

// HealthRecorder reports a single provider call's outcome to
// known_sources_health's consecutive-failure counter (spec §4.10). Kept
// as a narrow local interface so this package doesn't depend on
// internal/scheduler; internal/app wires the concrete
// *scheduler.SourceHealth in.
type HealthRecorder interface {
	RecordResult(ctx context.Context, id string, success bool) error
}

// Execute runs each selected capability concurrently with a per-capability
// timeout, tolerating partial failure (spec §4.5: "partial success is
// acceptable. Result: (evidenceItems[], errors[])"). Each call's outcome is
// reported to recorder, if non-nil, so known_sources_health's weekly
// reconciliation sees real provider failures rather than none ever.
func Execute(ctx context.Context, registry *providers.Registry, selected []string, entities map[string]string, perCapabilityTimeout time.Duration, recorder HealthRecorder) Execution {
	results := make([]*providers.Result, len(selected))
	errs := make([]error, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range selected {
		i, name := i, name
		g.Go(func() error {
			provider, ok := registry.Get(name)
			if !ok {
				errs[i] = errUnknownCapability(name)
				return nil
			}
			callCtx, cancel := context.WithTimeout(gctx, perCapabilityTimeout)
			defer cancel()

			result, err := provider.Execute(callCtx, entities[name])
			if recorder != nil {
				_ = recorder.RecordResult(callCtx, name, err == nil) // health bookkeeping never fails the call itself
			}
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait() // per-capability errors are captured individually, never abort the group

	exec := Execution{}
	for i := range selected {
		if results[i] != nil {
			exec.Results = append(exec.Results, results[i])
		}
		if errs[i] != nil {
			exec.Errors = append(exec.Errors, errs[i])
		}
	}
	return exec
}

type capabilityError struct{ name string }

func (e capabilityError) Error() string { return "capability: unknown plugin " + e.name }

func errUnknownCapability(name string) error { return capabilityError{name: name} }
