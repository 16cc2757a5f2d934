// Package providers implements the Live-Data Providers (spec §2 component
// 6, §4.5): category-scoped fetchers that each go through the SSRF Guard
// and Secure Transport before returning a typed Result. Grounded on the
// teacher's pkg/bookowl.Client request-building style, generalized to a
// registry of named plugins per spec's "stock_fetcher, weather_fetcher,
// crypto_fetcher, fx_fetcher, time_fetcher" set.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/novaos/novaos/internal/ssrf"
	"github.com/novaos/novaos/internal/transport"
)

// Result is the typed outcome of one provider call (spec §2 component 6,
// "returning typed ProviderResult").
type Result struct {
	Category  string
	Entity    string
	Value     float64
	Unit      string
	Formatted string // e.g. "AAPL: 178.50 (+1.31%)"
	FetchedAt time.Time
	Citation  string
}

// Provider is one named capability plugin (spec §4.5's registry entry
// "{name, description, execute(selectorInput) → EvidenceItem?}").
type Provider interface {
	Name() string
	Description() string
	Execute(ctx context.Context, entity string) (*Result, error)
}

// Registry holds the fixed plugin set; capability selection (internal/gate
// and internal/capability) look providers up by name.
type Registry struct {
	byName map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{byName: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.byName[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	return names
}

// guardedFetch is the shared "SSRF Guard then Secure Transport" path every
// HTTP-backed provider uses (spec §2 component 6: "Each call goes through
// SSRF Guard + Secure Transport").
func guardedFetch(ctx context.Context, guard *ssrf.Guard, userID, requestID, url string) ([]byte, error) {
	decision := guard.Evaluate(ctx, url, userID, requestID)
	if !decision.Allowed {
		return nil, fmt.Errorf("providers: egress denied (%s): %s", decision.Reason, decision.Message)
	}

	chain := ssrf.NewRedirectChain(guard)
	d := decision
	for {
		ev, body, err := transport.Fetch(ctx, d.Transport)
		if err != nil {
			return nil, fmt.Errorf("providers: transport fetch failed: %w", err)
		}
		if ev.RedirectLocation == "" {
			return body, nil
		}
		// A redirect response: the OS/socket never follows it, so re-run
		// the full Guard decision on the Location (spec §4.4).
		redirectDecision := chain.Follow(ctx, ev.RedirectLocation, userID, requestID, d.Transport.MaxRedirects)
		if !redirectDecision.Allowed {
			return nil, fmt.Errorf("providers: redirect denied (%s): %s", redirectDecision.Reason, redirectDecision.Message)
		}
		d = redirectDecision
	}
}

func decodeJSON(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("providers: decoding response: %w", err)
	}
	return nil
}

// Freshness reports whether a result fetched at fetchedAt is stale, i.e.
// older than policy (spec §4.5's per-category freshness policy check).
func Freshness(fetchedAt time.Time, policy time.Duration, now time.Time) (isStale bool) {
	return now.Sub(fetchedAt) > policy
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

func defaultClock() time.Time { return time.Now() }
