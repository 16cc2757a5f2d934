package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/novaos/novaos/internal/providers"
	"github.com/novaos/novaos/internal/ssrf"
)

// searchResponse is the upstream JSON shape for a web search call.
type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		URL     string `json:"url"`
	} `json:"results"`
}

// WebSearchProvider is the sixth named capability plugin (spec §4.5's
// registry: "..., web_searcher"). It is not one of the category-scoped
// providers in spec §2 component 6, but shares their SSRF-guarded-fetch
// shape, so it lives alongside capability selection rather than in
// internal/providers.
type WebSearchProvider struct {
	baseURL string
	apiKey  string
	guard   *ssrf.Guard
}

func NewWebSearchProvider(baseURL, apiKey string, guard *ssrf.Guard) *WebSearchProvider {
	return &WebSearchProvider{baseURL: baseURL, apiKey: apiKey, guard: guard}
}

func (p *WebSearchProvider) Name() string        { return "web_searcher" }
func (p *WebSearchProvider) Description() string { return "runs a general web search for a query" }

func (p *WebSearchProvider) Execute(ctx context.Context, query string) (*providers.Result, error) {
	url := fmt.Sprintf("%s?q=%s&apikey=%s", p.baseURL, query, p.apiKey)

	decision := p.guard.Evaluate(ctx, url, "provider:web_search", query)
	if !decision.Allowed {
		return nil, fmt.Errorf("capability: web search egress denied (%s): %s", decision.Reason, decision.Message)
	}

	ev, body, err := fetchViaTransport(ctx, decision)
	if err != nil {
		return nil, err
	}
	_ = ev

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("capability: decoding search response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, fmt.Errorf("capability: no search results for %q", query)
	}

	top := parsed.Results[0]
	return &providers.Result{
		Category:  "web_search",
		Entity:    query,
		Formatted: fmt.Sprintf("%s: %s (%s)", top.Title, top.Snippet, top.URL),
		Citation:  top.URL,
		FetchedAt: time.Now(),
	}, nil
}
