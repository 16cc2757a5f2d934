package providers

import (
	"context"
	"fmt"

	"github.com/novaos/novaos/internal/ssrf"
)

// FXQuote is the upstream JSON shape for a currency-pair rate.
type FXQuote struct {
	Pair string  `json:"pair"`
	Rate float64 `json:"rate"`
}

// FXProvider fetches a live exchange rate for a currency pair (e.g. "USD/EUR").
type FXProvider struct {
	baseURL string
	apiKey  string
	guard   *ssrf.Guard
	now     Clock
}

func NewFXProvider(baseURL, apiKey string, guard *ssrf.Guard) *FXProvider {
	return &FXProvider{baseURL: baseURL, apiKey: apiKey, guard: guard, now: defaultClock}
}

func (p *FXProvider) Name() string        { return "fx_fetcher" }
func (p *FXProvider) Description() string { return "fetches a live foreign-exchange rate for a currency pair" }

func (p *FXProvider) Execute(ctx context.Context, entity string) (*Result, error) {
	url := fmt.Sprintf("%s/%s?apikey=%s", p.baseURL, entity, p.apiKey)
	body, err := guardedFetch(ctx, p.guard, "provider:fx", entity, url)
	if err != nil {
		return nil, err
	}

	var quote FXQuote
	if err := decodeJSON(body, &quote); err != nil {
		return nil, err
	}

	return &Result{
		Category:  "fx",
		Entity:    entity,
		Value:     quote.Rate,
		Unit:      "rate",
		Formatted: fmt.Sprintf("%s: %.4f", entity, quote.Rate),
		FetchedAt: p.now(),
		Citation:  p.baseURL,
	}, nil
}
