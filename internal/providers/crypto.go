package providers

import (
	"context"
	"fmt"

	"github.com/novaos/novaos/internal/ssrf"
)

// CryptoQuote is the upstream JSON shape for a crypto-asset price.
type CryptoQuote struct {
	Symbol        string  `json:"symbol"`
	PriceUSD      float64 `json:"priceUsd"`
	ChangePercent float64 `json:"changePercent24h"`
}

// CryptoProvider fetches a live crypto-asset price in USD.
type CryptoProvider struct {
	baseURL string
	apiKey  string
	guard   *ssrf.Guard
	now     Clock
}

func NewCryptoProvider(baseURL, apiKey string, guard *ssrf.Guard) *CryptoProvider {
	return &CryptoProvider{baseURL: baseURL, apiKey: apiKey, guard: guard, now: defaultClock}
}

func (p *CryptoProvider) Name() string        { return "crypto_fetcher" }
func (p *CryptoProvider) Description() string { return "fetches a live crypto-asset price in USD" }

func (p *CryptoProvider) Execute(ctx context.Context, entity string) (*Result, error) {
	url := fmt.Sprintf("%s/%s?apikey=%s", p.baseURL, entity, p.apiKey)
	body, err := guardedFetch(ctx, p.guard, "provider:crypto", entity, url)
	if err != nil {
		return nil, err
	}

	var quote CryptoQuote
	if err := decodeJSON(body, &quote); err != nil {
		return nil, err
	}

	sign := "+"
	if quote.ChangePercent < 0 {
		sign = ""
	}
	return &Result{
		Category:  "crypto",
		Entity:    entity,
		Value:     quote.PriceUSD,
		Unit:      "usd",
		Formatted: fmt.Sprintf("%s: %.2f (%s%.2f%% 24h)", entity, quote.PriceUSD, sign, quote.ChangePercent),
		FetchedAt: p.now(),
		Citation:  p.baseURL,
	}, nil
}
