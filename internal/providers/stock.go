package providers

import (
	"context"
	"fmt"

	"github.com/novaos/novaos/internal/ssrf"
)

// StockQuote is the upstream JSON shape for the stock provider.
type StockQuote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"changePercent"`
}

// StockProvider fetches an equity quote by ticker symbol.
type StockProvider struct {
	baseURL string
	apiKey  string
	guard   *ssrf.Guard
	now     Clock
}

func NewStockProvider(baseURL, apiKey string, guard *ssrf.Guard) *StockProvider {
	return &StockProvider{baseURL: baseURL, apiKey: apiKey, guard: guard, now: defaultClock}
}

func (p *StockProvider) Name() string        { return "stock_fetcher" }
func (p *StockProvider) Description() string { return "fetches a live equity quote by ticker symbol" }

func (p *StockProvider) Execute(ctx context.Context, entity string) (*Result, error) {
	url := fmt.Sprintf("%s/%s?apikey=%s", p.baseURL, entity, p.apiKey)
	body, err := guardedFetch(ctx, p.guard, "provider:stock", entity, url)
	if err != nil {
		return nil, err
	}

	var quote StockQuote
	if err := decodeJSON(body, &quote); err != nil {
		return nil, err
	}

	sign := "+"
	if quote.ChangePercent < 0 {
		sign = ""
	}
	return &Result{
		Category:  "stock",
		Entity:    entity,
		Value:     quote.Price,
		Unit:      "usd",
		Formatted: fmt.Sprintf("%s: %.2f (%s%.2f%%)", entity, quote.Price, sign, quote.ChangePercent),
		FetchedAt: p.now(),
		Citation:  p.baseURL,
	}, nil
}
