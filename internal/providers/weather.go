package providers

import (
	"context"
	"fmt"

	"github.com/novaos/novaos/internal/ssrf"
)

// WeatherReport is the upstream JSON shape for a current-conditions query.
type WeatherReport struct {
	Location    string  `json:"location"`
	TempCelsius float64 `json:"tempCelsius"`
	Conditions  string  `json:"conditions"`
}

// WeatherProvider fetches current conditions for a named location.
type WeatherProvider struct {
	baseURL string
	apiKey  string
	guard   *ssrf.Guard
	now     Clock
}

func NewWeatherProvider(baseURL, apiKey string, guard *ssrf.Guard) *WeatherProvider {
	return &WeatherProvider{baseURL: baseURL, apiKey: apiKey, guard: guard, now: defaultClock}
}

func (p *WeatherProvider) Name() string        { return "weather_fetcher" }
func (p *WeatherProvider) Description() string { return "fetches current weather conditions for a location" }

func (p *WeatherProvider) Execute(ctx context.Context, entity string) (*Result, error) {
	url := fmt.Sprintf("%s?location=%s&apikey=%s", p.baseURL, entity, p.apiKey)
	body, err := guardedFetch(ctx, p.guard, "provider:weather", entity, url)
	if err != nil {
		return nil, err
	}

	var report WeatherReport
	if err := decodeJSON(body, &report); err != nil {
		return nil, err
	}

	return &Result{
		Category:  "weather",
		Entity:    entity,
		Value:     report.TempCelsius,
		Unit:      "celsius",
		Formatted: fmt.Sprintf("%s: %.1f°C, %s", entity, report.TempCelsius, report.Conditions),
		FetchedAt: p.now(),
		Citation:  p.baseURL,
	}, nil
}
