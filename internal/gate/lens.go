package gate

import (
	"context"
	"strings"
	"time"
)

// categoryKeywords mirrors internal/capability's fallback keyword map but
// is kept local: Lens only needs to know which categories are plausibly
// relevant, not which plugin implements them.
var categoryKeywords = map[string][]string{
	"stock":   {"stock", "share price", "ticker", "equity"},
	"fx":      {"exchange rate", "currency", "forex", "fx"},
	"crypto":  {"bitcoin", "crypto", "ethereum", "token price"},
	"weather": {"weather", "forecast", "temperature"},
	"time":    {"what time", "current time", "time zone", "timezone"},
}

// LensGate decides whether live data or verification is needed (spec §4.1
// stage 3).
type LensGate struct{}

func NewLensGate() *LensGate { return &LensGate{} }

func (g *LensGate) Run(_ context.Context, state PipelineState) Result[*LensResult] {
	start := time.Now()
	msg := state.NormalizedMessage

	var required []string
	for category, keywords := range categoryKeywords {
		for _, kw := range keywords {
			if strings.Contains(msg, kw) {
				required = append(required, category)
				break
			}
		}
	}

	result := &LensResult{
		RequiredCategories: required,
		Qualitative:        len(required) == 0,
		FreshnessRequired:  len(required) > 0,
	}
	return Pass("lens", result, time.Since(start))
}
