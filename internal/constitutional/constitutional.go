// Package constitutional implements the Constitutional Validator (spec §2
// component 12, §4.7): a post-generation classifier call with a fixed
// rubric that fails open on any parse or API error, driving the
// orchestrator's bounded regeneration loop.
package constitutional

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/novaos/novaos/internal/llm"
)

// Verdict is the classifier's parsed JSON response (spec §4.7).
type Verdict struct {
	Violates bool   `json:"violates"`
	Reason   string `json:"reason,omitempty"`
	Fix      string `json:"fix,omitempty"`
}

const rubric = `You are a strict content-policy classifier. Given a generated response, ` +
	`respond with JSON only: {"violates": bool, "reason": string, "fix": string}. ` +
	`Set violates=true only if the response recommends a specific risky financial/medical/legal ` +
	`action, states a numeric figure not present in its evidence, or uses a banned phrase. ` +
	`"fix" should be a short instruction for how to rewrite the response to comply.`

// Validator calls the classifier LLM at temperature 0 and parses its
// verdict, failing open on any error (spec §4.7: "Parse errors or API
// errors ⇒ fail-open (no violation)").
type Validator struct {
	provider llm.Provider
}

func NewValidator(provider llm.Provider) *Validator {
	return &Validator{provider: provider}
}

// Check runs the rubric against generatedText. It never returns an error
// to the caller: any classifier failure is reported as a non-violating
// Verdict, matching the fail-open contract.
func (v *Validator) Check(ctx context.Context, generatedText string) Verdict {
	if v.provider == nil || !v.provider.IsAvailable() {
		return Verdict{Violates: false}
	}

	completion, err := v.provider.Complete(ctx, rubric, nil, generatedText, llm.Params{Temperature: 0})
	if err != nil {
		return Verdict{Violates: false}
	}

	raw := extractJSONObject(completion.Text)
	var verdict Verdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return Verdict{Violates: false}
	}
	return verdict
}

// extractJSONObject pulls the first {...} span out of a classifier
// response, tolerating leading/trailing prose some models add despite
// being asked for JSON only.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return "{}"
	}
	return s[start : end+1]
}
