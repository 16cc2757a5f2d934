package llm

import (
	"fmt"
	"strings"
)

// GenerationConstraints is fed into prompt composition (spec §4.6): a
// fixed policy system prompt concatenated with constraint fragments
// derived from these fields, followed by the XML-enveloped user prompt.
type GenerationConstraints struct {
	BannedPhrases           []string
	MaxPronouns             int
	Tone                    string
	MustPrepend             string
	MustInclude             []string
	AllowNumericPrecision   bool
	AllowActionRecommendation bool
}

// ComposeSystemPrompt concatenates the fixed policy prompt with fragments
// derived from constraints (spec §4.6).
func ComposeSystemPrompt(policyPrompt string, c GenerationConstraints) string {
	var b strings.Builder
	b.WriteString(policyPrompt)

	if len(c.BannedPhrases) > 0 {
		fmt.Fprintf(&b, "\nDo not use any of these phrases: %s.", strings.Join(c.BannedPhrases, ", "))
	}
	if c.MaxPronouns > 0 {
		fmt.Fprintf(&b, "\nUse no more than %d personal pronouns.", c.MaxPronouns)
	}
	if c.Tone != "" {
		fmt.Fprintf(&b, "\nMaintain a %s tone throughout.", c.Tone)
	}
	if !c.AllowNumericPrecision {
		b.WriteString("\nDo not state numeric figures with false precision; round or qualify uncertain numbers.")
	}
	if !c.AllowActionRecommendation {
		b.WriteString("\nDo not recommend any specific financial, medical, or legal action.")
	}

	return b.String()
}

// ApplyPostConstraints enforces mustPrepend/mustInclude on a generated
// response after the fact (spec §4.6 "Post-constraints").
func ApplyPostConstraints(text string, c GenerationConstraints) string {
	if c.MustPrepend != "" && !strings.HasPrefix(text, c.MustPrepend) {
		text = c.MustPrepend + text
	}
	for _, required := range c.MustInclude {
		if !strings.Contains(text, required) {
			text = text + "\n\n" + required
		}
	}
	return text
}
