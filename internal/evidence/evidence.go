// Package evidence implements the Evidence Builder (spec §2 component 7,
// §4.5): it merges provider results into an EvidencePack with extracted
// numeric tokens, per-item freshness, and the system-instruction text that
// constrains the model to only quote verified numbers. Grounded on the
// teacher's internal/audit package for its "structured record with a
// formatted rendering" shape, adapted to XML serialization via
// encoding/xml where the teacher uses encoding/json.
package evidence

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/novaos/novaos/internal/providers"
)

// ConstraintLevel drives the system-prompt instructions injected alongside
// evidence (spec §4.5 "Constraint-level selection").
type ConstraintLevel string

const (
	ConstraintQuoteEvidenceOnly  ConstraintLevel = "quote_evidence_only"
	ConstraintForbidNumericClaims ConstraintLevel = "forbid_numeric_claims"
	ConstraintQualitativeOnly   ConstraintLevel = "qualitative_only"
)

// NumericToken is one allowed numeric literal the model may cite verbatim
// (spec §3 EvidencePack.numericTokens).
type NumericToken struct {
	Value     string
	Unit      string
	Category  string
	Entity    string
	FetchedAt time.Time
}

// ContextItem is one formatted, cited piece of evidence (spec §3
// EvidencePack.contextItems).
type ContextItem struct {
	ID        string
	Category  string
	Content   string
	Entity    string
	FetchedAt time.Time
	IsStale   bool
	Citation  string
}

// Pack is the EvidencePack (spec §3): the sole channel through which live
// data reaches the model, and the sole source of truth for which numeric
// literals the model is allowed to emit under quote_evidence_only.
type Pack struct {
	ContextItems          []ContextItem
	NumericTokens         []NumericToken
	FormattedContext       string
	SystemPromptAdditions string
	RequiredCitations     []string
	FreshnessWarnings     []string
	IsComplete            bool
	IncompleteReason      string
	Constraint            ConstraintLevel
}

var numericLiteral = regexp.MustCompile(`-?\d[\d,]*\.?\d*`)

// Build assembles a Pack from provider results, freshness policies keyed
// by category, the set of categories the Lens gate required, and whether
// the request was purely qualitative (spec §4.5's four-way constraint
// selection table).
func Build(results []*providers.Result, errs []error, freshnessPolicies map[string]time.Duration, requiredCategories []string, qualitativeQuery bool, now time.Time) *Pack {
	pack := &Pack{IsComplete: true}

	if qualitativeQuery && len(requiredCategories) == 0 {
		pack.Constraint = ConstraintQualitativeOnly
		pack.SystemPromptAdditions = "No live numeric data was requested for this query; answer qualitatively and avoid inventing specific figures."
		return pack
	}

	succeededCategories := map[string]bool{}
	for i, r := range results {
		policy, ok := freshnessPolicies[r.Category]
		isStale := ok && providers.Freshness(r.FetchedAt, policy, now)

		item := ContextItem{
			ID:        fmt.Sprintf("item-%d", i+1),
			Category:  r.Category,
			Content:   r.Formatted,
			Entity:    r.Entity,
			FetchedAt: r.FetchedAt,
			IsStale:   isStale,
			Citation:  r.Citation,
		}
		pack.ContextItems = append(pack.ContextItems, item)
		pack.RequiredCitations = appendUnique(pack.RequiredCitations, r.Citation)
		succeededCategories[r.Category] = true

		for _, m := range numericLiteral.FindAllString(r.Formatted, -1) {
			pack.NumericTokens = append(pack.NumericTokens, NumericToken{
				Value:     m,
				Unit:      r.Unit,
				Category:  r.Category,
				Entity:    r.Entity,
				FetchedAt: r.FetchedAt,
			})
		}
		if isStale {
			pack.FreshnessWarnings = append(pack.FreshnessWarnings, fmt.Sprintf("%s data for %s is stale (fetched %s)", r.Category, r.Entity, r.FetchedAt.Format(time.RFC3339)))
		}
	}

	var missing []string
	for _, cat := range requiredCategories {
		if !succeededCategories[cat] {
			missing = append(missing, cat)
		}
	}

	switch {
	case len(requiredCategories) > 0 && len(missing) == 0:
		pack.Constraint = ConstraintQuoteEvidenceOnly
		pack.SystemPromptAdditions = "Only use the numeric figures provided below; do not invent or estimate numbers."
	case len(results) > 0:
		pack.Constraint = ConstraintQuoteEvidenceOnly
		pack.IsComplete = false
		pack.IncompleteReason = "unavailable: " + strings.Join(missing, ", ")
		pack.SystemPromptAdditions = fmt.Sprintf("Only use the numeric figures provided below. The following data was unavailable: %s.", strings.Join(missing, ", "))
	default:
		pack.Constraint = ConstraintForbidNumericClaims
		pack.IsComplete = false
		pack.IncompleteReason = "no live data could be retrieved"
		pack.SystemPromptAdditions = "No live data is available. Do not state specific numeric figures; say the data could not be retrieved."
	}

	pack.FormattedContext = formatContext(pack.ContextItems)
	return pack
}

func formatContext(items []ContextItem) string {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "%s\n", it.Content)
	}
	return b.String()
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// xmlEnvelope mirrors the wire shape spec §4.5 specifies for prompt
// injection.
type xmlEnvelope struct {
	XMLName           xml.Name  `xml:"live_data_evidence"`
	SystemInstructions string   `xml:"system_instructions"`
	Data              []xmlData `xml:"data"`
	FreshnessWarnings *xmlFreshnessWarnings `xml:"freshness_warnings,omitempty"`
	UserQuery         string    `xml:"user_query"`
}

type xmlData struct {
	Category  string `xml:"category,attr"`
	Entity    string `xml:"entity,attr,omitempty"`
	Freshness string `xml:"freshness,attr"`
	Content   string `xml:",chardata"`
}

type xmlFreshnessWarnings struct {
	Warnings []string `xml:"warning"`
}

// Envelope serializes the pack and the (already-escaped-by-xml) original
// user query into the XML envelope the Model gate sends as the user
// prompt (spec §4.5).
func (p *Pack) Envelope(userQuery string) (string, error) {
	env := xmlEnvelope{
		SystemInstructions: p.SystemPromptAdditions,
		UserQuery:          userQuery,
	}
	for _, it := range p.ContextItems {
		freshness := "verified"
		if it.IsStale {
			freshness = "stale"
		}
		env.Data = append(env.Data, xmlData{
			Category:  it.Category,
			Entity:    it.Entity,
			Freshness: freshness,
			Content:   it.Content,
		})
	}
	if len(p.FreshnessWarnings) > 0 {
		env.FreshnessWarnings = &xmlFreshnessWarnings{Warnings: p.FreshnessWarnings}
	}

	out, err := xml.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", fmt.Errorf("evidence: marshaling xml envelope: %w", err)
	}
	return string(out), nil
}
