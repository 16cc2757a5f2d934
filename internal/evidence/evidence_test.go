package evidence

import (
	"strings"
	"testing"
	"time"

	"github.com/novaos/novaos/internal/providers"
)

func TestBuildAllSucceededYieldsQuoteEvidenceOnly(t *testing.T) {
	now := time.Now()
	results := []*providers.Result{
		{Category: "stock", Entity: "AAPL", Formatted: "AAPL: 178.50 (+1.31%)", FetchedAt: now, Citation: "https://example.com/stocks"},
	}
	policies := map[string]time.Duration{"stock": 15 * time.Minute}

	pack := Build(results, nil, policies, []string{"stock"}, false, now)

	if pack.Constraint != ConstraintQuoteEvidenceOnly {
		t.Fatalf("expected quote_evidence_only, got %s", pack.Constraint)
	}
	if !pack.IsComplete {
		t.Fatal("expected complete pack")
	}
	if len(pack.NumericTokens) == 0 {
		t.Fatal("expected numeric tokens extracted")
	}
	found := false
	for _, tok := range pack.NumericTokens {
		if tok.Value == "178.50" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected 178.50 to be an allowed numeric token")
	}
}

func TestBuildPartialSuccessListsUnavailable(t *testing.T) {
	now := time.Now()
	results := []*providers.Result{
		{Category: "stock", Entity: "AAPL", Formatted: "AAPL: 178.50 (+1.31%)", FetchedAt: now, Citation: "https://example.com/stocks"},
	}
	policies := map[string]time.Duration{"stock": 15 * time.Minute}

	pack := Build(results, nil, policies, []string{"stock", "crypto"}, false, now)

	if pack.IsComplete {
		t.Fatal("expected incomplete pack")
	}
	if !strings.Contains(pack.IncompleteReason, "crypto") {
		t.Fatalf("expected unavailable reason to mention crypto, got %q", pack.IncompleteReason)
	}
}

func TestBuildNoResultsForbidsNumericClaims(t *testing.T) {
	now := time.Now()
	pack := Build(nil, nil, nil, []string{"stock"}, false, now)

	if pack.Constraint != ConstraintForbidNumericClaims {
		t.Fatalf("expected forbid_numeric_claims, got %s", pack.Constraint)
	}
}

func TestBuildQualitativeQueryNeedsNoEvidence(t *testing.T) {
	pack := Build(nil, nil, nil, nil, true, time.Now())
	if pack.Constraint != ConstraintQualitativeOnly {
		t.Fatalf("expected qualitative_only, got %s", pack.Constraint)
	}
}

func TestBuildStaleItemProducesFreshnessWarning(t *testing.T) {
	now := time.Now()
	stale := now.Add(-time.Hour)
	results := []*providers.Result{
		{Category: "stock", Entity: "AAPL", Formatted: "AAPL: 178.50", FetchedAt: stale, Citation: "https://example.com"},
	}
	pack := Build(results, nil, map[string]time.Duration{"stock": 15 * time.Minute}, []string{"stock"}, false, now)

	if len(pack.FreshnessWarnings) != 1 {
		t.Fatalf("expected one freshness warning, got %d", len(pack.FreshnessWarnings))
	}
	if !pack.ContextItems[0].IsStale {
		t.Fatal("expected context item marked stale")
	}
}

func TestEnvelopeSerializesDataAndUserQuery(t *testing.T) {
	now := time.Now()
	results := []*providers.Result{
		{Category: "stock", Entity: "AAPL", Formatted: "AAPL: 178.50", FetchedAt: now, Citation: "https://example.com"},
	}
	pack := Build(results, nil, map[string]time.Duration{"stock": 15 * time.Minute}, []string{"stock"}, false, now)

	out, err := pack.Envelope("what's AAPL trading at?")
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if !strings.Contains(out, "<live_data_evidence>") {
		t.Fatalf("expected envelope root element, got %s", out)
	}
	if !strings.Contains(out, "what&#39;s AAPL") && !strings.Contains(out, "what's AAPL") {
		t.Fatalf("expected user query embedded, got %s", out)
	}
}
