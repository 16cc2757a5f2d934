package audit

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/novaos/novaos/internal/crypto"
	"github.com/novaos/novaos/internal/kvs"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ks, err := NewTestKeySource()
	if err != nil {
		t.Fatalf("key source: %v", err)
	}
	svc := crypto.NewService(ks, 1)
	return NewLogger(kvs.NewRedisStoreFromClient(client, "audittest:"), svc)
}

// NewTestKeySource is a small local helper so this package's tests don't
// need to reach into internal/crypto's own test fixtures.
func NewTestKeySource() (*crypto.KeySource, error) {
	return crypto.NewKeySource(map[uint32]string{1: "a-sufficiently-long-test-secret-value"})
}

func TestRedactMatchesEachPatternAndIsIdempotent(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want PatternName
	}{
		{"ssn", "my ssn is 123-45-6789 ok", PatternSSN},
		{"card", "card 4111111111111111 charged", PatternCardNumber},
		{"email", "reach me at a.b+c@example.com", PatternEmail},
		{"phone", "call (415) 555-2671 now", PatternPhone},
		{"ipv4", "connect to 192.168.1.20 please", PatternIPv4},
		{"dob", "born 1990-04-12 in spring", PatternDOB},
		{"bank", "account number: 123456789012", PatternBankAccountContext},
		{"routing", "routing number 021000021", PatternRoutingContext},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			redacted, matched := Redact(tc.in)
			found := false
			for _, m := range matched {
				if m == tc.want {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected pattern %s to match in %q, matched=%v", tc.want, tc.in, matched)
			}
			if strings.Contains(redacted, "@example.com") && tc.want != PatternEmail {
				t.Fatalf("unexpected leaked text in redacted output: %q", redacted)
			}

			redactedTwice, matchedTwice := Redact(redacted)
			if redactedTwice != redacted {
				t.Fatalf("redaction not idempotent: %q != %q", redactedTwice, redacted)
			}
			if len(matchedTwice) != 0 {
				t.Fatalf("second pass should match nothing, got %v", matchedTwice)
			}
		})
	}
}

func TestRedactNoMatchesLeavesTextUnchanged(t *testing.T) {
	in := "just a normal message about the weather"
	out, matched := Redact(in)
	if out != in {
		t.Fatalf("expected unchanged text, got %q", out)
	}
	if len(matched) != 0 {
		t.Fatalf("expected no matches, got %v", matched)
	}
}

func TestWriteThenGetRoundTrips(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger(t)

	rec := Record{
		RequestID:         "req-1",
		UserMessage:       "my ssn is 123-45-6789",
		ResponseText:      "I can't help with that.",
		Constraints:       "standard",
		GatesExecuted:     []string{"lens", "spine", "capability"},
		Stance:            "refuse",
		Model:             "claude-test",
		InterventionLevel: "none",
		RegenerationCount: 0,
	}
	if err := logger.Write(ctx, rec); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, ok, err := logger.Get(ctx, "req-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.RequestID != "req-1" {
		t.Fatalf("expected request id req-1, got %s", got.RequestID)
	}
	if got.InputHash == "" || len(got.InputHash) != 64 {
		t.Fatalf("expected full 64-char hex hash, got %q (len %d)", got.InputHash, len(got.InputHash))
	}
	found := false
	for _, p := range got.PatternsMatched {
		if p == string(PatternSSN) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ssn pattern recorded, got %v", got.PatternsMatched)
	}

	snap, ok, err := logger.GetSnapshot(ctx, "req-1")
	if err != nil || !ok {
		t.Fatalf("get snapshot: ok=%v err=%v", ok, err)
	}
	if strings.Contains(snap.InputRedacted, "123-45-6789") {
		t.Fatalf("snapshot leaked raw ssn: %q", snap.InputRedacted)
	}
	if snap.Constraints != "standard" {
		t.Fatalf("expected constraints 'standard', got %q", snap.Constraints)
	}
}

func TestGetMissingRequestReturnsNotOk(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger(t)

	_, ok, err := logger.Get(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing record")
	}
}
