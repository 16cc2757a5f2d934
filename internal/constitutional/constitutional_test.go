package constitutional

import (
	"context"
	"errors"
	"testing"

	"github.com/novaos/novaos/internal/llm"
)

type fakeProvider struct {
	available bool
	text      string
	err       error
}

func (f *fakeProvider) Name() string      { return "fake" }
func (f *fakeProvider) IsAvailable() bool { return f.available }
func (f *fakeProvider) Complete(_ context.Context, _ string, _ []llm.Message, _ string, _ llm.Params) (*llm.Completion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Text: f.text}, nil
}

func TestCheckParsesViolation(t *testing.T) {
	p := &fakeProvider{available: true, text: `{"violates": true, "reason": "specific financial advice", "fix": "remove the recommendation"}`}
	v := NewValidator(p)

	verdict := v.Check(context.Background(), "You should put all your money into this stock.")
	if !verdict.Violates {
		t.Fatal("expected violation")
	}
	if verdict.Fix != "remove the recommendation" {
		t.Fatalf("unexpected fix: %s", verdict.Fix)
	}
}

func TestCheckFailsOpenOnProviderError(t *testing.T) {
	p := &fakeProvider{available: true, err: errors.New("timeout")}
	v := NewValidator(p)

	verdict := v.Check(context.Background(), "some text")
	if verdict.Violates {
		t.Fatal("expected fail-open (no violation) on provider error")
	}
}

func TestCheckFailsOpenOnMalformedJSON(t *testing.T) {
	p := &fakeProvider{available: true, text: "not json at all"}
	v := NewValidator(p)

	verdict := v.Check(context.Background(), "some text")
	if verdict.Violates {
		t.Fatal("expected fail-open on malformed response")
	}
}

func TestCheckFailsOpenWhenProviderUnavailable(t *testing.T) {
	p := &fakeProvider{available: false}
	v := NewValidator(p)

	verdict := v.Check(context.Background(), "some text")
	if verdict.Violates {
		t.Fatal("expected fail-open when provider unavailable")
	}
}

func TestExtractJSONObjectTrimsSurroundingProse(t *testing.T) {
	raw := "Sure, here's the verdict:\n" + `{"violates": false}` + "\nhope that helps"
	if got := extractJSONObject(raw); got != `{"violates": false}` {
		t.Fatalf("unexpected extraction: %s", got)
	}
}
