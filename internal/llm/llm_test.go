package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeProvider struct {
	name      string
	available bool
	err       error
	text      string
}

func (f *fakeProvider) Name() string      { return f.name }
func (f *fakeProvider) IsAvailable() bool { return f.available }
func (f *fakeProvider) Complete(_ context.Context, _ string, _ []Message, _ string, _ Params) (*Completion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &Completion{Text: f.text, Model: f.name}, nil
}

func TestChainFallsThroughOnError(t *testing.T) {
	primary := &fakeProvider{name: "primary", available: true, err: errors.New("boom")}
	secondary := &fakeProvider{name: "secondary", available: true, text: "fallback response"}
	chain := NewChain(primary, secondary)

	completion, providerName, err := chain.Complete(context.Background(), "sys", nil, "hi", Params{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if providerName != "secondary" {
		t.Fatalf("expected fallback to secondary, got %s", providerName)
	}
	if completion.Text != "fallback response" {
		t.Fatalf("unexpected text: %s", completion.Text)
	}
}

func TestChainSkipsUnavailableProviders(t *testing.T) {
	unavailable := &fakeProvider{name: "unavailable", available: false}
	stub := NewStubProvider()
	chain := NewChain(unavailable, stub)

	_, providerName, err := chain.Complete(context.Background(), "sys", nil, "hi", Params{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if providerName != "stub" {
		t.Fatalf("expected stub to serve, got %s", providerName)
	}
}

func TestChainFailsOnlyWhenAllProvidersFail(t *testing.T) {
	p1 := &fakeProvider{name: "p1", available: true, err: errors.New("down")}
	p2 := &fakeProvider{name: "p2", available: true, err: errors.New("also down")}
	chain := NewChain(p1, p2)

	_, _, err := chain.Complete(context.Background(), "sys", nil, "hi", Params{})
	if err == nil {
		t.Fatal("expected error when every provider fails")
	}
}

func TestComposeSystemPromptIncludesConstraintFragments(t *testing.T) {
	c := GenerationConstraints{
		BannedPhrases: []string{"guaranteed returns"},
		Tone:          "calm",
	}
	prompt := ComposeSystemPrompt("base policy", c)
	if !strings.Contains(prompt, "base policy") || !strings.Contains(prompt, "guaranteed returns") || !strings.Contains(prompt, "calm") {
		t.Fatalf("expected all fragments present, got %s", prompt)
	}
}

func TestApplyPostConstraintsPrependsAndAppendsMissingItems(t *testing.T) {
	c := GenerationConstraints{
		MustPrepend: "Disclaimer: ",
		MustInclude: []string{"not financial advice"},
	}
	out := ApplyPostConstraints("here is your answer", c)
	if !strings.HasPrefix(out, "Disclaimer: ") {
		t.Fatalf("expected prepend, got %s", out)
	}
	if !strings.Contains(out, "not financial advice") {
		t.Fatalf("expected required phrase appended, got %s", out)
	}
}
