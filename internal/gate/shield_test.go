package gate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/novaos/novaos/internal/ack"
	"github.com/novaos/novaos/internal/kvs"
	"github.com/novaos/novaos/internal/llm"
)

type scriptedClassifier struct {
	available bool
	text      string
}

func (c *scriptedClassifier) Name() string      { return "scripted" }
func (c *scriptedClassifier) IsAvailable() bool { return c.available }
func (c *scriptedClassifier) Complete(_ context.Context, _ string, _ []llm.Message, _ string, _ llm.Params) (*llm.Completion, error) {
	return &llm.Completion{Text: c.text}, nil
}

func newAckService(t *testing.T) *ack.Service {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := kvs.NewRedisStoreFromClient(client, "gatetest:")
	return ack.NewService(store, "current-secret-value-0123456789", "", 30*time.Minute)
}

func TestShieldStopsOnHighRiskHarm(t *testing.T) {
	classifier := &scriptedClassifier{available: true, text: `{"riskLevel":"high","category":"harm_risk","confidence":0.9,"reasoning":"plans to harm someone"}`}
	svc := newAckService(t)
	g := NewShieldGate(classifier, svc)

	res := g.Run(context.Background(), PipelineState{RequestID: "r1", UserID: "u1", UserMessage: "hi", NormalizedMessage: "hi"})
	if res.Action != ActionStop {
		t.Fatalf("expected stop action, got %s", res.Action)
	}
	if res.Output.VetoType != "hard" {
		t.Fatalf("expected hard veto, got %s", res.Output.VetoType)
	}
}

func TestShieldAwaitsAckOnReckless(t *testing.T) {
	classifier := &scriptedClassifier{available: true, text: `{"riskLevel":"medium","category":"reckless_decision","confidence":0.7,"reasoning":"risky investment"}`}
	svc := newAckService(t)
	g := NewShieldGate(classifier, svc)

	res := g.Run(context.Background(), PipelineState{RequestID: "r2", UserID: "u1", UserMessage: "put savings into crypto", NormalizedMessage: "put savings into crypto"})
	if res.Action != ActionAwaitAck {
		t.Fatalf("expected await_ack, got %s", res.Action)
	}
	if res.Output.PendingAck == nil || res.Output.PendingAck.RequiredText == "" {
		t.Fatal("expected a pending ack with required text")
	}
}

func TestShieldFailsOpenOnClassifierUnavailable(t *testing.T) {
	classifier := &scriptedClassifier{available: false}
	svc := newAckService(t)
	g := NewShieldGate(classifier, svc)

	res := g.Run(context.Background(), PipelineState{RequestID: "r3", UserID: "u1", UserMessage: "hello", NormalizedMessage: "hello"})
	if res.Action != ActionContinue || res.Status != StatusPass {
		t.Fatalf("expected fail-open pass/continue, got status=%s action=%s", res.Status, res.Action)
	}
}

func TestShieldAckShortCircuitOverridesClassification(t *testing.T) {
	svc := newAckService(t)
	tok, required, err := svc.Issue("r4", "u1", "risky message", "reckless_decision", "audit-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	classifier := &scriptedClassifier{available: true, text: `{"riskLevel":"high","category":"harm_risk","confidence":0.9,"reasoning":"should still be overridden"}`}
	g := NewShieldGate(classifier, svc)

	state := PipelineState{RequestID: "r4", UserID: "u1", UserMessage: "risky message", NormalizedMessage: "risky message", AckToken: tok, AckText: required}
	res := g.Run(context.Background(), state)

	if !res.Output.OverrideApplied {
		t.Fatal("expected ack override to apply")
	}
	if res.Action != ActionContinue {
		t.Fatalf("expected continue on valid ack override, got %s", res.Action)
	}
}
