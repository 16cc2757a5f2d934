package ack

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/novaos/novaos/internal/kvs"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := kvs.NewRedisStoreFromClient(client, "acktest:")
	return NewService(store, "current-secret-value-0123456789", "previous-secret-value-0123456789", 30*time.Minute)
}

func TestIssueAndValidateSucceeds(t *testing.T) {
	svc := newTestService(t)
	tok, required, err := svc.Issue("req-1", "user-1", "put all my savings in crypto", "high_risk_financial_action", "audit-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	ok, reason, err := svc.Validate(context.Background(), tok, "put all my savings in crypto", required)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !ok {
		t.Fatalf("expected valid, got failure reason=%s", reason)
	}
}

func TestValidateRejectsTamperedMAC(t *testing.T) {
	svc := newTestService(t)
	tok, required, _ := svc.Issue("req-2", "user-1", "msg", "reason", "audit-2")
	tok.MAC = tok.MAC[:len(tok.MAC)-2] + "xx"

	ok, reason, err := svc.Validate(context.Background(), tok, "msg", required)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok || reason != FailureInvalidMAC {
		t.Fatalf("expected invalid_mac, got ok=%v reason=%s", ok, reason)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	svc := newTestService(t)
	fixed := time.Now()
	svc.now = func() time.Time { return fixed }
	tok, required, _ := svc.Issue("req-3", "user-1", "msg", "reason", "audit-3")

	svc.now = func() time.Time { return fixed.Add(31 * time.Minute) }
	ok, reason, err := svc.Validate(context.Background(), tok, "msg", required)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok || reason != FailureExpired {
		t.Fatalf("expected expired, got ok=%v reason=%s", ok, reason)
	}
}

func TestValidateRejectsMessageMismatch(t *testing.T) {
	svc := newTestService(t)
	tok, required, _ := svc.Issue("req-4", "user-1", "original message", "reason", "audit-4")

	ok, reason, err := svc.Validate(context.Background(), tok, "a different message", required)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok || reason != FailureMessageMismatch {
		t.Fatalf("expected message_mismatch, got ok=%v reason=%s", ok, reason)
	}
}

func TestValidateRejectsPhraseMismatch(t *testing.T) {
	svc := newTestService(t)
	tok, _, _ := svc.Issue("req-5", "user-1", "msg", "reason", "audit-5")

	ok, reason, err := svc.Validate(context.Background(), tok, "msg", "not the right phrase")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok || reason != FailurePhraseMismatch {
		t.Fatalf("expected phrase_mismatch, got ok=%v reason=%s", ok, reason)
	}
}

func TestValidateRejectsReusedNonce(t *testing.T) {
	svc := newTestService(t)
	tok, required, _ := svc.Issue("req-6", "user-1", "msg", "reason", "audit-6")

	ok, _, err := svc.Validate(context.Background(), tok, "msg", required)
	if err != nil || !ok {
		t.Fatalf("first validate should succeed: ok=%v err=%v", ok, err)
	}

	ok, reason, err := svc.Validate(context.Background(), tok, "msg", required)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok || reason != FailureNonceReused {
		t.Fatalf("expected nonce_reused, got ok=%v reason=%s", ok, reason)
	}
}

func TestPhraseEqualsNormalizesCaseAndWhitespace(t *testing.T) {
	if !phraseEquals("  I CONFIRM i want to Proceed With: reason  ", requiredPhrase("reason")) {
		t.Fatal("expected case/whitespace-insensitive phrase match")
	}
}
