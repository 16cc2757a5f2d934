// Package ack implements the Acknowledgment Protocol (spec §2 component 9,
// §4.3): signed single-use tokens issued on a soft safety veto, validated
// on the user's follow-up request. Grounded on the teacher's
// internal/auth package (HMAC-signed session tokens) generalized from
// session identity to a per-decision, single-use acknowledgment.
package ack

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/novaos/novaos/internal/kvs"
)

// FailureMode enumerates the distinct validation failures spec §4.3
// requires be reported separately.
type FailureMode string

const (
	FailureNone            FailureMode = ""
	FailureInvalidMAC      FailureMode = "invalid_mac"
	FailureExpired         FailureMode = "expired"
	FailureMessageMismatch FailureMode = "message_mismatch"
	FailurePhraseMismatch  FailureMode = "phrase_mismatch"
	FailureNonceReused     FailureMode = "nonce_reused"
)

// Token is the AckToken (spec §3): a signed record proving the user was
// shown and accepted a specific required phrase for a specific message.
type Token struct {
	RequestID   string
	UserID      string
	MessageHash string // hex sha256 of the acknowledged user message
	Reason      string
	AuditID     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Nonce       string // base64 of 128 random bits
	MAC         string // base64 hmac-sha256
}

// Service issues and validates ack tokens against the KVS-backed nonce
// store, supporting current+previous HMAC secrets for rotation (spec
// §4.3's "verify ... with current + previous secret versions").
type Service struct {
	store          kvs.Store
	currentSecret  []byte
	previousSecret []byte
	ttl            time.Duration
	now            func() time.Time
}

func NewService(store kvs.Store, currentSecret, previousSecret string, ttl time.Duration) *Service {
	return &Service{
		store:          store,
		currentSecret:  []byte(currentSecret),
		previousSecret: []byte(previousSecret),
		ttl:            ttl,
		now:            time.Now,
	}
}

// Issue produces a new Token on a soft veto (spec §4.3 "Issuance (soft
// veto)"). requiredText is the phrase the caller must echo back.
func (s *Service) Issue(requestID, userID, userMessage, reason, auditID string) (*Token, string, error) {
	now := s.now()
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, "", fmt.Errorf("ack: generating nonce: %w", err)
	}

	tok := &Token{
		RequestID:   requestID,
		UserID:      userID,
		MessageHash: hashMessage(userMessage),
		Reason:      reason,
		AuditID:     auditID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
		Nonce:       base64.RawURLEncoding.EncodeToString(nonce),
	}
	tok.MAC = sign(s.currentSecret, tok)

	requiredText := requiredPhrase(reason)
	return tok, requiredText, nil
}

// Validate checks an ack token/text pair against the current request
// (spec §4.3 "Validation"). It never trusts an upstream-asserted valid
// flag; every check runs here regardless of caller-supplied state.
func (s *Service) Validate(ctx context.Context, tok *Token, currentMessage, ackText string) (bool, FailureMode, error) {
	macOK := hmac.Equal([]byte(tok.MAC), []byte(sign(s.currentSecret, tok)))
	if !macOK && len(s.previousSecret) > 0 {
		macOK = hmac.Equal([]byte(tok.MAC), []byte(sign(s.previousSecret, tok)))
	}
	if !macOK {
		return false, FailureInvalidMAC, nil
	}

	if s.now().After(tok.ExpiresAt) {
		return false, FailureExpired, nil
	}

	if hashMessage(currentMessage) != tok.MessageHash {
		return false, FailureMessageMismatch, nil
	}

	required := requiredPhrase(tok.Reason)
	if !phraseEquals(ackText, required) {
		return false, FailurePhraseMismatch, nil
	}

	nonceKey := "ack:nonce:" + tok.Nonce
	remaining := tok.ExpiresAt.Sub(s.now())
	if remaining < 0 {
		remaining = 0
	}
	reserved, err := s.store.SetNX(ctx, nonceKey, "1", remaining)
	if err != nil {
		return false, FailureNone, fmt.Errorf("ack: reserving nonce: %w", err)
	}
	if !reserved {
		return false, FailureNonceReused, nil
	}

	return true, FailureNone, nil
}

func hashMessage(msg string) string {
	sum := sha256.Sum256([]byte(msg))
	return fmt.Sprintf("%x", sum)
}

func sign(secret []byte, tok *Token) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(tok.RequestID))
	mac.Write([]byte(tok.UserID))
	mac.Write([]byte(tok.MessageHash))
	mac.Write([]byte(tok.Reason))
	mac.Write([]byte(tok.AuditID))
	writeInt64(mac, tok.IssuedAt.UnixMilli())
	writeInt64(mac, tok.ExpiresAt.UnixMilli())
	mac.Write([]byte(tok.Nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func writeInt64(mac interface{ Write([]byte) (int, error) }, v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	mac.Write(buf[:])
}

// requiredPhrase derives the fixed confirmation phrase for a veto reason.
// A real deployment may template this per reason; the canonical phrase is
// stable so the same reason always yields the same text.
func requiredPhrase(reason string) string {
	return "I confirm I want to proceed with: " + reason
}

// phraseEquals compares user-provided ack text against the required
// phrase using Unicode NFKC normalization, case-folding and trimming
// (spec §4.3 validation step (d)).
func phraseEquals(got, want string) bool {
	g := norm.NFKC.String(strings.TrimSpace(got))
	w := norm.NFKC.String(strings.TrimSpace(want))
	return strings.EqualFold(foldCase(g), foldCase(w))
}

func foldCase(s string) string {
	var b strings.Builder
	for _, r := range s {
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
