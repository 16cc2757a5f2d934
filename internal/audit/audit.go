package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/novaos/novaos/internal/crypto"
	"github.com/novaos/novaos/internal/kvs"
)

// ResponseAudit is the per-request record written at pipeline end (spec
// §4.11 step 4).
type ResponseAudit struct {
	RequestID         string    `json:"requestId"`
	InputHash         string    `json:"inputHash"`
	OutputHash        string    `json:"outputHash"`
	PatternsMatched   []string  `json:"patternsMatched"`
	GatesExecuted     []string  `json:"gatesExecuted"`
	Stance            string    `json:"stance"`
	Model             string    `json:"model"`
	InterventionLevel string    `json:"interventionLevel"`
	RegenerationCount int       `json:"regenerationCount"`
	StoppedAt         string    `json:"stoppedAt,omitempty"`
	StoppedReason     string    `json:"stoppedReason,omitempty"`
	Violations        []string  `json:"violations,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Snapshot is the encrypted companion record (spec §4.11 step 3):
// redacted text plus the constraint level active when it was generated.
type Snapshot struct {
	InputRedacted  string    `json:"inputRedacted"`
	OutputRedacted string    `json:"outputRedacted"`
	Constraints    string    `json:"constraints"`
	Timestamp      time.Time `json:"timestamp"`
}

// Logger assembles and persists ResponseAudit records plus their encrypted
// snapshots. Grounded on the teacher's audit-middleware hash-then-store
// sequence, adapted to NovaOS's gate-trace vocabulary.
type Logger struct {
	kv     kvs.Store
	crypto *crypto.Service
}

func NewLogger(kv kvs.Store, cryptoSvc *crypto.Service) *Logger {
	return &Logger{kv: kv, crypto: cryptoSvc}
}

func responseKey(requestID string) string { return fmt.Sprintf("audit:response:%s", requestID) }
func snapshotKey(requestID string) string { return fmt.Sprintf("audit:snapshot:%s", requestID) }

// Record input mirrors the fields the orchestrator's Outcome produces;
// kept here rather than importing internal/gate to avoid a dependency
// cycle (gate will depend on audit for logging, not the reverse).
type Record struct {
	RequestID         string
	UserMessage       string
	ResponseText      string
	Constraints       string
	GatesExecuted     []string
	Stance            string
	Model             string
	InterventionLevel string
	RegenerationCount int
	StoppedAt         string
	StoppedReason     string
	Violations        []string
}

// Write runs the full spec §4.11 sequence: hash, redact, envelope-encrypt
// the snapshot, then persist both records keyed by requestId.
func (l *Logger) Write(ctx context.Context, r Record) error {
	inputHash := hashHex(r.UserMessage)
	outputHash := hashHex(r.ResponseText)

	redactedInput, inputPatterns := Redact(r.UserMessage)
	redactedOutput, outputPatterns := Redact(r.ResponseText)
	patterns := mergePatternNames(inputPatterns, outputPatterns)

	snap := Snapshot{
		InputRedacted:  redactedInput,
		OutputRedacted: redactedOutput,
		Constraints:    r.Constraints,
		Timestamp:      time.Now(),
	}
	env, err := l.crypto.EncryptJSON(snap)
	if err != nil {
		return fmt.Errorf("audit: encrypting snapshot: %w", err)
	}
	envRaw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("audit: marshaling envelope: %w", err)
	}
	if err := l.kv.Set(ctx, snapshotKey(r.RequestID), string(envRaw), 0); err != nil {
		return fmt.Errorf("audit: storing snapshot: %w", err)
	}

	record := ResponseAudit{
		RequestID:         r.RequestID,
		InputHash:         inputHash,
		OutputHash:        outputHash,
		PatternsMatched:   patterns,
		GatesExecuted:     r.GatesExecuted,
		Stance:            r.Stance,
		Model:             r.Model,
		InterventionLevel: r.InterventionLevel,
		RegenerationCount: r.RegenerationCount,
		StoppedAt:         r.StoppedAt,
		StoppedReason:     r.StoppedReason,
		Violations:        r.Violations,
		Timestamp:         time.Now(),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("audit: marshaling record: %w", err)
	}
	if err := l.kv.Set(ctx, responseKey(r.RequestID), string(raw), 0); err != nil {
		return fmt.Errorf("audit: storing record: %w", err)
	}
	return nil
}

func (l *Logger) Get(ctx context.Context, requestID string) (ResponseAudit, bool, error) {
	raw, ok, err := l.kv.Get(ctx, responseKey(requestID))
	if err != nil || !ok {
		return ResponseAudit{}, ok, err
	}
	var rec ResponseAudit
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return ResponseAudit{}, false, fmt.Errorf("audit: unmarshal record: %w", err)
	}
	return rec, true, nil
}

// GetSnapshot decrypts and returns the redacted snapshot for a request.
func (l *Logger) GetSnapshot(ctx context.Context, requestID string) (Snapshot, bool, error) {
	raw, ok, err := l.kv.Get(ctx, snapshotKey(requestID))
	if err != nil || !ok {
		return Snapshot{}, ok, err
	}
	var env crypto.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Snapshot{}, false, fmt.Errorf("audit: unmarshal envelope: %w", err)
	}
	var snap Snapshot
	if err := l.crypto.DecryptJSON(&env, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("audit: decrypting snapshot: %w", err)
	}
	return snap, true, nil
}

// hashHex computes a full, never-truncated 64-hex-char SHA-256 digest
// (spec §4.11 step 1, §8 testable property 8).
func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func mergePatternNames(a, b []PatternName) []string {
	seen := make(map[PatternName]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, p := range append(append([]PatternName{}, a...), b...) {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, string(p))
	}
	return out
}
