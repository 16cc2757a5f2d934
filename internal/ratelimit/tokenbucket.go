// Package ratelimit implements the token-bucket rate limiter (spec §2
// component 8, §4.8): non-atomic check-and-consume over the KVS, generalized
// from the teacher's internal/auth/ratelimit.go (Redis INCR + EXPIRE login
// limiter) to an arbitrary composite key and a continuous refill rate.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/novaos/novaos/internal/kvs"
)

// Key composes the rate-limit identity from context, per spec §4.8
// ("user id or ip or both, with optional path").
type Key struct {
	Scope    string // e.g. "api", "ssrf", "goal_creation", "spark_generation"
	Identity string // userId, ip, or "userId|ip"
	Path     string // optional
}

func (k Key) String() string {
	parts := []string{k.Scope, k.Identity}
	if k.Path != "" {
		parts = append(parts, k.Path)
	}
	return strings.Join(parts, ":")
}

// Rule parameterizes one bucket: maxTokens, continuous refillRate
// (tokens/sec), and the window used for the timestamp key's TTL.
type Rule struct {
	MaxTokens  int
	RefillRate float64
	Window     time.Duration
}

// Result is returned by Check (spec §4.8).
type Result struct {
	Allowed      bool
	Remaining    int
	Limit        int
	ResetMs      int64
	RetryAfterMs int64
}

// Limiter performs check-and-consume over the KVS: it reads the bucket's
// last-refill timestamp and token count, computes the refill owed, then
// writes back with plain Get/Set calls. No CAS or script guards the update
// on any backend, so single-key read-modify-write races are possible under
// concurrent callers for the same key; acceptable here since "rl:" buckets
// are per-user/per-ip and the worst case is an extra token or two of slop,
// not an unbounded bypass.
type Limiter struct {
	store       kvs.Store
	defaultRule Rule
	now         func() time.Time
}

func NewLimiter(store kvs.Store, defaultRule Rule) *Limiter {
	return &Limiter{store: store, defaultRule: defaultRule, now: time.Now}
}

// Check performs one check-and-consume against the bucket for key with
// the limiter's default rule (not atomic; see Limiter).
func (l *Limiter) Check(ctx context.Context, key Key) (*Result, error) {
	return l.CheckWithRule(ctx, key, l.defaultRule)
}

// CheckWithRule allows per-call overrides (spec §4.8's per-endpoint rules:
// api/ssrf/goalCreation/sparkGeneration).
func (l *Limiter) CheckWithRule(ctx context.Context, key Key, rule Rule) (*Result, error) {
	bucketKey := "rl:" + key.String()
	tsKey := bucketKey + ":ts"

	now := l.now()

	rawTokens, found, err := l.store.Get(ctx, bucketKey)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: reading bucket: %w", err)
	}
	rawTS, _, err := l.store.Get(ctx, tsKey)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: reading timestamp: %w", err)
	}

	tokens := float64(rule.MaxTokens)
	lastRefill := now
	if found {
		if parsed, perr := strconv.ParseFloat(rawTokens, 64); perr == nil {
			tokens = parsed
		}
		if rawTS != "" {
			if ms, perr := strconv.ParseInt(rawTS, 10, 64); perr == nil {
				lastRefill = time.UnixMilli(ms)
			}
		}
	}

	elapsed := now.Sub(lastRefill).Seconds()
	if elapsed > 0 {
		tokens = math.Min(float64(rule.MaxTokens), tokens+elapsed*rule.RefillRate)
	}

	result := &Result{Limit: rule.MaxTokens}

	if tokens < 1 {
		deficit := 1 - tokens
		retryAfter := time.Duration(deficit/rule.RefillRate*1000) * time.Millisecond
		result.Allowed = false
		result.Remaining = 0
		result.RetryAfterMs = retryAfter.Milliseconds()
		result.ResetMs = retryAfter.Milliseconds()
		// Persist the refilled-but-still-insufficient state so the next
		// caller doesn't recompute from a stale snapshot.
		if err := l.persist(ctx, bucketKey, tsKey, tokens, now, rule.Window); err != nil {
			return nil, err
		}
		return result, nil
	}

	tokens -= 1
	result.Allowed = true
	result.Remaining = int(math.Floor(tokens))

	if err := l.persist(ctx, bucketKey, tsKey, tokens, now, rule.Window); err != nil {
		return nil, err
	}
	return result, nil
}

func (l *Limiter) persist(ctx context.Context, bucketKey, tsKey string, tokens float64, now time.Time, window time.Duration) error {
	if err := l.store.Set(ctx, bucketKey, strconv.FormatFloat(tokens, 'f', 6, 64), window); err != nil {
		return fmt.Errorf("ratelimit: writing bucket: %w", err)
	}
	if err := l.store.Set(ctx, tsKey, strconv.FormatInt(now.UnixMilli(), 10), window); err != nil {
		return fmt.Errorf("ratelimit: writing timestamp: %w", err)
	}
	return nil
}
