// Package kvs defines the semantic contract over a key-value store that
// every other NovaOS component is built on (spec §2 component 1). The
// backend is substitutable; internal/kvs/redis.go is the default.
package kvs

import (
	"context"
	"time"
)

// ScoredMember is one entry of a sorted set.
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the semantic contract every gate, the scheduler, and the
// acknowledgment/rate-limit subsystems are built against. No caller ever
// holds a raw backend client.
type Store interface {
	// Get returns the value and true, or ("", false) if absent.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key with optional TTL (0 = no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX sets value only if key is absent, returning whether it was set.
	// This is the primitive scheduler leases and nonce reservation use.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Incr atomically increments key by delta and returns the new value.
	Incr(ctx context.Context, key string, delta int64) (int64, error)

	SetAdd(ctx context.Context, key string, members ...string) error
	SetRemove(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	SetCardinality(ctx context.Context, key string) (int64, error)
	SetIsMember(ctx context.Context, key, member string) (bool, error)

	ZAdd(ctx context.Context, key string, member string, score float64) error
	ZRemove(ctx context.Context, key string, member string) error
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]ScoredMember, error)

	ListPush(ctx context.Context, key string, values ...string) error
	ListPop(ctx context.Context, key string) (string, bool, error)
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Scan iterates keys matching pattern. Reserved for offline/batch paths
	// (retention sweep) — never used on a request-serving path (spec §9
	// open question 2).
	Scan(ctx context.Context, pattern string, fn func(key string) error) error

	Close() error
}

// ErrNotFound is returned by strict lookups that do not tolerate a missing
// key (most callers instead use the (value, bool, error) idiom above).
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "kvs: key not found" }
