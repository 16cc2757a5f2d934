package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/novaos/novaos/internal/kvs"
)

func newStore(t *testing.T) kvs.Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return kvs.NewRedisStoreFromClient(client, "rltest:")
}

func TestLimiterAllowsUpToMaxTokens(t *testing.T) {
	store := newStore(t)
	l := NewLimiter(store, Rule{MaxTokens: 3, RefillRate: 0, Window: time.Minute})
	ctx := context.Background()
	key := Key{Scope: "api", Identity: "user-1"}

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, key)
		if err != nil || !res.Allowed {
			t.Fatalf("request %d should be allowed: res=%+v err=%v", i, res, err)
		}
	}
	res, err := l.Check(ctx, key)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Allowed {
		t.Fatal("4th request should be denied")
	}
}

func TestLimiterRefillsOverTime(t *testing.T) {
	store := newStore(t)
	l := NewLimiter(store, Rule{MaxTokens: 1, RefillRate: 100, Window: time.Minute})
	fakeNow := time.Now()
	l.now = func() time.Time { return fakeNow }

	ctx := context.Background()
	key := Key{Scope: "api", Identity: "user-2"}

	res, err := l.Check(ctx, key)
	if err != nil || !res.Allowed {
		t.Fatalf("first request should be allowed: %+v err=%v", res, err)
	}
	res, err = l.Check(ctx, key)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Allowed {
		t.Fatal("immediate second request should be denied")
	}

	fakeNow = fakeNow.Add(50 * time.Millisecond)
	res, err = l.Check(ctx, key)
	if err != nil || !res.Allowed {
		t.Fatalf("request after refill window should be allowed: %+v err=%v", res, err)
	}
}

func TestLimiterKeysAreIsolatedByScope(t *testing.T) {
	store := newStore(t)
	l := NewLimiter(store, Rule{MaxTokens: 1, RefillRate: 0, Window: time.Minute})
	ctx := context.Background()

	res, err := l.Check(ctx, Key{Scope: "ssrf", Identity: "user-3"})
	if err != nil || !res.Allowed {
		t.Fatalf("ssrf scope first check: %+v err=%v", res, err)
	}
	res, err = l.Check(ctx, Key{Scope: "api", Identity: "user-3"})
	if err != nil || !res.Allowed {
		t.Fatalf("distinct scope should have its own bucket: %+v err=%v", res, err)
	}
}
