package kvs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreFromClient(client, "test:")
}

func TestRedisStoreGetSetTTL(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "k1", "v1", 50*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get(ctx, "k1")
	if err != nil || !ok || v != "v1" {
		t.Fatalf("get after set: v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestRedisStoreSetNXIsSingleUse(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.SetNX(ctx, "lease", "worker-a", time.Minute)
	if err != nil || !first {
		t.Fatalf("expected first SetNX to succeed: %v err=%v", first, err)
	}
	second, err := s.SetNX(ctx, "lease", "worker-b", time.Minute)
	if err != nil || second {
		t.Fatalf("expected second SetNX to fail (lease held): %v err=%v", second, err)
	}
}

func TestRedisStoreCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v, err := s.Incr(ctx, "counter", 1)
	if err != nil || v != 1 {
		t.Fatalf("incr: v=%d err=%v", v, err)
	}
	v, err = s.Incr(ctx, "counter", 4)
	if err != nil || v != 5 {
		t.Fatalf("incr: v=%d err=%v", v, err)
	}
}

func TestRedisStoreSets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.SetAdd(ctx, "set1", "a", "b", "c"); err != nil {
		t.Fatalf("sadd: %v", err)
	}
	card, err := s.SetCardinality(ctx, "set1")
	if err != nil || card != 3 {
		t.Fatalf("scard: %d err=%v", card, err)
	}
	if err := s.SetRemove(ctx, "set1", "b"); err != nil {
		t.Fatalf("srem: %v", err)
	}
	isMember, err := s.SetIsMember(ctx, "set1", "b")
	if err != nil || isMember {
		t.Fatalf("expected b removed: isMember=%v err=%v", isMember, err)
	}
}

func TestRedisStoreSortedSetRangeByScore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_ = s.ZAdd(ctx, "zs", "low", 1)
	_ = s.ZAdd(ctx, "zs", "mid", 5)
	_ = s.ZAdd(ctx, "zs", "high", 10)

	res, err := s.ZRangeByScore(ctx, "zs", 4, 10)
	if err != nil {
		t.Fatalf("zrangebyscore: %v", err)
	}
	if len(res) != 2 || res[0].Member != "mid" || res[1].Member != "high" {
		t.Fatalf("unexpected range result: %+v", res)
	}
}

func TestRedisStoreLists(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.ListPush(ctx, "queue", "a", "b"); err != nil {
		t.Fatalf("lpush: %v", err)
	}
	v, ok, err := s.ListPop(ctx, "queue")
	if err != nil || !ok || v != "a" {
		t.Fatalf("lpop: v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestRedisStoreScanStripsPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_ = s.Set(ctx, "sword:goal:1", "x", 0)
	_ = s.Set(ctx, "sword:goal:2", "y", 0)
	_ = s.Set(ctx, "sword:quest:1", "z", 0)

	var found []string
	err := s.Scan(ctx, "sword:goal:*", func(key string) error {
		found = append(found, key)
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 keys, got %v", found)
	}
}
