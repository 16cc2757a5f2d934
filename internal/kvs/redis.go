package kvs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/novaos/novaos/internal/config"
)

// RedisStore is the default Store backend, grounded on the teacher's
// internal/platform/redis.go connection pattern.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis per cfg and verifies reachability with a
// Ping, exactly as the teacher's NewRedisClient does.
func NewRedisStore(ctx context.Context, cfg config.KVSConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &RedisStore{client: client, prefix: cfg.KeyPrefix}, nil
}

// NewRedisStoreFromClient wraps an already-constructed client — used by
// tests against miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) k(key string) string { return s.prefix + key }

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.k(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kvs get %q: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.k(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("kvs set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.k(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("kvs setnx %q: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.k(key)).Err(); err != nil {
		return fmt.Errorf("kvs del %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.k(key)).Result()
	if err != nil {
		return false, fmt.Errorf("kvs exists %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, s.k(key), ttl).Err(); err != nil {
		return fmt.Errorf("kvs expire %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := s.client.IncrBy(ctx, s.k(key), delta).Result()
	if err != nil {
		return 0, fmt.Errorf("kvs incrby %q: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) SetAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SAdd(ctx, s.k(key), args...).Err(); err != nil {
		return fmt.Errorf("kvs sadd %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetRemove(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SRem(ctx, s.k(key), args...).Err(); err != nil {
		return fmt.Errorf("kvs srem %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	v, err := s.client.SMembers(ctx, s.k(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("kvs smembers %q: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) SetCardinality(ctx context.Context, key string) (int64, error) {
	v, err := s.client.SCard(ctx, s.k(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("kvs scard %q: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) SetIsMember(ctx context.Context, key, member string) (bool, error) {
	v, err := s.client.SIsMember(ctx, s.k(key), member).Result()
	if err != nil {
		return false, fmt.Errorf("kvs sismember %q: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, member string, score float64) error {
	if err := s.client.ZAdd(ctx, s.k(key), redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("kvs zadd %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ZRemove(ctx context.Context, key string, member string) error {
	if err := s.client.ZRem(ctx, s.k(key), member).Err(); err != nil {
		return fmt.Errorf("kvs zrem %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]ScoredMember, error) {
	res, err := s.client.ZRangeByScoreWithScores(ctx, s.k(key), &redis.ZRangeBy{
		Min: fmt.Sprintf("%f", min),
		Max: fmt.Sprintf("%f", max),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("kvs zrangebyscore %q: %w", key, err)
	}
	out := make([]ScoredMember, 0, len(res))
	for _, z := range res {
		member, _ := z.Member.(string)
		out = append(out, ScoredMember{Member: member, Score: z.Score})
	}
	return out, nil
}

func (s *RedisStore) ListPush(ctx context.Context, key string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	if err := s.client.RPush(ctx, s.k(key), args...).Err(); err != nil {
		return fmt.Errorf("kvs rpush %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ListPop(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.LPop(ctx, s.k(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kvs lpop %q: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := s.client.LRange(ctx, s.k(key), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("kvs lrange %q: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	iter := s.client.Scan(ctx, 0, s.k(pattern), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if len(key) >= len(s.prefix) {
			key = key[len(s.prefix):]
		}
		if err := fn(key); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("kvs scan %q: %w", pattern, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
