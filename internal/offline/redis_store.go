package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each cache in a Redis hash (field = request URL, value =
// JSON snapshot) and tracks cache names in a set, so several edge replicas can
// share one cache.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a store using prefix for every key it writes.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "offline:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) namesKey() string { return s.prefix + "caches" }

func (s *RedisStore) cacheKey(cache string) string { return s.prefix + "cache:" + cache }

func (s *RedisStore) Get(ctx context.Context, cache, key string) (Entry, bool, error) {
	if s == nil || s.client == nil {
		return Entry{}, false, nil
	}
	data, err := s.client.HGet(ctx, s.cacheKey(cache), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("redis get %s: %w", cache, err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode entry: %w", err)
	}
	return e, true, nil
}

func (s *RedisStore) Put(ctx context.Context, cache, key string, e Entry) error {
	if s == nil || s.client == nil {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.namesKey(), cache)
	pipe.HSet(ctx, s.cacheKey(cache), key, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put %s: %w", cache, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, cache, key string) (bool, error) {
	if s == nil || s.client == nil {
		return false, nil
	}
	n, err := s.client.HDel(ctx, s.cacheKey(cache), key).Result()
	if err != nil {
		return false, fmt.Errorf("redis delete %s: %w", cache, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Names(ctx context.Context) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	names, err := s.client.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis cache names: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStore) Drop(ctx context.Context, cache string) error {
	if s == nil || s.client == nil {
		return nil
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.cacheKey(cache))
	pipe.SRem(ctx, s.namesKey(), cache)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis drop %s: %w", cache, err)
	}
	return nil
}
