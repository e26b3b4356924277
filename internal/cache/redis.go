package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisStore implements Store on a shared Redis client.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedis wraps an existing Redis client as a cache Store.
func NewRedis(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Get fetches a key. Returns (nil, nil) on a plain miss.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cache: get %s", key)
	}
	return decodeEntry(raw), nil
}

// Set stores a payload entry with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		return eris.Wrapf(err, "cache: set %s", key)
	}
	return nil
}

// SetNotFound stores the confirmed-negative sentinel with the given TTL.
func (s *RedisStore) SetNotFound(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, sentinelBytes, ttl).Err(); err != nil {
		return eris.Wrapf(err, "cache: set sentinel %s", key)
	}
	return nil
}
