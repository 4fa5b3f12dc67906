package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// RedisClient is the subset of *redis.Client the store uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps the record as JSON under one redis key.
type RedisStore struct {
	client RedisClient
	key    string
}

// NewRedisStore creates a redis-backed store.
func NewRedisStore(client RedisClient, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) (*Record, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil //nolint:nilnil // An empty cache is not an error
	}
	if err != nil {
		return nil, tethererr.WithCause(tethererr.ErrCacheUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil || !rec.Kind.IsValid() {
		// Drop the bad value so the next run starts clean.
		_ = s.client.Del(ctx, s.key).Err()
		return nil, tethererr.WithDetails(tethererr.ErrCacheUnavailable, map[string]string{
			"key":    s.key,
			"reason": "malformed record discarded",
		})
	}
	return &rec, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return tethererr.WithCause(tethererr.ErrCacheUnavailable, err)
	}
	return nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return tethererr.WithCause(tethererr.ErrCacheUnavailable, err)
	}
	return nil
}
