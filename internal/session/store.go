package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/katatrina/gundam-live/internal/token"
	"github.com/redis/go-redis/v9"
)

const defaultKey = "session:access_token"

// RedisStore caches the access token in Redis so several client processes
// on one machine share a login, and a restart does not force a new one.
type RedisStore struct {
	redis       *redis.Client
	key         string
	fallbackTTL time.Duration
}

type RedisStoreOption func(*RedisStore)

// NewRedisStore creates a store keyed by "session:access_token" unless overridden.
func NewRedisStore(redis *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		redis:       redis,
		key:         defaultKey,
		fallbackTTL: 24 * time.Hour,
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithKey sets the Redis key, e.g. "session:buyer@example.com".
func WithKey(key string) RedisStoreOption {
	return func(s *RedisStore) {
		s.key = key
	}
}

// WithFallbackTTL sets how long tokens without an exp claim are kept.
func WithFallbackTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		s.fallbackTTL = ttl
	}
}

// Save stores the token until its own expiry.
func (s *RedisStore) Save(ctx context.Context, accessToken string) error {
	ttl := s.fallbackTTL
	if expiresAt, ok := token.ExpiresAt(accessToken); ok {
		ttl = time.Until(expiresAt)
	}
	if ttl <= 0 {
		return token.ErrExpiredToken
	}

	if err := s.redis.Set(ctx, s.key, accessToken, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache access token: %w", err)
	}
	return nil
}

// Token returns the cached token, or "" when nothing is cached.
func (s *RedisStore) Token(ctx context.Context) (string, error) {
	accessToken, err := s.redis.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read access token: %w", err)
	}
	return accessToken, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.redis.Del(ctx, s.key).Err()
}
