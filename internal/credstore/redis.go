package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	refreshTokenPrefix = "cbl:refresh_token:"

	fieldToken     = "token"
	fieldUpdatedAt = "updated_at"
)

// RedisStore keeps the refresh token in a Redis hash keyed by device.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store for the device identified by deviceKey,
// typically the client ID and serial number.
func NewRedisStore(client *redis.Client, deviceKey string) *RedisStore {
	return &RedisStore{client: client, key: refreshTokenPrefix + deviceKey}
}

// Key returns the Redis key holding the token.
func (s *RedisStore) Key() string { return s.key }

// CheckHealth verifies Redis connectivity
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (s *RedisStore) RefreshToken(ctx context.Context) (string, error) {
	token, err := s.client.HGet(ctx, s.key, fieldToken).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("getting refresh token: %w", err)
	}
	return token, nil
}

func (s *RedisStore) SetRefreshToken(ctx context.Context, token string) error {
	// Replace both fields atomically
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	pipe.HSet(ctx, s.key, fieldToken, token, fieldUpdatedAt, time.Now().UTC().Format(time.RFC3339))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving refresh token: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearRefreshToken(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	return nil
}
