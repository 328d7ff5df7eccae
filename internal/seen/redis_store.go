// Package seen tracks item identifiers that were already delivered inside the
// current processing window, so the ingestion queue can guarantee at-most-once
// delivery per identifier even across restarts.
package seen

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements the delivery window on Redis TTL keys.
type RedisStore struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string, window time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: "delivered:", window: window}, nil
}

// NewRedisStoreWithClient wraps an existing client, mainly for tests.
func NewRedisStoreWithClient(client *redis.Client, window time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "delivered:", window: window}
}

func (s *RedisStore) key(itemID string) string {
	return s.prefix + itemID
}

// Mark records an identifier as delivered for the length of the window.
func (s *RedisStore) Mark(ctx context.Context, itemID string) error {
	window := s.window
	if window <= 0 {
		window = time.Hour
	}
	if err := s.client.Set(ctx, s.key(itemID), time.Now().UTC().Format(time.RFC3339), window).Err(); err != nil {
		return fmt.Errorf("mark delivered %s: %w", itemID, err)
	}
	return nil
}

// Seen reports whether an identifier was delivered within the window.
func (s *RedisStore) Seen(ctx context.Context, itemID string) (bool, error) {
	_, err := s.client.Get(ctx, s.key(itemID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup delivered %s: %w", itemID, err)
	}
	return true, nil
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
