// Package cache adapts the service's Redis client to the application
// layer's CacheService port.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/originsignal/ingestion/internal/ingestion/application/ports"
	"github.com/originsignal/ingestion/pkg/database"
)

// RedisCache implements ports.CacheService on top of the shared Redis
// client, operating on raw bytes so callers own their own serialization
// (the token cache-aside in C1 stores a JSON-encoded domain.IngestionToken).
type RedisCache struct {
	client *database.RedisClient
}

// NewRedisCache creates a new RedisCache.
func NewRedisCache(client *database.RedisClient) *RedisCache {
	return &RedisCache{client: client}
}

var _ ports.CacheService = (*RedisCache)(nil)

// Get retrieves a value from cache. It returns nil, nil on a cache miss so
// callers can fall through to the source of truth without special-casing
// an error type.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Client().Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache key %q: %w", key, err)
	}
	return data, nil
}

// Set stores a value in cache with expiration.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	if err := c.client.Client().Set(ctx, key, value, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set cache key %q: %w", key, err)
	}
	return nil
}

// Delete removes a value from cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Client().Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key %q: %w", key, err)
	}
	return nil
}

// Exists checks if a key exists in cache.
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Client().Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cache key %q: %w", key, err)
	}
	return n > 0, nil
}
