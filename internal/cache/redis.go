package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/paysentry/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache using Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, scope string, key string) ([]byte, error) {
	if scope == "" {
		return nil, fmt.Errorf("scope is required")
	}

	fullKey := c.makeKey(scope, key)
	val, err := c.client.Get(ctx, fullKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, scope string, key string, value []byte, ttl time.Duration) error {
	if scope == "" {
		return fmt.Errorf("scope is required")
	}

	fullKey := c.makeKey(scope, key)
	return c.client.Set(ctx, fullKey, value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, scope string, key string) error {
	if scope == "" {
		return fmt.Errorf("scope is required")
	}

	fullKey := c.makeKey(scope, key)
	return c.client.Del(ctx, fullKey).Err()
}

// GetRisk retrieves a cached classification.
func (c *RedisCache) GetRisk(ctx context.Context, scope string, key string) (*domain.RiskResult, error) {
	return getRisk(ctx, c, scope, key)
}

// SetRisk caches a classification.
func (c *RedisCache) SetRisk(ctx context.Context, scope string, key string, result *domain.RiskResult, ttl time.Duration) error {
	return setRisk(ctx, c, scope, key, result, ttl)
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) makeKey(scope, key string) string {
	return "paysentry:" + scope + ":" + key
}
