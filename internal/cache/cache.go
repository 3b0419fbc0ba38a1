package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/paysentry/internal/domain"
)

// New creates a new cache based on configuration.
// For Community tier: returns LRU cache.
// For Pro tier with two-phase: returns TwoPhaseCache wrapping LRU + Redis.
// For Pro tier without two-phase: returns Redis cache.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache implements the two-phase caching strategy.
// L1: Local LRU cache for fast reads
// L2: Redis for distributed caching and persistence
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	local := NewLRUCache(cfg.LocalMaxSize)

	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	l1TTL := cfg.LocalTTL
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}

	return &TwoPhaseCache{
		local:  local,
		remote: remote,
		l1TTL:  l1TTL,
	}, nil
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, scope string, key string) ([]byte, error) {
	// Check L1 first
	val, err := c.local.Get(ctx, scope, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	// Check L2
	val, err = c.remote.Get(ctx, scope, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		// Populate L1 for future reads
		_ = c.local.Set(ctx, scope, key, val, c.l1TTL)
	}

	return val, nil
}

// Set writes to both L1 and L2.
func (c *TwoPhaseCache) Set(ctx context.Context, scope string, key string, value []byte, ttl time.Duration) error {
	// Write to L1 with shorter TTL
	l1TTL := c.l1TTL
	if ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, scope, key, value, l1TTL); err != nil {
		return err
	}

	// Write to L2 with full TTL
	return c.remote.Set(ctx, scope, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, scope string, key string) error {
	if err := c.local.Delete(ctx, scope, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, scope, key)
}

// GetRisk retrieves a classification from L1 first, then L2.
func (c *TwoPhaseCache) GetRisk(ctx context.Context, scope string, key string) (*domain.RiskResult, error) {
	return getRisk(ctx, c, scope, key)
}

// SetRisk caches a classification in both L1 and L2.
func (c *TwoPhaseCache) SetRisk(ctx context.Context, scope string, key string, result *domain.RiskResult, ttl time.Duration) error {
	return setRisk(ctx, c, scope, key, result, ttl)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}

// byteStore is the raw key/value surface every cache implementation shares.
type byteStore interface {
	Get(ctx context.Context, scope string, key string) ([]byte, error)
	Set(ctx context.Context, scope string, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, scope string, key string) error
}

const riskPrefix = "risk:"

func getRisk(ctx context.Context, store byteStore, scope, key string) (*domain.RiskResult, error) {
	data, err := store.Get(ctx, scope, riskPrefix+key)
	if err != nil || data == nil {
		return nil, err
	}

	var result domain.RiskResult
	if err := json.Unmarshal(data, &result); err != nil {
		// Undecodable entries are evicted and reported as a miss.
		if delErr := store.Delete(ctx, scope, riskPrefix+key); delErr != nil {
			return nil, fmt.Errorf("failed to evict corrupt risk entry: %w", delErr)
		}
		return nil, nil
	}
	return &result, nil
}

func setRisk(ctx context.Context, store byteStore, scope, key string, result *domain.RiskResult, ttl time.Duration) error {
	if result == nil {
		return fmt.Errorf("risk result is required")
	}
	bytes, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return store.Set(ctx, scope, riskPrefix+key, bytes, ttl)
}
