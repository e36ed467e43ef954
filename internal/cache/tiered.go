package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/neurodx-mcp-server/internal/domain"
)

// TieredCache checks memory first and Redis second, promoting Redis hits
// into memory.
type TieredCache struct {
	memory    *MemoryCache
	redis     *RedisCache
	logger    *logrus.Logger
	lastReset time.Time
}

// NewTieredCache combines a memory tier with an optional Redis tier.
func NewTieredCache(memory *MemoryCache, redis *RedisCache, logger *logrus.Logger) *TieredCache {
	return &TieredCache{
		memory:    memory,
		redis:     redis,
		logger:    logger,
		lastReset: time.Now(),
	}
}

// New builds the result cache described by config. A disabled cache yields a
// NoopCache. An unreachable Redis is logged and the cache runs memory-only.
func New(config domain.CacheConfig, logger *logrus.Logger) (domain.ResultCache, error) {
	if !config.Enabled {
		return NoopCache{}, nil
	}

	memory, err := NewMemoryCache(config.MemorySize, config.DefaultTTL)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}

	var redisTier *RedisCache
	if config.RedisURL != "" {
		redisTier, err = NewRedisCacheFromConfig(config, logger)
		if err != nil {
			logger.WithError(err).Warn("Redis result cache unavailable, continuing with memory cache only")
			redisTier = nil
		}
	}

	return NewTieredCache(memory, redisTier, logger), nil
}

// Get looks key up in each tier.
func (c *TieredCache) Get(ctx context.Context, key string) (*domain.DiagnosisResult, bool) {
	if result, ok := c.memory.Get(ctx, key); ok {
		c.logger.WithFields(logrus.Fields{"key": key, "cache_tier": "memory"}).Debug("Cache hit")
		return result, true
	}

	if c.redis == nil {
		return nil, false
	}

	result, ok := c.redis.Get(ctx, key)
	if !ok {
		return nil, false
	}
	c.logger.WithFields(logrus.Fields{"key": key, "cache_tier": "redis"}).Debug("Cache hit")

	c.memory.Set(ctx, key, result)
	return result, true
}

// Set writes key to every tier.
func (c *TieredCache) Set(ctx context.Context, key string, result *domain.DiagnosisResult) {
	c.memory.Set(ctx, key, result)
	if c.redis != nil {
		c.redis.Set(ctx, key, result)
	}
}

// Stats returns cache performance statistics
func (c *TieredCache) Stats() Stats {
	s := Stats{LastReset: c.lastReset}
	s.MemoryHits, s.MemoryMisses = c.memory.counts()
	if c.redis != nil {
		s.RedisHits = c.redis.hits.Load()
		s.RedisMisses = c.redis.misses.Load()
		s.RedisErrors = c.redis.errors.Load()
	}
	return s
}

// Close releases the Redis connection, if any.
func (c *TieredCache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}
