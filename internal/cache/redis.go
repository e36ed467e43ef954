package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/neurodx-mcp-server/internal/domain"
)

const keyPrefix = "neurodx:diagnosis:"

// cachedResult represents a cached diagnosis result with metadata
type cachedResult struct {
	Data      *domain.DiagnosisResult `json:"data"`
	CachedAt  time.Time               `json:"cached_at"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// RedisCache keeps diagnosis results in Redis. Every round trip runs through
// a circuit breaker so an unavailable Redis costs one fast failure per call
// once the breaker is open.
type RedisCache struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
	logger  *logrus.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// NewRedisCacheFromConfig connects to the Redis instance named by config.RedisURL.
func NewRedisCacheFromConfig(config domain.CacheConfig, logger *logrus.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCache(client, config.DefaultTTL, config.BreakerTrips, logger), nil
}

// NewRedisCache wraps an existing client. trips is the number of consecutive
// failures that opens the breaker; zero selects the default of 3.
func NewRedisCache(client *redis.Client, ttl time.Duration, trips uint32, logger *logrus.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if trips == 0 {
		trips = 3
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-result-cache",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trips
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &RedisCache{
		client:  client,
		breaker: breaker,
		ttl:     ttl,
		logger:  logger,
	}
}

// Get returns the cached result for key. Redis errors and open-breaker
// rejections are logged and reported as a miss.
func (r *RedisCache) Get(ctx context.Context, key string) (*domain.DiagnosisResult, bool) {
	raw, err := r.breaker.Execute(func() (interface{}, error) {
		val, err := r.client.Get(ctx, keyPrefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return val, err
	})
	if err != nil {
		r.recordError(err, "get", key)
		return nil, false
	}

	val, _ := raw.([]byte)
	if val == nil {
		r.misses.Add(1)
		return nil, false
	}

	var cached cachedResult
	if err := json.Unmarshal(val, &cached); err != nil || cached.Data == nil {
		// Remove corrupted cache entry
		r.client.Del(ctx, keyPrefix+key)
		r.misses.Add(1)
		return nil, false
	}

	if time.Now().After(cached.ExpiresAt) {
		r.client.Del(ctx, keyPrefix+key)
		r.misses.Add(1)
		return nil, false
	}

	r.hits.Add(1)
	return cached.Data, true
}

// Set stores result under key with the cache TTL.
func (r *RedisCache) Set(ctx context.Context, key string, result *domain.DiagnosisResult) {
	now := time.Now()
	payload, err := json.Marshal(cachedResult{
		Data:      result,
		CachedAt:  now,
		ExpiresAt: now.Add(r.ttl),
	})
	if err != nil {
		r.recordError(err, "marshal", key)
		return
	}

	_, err = r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Set(ctx, keyPrefix+key, payload, r.ttl).Err()
	})
	if err != nil {
		r.recordError(err, "set", key)
	}
}

// State returns the current circuit breaker state.
func (r *RedisCache) State() gobreaker.State {
	return r.breaker.State()
}

// Close closes the underlying client.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) recordError(err error, op, key string) {
	r.errors.Add(1)
	entry := r.logger.WithError(err).WithFields(logrus.Fields{
		"operation": op,
		"key":       key,
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		entry.Debug("Redis cache bypassed by circuit breaker")
		return
	}
	entry.Warn("Redis cache operation failed")
}
