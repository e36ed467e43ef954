package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurodx-mcp-server/internal/domain"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func sampleResult() *domain.DiagnosisResult {
	return &domain.DiagnosisResult{
		Diseases: []domain.RankedDisease{{
			Disease: domain.Disease{
				ID:         "myasthenia_gravis",
				Name:       "Myasthenia gravis",
				ICD10:      "G70.00",
				LesionSite: []string{"neuromuscular junction"},
				RedFlags:   []string{"respiratory weakness"},
				Evidence: []domain.Evidence{{
					FindingID:       "fatigable_weakness",
					LikelihoodRatio: domain.LikelihoodRatio{Positive: 12.5, Negative: 0.15},
				}},
			},
			PosteriorProbability: 0.125 / 1.115,
		}},
		LesionSite: []string{"neuromuscular junction"},
		RedFlags:   []string{"respiratory weakness"},
		Patterns:   []string{},
		Confidence: 0.125 / 1.115,
	}
}

func newMiniRedisCache(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisCache(client, time.Minute, 2, newTestLogger())
}

func TestMemoryCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", sampleResult())
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, sampleResult(), got)

	hits, misses := c.counts()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)

	stored := sampleResult()
	c.Set(ctx, "k", stored)
	stored.LesionSite[0] = "mutated"

	got, _ := c.Get(ctx, "k")
	got.Diseases[0].Evidence[0].Positive = 1

	again, _ := c.Get(ctx, "k")
	assert.Equal(t, "neuromuscular junction", again.LesionSite[0])
	assert.Equal(t, 12.5, again.Diseases[0].Evidence[0].Positive)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set(ctx, "k", sampleResult())

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryCache(2, time.Minute)
	require.NoError(t, err)

	c.Set(ctx, "a", sampleResult())
	c.Set(ctx, "b", sampleResult())
	c.Set(ctx, "c", sampleResult())

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, c := newMiniRedisCache(t)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", sampleResult())
	assert.True(t, mr.Exists(keyPrefix+"k"))

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, sampleResult(), got)
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	mr, c := newMiniRedisCache(t)

	require.NoError(t, mr.Set(keyPrefix+"k", "{not json"))

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.False(t, mr.Exists(keyPrefix+"k"))
}

func TestRedisCache_TTL(t *testing.T) {
	ctx := context.Background()
	mr, c := newMiniRedisCache(t)

	c.Set(ctx, "k", sampleResult())
	mr.FastForward(2 * time.Minute)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisCache_OutageOpensBreaker(t *testing.T) {
	ctx := context.Background()
	mr, c := newMiniRedisCache(t)

	c.Set(ctx, "k", sampleResult())
	mr.Close()

	for i := 0; i < 3; i++ {
		_, ok := c.Get(ctx, "k")
		assert.False(t, ok)
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())
	assert.GreaterOrEqual(t, c.errors.Load(), int64(3))

	// Writes while open are dropped without panicking.
	c.Set(ctx, "k", sampleResult())
}

func TestTieredCache_PromotesRedisHits(t *testing.T) {
	ctx := context.Background()
	_, redisTier := newMiniRedisCache(t)
	memory, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)

	redisTier.Set(ctx, "k", sampleResult())

	c := NewTieredCache(memory, redisTier, newTestLogger())
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "myasthenia_gravis", got.Diseases[0].ID)

	_, inMemory := memory.Get(ctx, "k")
	assert.True(t, inMemory)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.RedisHits)
	assert.Equal(t, int64(1), stats.MemoryHits)
}

func TestTieredCache_MemoryOnly(t *testing.T) {
	ctx := context.Background()
	memory, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)

	c := NewTieredCache(memory, nil, newTestLogger())
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", sampleResult())
	_, ok = c.Get(ctx, "k")
	assert.True(t, ok)
	assert.NoError(t, c.Close())
}

func TestNew(t *testing.T) {
	logger := newTestLogger()

	disabled, err := New(domain.CacheConfig{Enabled: false}, logger)
	require.NoError(t, err)
	assert.IsType(t, NoopCache{}, disabled)

	// An unreachable Redis degrades to memory only.
	c, err := New(domain.CacheConfig{
		Enabled:    true,
		MemorySize: 5,
		DefaultTTL: time.Minute,
		RedisURL:   "redis://127.0.0.1:1/0",
	}, logger)
	require.NoError(t, err)
	tiered, ok := c.(*TieredCache)
	require.True(t, ok)
	assert.Nil(t, tiered.redis)

	_, err = New(domain.CacheConfig{Enabled: true, RedisURL: "://bad"}, logger)
	assert.NoError(t, err)

	mr := miniredis.RunT(t)
	c, err = New(domain.CacheConfig{Enabled: true, RedisURL: "redis://" + mr.Addr()}, logger)
	require.NoError(t, err)
	tiered = c.(*TieredCache)
	assert.NotNil(t, tiered.redis)
	assert.NoError(t, tiered.Close())
}
