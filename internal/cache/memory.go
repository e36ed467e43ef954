// Package cache stores diagnosis results keyed by finding-set signature.
//
// Tier 1 is an in-process LRU, tier 2 an optional Redis instance guarded by a
// circuit breaker. Cache failures never surface to callers; a failing tier
// reports a miss.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/neurodx-mcp-server/internal/domain"
)

// Stats represents cache performance statistics
type Stats struct {
	MemoryHits   int64     `json:"memory_hits"`
	MemoryMisses int64     `json:"memory_misses"`
	RedisHits    int64     `json:"redis_hits"`
	RedisMisses  int64     `json:"redis_misses"`
	RedisErrors  int64     `json:"redis_errors"`
	LastReset    time.Time `json:"last_reset"`
}

type memoryEntry struct {
	result *domain.DiagnosisResult
	expiry time.Time
}

func (e *memoryEntry) isExpired(now time.Time) bool {
	return now.After(e.expiry)
}

// MemoryCache is a size-bounded LRU with per-entry expiry.
type MemoryCache struct {
	lru *lru.Cache[string, *memoryEntry]
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	hits   int64
	misses int64
}

// NewMemoryCache creates an LRU holding at most size results for ttl each.
func NewMemoryCache(size int, ttl time.Duration) (*MemoryCache, error) {
	if size <= 0 {
		size = 1000
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	l, err := lru.New[string, *memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryCache{lru: l, ttl: ttl, now: time.Now}, nil
}

// Get returns a copy of the cached result for key.
func (m *MemoryCache) Get(_ context.Context, key string) (*domain.DiagnosisResult, bool) {
	entry, ok := m.lru.Get(key)
	if ok && entry.isExpired(m.now()) {
		m.lru.Remove(key)
		ok = false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !ok {
		m.misses++
		return nil, false
	}
	m.hits++
	return entry.result.Clone(), true
}

// Set stores a copy of result under key.
func (m *MemoryCache) Set(_ context.Context, key string, result *domain.DiagnosisResult) {
	m.lru.Add(key, &memoryEntry{result: result.Clone(), expiry: m.now().Add(m.ttl)})
}

// Len returns the number of entries, including ones not yet evicted after expiry.
func (m *MemoryCache) Len() int {
	return m.lru.Len()
}

func (m *MemoryCache) counts() (hits, misses int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}

// NoopCache never stores anything.
type NoopCache struct{}

// Get always misses.
func (NoopCache) Get(context.Context, string) (*domain.DiagnosisResult, bool) { return nil, false }

// Set discards the result.
func (NoopCache) Set(context.Context, string, *domain.DiagnosisResult) {}
