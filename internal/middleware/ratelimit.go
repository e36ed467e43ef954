package middleware

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/neurodx-mcp-server/internal/domain"
)

// maxTrackedClients bounds the per-client limiter table.
const maxTrackedClients = 10000

// RateLimiter hands out one token bucket per client IP. Least recently seen
// clients are evicted once the table is full.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

// NewRateLimiter creates a limiter allowing requestsPerSecond with burst.
func NewRateLimiter(config domain.RateLimitConfig) (*RateLimiter, error) {
	if config.RequestsPerSecond <= 0 || config.Burst <= 0 {
		return nil, fmt.Errorf("rate limit requires positive rate and burst")
	}
	limiters, err := lru.New[string, *rate.Limiter](maxTrackedClients)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{
		limit:    rate.Limit(config.RequestsPerSecond),
		burst:    config.Burst,
		limiters: limiters,
	}, nil
}

// Allow reports whether client may make a request now.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	limiter, ok := rl.limiters.Get(client)
	if !ok {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters.Add(client, limiter)
	}
	rl.mu.Unlock()

	return limiter.Allow()
}

// Middleware rejects requests over the client's budget with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			AbortWithError(c, http.StatusTooManyRequests, domain.ErrRateLimit, "Rate limit exceeded", "")
			return
		}
		c.Next()
	}
}
