package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL drops the limiter of a key not seen for this long
	IdleTTL time.Duration
}

// DefaultRateLimiterConfig allows one trigger per second per key with a small burst
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 1,
		BurstSize:         3,
		IdleTTL:           10 * time.Minute,
	}
}

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter keeps one token bucket per key (client IP, job type)
type KeyedRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyedLimiter
	config   RateLimiterConfig
	now      func() time.Time
}

// NewKeyedRateLimiter creates a limiter set
func NewKeyedRateLimiter(config RateLimiterConfig) *KeyedRateLimiter {
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultRateLimiterConfig().IdleTTL
	}
	return &KeyedRateLimiter{
		limiters: make(map[string]*keyedLimiter),
		config:   config,
		now:      time.Now,
	}
}

// Allow reports whether one more request for key may proceed now
func (rl *KeyedRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	l, ok := rl.limiters[key]
	if !ok {
		l = &keyedLimiter{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)}
		rl.limiters[key] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

// Cleanup removes limiters idle for longer than IdleTTL and returns how many were dropped
func (rl *KeyedRateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.config.IdleTTL)
	dropped := 0
	for key, l := range rl.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			dropped++
		}
	}
	return dropped
}

// Run cleans up idle limiters every interval until ctx is done
func (rl *KeyedRateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// KeyFunc derives the rate limit key of a request
type KeyFunc func(c *gin.Context) string

// ClientIP keys by the caller address
func ClientIP(c *gin.Context) string { return c.ClientIP() }

// PathParam keys by a route parameter, such as the job type
func PathParam(name string) KeyFunc {
	return func(c *gin.Context) string { return c.Param(name) }
}

// RateLimit rejects requests over the per-key budget with 429
func RateLimit(limiter *KeyedRateLimiter, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(key(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
