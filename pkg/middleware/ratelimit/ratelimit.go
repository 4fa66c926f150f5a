// Package ratelimit throttles requests per client key with token buckets.
package ratelimit

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config defines the limit applied to each key.
type Config struct {
	RequestsPerMinute int
	Burst             int
}

// KeyFunc extracts the bucket key for a request.
type KeyFunc func(*gin.Context) string

// ClientIP keys buckets by gin's resolved client address.
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// Limiter holds one token bucket per key.
type Limiter struct {
	limit       rate.Limit
	burst       int
	idleAfter   time.Duration
	limiters    sync.Map
	mu          sync.Mutex
	lastCleanup time.Time
	now         func() time.Time
}

// New builds a limiter. Non-positive values disable limiting.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		return &Limiter{limit: rate.Inf, now: time.Now}
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	return &Limiter{
		limit:       rate.Limit(float64(cfg.RequestsPerMinute) / time.Minute.Seconds()),
		burst:       burst,
		idleAfter:   5 * time.Minute,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow reports whether a request for key may proceed, and if not how long
// until it would.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l.limit == rate.Inf {
		return true, 0
	}
	limiter := l.get(key)
	if limiter.Allow() {
		return true, 0
	}
	reservation := limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	return false, delay
}

func (l *Limiter) get(key string) *rate.Limiter {
	if existing, ok := l.limiters.Load(key); ok {
		return existing.(*rate.Limiter)
	}
	actual, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.limit, l.burst))
	l.cleanup()
	return actual.(*rate.Limiter)
}

// cleanup drops buckets that have refilled completely, i.e. idle clients.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.now().Sub(l.lastCleanup) < l.idleAfter {
		return
	}
	l.lastCleanup = l.now()
	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}

// Middleware rejects requests over the limit with 429 and Retry-After.
func Middleware(l *Limiter, key KeyFunc, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			c.Next()
			return
		}
		allowed, delay := l.Allow(k)
		if allowed {
			c.Next()
			return
		}

		retryAfter := int(delay.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		logger.Warn("rate limit exceeded", zap.String("key", k), zap.String("path", c.Request.URL.Path), zap.Int("retry_after", retryAfter))
		c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"message": "too many requests, please try again later",
		})
	}
}
