package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL      = 10 * time.Minute
	limiterSweepEvery   = 1024
	retryAfterSeconds   = "1"
	rateLimitedErrorKey = "rate_limited"
)

// rateLimiter throttles each client address with its own token bucket.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
	requests int
	now      func() time.Time
	logger   *zap.Logger
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(requestsPerSecond float64, burst int, logger *zap.Logger) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		now:      time.Now,
		logger:   logger,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.requests++
	if rl.requests%limiterSweepEvery == 0 {
		for candidate, entry := range rl.limiters {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(rl.limiters, candidate)
			}
		}
	}

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) middleware(c *gin.Context) {
	key := c.ClientIP()
	if rl.allow(key) {
		c.Next()
		return
	}
	rl.logger.Debug("rate limit exceeded",
		zap.String("client", key),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path))
	c.Header("Retry-After", retryAfterSeconds)
	c.AbortWithStatusJSON(http.StatusTooManyRequests, errorPayload{Error: rateLimitedErrorKey, Code: "http." + rateLimitedErrorKey})
}
