// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory token-bucket rate limiter with one bucket
// per caller, built on golang.org/x/time/rate. Buckets are process-local and
// idle ones are evicted opportunistically. Idempotent replays bypass the
// limiter so a client retrying a contact request is never charged twice for
// the same attempt.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc selects the bucket for a request.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys authenticated callers by role and subject and everyone
// else by client IP, e.g. "employer:abc123" or "ip:203.0.113.7". Employer and
// candidate ids live in separate tables, so the role keeps them apart.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := UserID(c); uid != "" {
			role := Role(c)
			if role == "" {
				role = "user"
			}
			return role + ":" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// visitor is one bucket and when it was last used.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter. It is safe for concurrent
// use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter returns a limiter refilling rps tokens per second with the
// given burst, which is coerced to at least 1.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute, // evict idle entries after TTL
	}
}

// getVisitor returns the limiter for key, creating it if absent. Every 5000
// lookups idle buckets are evicted, before the requested one is refreshed.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		lim := v.limiter
		rl.mu.Unlock()
		return lim
	}

	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	rl.mu.Unlock()
	return lim
}

// IsRateBypass reports whether IdempotencyValidator found a stored result
// for this request.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass) // set by IdempotencyValidator
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit. A rejected request gets 429 with the standard
// error envelope and a Retry-After of the bucket's next refill, in whole
// seconds.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		lim := rl.getVisitor(rl.keyFn(c))
		if lim.Allow() {
			c.Next()
			return
		}

		c.Header("Retry-After", strconv.Itoa(retryAfter(lim)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}

// retryAfter is the wait for the next token, at least one second.
func retryAfter(lim *rate.Limiter) int {
	r := lim.Reserve()
	defer r.Cancel()
	if !r.OK() {
		return 1
	}
	secs := int(math.Ceil(r.Delay().Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
