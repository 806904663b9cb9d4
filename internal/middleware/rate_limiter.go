package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client IP
type RateLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	limit       rate.Limit
	burst       int
	window      time.Duration
	lastCleanup time.Time
	now         func() time.Time
	logger      *logrus.Logger
}

// NewRateLimiter allows `requests` per `window` per IP, with the full allowance as burst.
// Clients are keyed on gin's ClientIP, so forwarding headers only count when the
// router trusts the proxy that set them.
func NewRateLimiter(requests int, window time.Duration, logger *logrus.Logger) *RateLimiter {
	if requests < 1 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RateLimiter{
		visitors:    make(map[string]*visitor),
		limit:       rate.Every(window / time.Duration(requests)),
		burst:       requests,
		window:      window,
		lastCleanup: time.Now(),
		now:         time.Now,
		logger:      logger,
	}
}

func (r *RateLimiter) allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastCleanup) >= r.window {
		r.cleanupLocked(now)
	}

	v, exists := r.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Cleanup forgets clients idle for a whole window and returns how many were dropped.
// Their buckets would have refilled completely, so nothing is lost.
func (r *RateLimiter) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleanupLocked(r.now())
}

func (r *RateLimiter) cleanupLocked(now time.Time) int {
	removed := 0
	for ip, v := range r.visitors {
		if now.Sub(v.lastSeen) >= r.window {
			delete(r.visitors, ip)
			removed++
		}
	}
	r.lastCleanup = now
	return removed
}

// Size returns the number of tracked clients
func (r *RateLimiter) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visitors)
}

// Middleware rejects requests over the limit with 429
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !r.allow(ip) {
			r.logger.WithFields(logrus.Fields{
				"ip":   ip,
				"path": c.Request.URL.Path,
			}).Warn("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests. Try again later.",
			})
			return
		}
		c.Next()
	}
}
