package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"tprm-service/pkg/logger"
	"tprm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RateLimiter is a per-user sliding-window limiter. Requests beyond the
// window budget get 429 with a Retry-After header pointing at the moment the
// oldest request leaves the window.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	history map[uint][]time.Time
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		history: make(map[uint][]time.Time),
		now:     time.Now,
	}
}

// Allow records one request for userID and reports whether it is within the
// budget. When denied it also returns the wait until the next slot opens.
func (rl *RateLimiter) Allow(userID uint) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	kept := rl.history[userID][:0]
	for _, ts := range rl.history[userID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= rl.limit {
		rl.history[userID] = kept
		retryAfter := kept[0].Add(rl.window).Sub(now)
		return false, retryAfter
	}

	rl.history[userID] = append(kept, now)
	return true, 0
}

// Middleware applies the limiter to authenticated routes. Requests without a
// bound user pass through; public endpoints are token-addressed and not
// user-attributable.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := UserID(c)
			if userID == 0 {
				return next(c)
			}

			allowed, retryAfter := rl.Allow(userID)
			if !allowed {
				logger.FromContext(c).Warn("Rate limit exceeded", zap.Uint("user_id", userID))
				prometheus.RateLimitedCounter.Inc()
				seconds := int(retryAfter.Seconds()) + 1
				c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"success": false,
					"error":   "rate limit exceeded",
				})
			}

			return next(c)
		}
	}
}
