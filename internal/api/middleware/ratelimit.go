package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/codeclash/codeclash-backend/pkg/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimitConfig holds rate limit configuration
type RateLimitConfig struct {
	Limiter    *ratelimit.RateLimiter
	Capacity   int64                     // Maximum number of requests
	RefillRate int64                     // Requests per second
	KeyFunc    func(*gin.Context) string // Function to extract rate limit key
}

// DefaultKeyFunc uses user ID if authenticated, otherwise IP address
func DefaultKeyFunc(c *gin.Context) string {
	if userID := c.GetString(ContextUserID); userID != "" {
		return fmt.Sprintf("user:%s", userID)
	}
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// RateLimitMiddleware creates a rate limiting middleware.
// The caller owns config.Limiter and stops it on shutdown.
func RateLimitMiddleware(config RateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = DefaultKeyFunc
	}
	if config.Limiter == nil {
		config.Limiter = ratelimit.NewRateLimiter(config.Capacity, config.RefillRate)
	}
	limit := strconv.FormatInt(config.Capacity, 10)

	return func(c *gin.Context) {
		c.Header("X-RateLimit-Limit", limit)

		if !config.Limiter.Allow(config.KeyFunc(c)) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": fmt.Sprintf("Too many requests. Limit: %d requests per second", config.RefillRate),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
