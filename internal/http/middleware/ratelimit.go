package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NickKasten/posture/internal/config"
	"github.com/NickKasten/posture/internal/ratelimit"
)

// IdentifierFunc chooses the rate-limit key for a request: client IP for
// unauthenticated endpoints, user id for authenticated ones.
type IdentifierFunc func(c *gin.Context) string

// ByClientIP keys the window on the caller's IP.
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByUserID keys the window on the authenticated user, falling back to the
// client IP when the request carries no session.
func ByUserID(c *gin.Context) string {
	if userID, ok := GetUserID(c); ok {
		return userID
	}
	return c.ClientIP()
}

// RateLimit enforces the policy and reports the window via X-RateLimit-*
// headers. Rejections carry Retry-After derived from the window reset.
func RateLimit(limiter *ratelimit.Limiter, policy config.RateLimitPolicy, identify IdentifierFunc) gin.HandlerFunc {
	if limiter == nil || policy.MaxRequests <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		decision := limiter.Check(c.Request.Context(), policy, identify(c))

		header := c.Writer.Header()
		header.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		header.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			retryAfter := int(time.Until(decision.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			header.Set("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}

		c.Next()
	}
}
