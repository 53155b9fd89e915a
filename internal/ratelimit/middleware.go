package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/purrify/checkout-engine/internal/events"
	"github.com/purrify/checkout-engine/internal/logging"
	"github.com/purrify/checkout-engine/internal/metrics"
)

// Middleware returns a gin middleware gating requests through the limiter
// for the given class, keyed by client IP. Quota headers are set on every
// response; denied requests additionally get Retry-After, a 429 body, a
// RATE_LIMITED security event, and a denial metric. log may be nil.
func Middleware(limiter Limiter, class Class, log *events.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := limiter.Check(c.Request.Context(), c.ClientIP(), class)

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt, 10))

		if !d.Allowed {
			metrics.RateLimitDeniedTotal.WithLabelValues(class.Name).Inc()
			log.Emit(events.TypeRateLimited, logging.RequestID(c.Request.Context()), map[string]interface{}{
				"class":    class.Name,
				"clientIp": c.ClientIP(),
				"path":     c.FullPath(),
			})
			c.Header("Retry-After", strconv.Itoa(d.RetryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
			})
			return
		}

		c.Next()
	}
}
