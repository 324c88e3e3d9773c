package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/wanderline/auth-api/internal/models"
	"github.com/wanderline/auth-api/internal/service"
	"github.com/wanderline/auth-api/pkg/response"
)

// RateLimit consumes one slot from the caller's fixed window for the
// endpoint class and rejects with 429 plus Retry-After once the window is
// exhausted. Limiter outages fail open.
func RateLimit(limiter *service.RateLimitService, events *service.EventService, metrics *service.MetricsService, class service.EndpointClass) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := limiter.CheckAndConsume(c.Request.Context(), class, c.ClientIP())
		if result.Allowed {
			c.Next()
			return
		}

		if metrics != nil {
			metrics.RecordRateLimited(string(class))
		}
		actor := models.Actor{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
		events.Log(c.Request.Context(), models.EventRateLimited, models.SeverityMedium, "request rate limited", actor, map[string]interface{}{
			"class": string(class),
			"path":  c.FullPath(),
		})

		response.RateLimited(c, result.RetryAfter)
		c.Abort()
	}
}
