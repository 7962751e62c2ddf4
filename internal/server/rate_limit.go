package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/forecast/internal/observability/logger"
	"go.uber.org/zap"
)

// TrainRateLimit throttles retrains per API key subject, or per client IP
// when authentication is disabled.
func (s *Server) TrainRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.limiter.Enabled() {
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetString(contextSubjectKey))
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		res, err := s.limiter.Allow(c.Request.Context(), "train:"+key)
		if err != nil {
			// Fail open.
			logger.FromContext(c.Request.Context()).Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
