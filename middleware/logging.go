package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"ai-tutor-platform/internal/logger"
)

// RequestLogger emits one structured line per request in place of gin's
// default logger. Health probes are skipped; they would drown everything
// else at typical probe intervals.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.FullPath() == "/health" || c.FullPath() == "/ready" {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		logger.Info("request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", GetRequestID(c),
		)
	}
}
