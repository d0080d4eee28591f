package middleware

import (
	"github.com/gin-gonic/gin"

	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/utils"
)

// RequireOperatorKey guards ingestion and export endpoints with a
// pre-shared key compared against its bcrypt hash. With no hash configured
// the endpoints are disabled outright rather than left open.
func RequireOperatorKey(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.OperatorKeyHash == "" {
			utils.RespondWithForbidden(c, "Operator endpoints are disabled")
			c.Abort()
			return
		}

		key := c.GetHeader("X-Operator-Key")
		if key == "" {
			utils.RespondWithUnauthorized(c, "Operator key is required")
			c.Abort()
			return
		}

		if !utils.CheckOperatorKey(key, cfg.OperatorKeyHash) {
			utils.RespondWithForbidden(c, "Operator key rejected")
			c.Abort()
			return
		}
		c.Next()
	}
}
