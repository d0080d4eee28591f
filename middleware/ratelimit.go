package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/utils"
)

// RateLimit applies a fixed window per client IP and route. Redis being
// down fails open: a missing limiter must never take the API with it.
func RateLimit(rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return fixedWindow(rdb, "ratelimit", cfg.RateLimitReqs, cfg.RateLimitWindow)
}

// GenerationRateLimit is a tighter window for endpoints that can reach the
// model provider, where a burst costs real money and quota.
func GenerationRateLimit(rdb *redis.Client, requests, windowSeconds int) gin.HandlerFunc {
	return fixedWindow(rdb, "genlimit", requests, windowSeconds)
}

func fixedWindow(rdb *redis.Client, prefix string, limit, windowSeconds int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.FullPath() == "/health" || c.FullPath() == "/ready" {
			c.Next()
			return
		}

		key := prefix + ":" + c.ClientIP() + ":" + c.FullPath()
		count, err := rdb.Incr(c.Request.Context(), key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rdb.Expire(c.Request.Context(), key, time.Duration(windowSeconds)*time.Second)
		}

		if count > int64(limit) {
			c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(
				time.Now().Add(time.Duration(windowSeconds)*time.Second).Unix(), 10))
			utils.RespondWithTooManyRequests(c, "Too many requests. Please try again later.", windowSeconds)
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limit-int(count)))
		c.Next()
	}
}
