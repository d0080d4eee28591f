package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-tutor-platform/utils"
)

// RequestSizeLimit rejects bodies over maxSize before they are read.
// Textbook uploads are the only large payloads this API accepts.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				"request_too_large",
				"Request body exceeds maximum size",
				gin.H{"max_size": maxSize, "received": c.Request.ContentLength})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
