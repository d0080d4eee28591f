package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ai-tutor-platform/internal/telemetry"
	"ai-tutor-platform/utils"
)

const serviceName = "ai-tutor-platform"

// Tracing instruments every request with an OpenTelemetry span.
func Tracing() gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// EnrichTrace attaches the student identity and request id to the active
// span. Runs after auth so the claims are on the context.
func EnrichTrace() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())

		if claims, exists := c.Get("claims"); exists {
			if cl, ok := claims.(*utils.Claims); ok {
				span.SetAttributes(
					attribute.String("student.id", cl.StudentID),
					attribute.String("student.course", cl.Course),
				)
			}
		}
		if requestID := GetRequestID(c); requestID != "" {
			span.SetAttributes(attribute.String("request.id", requestID))
		}

		c.Next()

		span.SetAttributes(attribute.Int("http.response.status_code", c.Writer.Status()))
	}
}

// Metrics records request counts and latency per route template.
func Metrics(metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// The route template keeps metric cardinality bounded; raw paths
		// with ids in them would not.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := "success"
		if c.Writer.Status() >= 400 {
			status = "error"
		}
		metrics.RecordRequest(c.Request.Method, path, status, time.Since(start).Seconds())
	}
}
