package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"therapath.app/insight/common/logger"
)

// Recovery converts handler panics into 500 responses instead of killing the
// process.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(c.Request.Context(), "panic in http handler",
					"panic", r,
					"path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

// Logger emits one access log line per request with trace context attached.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
			Component: "insight.http",
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		slog.InfoContext(ctx, "request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}
