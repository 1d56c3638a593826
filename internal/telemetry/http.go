package telemetry

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware logs every request and counts it by matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		slog.Log(c.Request.Context(), level, "http: request finished",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
			"errors", c.Errors.String(),
		)
	}
}
