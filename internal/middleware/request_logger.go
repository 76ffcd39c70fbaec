package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/videoclipper/internal/logger"
	"github.com/mantonx/videoclipper/internal/metrics"
)

// quietPaths are polled constantly; they are logged only when they fail.
var quietPaths = map[string]bool{
	"/health":   true,
	"/metrics":  true,
	"/api/jobs": true,
}

// RequestLogger logs every HTTP request and its response
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		// The body is never read here; uploads stream straight to disk.
		if !quietPaths[path] {
			logger.Debug("HTTP Request",
				"method", c.Request.Method,
				"path", path,
				"query", c.Request.URL.RawQuery,
				"content_length", c.Request.ContentLength,
				"ip", c.ClientIP(),
			)
		}

		c.Next()

		if quietPaths[path] && c.Writer.Status() < 400 {
			return
		}
		logger.Debug("HTTP Response",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"size", c.Writer.Size(),
		)
	}
}

// ErrorLogger logs errors with context
func ErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		for _, err := range c.Errors {
			logger.Error("Request error",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"error", err.Error(),
				"type", err.Type,
			)
		}
	}
}

// Metrics records request counts and latency per route template
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
