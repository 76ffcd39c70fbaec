package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mantonx/videoclipper/internal/api"
	"github.com/mantonx/videoclipper/internal/metrics"
	"github.com/mantonx/videoclipper/internal/middleware"
	"github.com/mantonx/videoclipper/internal/modules/modulemanager"
)

// Options selects the optional parts of the router.
type Options struct {
	// Metrics instruments every request when set.
	Metrics *metrics.Metrics
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// SetupRouter configures and returns the main router
func SetupRouter(modules *modulemanager.Manager, opts Options) *gin.Engine {
	r := gin.New()

	r.Use(api.ErrorMiddleware())
	r.Use(middleware.RequestLogger(), middleware.ErrorLogger())
	if opts.Metrics != nil {
		r.Use(middleware.Metrics(opts.Metrics))
	}

	// CORS middleware for the browser client
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupHealthRoutes(r, modules)
	if opts.Gatherer != nil {
		setupMetricsRoutes(r, opts.Gatherer)
	}

	modules.RegisterRoutes(r)
	setupDiscoveryRoutes(r)

	return r
}
