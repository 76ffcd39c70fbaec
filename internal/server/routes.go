package server

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mantonx/videoclipper/internal/modules/modulemanager"
)

// setupHealthRoutes reports the aggregate state of all modules. Module
// details are flattened into the top level of the response.
func setupHealthRoutes(r *gin.Engine, modules *modulemanager.Manager) {
	r.GET("/health", func(c *gin.Context) {
		overall := modulemanager.HealthStateHealthy
		body := gin.H{}

		statuses := modules.Health(c.Request.Context())
		for _, status := range statuses {
			overall = modulemanager.Worst(overall, status.Status)
			for k, v := range status.Details {
				body[k] = v
			}
		}

		body["status"] = overall
		body["modules"] = statuses
		body["timestamp"] = time.Now().UTC()

		code := http.StatusOK
		if overall == modulemanager.HealthStateUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, body)
	})
}

func setupMetricsRoutes(r *gin.Engine, gatherer prometheus.Gatherer) {
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

type routeInfo struct {
	Path    string   `json:"path"`
	Methods []string `json:"methods"`
}

// setupDiscoveryRoutes lists registered endpoints at /api. It must run
// after every other route is registered.
func setupDiscoveryRoutes(r *gin.Engine) {
	byPath := map[string][]string{}
	for _, route := range r.Routes() {
		byPath[route.Path] = append(byPath[route.Path], route.Method)
	}

	routes := make([]routeInfo, 0, len(byPath))
	for path, methods := range byPath {
		sort.Strings(methods)
		routes = append(routes, routeInfo{Path: path, Methods: methods})
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Path < routes[j].Path })

	r.GET("/api", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"routes": routes})
	})
}
