// Package metrics exposes Prometheus instrumentation for jobs, the worker
// pool and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mantonx/videoclipper/internal/modules/jobmodule/scheduler"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
)

const namespace = "videoclipper"

// Metrics holds every collector. Create one per registerer.
type Metrics struct {
	JobsStarted       prometheus.Counter
	JobsFinished      *prometheus.CounterVec
	TranscodeDuration prometheus.Histogram
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec

	factory promauto.Factory
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		JobsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Total number of jobs moved to processing",
		}),
		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Total number of jobs that reached a terminal state, by status",
		}, []string{"status"}),
		TranscodeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcode_duration_seconds",
			Help:      "Wall time from processing to terminal state",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests, by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method and route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		factory: f,
	}
}

// Observe is a registry observer counting job transitions.
func (m *Metrics) Observe(job types.Job) {
	switch {
	case job.Status == types.StatusProcessing:
		m.JobsStarted.Inc()
	case job.Status.IsTerminal():
		m.JobsFinished.WithLabelValues(string(job.Status)).Inc()
		if job.StartedAt != nil && job.CompletedAt != nil {
			m.TranscodeDuration.Observe(job.CompletedAt.Sub(*job.StartedAt).Seconds())
		}
	}
}

// RegisterPool exports worker pool gauges read from stats on every scrape.
func (m *Metrics) RegisterPool(stats func() scheduler.Stats) {
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "workers",
		Help:      "Configured number of transcode workers",
	}, func() float64 { return float64(stats().Workers) })

	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_workers",
		Help:      "Number of workers currently running a transcode",
	}, func() float64 { return float64(stats().Active) })

	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Number of jobs waiting for a worker",
	}, func() float64 { return float64(stats().Queued) })
}
