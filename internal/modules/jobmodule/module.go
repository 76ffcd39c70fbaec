// Package jobmodule wires the video job orchestrator: uploads are probed
// and registered as jobs, configured, scheduled onto a bounded worker pool
// and transcoded by ffmpeg into downloadable artifacts.
//
// The in-memory registry is the only source of job state. History and
// event publishing observe terminal transitions and are never read back.
package jobmodule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/videoclipper/internal/config"
	"github.com/mantonx/videoclipper/internal/metrics"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/api"
	joberrors "github.com/mantonx/videoclipper/internal/modules/jobmodule/errors"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/ffmpeg"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/history"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/notify"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/registry"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/scheduler"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/service"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/settings"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/storage"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/worker"
	"github.com/mantonx/videoclipper/internal/modules/modulemanager"
	"github.com/mantonx/videoclipper/internal/system"
)

const (
	// ModuleID is the unique identifier for the job module
	ModuleID = "system.jobs"

	// ModuleName is the display name for the job module
	ModuleName = "Video Job Orchestrator"
)

// Module owns every component of the job pipeline.
type Module struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	runner  ffmpeg.CommandRunner
	logger  hclog.Logger

	mu        sync.RWMutex
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	handler   *api.APIHandler
	reporter  joberrors.ErrorReporter
	history   *history.Store
	notifier  *notify.Notifier
	degraded  string
}

// Option customizes a Module.
type Option func(*Module)

// WithMetrics records job and pool metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mod *Module) { mod.metrics = m }
}

// WithCommandRunner replaces the process runner used for ffmpeg and ffprobe.
func WithCommandRunner(r ffmpeg.CommandRunner) Option {
	return func(mod *Module) { mod.runner = r }
}

// NewModule creates the job module for cfg. Nothing runs until Init.
func NewModule(cfg *config.Config, logger hclog.Logger, opts ...Option) *Module {
	m := &Module{
		cfg:    cfg,
		runner: &ffmpeg.DefaultCommandRunner{},
		logger: logger.Named("jobs"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ID returns the unique module identifier
func (m *Module) ID() string {
	return ModuleID
}

// Name returns the module display name
func (m *Module) Name() string {
	return ModuleName
}

// Init builds the pipeline and starts the worker pool.
func (m *Module) Init(ctx context.Context) error {
	cfg := m.cfg
	logger := m.logger

	jobs := registry.New(logger)

	uploads, err := storage.NewUploadStore(cfg.Storage.UploadDir, cfg.Storage.MaxUploadBytes, cfg.Storage.AllowedExtensions, logger)
	if err != nil {
		return fmt.Errorf("failed to prepare upload storage: %w", err)
	}
	artifacts, err := storage.NewArtifactStore(cfg.Storage.OutputDir, logger)
	if err != nil {
		return fmt.Errorf("failed to prepare output storage: %w", err)
	}

	deps := service.Dependencies{
		Registry:  jobs,
		Resolver:  settings.NewResolver(cfg.Jobs.MaxSpeed),
		Prober:    ffmpeg.NewProber(m.runner, cfg.Jobs.FFprobePath, logger),
		Uploads:   uploads,
		Artifacts: artifacts,
		System:    system.NewCollector(cfg.Storage.OutputDir, logger),
	}

	var archive *history.Store
	if cfg.History.Enabled {
		archive, err = history.Open(cfg.History.Type, cfg.History.DSN, logger)
		if err != nil {
			return fmt.Errorf("failed to open job history: %w", err)
		}
		jobs.Subscribe(archive.Observe)
		deps.History = archive
	}

	var degraded string
	var publisher notify.Publisher = notify.NoopPublisher{}
	if cfg.Notify.Enabled {
		amqpPub, err := notify.DialAMQP(notify.AMQPConfig{
			Host:       cfg.Notify.Host,
			Port:       cfg.Notify.Port,
			User:       cfg.Notify.User,
			Password:   cfg.Notify.Password,
			Exchange:   cfg.Notify.Exchange,
			RoutingKey: cfg.Notify.RoutingKey,
			Retries:    cfg.Notify.Retries,
		}, logger)
		if err != nil {
			logger.Warn("job events disabled: broker unavailable", "host", cfg.Notify.Host, "error", err)
			degraded = "event broker unavailable"
		} else {
			publisher = amqpPub
		}
	}
	notifier := notify.NewNotifier(publisher, logger)
	jobs.Subscribe(notifier.Observe)

	engine := ffmpeg.NewEngine(m.runner, ffmpeg.EngineConfig{
		FFmpegPath: cfg.Jobs.FFmpegPath,
		Preset:     cfg.Jobs.Preset,
	}, logger)
	reporter := joberrors.NewErrorReporter(logger.Named("errors"))
	runner := worker.New(jobs, engine, artifacts, reporter, logger)
	sched := scheduler.New(jobs, runner, cfg.Jobs.Workers, reporter, logger)
	deps.Scheduler = sched

	if m.metrics != nil {
		jobs.Subscribe(m.metrics.Observe)
		m.metrics.RegisterPool(sched.Stats)
	}

	svc := service.New(deps, logger)
	handler := api.NewAPIHandler(svc, api.HandlerConfig{
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		StreamInterval: cfg.Jobs.StreamInterval,
		HistoryLimit:   cfg.History.Limit,
	}, reporter, logger)

	m.mu.Lock()
	m.registry = jobs
	m.scheduler = sched
	m.handler = handler
	m.reporter = reporter
	m.history = archive
	m.notifier = notifier
	m.degraded = degraded
	m.mu.Unlock()

	logger.Info("job module initialized",
		"workers", sched.Stats().Workers,
		"upload_dir", cfg.Storage.UploadDir,
		"output_dir", cfg.Storage.OutputDir,
		"history", cfg.History.Enabled,
		"notify", cfg.Notify.Enabled)
	return nil
}

// RegisterRoutes registers the job HTTP API
func (m *Module) RegisterRoutes(router *gin.Engine) {
	m.mu.RLock()
	handler := m.handler
	m.mu.RUnlock()

	if handler == nil {
		m.logger.Error("routes requested before initialization")
		return
	}
	api.RegisterRoutes(router, handler)
}

// HealthCheck reports pool and registry counters, and the number of
// background failures recorded by the error reporter.
func (m *Module) HealthCheck(ctx context.Context) modulemanager.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	if m.scheduler == nil {
		return modulemanager.HealthStatus{
			Status:      modulemanager.HealthStateUnknown,
			Message:     "not initialized",
			LastChecked: now,
		}
	}

	pool := m.scheduler.Stats()
	stats := m.registry.Stats()
	status := modulemanager.HealthStatus{
		Status:      modulemanager.HealthStateHealthy,
		LastChecked: now,
		Details: map[string]interface{}{
			"workers": pool.Workers,
			"active":  pool.Active,
			"queued":  pool.Queued,
			"jobs":    stats.Total,

			"background_errors": len(m.reporter.GetErrors()),
		},
	}
	if m.degraded != "" {
		status.Status = modulemanager.HealthStateDegraded
		status.Message = m.degraded
	}
	return status
}

// Shutdown closes live streams, stops the pool and then closes the
// observers, so the terminal transitions produced by the pool shutdown
// are still archived and published.
func (m *Module) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	handler, sched, archive, notifier := m.handler, m.scheduler, m.history, m.notifier
	m.mu.Unlock()

	if handler != nil {
		handler.Close()
	}

	var errs []error
	if sched != nil {
		if err := sched.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler: %w", err))
		}
	}
	if notifier != nil {
		if err := notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("notifier: %w", err))
		}
	}
	if archive != nil {
		if err := archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("history: %w", err))
		}
	}
	return errors.Join(errs...)
}
