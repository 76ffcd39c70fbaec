package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mantonx/videoclipper/internal/config"
	"github.com/mantonx/videoclipper/internal/logger"
	"github.com/mantonx/videoclipper/internal/metrics"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule"
	"github.com/mantonx/videoclipper/internal/modules/modulemanager"
	"github.com/mantonx/videoclipper/internal/server"
)

func main() {
	if err := run(); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("VIDEOCLIPPER_CONFIG_PATH")
	if configPath == "" {
		// Try default paths
		for _, candidate := range []string{"./videoclipper.yaml", "/etc/videoclipper/videoclipper.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
	}

	if err := config.Load(configPath); err != nil {
		return fmt.Errorf("failed to load configuration from %q: %w", configPath, err)
	}
	cfg := config.Get()

	logger.Configure(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	config.AddWatcher(func(oldConfig, newConfig *config.Config) {
		if oldConfig.Logging.Level != newConfig.Logging.Level {
			logger.SetLevel(newConfig.Logging.Level)
			logger.Info("log level changed", "from", oldConfig.Logging.Level, "to", newConfig.Logging.Level)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		if err := config.Watch(ctx); err != nil {
			logger.Warn("config hot reload unavailable", "path", configPath, "error", err)
		}
	}

	var opts server.Options
	var jobOpts []jobmodule.Option
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.New(reg)
		opts = server.Options{Metrics: m, Gatherer: reg}
		jobOpts = append(jobOpts, jobmodule.WithMetrics(m))
	}

	modules := modulemanager.NewManager(logger.L())
	if err := modules.Register(jobmodule.NewModule(cfg, logger.L(), jobOpts...)); err != nil {
		return err
	}
	if err := modules.LoadAll(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server.SetupRouter(modules, opts),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "workers", cfg.Jobs.Workers)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			shutdownModules(modules, cfg)
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := modules.ShutdownAll(shutdownCtx); err != nil {
		return fmt.Errorf("module shutdown: %w", err)
	}

	logger.Info("server shutdown complete")
	return nil
}

func shutdownModules(modules *modulemanager.Manager, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := modules.ShutdownAll(ctx); err != nil {
		logger.Error("module shutdown error", "error", err)
	}
}
