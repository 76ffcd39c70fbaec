// Package service implements the job module's use cases on top of the
// registry, the scheduler and the stores. HTTP handlers call into it; it
// has no knowledge of the transport.
package service

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"

	joberrors "github.com/mantonx/videoclipper/internal/modules/jobmodule/errors"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/history"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/registry"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/scheduler"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/settings"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
	"github.com/mantonx/videoclipper/internal/system"
)

// Registry is the part of the job registry used by the service.
type Registry interface {
	Create(filename, inputPath string, meta types.Metadata, initial types.Settings) (types.Job, error)
	Get(id string) (types.Job, error)
	List() []types.Job
	Stats() types.Stats
	UpdateSettings(id string, fn registry.SettingsFunc) (types.Job, error)
}

// Prober extracts media metadata from a stored upload.
type Prober interface {
	Probe(ctx context.Context, path string) (types.Metadata, error)
}

// Uploads persists incoming files.
type Uploads interface {
	Save(filename string, r io.Reader) (string, int64, error)
	Remove(path string)
}

// Artifacts serves committed outputs.
type Artifacts interface {
	Open(ref string) (*os.File, os.FileInfo, error)
}

// Scheduler runs jobs in the background.
type Scheduler interface {
	Start(ctx context.Context, id string) error
	Cancel(id string) error
	Stats() scheduler.Stats
}

// History reads the archive of finished jobs.
type History interface {
	Recent(ctx context.Context, limit int) ([]history.JobRecord, error)
}

// SystemStats reports host resource usage.
type SystemStats interface {
	Snapshot(ctx context.Context) system.Info
}

// Dependencies wires a Service. History and System are optional.
type Dependencies struct {
	Registry  Registry
	Resolver  *settings.Resolver
	Prober    Prober
	Uploads   Uploads
	Artifacts Artifacts
	Scheduler Scheduler
	History   History
	System    SystemStats
}

// Stats is the summary returned alongside the job list.
type Stats struct {
	types.Stats
	Workers int          `json:"workers"`
	Active  int          `json:"active"`
	System  *system.Info `json:"system,omitempty"`
}

// Download is an open artifact ready to be streamed.
type Download struct {
	File        *os.File
	Info        os.FileInfo
	Filename    string
	ContentType string
}

// Service implements uploads, configuration, scheduling and downloads.
type Service struct {
	deps   Dependencies
	logger hclog.Logger
}

// New creates a service.
func New(deps Dependencies, logger hclog.Logger) *Service {
	if deps.Resolver == nil {
		deps.Resolver = settings.NewResolver(0)
	}
	return &Service{deps: deps, logger: logger.Named("service")}
}

// Upload stores the file, probes it and registers an idle job with default
// settings. A file that cannot be probed is removed and rejected.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (types.Job, error) {
	path, size, err := s.deps.Uploads.Save(filename, r)
	if err != nil {
		return types.Job{}, err
	}

	meta, err := s.deps.Prober.Probe(ctx, path)
	if err != nil {
		s.deps.Uploads.Remove(path)
		s.logger.Warn("rejected unreadable upload", "filename", filename, "error", err)
		return types.Job{}, err
	}

	job, err := s.deps.Registry.Create(filename, path, meta, settings.Defaults(meta.Duration))
	if err != nil {
		s.deps.Uploads.Remove(path)
		return types.Job{}, err
	}

	s.logger.Info("upload accepted", "job_id", job.ID, "filename", filename, "bytes", size)
	return job, nil
}

// Jobs returns every job, newest first.
func (s *Service) Jobs() []types.Job {
	return s.deps.Registry.List()
}

// Job returns one job snapshot.
func (s *Service) Job(id string) (types.Job, error) {
	return s.deps.Registry.Get(id)
}

// Stats summarizes jobs, the worker pool and the host.
func (s *Service) Stats(ctx context.Context) Stats {
	pool := s.deps.Scheduler.Stats()
	st := Stats{
		Stats:   s.deps.Registry.Stats(),
		Workers: pool.Workers,
		Active:  pool.Active,
	}
	if s.deps.System != nil {
		info := s.deps.System.Snapshot(ctx)
		st.System = &info
	}
	return st
}

// Settings returns the stored settings of a job.
func (s *Service) Settings(id string) (types.Settings, error) {
	job, err := s.deps.Registry.Get(id)
	if err != nil {
		return types.Settings{}, err
	}
	return job.Settings, nil
}

// Options lists the accepted values for each enumerated setting.
func (s *Service) Options() settings.Options {
	return s.deps.Resolver.Options()
}

// UpdateSettings merges patch onto the stored settings of an idle job.
func (s *Service) UpdateSettings(id string, patch types.SettingsPatch) (types.Settings, error) {
	job, err := s.deps.Registry.UpdateSettings(id, func(current types.Settings, meta types.Metadata) (types.Settings, error) {
		return s.deps.Resolver.Resolve(current, patch, meta.Duration)
	})
	if err != nil {
		return types.Settings{}, err
	}

	s.logger.Debug("settings updated", "job_id", id, "quality", job.Settings.Quality,
		"format", job.Settings.OutputFormat, "trim_start", job.Settings.TrimStart, "trim_end", job.Settings.TrimEnd)
	return job.Settings, nil
}

// Process schedules a job and returns its snapshot right after acceptance.
func (s *Service) Process(ctx context.Context, id string) (types.Job, error) {
	if err := s.deps.Scheduler.Start(ctx, id); err != nil {
		return types.Job{}, err
	}
	return s.deps.Registry.Get(id)
}

// Cancel stops a queued or running job.
func (s *Service) Cancel(id string) (types.Job, error) {
	if err := s.deps.Scheduler.Cancel(id); err != nil {
		return types.Job{}, err
	}
	return s.deps.Registry.Get(id)
}

// OpenDownload opens the artifact behind ref. Only refs recorded on a
// completed job are served.
func (s *Service) OpenDownload(ref string) (*Download, error) {
	var owner *types.Job
	for _, job := range s.deps.Registry.List() {
		if job.Status == types.StatusComplete && job.OutputRef == ref {
			j := job
			owner = &j
			break
		}
	}
	if owner == nil {
		return nil, joberrors.StorageError("download", fmt.Errorf("%w: %s", joberrors.ErrNotFound, ref))
	}

	f, info, err := s.deps.Artifacts.Open(ref)
	if err != nil {
		return nil, err
	}

	return &Download{
		File:        f,
		Info:        info,
		Filename:    settings.DownloadName(owner.Settings),
		ContentType: settings.ContentType(owner.Settings.OutputFormat),
	}, nil
}

// History returns recently archived jobs. It fails with ErrNotFound when
// the archive is disabled.
func (s *Service) History(ctx context.Context, limit int) ([]history.JobRecord, error) {
	if s.deps.History == nil {
		return nil, joberrors.StorageError("history", fmt.Errorf("%w: job history is disabled", joberrors.ErrNotFound))
	}
	if limit <= 0 || limit > history.MaxRecentLimit {
		return nil, joberrors.ValidationError("history", "limit",
			fmt.Errorf("%w: %d is outside [1, %d]", joberrors.ErrInvalidOption, limit, history.MaxRecentLimit))
	}
	records, err := s.deps.History.Recent(ctx, limit)
	if err != nil {
		return nil, joberrors.StorageError("history", err)
	}
	return records, nil
}
