// Package worker executes a single transcode for a job that has already
// been moved to processing.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/hashicorp/go-hclog"

	joberrors "github.com/mantonx/videoclipper/internal/modules/jobmodule/errors"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/settings"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
)

// Progress milestones reported around the engine run.
const (
	ProgressStarted    = 5
	ProgressEncodeSpan = 90
	ProgressFinalizing = 98
)

// Transcoder runs the external engine.
type Transcoder interface {
	Transcode(ctx context.Context, input, output string, p settings.Params, onProgress func(fraction float64)) error
}

// Artifacts stores finished outputs.
type Artifacts interface {
	TempPath(name string) string
	Commit(tmpPath, name string) (string, int64, error)
	Discard(tmpPath string)
	Remove(ref string)
}

// JobUpdater is the subset of the registry a worker writes to.
type JobUpdater interface {
	ReportProgress(id string, progress int, message string) error
	Complete(id, outputRef string, result types.Result) error
	Fail(id, reason string) error
}

// Worker drives one job from processing to a terminal state.
type Worker struct {
	jobs      JobUpdater
	engine    Transcoder
	artifacts Artifacts
	reporter  joberrors.ErrorReporter
	logger    hclog.Logger
}

// New creates a worker. reporter may be nil.
func New(jobs JobUpdater, engine Transcoder, artifacts Artifacts, reporter joberrors.ErrorReporter, logger hclog.Logger) *Worker {
	return &Worker{
		jobs:      jobs,
		engine:    engine,
		artifacts: artifacts,
		reporter:  reporter,
		logger:    logger.Named("worker"),
	}
}

// Run transcodes job, whose settings are the snapshot frozen when it was
// moved to processing. It always leaves the job terminal: engine failures,
// cancellation and panics all end in Fail. The returned error is the
// failure cause, for logging by the caller.
func (w *Worker) Run(ctx context.Context, job types.Job) (err error) {
	logger := w.logger.With("job_id", job.ID)

	defer func() {
		if r := recover(); r != nil {
			err = joberrors.InternalError("run", joberrors.PanicError(r)).WithJob(job.ID)
			if w.reporter != nil {
				w.reporter.ReportPanic(ctx, r, debug.Stack())
			}
			logger.Error("worker panic recovered", "panic", r)
			w.fail(logger, job.ID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	params, err := settings.Derive(job.Settings)
	if err != nil {
		w.fail(logger, job.ID, joberrors.ReasonOf(err))
		return err
	}

	name := settings.ArtifactName(job.ID, job.Settings)
	tmp := w.artifacts.TempPath(name)

	w.progress(logger, job.ID, ProgressStarted, "Encoding")
	logger.Info("starting transcode", "format", params.Format, "resolution", params.Resolution(),
		"start", params.Start, "end", params.End, "speed", params.Speed)

	last := ProgressStarted
	err = w.engine.Transcode(ctx, job.InputPath, tmp, params, func(fraction float64) {
		p := ProgressStarted + int(fraction*ProgressEncodeSpan)
		if p <= last {
			return
		}
		last = p
		w.progress(logger, job.ID, p, "Encoding")
	})
	if err != nil {
		w.artifacts.Discard(tmp)
		if errors.Is(err, joberrors.ErrCancelled) || ctx.Err() != nil {
			logger.Info("transcode cancelled")
			w.fail(logger, job.ID, "cancelled")
			return err
		}
		logger.Warn("transcode failed", "error", err)
		w.fail(logger, job.ID, joberrors.ReasonOf(err))
		return err
	}

	w.progress(logger, job.ID, ProgressFinalizing, "Finalizing")
	ref, size, err := w.artifacts.Commit(tmp, name)
	if err != nil {
		w.artifacts.Discard(tmp)
		w.fail(logger, job.ID, joberrors.ReasonOf(err))
		return err
	}

	result := types.Result{
		Filename:         settings.DownloadName(job.Settings),
		Format:           params.Format,
		TrimDuration:     job.Settings.TrimDuration,
		OutputResolution: params.Resolution(),
		Bitrate:          params.Bitrate,
		Framerate:        params.Framerate,
		Speed:            params.Speed,
		Rotation:         job.Settings.Rotation,
		AspectRatio:      job.Settings.AspectRatio,
		SizeBytes:        size,
	}
	if err := w.jobs.Complete(job.ID, ref, result); err != nil {
		// Cancelled while committing.
		w.artifacts.Remove(ref)
		logger.Warn("could not complete job", "error", err)
		return err
	}

	logger.Info("transcode complete", "output_ref", ref, "bytes", size)
	return nil
}

func (w *Worker) progress(logger hclog.Logger, id string, p int, msg string) {
	if err := w.jobs.ReportProgress(id, p, msg); err != nil {
		logger.Debug("progress not recorded", "progress", p, "error", err)
	}
}

func (w *Worker) fail(logger hclog.Logger, id, reason string) {
	if err := w.jobs.Fail(id, reason); err != nil {
		logger.Debug("failure not recorded", "reason", reason, "error", err)
	}
}
