// Package scheduler runs transcode jobs on a bounded pool of workers.
//
// Start reserves a job in the registry and appends it to an unbounded FIFO
// queue, returning immediately. Each of the N workers takes the oldest
// queued job, moves it to processing and runs it to a terminal state. When
// all workers are busy, jobs wait in the queue; they stay idle in the
// registry, flagged as queued, and cannot be started a second time.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/hashicorp/go-hclog"

	joberrors "github.com/mantonx/videoclipper/internal/modules/jobmodule/errors"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
)

// CancelReason is recorded on jobs cancelled by a caller.
const CancelReason = "cancelled"

// ShutdownReason is recorded on queued jobs dropped at shutdown.
const ShutdownReason = "server shutting down"

// Runner executes one job that has been moved to processing.
type Runner interface {
	Run(ctx context.Context, job types.Job) error
}

// Jobs is the subset of the registry the scheduler manipulates.
type Jobs interface {
	Get(id string) (types.Job, error)
	Reserve(id string) error
	Release(id string)
	Begin(id string) (types.Job, error)
	Fail(id, reason string) error
}

// Stats describes the pool.
type Stats struct {
	Workers int `json:"workers"`
	Active  int `json:"active"`
	Queued  int `json:"queued"`
}

// Scheduler manages a pool of workers draining a FIFO job queue.
type Scheduler struct {
	jobs     Jobs
	runner   Runner
	workers  int
	reporter joberrors.ErrorReporter
	logger   hclog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []string
	running  map[string]context.CancelFunc
	stopping bool

	baseCtx   context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a scheduler and starts its workers. A worker count below one
// selects a single worker. Panics escaping a dispatch are sent to reporter.
func New(jobs Jobs, runner Runner, workers int, reporter joberrors.ErrorReporter, logger hclog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if reporter == nil {
		reporter = joberrors.NewErrorReporter(logger.Named("errors"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		jobs:      jobs,
		runner:    runner,
		workers:   workers,
		reporter:  reporter,
		logger:    logger.Named("scheduler"),
		running:   make(map[string]context.CancelFunc),
		baseCtx:   ctx,
		cancelAll: cancel,
	}
	s.cond = sync.NewCond(&s.mu)

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.logger.Info("scheduler started", "workers", workers)
	return s
}

// Start schedules a job. It fails with ErrUnknownJob for a missing id and
// with ErrAlreadyProcessing when the job is queued, running or terminal.
// The job is accepted once Start returns nil; the transcode itself runs in
// the background.
func (s *Scheduler) Start(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		return joberrors.New(joberrors.ErrorTypeResource, "start", joberrors.ErrShuttingDown).WithJob(id)
	}

	if err := s.jobs.Reserve(id); err != nil {
		return err
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		s.jobs.Release(id)
		return joberrors.New(joberrors.ErrorTypeResource, "start", joberrors.ErrShuttingDown).WithJob(id)
	}
	s.queue = append(s.queue, id)
	depth := len(s.queue)
	s.cond.Signal()
	s.mu.Unlock()

	s.logger.Debug("job queued", "job_id", id, "queue_depth", depth)
	return nil
}

// Cancel stops a running job or removes a queued one; either way the job
// ends in error. Cancelling a terminal or never-started job changes
// nothing.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	if cancel, ok := s.running[id]; ok {
		s.mu.Unlock()
		cancel()
		s.logger.Info("cancelling running job", "job_id", id)
		return nil
	}

	queued := false
	for i, qid := range s.queue {
		if qid == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			queued = true
			break
		}
	}
	s.mu.Unlock()

	if queued {
		s.logger.Info("cancelling queued job", "job_id", id)
		return s.jobs.Fail(id, CancelReason)
	}

	_, err := s.jobs.Get(id)
	return err
}

// Stats returns a snapshot of pool utilisation.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Workers: s.workers, Active: len(s.running), Queued: len(s.queue)}
}

// Shutdown stops accepting jobs, fails every queued job, cancels running
// transcodes and waits for the workers to exit or ctx to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return s.wait(ctx)
	}
	s.stopping = true
	dropped := s.queue
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, id := range dropped {
		if err := s.jobs.Fail(id, ShutdownReason); err != nil {
			s.logger.Debug("could not fail queued job", "job_id", id, "error", err)
		}
	}
	s.cancelAll()

	s.logger.Info("scheduler shutting down", "dropped", len(dropped))
	return s.wait(ctx)
}

func (s *Scheduler) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) worker(n int) {
	defer s.wg.Done()
	logger := s.logger.With("worker", n)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopping {
			s.cond.Wait()
		}
		if s.stopping {
			s.mu.Unlock()
			return
		}

		id := s.queue[0]
		s.queue = s.queue[1:]
		ctx, cancel := context.WithCancel(s.baseCtx)
		s.running[id] = cancel
		s.mu.Unlock()

		s.dispatch(ctx, logger, id)

		cancel()
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}
}

func (s *Scheduler) dispatch(ctx context.Context, logger hclog.Logger, id string) {
	defer func() {
		if r := recover(); r != nil {
			s.reporter.ReportPanic(ctx, r, debug.Stack())
			logger.Error("panic while running job", "job_id", id, "panic", r)
			s.jobs.Fail(id, fmt.Sprintf("internal error: %v", r))
		}
	}()

	job, err := s.jobs.Begin(id)
	if err != nil {
		logger.Debug("job no longer dispatchable", "job_id", id, "error", err)
		return
	}

	if err := s.runner.Run(ctx, job); err != nil {
		logger.Debug("job ended with error", "job_id", id, "error", err)
	}
}
