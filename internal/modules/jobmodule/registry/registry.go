// Package registry holds the authoritative in-memory table of jobs.
//
// The registry-wide lock guards only the id -> entry map and is held for
// map lookups and inserts. Every job carries its own lock; all field reads
// and writes of a job happen under it, and readers always receive deep
// copies. No lock is ever held across I/O or an engine call.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	joberrors "github.com/mantonx/videoclipper/internal/modules/jobmodule/errors"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
)

// MaxProgressBeforeComplete caps worker-reported progress; only Complete
// sets 100.
const MaxProgressBeforeComplete = 99

// Observer is notified after a job changes status. It receives a snapshot
// taken under the job lock and is invoked after the lock is released.
type Observer func(job types.Job)

// Registry is the job table.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*entry

	obsMu     sync.RWMutex
	observers []Observer

	newID  func() string
	now    func() time.Time
	logger hclog.Logger
}

type entry struct {
	mu       sync.RWMutex
	job      types.Job
	reserved bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDGenerator overrides id generation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(r *Registry) { r.now = fn }
}

// New creates an empty registry.
func New(logger hclog.Logger, opts ...Option) *Registry {
	r := &Registry{
		jobs:   make(map[string]*entry),
		newID:  ShortID,
		now:    time.Now,
		logger: logger.Named("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ShortID returns the first 8 hex characters of a random UUID.
func ShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Subscribe registers an observer of status changes.
func (r *Registry) Subscribe(obs Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, obs)
}

func (r *Registry) notify(job types.Job) {
	r.obsMu.RLock()
	observers := append([]Observer(nil), r.observers...)
	r.obsMu.RUnlock()

	for _, obs := range observers {
		obs(job)
	}
}

// Create registers a new idle job and returns its snapshot.
func (r *Registry) Create(filename, inputPath string, meta types.Metadata, initial types.Settings) (types.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for attempt := 0; r.jobs[id] != nil; attempt++ {
		if attempt >= 16 {
			return types.Job{}, joberrors.InternalError("create_job", fmt.Errorf("could not allocate a unique job id"))
		}
		id = r.newID()
	}

	e := &entry{job: types.Job{
		ID:        id,
		Filename:  filename,
		Status:    types.StatusIdle,
		Message:   "Ready",
		Metadata:  meta,
		Settings:  initial,
		InputPath: inputPath,
		CreatedAt: r.now(),
	}}
	r.jobs[id] = e

	r.logger.Info("created job", "job_id", id, "filename", filename,
		"duration", meta.Duration, "width", meta.Width, "height", meta.Height)
	return e.job.Clone(), nil
}

func (r *Registry) lookup(op, id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.jobs[id]
	r.mu.RUnlock()

	if !ok {
		return nil, joberrors.StateError(op, id, joberrors.ErrUnknownJob)
	}
	return e, nil
}

// Get returns a snapshot of one job.
func (r *Registry) Get(id string) (types.Job, error) {
	e, err := r.lookup("get_job", id)
	if err != nil {
		return types.Job{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.job.Clone(), nil
}

// List returns a snapshot of every job, newest first. Each job is copied
// atomically; the set as a whole is not.
func (r *Registry) List() []types.Job {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.jobs))
	for _, e := range r.jobs {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	jobs := make([]types.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		jobs = append(jobs, e.job.Clone())
		e.mu.RUnlock()
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// Stats counts jobs by state.
func (r *Registry) Stats() types.Stats {
	var s types.Stats
	for _, job := range r.List() {
		s.Total++
		switch job.Status {
		case types.StatusIdle:
			if job.Queued {
				s.Queued++
			} else {
				s.Idle++
			}
		case types.StatusProcessing:
			s.Running++
		case types.StatusComplete:
			s.Completed++
		case types.StatusError:
			s.Errors++
		}
	}
	return s
}

// SettingsFunc computes new settings from the stored ones.
type SettingsFunc func(current types.Settings, meta types.Metadata) (types.Settings, error)

// UpdateSettings replaces a job's settings with the result of fn. It only
// succeeds while the job is idle and not yet scheduled; when fn fails the
// stored settings are left untouched.
func (r *Registry) UpdateSettings(id string, fn SettingsFunc) (types.Job, error) {
	e, err := r.lookup("update_settings", id)
	if err != nil {
		return types.Job{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Status != types.StatusIdle || e.reserved {
		return types.Job{}, joberrors.StateError("update_settings", id, joberrors.ErrNotIdle).
			WithDetail("status", e.job.Status)
	}

	next, err := fn(e.job.Settings, e.job.Metadata)
	if err != nil {
		return types.Job{}, err
	}

	e.job.Settings = next
	return e.job.Clone(), nil
}

// Reserve claims an idle job for scheduling. Exactly one caller wins; any
// later attempt, including while the job waits in the queue, fails with
// ErrAlreadyProcessing.
func (r *Registry) Reserve(id string) error {
	e, err := r.lookup("start", id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Status != types.StatusIdle || e.reserved {
		return joberrors.StateError("start", id, joberrors.ErrAlreadyProcessing).
			WithDetail("status", e.job.Status)
	}

	e.reserved = true
	e.job.Queued = true
	e.job.Message = "Queued"
	return nil
}

// Release undoes a reservation that could not be scheduled.
func (r *Registry) Release(id string) {
	e, err := r.lookup("release", id)
	if err != nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Status == types.StatusIdle && e.reserved {
		e.reserved = false
		e.job.Queued = false
		e.job.Message = "Ready"
	}
}

// Begin moves a reserved job to processing and returns the snapshot the
// worker runs with; its settings are the frozen copy.
func (r *Registry) Begin(id string) (types.Job, error) {
	e, err := r.lookup("begin", id)
	if err != nil {
		return types.Job{}, err
	}

	e.mu.Lock()
	if !e.reserved {
		e.mu.Unlock()
		return types.Job{}, joberrors.StateError("begin", id, joberrors.ErrInvalidTransition).
			WithDetail("status", e.job.Status)
	}
	if err := r.transition(e, types.StatusProcessing); err != nil {
		e.mu.Unlock()
		return types.Job{}, err
	}

	started := r.now()
	e.reserved = false
	e.job.Queued = false
	e.job.Progress = 0
	e.job.Message = "Starting"
	e.job.StartedAt = &started
	snapshot := e.job.Clone()
	e.mu.Unlock()

	r.logger.Info("job started", "job_id", id)
	r.notify(snapshot)
	return snapshot, nil
}

// ReportProgress records worker progress. Values never decrease and are
// capped below 100 until Complete.
func (r *Registry) ReportProgress(id string, progress int, message string) error {
	e, err := r.lookup("report_progress", id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Status != types.StatusProcessing {
		return joberrors.StateError("report_progress", id, joberrors.ErrInvalidTransition).
			WithDetail("status", e.job.Status)
	}

	if progress > MaxProgressBeforeComplete {
		progress = MaxProgressBeforeComplete
	}
	if progress > e.job.Progress {
		e.job.Progress = progress
	}
	if message != "" {
		e.job.Message = message
	}
	return nil
}

// Complete finishes a processing job with its artifact.
func (r *Registry) Complete(id, outputRef string, result types.Result) error {
	e, err := r.lookup("complete", id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if err := r.transition(e, types.StatusComplete); err != nil {
		e.mu.Unlock()
		return err
	}

	done := r.now()
	e.job.Progress = 100
	e.job.Message = "Video ready"
	e.job.Error = ""
	e.job.OutputRef = outputRef
	e.job.OutputFile = outputRef
	e.job.Result = &result
	e.job.CompletedAt = &done
	snapshot := e.job.Clone()
	e.mu.Unlock()

	r.logger.Info("job complete", "job_id", id, "output_ref", outputRef)
	r.notify(snapshot)
	return nil
}

// Fail moves a processing job, or a reserved job that has not been
// dispatched, to error. Progress keeps its last reported value.
func (r *Registry) Fail(id, reason string) error {
	e, err := r.lookup("fail", id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.job.Status == types.StatusIdle && !e.reserved {
		e.mu.Unlock()
		return joberrors.StateError("fail", id, joberrors.ErrInvalidTransition).
			WithDetail("status", e.job.Status)
	}
	if err := r.transition(e, types.StatusError); err != nil {
		e.mu.Unlock()
		return err
	}

	done := r.now()
	e.reserved = false
	e.job.Queued = false
	e.job.Error = reason
	e.job.Message = "Failed"
	e.job.CompletedAt = &done
	snapshot := e.job.Clone()
	e.mu.Unlock()

	r.logger.Warn("job failed", "job_id", id, "reason", reason)
	r.notify(snapshot)
	return nil
}

// transition validates and applies a status change. Caller holds e.mu.
func (r *Registry) transition(e *entry, to types.Status) error {
	from := e.job.Status
	if !IsValidTransition(from, to) {
		return joberrors.StateError("transition", e.job.ID,
			&TransitionError{JobID: e.job.ID, From: from, To: to})
	}
	e.job.Status = to

	r.logger.Debug("transitioned job state", "job_id", e.job.ID, "old_status", from, "new_status", to)
	return nil
}
