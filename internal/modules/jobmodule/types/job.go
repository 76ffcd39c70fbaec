// Package types provides the data model shared by the job module packages.
package types

import "time"

// Status is the lifecycle state of a job.
type Status string

const (
	// StatusIdle is the state of an uploaded job that has not started yet.
	// Queued jobs are also idle.
	StatusIdle Status = "idle"
	// StatusProcessing means a worker owns the job and is transcoding it.
	StatusProcessing Status = "processing"
	// StatusComplete is terminal; the artifact is available for download.
	StatusComplete Status = "complete"
	// StatusError is terminal; Error holds the reason.
	StatusError Status = "error"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// Metadata is what the prober extracts from an upload. It is set once.
type Metadata struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

// Result describes the artifact produced by a completed job.
type Result struct {
	Filename         string  `json:"filename"`
	Format           string  `json:"format"`
	TrimDuration     float64 `json:"trim_duration"`
	OutputResolution string  `json:"output_resolution"`
	Bitrate          string  `json:"bitrate"`
	Framerate        int     `json:"framerate"`
	Speed            float64 `json:"speed"`
	Rotation         string  `json:"rotation"`
	AspectRatio      string  `json:"aspect_ratio"`
	SizeBytes        int64   `json:"size_bytes"`
}

// Job is one uploaded video's processing record.
//
// Values of this type handed out by the registry are snapshots; mutating
// them has no effect on the stored job.
type Job struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	Status      Status     `json:"status"`
	Queued      bool       `json:"queued"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message"`
	Error       string     `json:"error,omitempty"`
	Metadata    Metadata   `json:"metadata"`
	Settings    Settings   `json:"settings"`
	OutputRef   string     `json:"output_ref,omitempty"`
	OutputFile  string     `json:"output_file,omitempty"`
	Result      *Result    `json:"result,omitempty"`
	InputPath   string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// Stats summarizes the registry for the polling surface.
type Stats struct {
	Total     int `json:"total"`
	Idle      int `json:"idle"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Errors    int `json:"errors"`
}
