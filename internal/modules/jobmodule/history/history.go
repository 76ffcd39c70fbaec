// Package history archives finished jobs to a SQL database.
//
// The archive is append-only and write-mostly: it records one row per
// terminal transition for auditing and offline reporting. Job state is
// never restored from it; the in-memory registry stays authoritative.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
)

const recordTimeout = 5 * time.Second

// Recent page sizes.
const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

// JobRecord is one archived terminal job.
type JobRecord struct {
	ID          uint32     `gorm:"primaryKey" json:"id"`
	JobID       string     `gorm:"index;not null" json:"job_id"`
	Filename    string     `json:"filename"`
	Status      string     `gorm:"index;not null" json:"status"`
	Error       string     `json:"error,omitempty"`
	OutputRef   string     `json:"output_ref,omitempty"`
	Format      string     `json:"format"`
	Quality     string     `json:"quality"`
	AspectRatio string     `json:"aspect_ratio"`
	Rotation    string     `json:"rotation"`
	Framerate   int        `json:"framerate"`
	Speed       float64    `json:"speed"`
	TrimStart   float64    `json:"trim_start"`
	TrimEnd     float64    `json:"trim_end"`
	Duration    float64    `json:"duration"`
	SizeBytes   int64      `json:"size_bytes"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"index" json:"completed_at,omitempty"`
	ElapsedMs   int64      `json:"elapsed_ms"`
}

// TableName specifies the table name for JobRecord
func (JobRecord) TableName() string {
	return "job_history"
}

// FromJob converts a job snapshot into an archive row.
func FromJob(job types.Job) JobRecord {
	rec := JobRecord{
		JobID:       job.ID,
		Filename:    job.Filename,
		Status:      string(job.Status),
		Error:       job.Error,
		OutputRef:   job.OutputRef,
		Format:      job.Settings.OutputFormat,
		Quality:     job.Settings.Quality,
		AspectRatio: job.Settings.AspectRatio,
		Rotation:    job.Settings.Rotation,
		Framerate:   job.Settings.Framerate,
		Speed:       job.Settings.Speed,
		TrimStart:   job.Settings.TrimStart,
		TrimEnd:     job.Settings.TrimEnd,
		Duration:    job.Metadata.Duration,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.Result != nil {
		rec.SizeBytes = job.Result.SizeBytes
	}
	if job.StartedAt != nil && job.CompletedAt != nil {
		rec.ElapsedMs = job.CompletedAt.Sub(*job.StartedAt).Milliseconds()
	}
	return rec
}

// Store writes job records through gorm.
type Store struct {
	db     *gorm.DB
	logger hclog.Logger
}

// Open connects to a sqlite or postgres database and migrates the schema.
func Open(dbType, dsn string, logger hclog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch dbType {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
	return open(dialector, dbType, logger)
}

// open connects through dialector and migrates. The connection is closed
// again when migration fails.
func open(dialector gorm.Dialector, dbType string, logger hclog.Logger) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s history database: %w", dbType, err)
	}

	s := NewStore(db, logger)
	if err := s.Migrate(); err != nil {
		if closeErr := s.Close(); closeErr != nil {
			s.logger.Warn("failed to close history database", "error", closeErr)
		}
		return nil, err
	}
	s.logger.Info("job history enabled", "type", dbType)
	return s, nil
}

// NewStore wraps an existing connection without migrating.
func NewStore(db *gorm.DB, logger hclog.Logger) *Store {
	return &Store{db: db, logger: logger.Named("history")}
}

// Migrate creates or updates the history table.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&JobRecord{}); err != nil {
		return fmt.Errorf("failed to migrate job history: %w", err)
	}
	return nil
}

// Record archives a terminal job. Non-terminal snapshots are ignored.
func (s *Store) Record(ctx context.Context, job types.Job) error {
	if !job.Status.IsTerminal() {
		return nil
	}
	rec := FromJob(job)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to record job %s: %w", job.ID, err)
	}
	return nil
}

// Recent returns up to limit records, most recently completed first.
// limit must lie in [1, MaxRecentLimit].
func (s *Store) Recent(ctx context.Context, limit int) ([]JobRecord, error) {
	if limit <= 0 || limit > MaxRecentLimit {
		return nil, fmt.Errorf("history limit %d is outside [1, %d]", limit, MaxRecentLimit)
	}
	var records []JobRecord
	err := s.db.WithContext(ctx).
		Order("completed_at desc").
		Order("id desc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query job history: %w", err)
	}
	return records, nil
}

// Observe is a registry observer that archives terminal transitions.
// Failures are logged and never propagate to the job.
func (s *Store) Observe(job types.Job) {
	if !job.Status.IsTerminal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := s.Record(ctx, job); err != nil {
		s.logger.Warn("failed to archive job", "job_id", job.ID, "error", err)
	}
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
