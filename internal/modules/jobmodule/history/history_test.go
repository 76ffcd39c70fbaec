package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("sqlite", ":memory:", hclog.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func terminalJob(id string, status types.Status, completed time.Time) types.Job {
	started := completed.Add(-3 * time.Second)
	return types.Job{
		ID:       id,
		Filename: "clip.mp4",
		Status:   status,
		Metadata: types.Metadata{Duration: 10, Width: 1920, Height: 1080},
		Settings: types.Settings{
			OutputFormat: "mp4", Quality: "720p", AspectRatio: "16:9",
			TrimStart: 1, TrimEnd: 9, Rotation: "none", Framerate: 30, Speed: 1,
		},
		OutputRef:   "video_" + id + ".mp4",
		Result:      &types.Result{SizeBytes: 2048},
		CreatedAt:   started.Add(-time.Second),
		StartedAt:   &started,
		CompletedAt: &completed,
	}
}

func TestFromJob(t *testing.T) {
	now := time.Now()
	rec := FromJob(terminalJob("ab12cd34", types.StatusComplete, now))

	assert.Equal(t, "ab12cd34", rec.JobID)
	assert.Equal(t, "complete", rec.Status)
	assert.Equal(t, "720p", rec.Quality)
	assert.Equal(t, int64(2048), rec.SizeBytes)
	assert.Equal(t, int64(3000), rec.ElapsedMs)
	assert.Equal(t, "job_history", rec.TableName())
}

func TestStore_RecordAndRecent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, store.Record(ctx, terminalJob("old00000", types.StatusComplete, base)))
	failed := terminalJob("new00000", types.StatusError, base.Add(time.Minute))
	failed.Error = "transcode failed: exit status 1"
	failed.OutputRef, failed.Result = "", nil
	require.NoError(t, store.Record(ctx, failed))

	records, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "new00000", records[0].JobID)
	assert.Equal(t, "error", records[0].Status)
	assert.Equal(t, "transcode failed: exit status 1", records[0].Error)
	assert.Equal(t, "old00000", records[1].JobID)

	limited, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_IgnoresNonTerminal(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.Record(context.Background(), types.Job{ID: "idle0000", Status: types.StatusIdle}))
	store.Observe(types.Job{ID: "proc0000", Status: types.StatusProcessing})

	records, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_Observe(t *testing.T) {
	store := setupTestStore(t)

	store.Observe(terminalJob("obs00000", types.StatusComplete, time.Now()))

	records, err := store.Recent(context.Background(), DefaultRecentLimit)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "obs00000", records[0].JobID)
}

func TestOpen_UnsupportedType(t *testing.T) {
	_, err := Open("oracle", "dsn", hclog.NewNullLogger())
	assert.Error(t, err)
}

// newMockStore creates a postgres-dialect store backed by go-sqlmock.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	dialector := postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})
	db, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)
	return NewStore(db, hclog.NewNullLogger()), mock
}

func TestStore_RecordPostgres(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "job_history"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	require.NoError(t, store.Record(context.Background(), terminalJob("pg000000", types.StatusComplete, time.Now())))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RecordPostgresFailureIsReported(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "job_history"`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.Record(context.Background(), terminalJob("pg000001", types.StatusError, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pg000001")

	// Observe swallows the same failure.
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "job_history"`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()
	store.Observe(terminalJob("pg000002", types.StatusError, time.Now()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_ClosesConnectionWhenMigrationFails(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	dialector := postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})
	store, err := open(dialector, "postgres", hclog.NewNullLogger())
	require.Error(t, err)
	assert.Nil(t, store)
	assert.Contains(t, err.Error(), "failed to migrate job history")
	assert.NoError(t, mock.ExpectationsWereMet(), "the connection must be closed")
}

func TestStore_RecentRejectsOutOfRangeLimit(t *testing.T) {
	store := setupTestStore(t)

	for _, limit := range []int{0, -1, MaxRecentLimit + 1} {
		_, err := store.Recent(context.Background(), limit)
		assert.Error(t, err, "limit %d", limit)
	}

	records, err := store.Recent(context.Background(), MaxRecentLimit)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_RecentPostgres(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "job_id", "status", "completed_at"}).
		AddRow(2, "b0000000", "complete", now).
		AddRow(1, "a0000000", "error", now.Add(-time.Minute))
	mock.ExpectQuery(`SELECT \* FROM "job_history" ORDER BY completed_at desc,id desc`).WillReturnRows(rows)

	records, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b0000000", records[0].JobID)
	assert.Equal(t, "error", records[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
