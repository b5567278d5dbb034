package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tendant/simple-files/pkg/simplefiles"
)

// setupTestDB starts PostgreSQL in a container and applies the migrations.
func setupTestDB(t *testing.T) *Repository {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Skipping integration test: TEST_INTEGRATION is not set")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		tcpostgres.WithDatabase("files_test"),
		tcpostgres.WithUsername("files"),
		tcpostgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	databaseURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := Connect(ctx, databaseURL, "files")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, Migrate(ctx, pool, databaseURL, "files", logger))
	// Re-running is a no-op
	require.NoError(t, Migrate(ctx, pool, databaseURL, "files", logger))

	return NewWithPool(pool)
}

func newRecord(filename string, uploaded time.Time) *simplefiles.FileRecord {
	return &simplefiles.FileRecord{
		FileID:      uuid.NewString(),
		Filename:    filename,
		Size:        7,
		ContentType: "text/plain",
		UploadDate:  uploaded.UTC().Truncate(time.Microsecond),
	}
}

func TestPostgresRepository_Records(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	record := newRecord("a.txt", now)
	require.NoError(t, repo.PutRecord(ctx, record))

	got, err := repo.GetRecord(ctx, record.FileID)
	require.NoError(t, err)
	assert.Equal(t, record, got)

	// Second active record for the same filename is rejected by the partial index
	err = repo.PutRecord(ctx, newRecord("a.txt", now))
	assert.ErrorIs(t, err, simplefiles.ErrAlreadyExists)

	_, err = repo.GetRecord(ctx, uuid.NewString())
	assert.ErrorIs(t, err, simplefiles.ErrRecordNotFound)

	require.NoError(t, repo.SetDeleteDate(ctx, record.FileID, now.Add(time.Second)))
	err = repo.SetDeleteDate(ctx, record.FileID, now.Add(2*time.Second))
	assert.ErrorIs(t, err, simplefiles.ErrConditionFailed)
	err = repo.SetDeleteDate(ctx, uuid.NewString(), now)
	assert.ErrorIs(t, err, simplefiles.ErrRecordNotFound)

	// Filename is free again
	replacement := newRecord("a.txt", now.Add(3*time.Second))
	require.NoError(t, repo.PutRecord(ctx, replacement))

	active, err := repo.Scan(ctx, simplefiles.ScanFilter{Filename: "a.txt"})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, replacement.FileID, active[0].FileID)

	all, err := repo.Scan(ctx, simplefiles.ScanFilter{Filename: "a.txt", IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, record.FileID, all[0].FileID)
	assert.NotNil(t, all[0].DeleteDate)
}

func TestPostgresRepository_ConcurrentDelete(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	record := newRecord("race.txt", time.Now())
	require.NoError(t, repo.PutRecord(ctx, record))

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.SetDeleteDate(ctx, record.FileID, time.Now())
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, simplefiles.ErrConditionFailed)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestPostgresRepository_DownloadEvents(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	event := &simplefiles.DownloadEvent{
		DownloadID:       uuid.NewString(),
		Filename:         "a.txt",
		DownloadDate:     time.Now().UTC(),
		RequesterAddress: "192.0.2.10",
		UserAgent:        "curl/8.0",
	}
	require.NoError(t, repo.PutDownloadEvent(ctx, event))
	assert.ErrorIs(t, repo.PutDownloadEvent(ctx, event), simplefiles.ErrAlreadyExists)

	events, err := repo.DownloadEvents(ctx, "a.txt")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "192.0.2.10", events[0].RequesterAddress)
	assert.Equal(t, "curl/8.0", events[0].UserAgent)
}

func TestHandlePostgresError(t *testing.T) {
	repo := &Repository{}

	tests := []struct {
		name string
		err  error
		want simplefiles.ErrorKind
	}{
		{"no rows", pgx.ErrNoRows, simplefiles.KindNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, simplefiles.KindConflict},
		{"missing table", &pgconn.PgError{Code: "42P01"}, simplefiles.KindConfiguration},
		{"bad password", &pgconn.PgError{Code: "28P01"}, simplefiles.KindConfiguration},
		{"serialization", &pgconn.PgError{Code: "40001"}, simplefiles.KindTransient},
		{"network", errors.New("connection reset by peer"), simplefiles.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.handlePostgresError("test", "key", tt.err)
			assert.Equal(t, tt.want, simplefiles.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMigrationURL(t *testing.T) {
	got, err := migrationURL("postgres://u:p@localhost:5432/db?sslmode=disable", "files")
	require.NoError(t, err)
	assert.Equal(t, "pgx5://u:p@localhost:5432/db?search_path=files&sslmode=disable", got)

	got, err = migrationURL("postgresql://localhost/db", "")
	require.NoError(t, err)
	assert.Equal(t, "pgx5://localhost/db", got)

	_, err = migrationURL("mysql://localhost/db", "")
	assert.ErrorIs(t, err, simplefiles.ErrConfiguration)
}
