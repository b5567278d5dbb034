package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-files/pkg/simplefiles"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simplefiles.MetadataStore using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// handlePostgresError maps a driver error onto the simplefiles error kinds
func (r *Repository) handlePostgresError(op, key string, err error) error {
	kind := simplefiles.ErrTransient

	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		kind = simplefiles.ErrRecordNotFound
	case errors.As(err, &pgErr):
		switch {
		case pgErr.Code == "23505": // unique_violation
			kind = simplefiles.ErrAlreadyExists
		case pgErr.Code == "42P01", // undefined_table: migration required
			pgErr.Code == "3F000", // invalid_schema_name
			pgErr.Code == "3D000", // invalid_catalog_name
			strings.HasPrefix(pgErr.Code, "28"): // invalid authorization
			kind = simplefiles.ErrConfiguration
		}
	}

	return simplefiles.NewStorageError("postgres", op, key, kind, err)
}

const recordColumns = `file_id, filename, size, content_type, upload_date, delete_date`

func scanRecord(row pgx.Row) (*simplefiles.FileRecord, error) {
	var record simplefiles.FileRecord
	err := row.Scan(
		&record.FileID, &record.Filename, &record.Size,
		&record.ContentType, &record.UploadDate, &record.DeleteDate)
	if err != nil {
		return nil, err
	}
	record.UploadDate = record.UploadDate.UTC()
	if record.DeleteDate != nil {
		t := record.DeleteDate.UTC()
		record.DeleteDate = &t
	}
	return &record, nil
}

func (r *Repository) PutRecord(ctx context.Context, record *simplefiles.FileRecord) error {
	query := `
		INSERT INTO files (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		record.FileID, record.Filename, record.Size,
		record.ContentType, record.UploadDate, record.DeleteDate)
	if err != nil {
		return r.handlePostgresError("put_record", record.Filename, err)
	}
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, fileID string) (*simplefiles.FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM files WHERE file_id = $1`

	record, err := scanRecord(r.db.QueryRow(ctx, query, fileID))
	if err != nil {
		return nil, r.handlePostgresError("get_record", fileID, err)
	}
	return record, nil
}

// SetDeleteDate tombstones the record only while delete_date is still NULL.
// Postgres evaluates the predicate under a row lock, so concurrent callers
// cannot both update it.
func (r *Repository) SetDeleteDate(ctx context.Context, fileID string, deletedAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE files SET delete_date = $2 WHERE file_id = $1 AND delete_date IS NULL`,
		fileID, deletedAt)
	if err != nil {
		return r.handlePostgresError("set_delete_date", fileID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM files WHERE file_id = $1)`, fileID).Scan(&exists); err != nil {
		return r.handlePostgresError("set_delete_date", fileID, err)
	}
	if !exists {
		return simplefiles.NewStorageError("postgres", "set_delete_date", fileID, simplefiles.ErrRecordNotFound, nil)
	}
	return simplefiles.NewStorageError("postgres", "set_delete_date", fileID, simplefiles.ErrConditionFailed, nil)
}

func (r *Repository) Scan(ctx context.Context, filter simplefiles.ScanFilter) ([]*simplefiles.FileRecord, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.Filename != "" {
		args = append(args, filter.Filename)
		conditions = append(conditions, fmt.Sprintf("filename = $%d", len(args)))
	}
	if !filter.IncludeDeleted {
		conditions = append(conditions, "delete_date IS NULL")
	}

	query := `SELECT ` + recordColumns + ` FROM files`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY upload_date ASC, file_id ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("scan", filter.Filename, err)
	}
	defer rows.Close()

	result := make([]*simplefiles.FileRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan", filter.Filename, err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("scan", filter.Filename, err)
	}
	return result, nil
}

func (r *Repository) PutDownloadEvent(ctx context.Context, event *simplefiles.DownloadEvent) error {
	query := `
		INSERT INTO download_events (download_id, filename, download_date, requester_address, user_agent)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query,
		event.DownloadID, event.Filename, event.DownloadDate,
		event.RequesterAddress, event.UserAgent)
	if err != nil {
		return r.handlePostgresError("put_download_event", event.DownloadID, err)
	}
	return nil
}

// DownloadEvents returns the audit entries for filename, oldest first
func (r *Repository) DownloadEvents(ctx context.Context, filename string) ([]*simplefiles.DownloadEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT download_id, filename, download_date, requester_address, user_agent
		FROM download_events WHERE filename = $1 ORDER BY download_date ASC`, filename)
	if err != nil {
		return nil, r.handlePostgresError("download_events", filename, err)
	}
	defer rows.Close()

	var events []*simplefiles.DownloadEvent
	for rows.Next() {
		var e simplefiles.DownloadEvent
		if err := rows.Scan(&e.DownloadID, &e.Filename, &e.DownloadDate, &e.RequesterAddress, &e.UserAgent); err != nil {
			return nil, r.handlePostgresError("download_events", filename, err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("download_events", filename, err)
	}
	return events, nil
}
