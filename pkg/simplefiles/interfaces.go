package simplefiles

import (
	"context"
	"io"
	"time"
)

// BlobStore defines the interface for object storage backends.
//
// Implementations return errors wrapping ErrObjectNotFound for missing keys
// and classify backend failures as ErrConfiguration or ErrTransient.
type BlobStore interface {
	// Upload streams content to the store under params.ObjectKey
	Upload(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download opens a stream over the stored content
	Download(ctx context.Context, objectKey string) (*Blob, error)

	// Exists reports whether an object is stored under the key
	Exists(ctx context.Context, objectKey string) (bool, error)

	// Delete removes the object
	Delete(ctx context.Context, objectKey string) error
}

// MetadataStore defines the interface for file record persistence.
//
// The store is passive. It applies the conditions it is asked to apply and
// holds no business rules of its own.
type MetadataStore interface {
	// PutRecord creates a new record. Returns ErrAlreadyExists when a record
	// with the same FileID, or an active record with the same Filename, exists.
	PutRecord(ctx context.Context, record *FileRecord) error

	// GetRecord returns the record for fileID, active or not.
	GetRecord(ctx context.Context, fileID string) (*FileRecord, error)

	// SetDeleteDate sets delete_date only if the record is currently active.
	// Returns ErrConditionFailed when it is already deleted and
	// ErrRecordNotFound when there is no such record.
	SetDeleteDate(ctx context.Context, fileID string, deletedAt time.Time) error

	// Scan returns records matching the filter. Unless IncludeDeleted is set
	// only active records are returned, filtered inside the store.
	Scan(ctx context.Context, filter ScanFilter) ([]*FileRecord, error)

	// PutDownloadEvent appends an audit entry
	PutDownloadEvent(ctx context.Context, event *DownloadEvent) error
}

// EventSink receives lifecycle notifications after an operation succeeded or
// partially failed. Errors returned by a sink are logged and never fail the
// operation.
type EventSink interface {
	FileUploaded(ctx context.Context, record *FileRecord) error
	FileDownloaded(ctx context.Context, event *DownloadEvent) error
	FileDeleted(ctx context.Context, record *FileRecord) error
	PartialFailure(ctx context.Context, err *PartialFailureError) error
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
	// Size is the declared content length, or -1 when unknown
	Size int64
}

// Blob is an open object stream returned by a BlobStore
type Blob struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}
