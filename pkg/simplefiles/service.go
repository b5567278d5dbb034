package simplefiles

import "context"

// Service defines the file lifecycle operations. Every operation addresses a
// file by its filename, except Stat and CompleteDelete which look a record up
// by FileID.
type Service interface {
	// Upload writes the blob, tombstones records it supersedes, then creates
	// an active FileRecord
	Upload(ctx context.Context, req UploadRequest) (*FileRecord, error)

	// Download records a DownloadEvent and returns an open blob stream
	Download(ctx context.Context, req DownloadRequest) (*Download, error)

	// Delete removes the blob, then tombstones the active record
	Delete(ctx context.Context, filename string) (*FileRecord, error)

	// CompleteDelete retries the metadata step of a Delete that reported a
	// partial failure. The record must be active and its blob already gone.
	CompleteDelete(ctx context.Context, fileID string) (*FileRecord, error)

	// List returns all active records in unspecified order
	List(ctx context.Context) ([]*FileRecord, error)

	// Stat returns the record for fileID, including tombstoned ones
	Stat(ctx context.Context, fileID string) (*FileRecord, error)
}
