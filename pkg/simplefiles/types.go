package simplefiles

import (
	"io"
	"time"
)

// DefaultContentType is used for blobs uploaded without a MIME type.
const DefaultContentType = "application/octet-stream"

// FileRecord represents one uploaded file's lifecycle state.
//
// DeleteDate is nil while the file is active. Once set it is never cleared.
type FileRecord struct {
	FileID      string     `json:"file_id"`
	Filename    string     `json:"filename"`
	Size        int64      `json:"size"`
	ContentType string     `json:"content_type,omitempty"`
	UploadDate  time.Time  `json:"upload_date"`
	DeleteDate  *time.Time `json:"delete_date,omitempty"`
}

// IsActive reports whether the record has not been soft-deleted.
func (r *FileRecord) IsActive() bool {
	return r.DeleteDate == nil
}

// DownloadEvent is a write-once audit entry for one download access.
type DownloadEvent struct {
	DownloadID       string    `json:"download_id"`
	Filename         string    `json:"filename"`
	DownloadDate     time.Time `json:"download_date"`
	RequesterAddress string    `json:"requester_address"`
	UserAgent        string    `json:"user_agent,omitempty"`
}

// ScanFilter narrows a metadata scan.
type ScanFilter struct {
	// Filename restricts the scan to records for one filename
	Filename string
	// IncludeDeleted returns tombstoned records as well as active ones
	IncludeDeleted bool
}

// UploadRequest contains parameters for uploading a file
type UploadRequest struct {
	Filename    string
	ContentType string
	// Size is the declared length, or -1 when unknown. The recorded size is
	// always the number of bytes actually written.
	Size   int64
	Reader io.Reader
}

// DownloadRequest contains parameters for downloading a file
type DownloadRequest struct {
	Filename         string
	RequesterAddress string
	UserAgent        string
}

// Download is an open blob stream handed back to the caller, who must Close it.
type Download struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
	// Size is -1 when the backend does not report a length
	Size int64
}
