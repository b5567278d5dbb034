package simplefiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// service implements the Service interface
type service struct {
	metadata  MetadataStore
	blobStore BlobStore
	eventSink EventSink
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithMetadataStore sets the metadata store for the service
func WithMetadataStore(store MetadataStore) Option {
	return func(s *service) {
		s.metadata = store
	}
}

// WithBlobStore sets the object store for the service
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the logger used for sink failures
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides the time source; used by tests
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithIDGenerator overrides NewID; used by tests
func WithIDGenerator(newID func() string) Option {
	return func(s *service) {
		s.newID = newID
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		eventSink: NewNoopEventSink(),
		logger:    slog.Default(),
		now:       time.Now,
		newID:     NewID,
	}

	for _, option := range options {
		option(s)
	}

	if s.metadata == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}

	return s, nil
}

func (s *service) Upload(ctx context.Context, req UploadRequest) (*FileRecord, error) {
	if err := ValidateFilename(req.Filename); err != nil {
		return nil, &FileError{Filename: req.Filename, Op: "upload", Err: err}
	}
	if req.Reader == nil {
		return nil, &FileError{Filename: req.Filename, Op: "upload", Err: errors.New("content reader is required")}
	}

	record := &FileRecord{
		FileID:      s.newID(),
		Filename:    req.Filename,
		ContentType: NormalizeContentType(req.ContentType),
	}

	counter := &countingReader{r: req.Reader}
	params := UploadParams{
		ObjectKey: req.Filename,
		MimeType:  record.ContentType,
		Size:      req.Size,
	}
	// No record is written unless the blob is fully stored.
	if err := s.blobStore.Upload(ctx, counter, params); err != nil {
		return nil, &FileError{Filename: req.Filename, Op: "upload", Err: err}
	}

	record.Size = counter.n
	record.UploadDate = s.now().UTC()

	if err := s.putActiveRecord(ctx, record); err != nil {
		partial := &PartialFailureError{
			Op:        "upload",
			Filename:  record.Filename,
			FileID:    record.FileID,
			Completed: "blob stored",
			Err:       err,
		}
		s.notify(ctx, "partial_failure", s.eventSink.PartialFailure(ctx, partial))
		return nil, &FileError{Filename: req.Filename, Op: "upload", Err: partial}
	}

	s.notify(ctx, "file_uploaded", s.eventSink.FileUploaded(ctx, record))
	return record, nil
}

func (s *service) Download(ctx context.Context, req DownloadRequest) (*Download, error) {
	if err := ValidateFilename(req.Filename); err != nil {
		return nil, &FileError{Filename: req.Filename, Op: "download", Err: err}
	}

	blob, err := s.blobStore.Download(ctx, req.Filename)
	if err != nil {
		return nil, &FileError{Filename: req.Filename, Op: "download", Err: err}
	}

	event := &DownloadEvent{
		DownloadID:       s.newID(),
		Filename:         req.Filename,
		DownloadDate:     s.now().UTC(),
		RequesterAddress: req.RequesterAddress,
		UserAgent:        req.UserAgent,
	}
	// The audit entry is a precondition for serving the bytes.
	if err := s.metadata.PutDownloadEvent(ctx, event); err != nil {
		blob.Body.Close()
		return nil, &FileError{Filename: req.Filename, Op: "download", Err: err}
	}

	s.notify(ctx, "file_downloaded", s.eventSink.FileDownloaded(ctx, event))

	return &Download{
		Body:        blob.Body,
		Filename:    req.Filename,
		ContentType: blob.ContentType,
		Size:        blob.Size,
	}, nil
}

func (s *service) Delete(ctx context.Context, filename string) (*FileRecord, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, &FileError{Filename: filename, Op: "delete", Err: err}
	}

	record, err := s.activeRecord(ctx, filename)
	if err != nil {
		return nil, &FileError{Filename: filename, Op: "delete", Err: err}
	}

	exists, err := s.blobStore.Exists(ctx, filename)
	if err != nil {
		return nil, &FileError{Filename: filename, Op: "delete", Err: err}
	}
	if !exists {
		return nil, &FileError{Filename: filename, Op: "delete", Err: ErrObjectNotFound}
	}

	if err := s.blobStore.Delete(ctx, filename); err != nil {
		return nil, &FileError{Filename: filename, Op: "delete", Err: err}
	}

	deletedAt := s.now().UTC()
	if err := s.metadata.SetDeleteDate(ctx, record.FileID, deletedAt); err != nil {
		if errors.Is(err, ErrConditionFailed) || errors.Is(err, ErrRecordNotFound) {
			// A concurrent delete tombstoned the record first.
			return nil, &FileError{Filename: filename, Op: "delete", Err: fmt.Errorf("%w: %w", ErrNotFound, err)}
		}
		partial := &PartialFailureError{
			Op:        "delete",
			Filename:  filename,
			FileID:    record.FileID,
			Completed: "blob deleted",
			Err:       err,
		}
		s.notify(ctx, "partial_failure", s.eventSink.PartialFailure(ctx, partial))
		return nil, &FileError{Filename: filename, Op: "delete", Err: partial}
	}

	record.DeleteDate = &deletedAt
	s.notify(ctx, "file_deleted", s.eventSink.FileDeleted(ctx, record))
	return record, nil
}

func (s *service) CompleteDelete(ctx context.Context, fileID string) (*FileRecord, error) {
	if fileID == "" {
		return nil, &FileError{Op: "complete_delete", Err: ErrRecordNotFound}
	}

	record, err := s.metadata.GetRecord(ctx, fileID)
	if err != nil {
		return nil, &FileError{Op: "complete_delete", Err: err}
	}
	if !record.IsActive() {
		return nil, &FileError{Filename: record.Filename, Op: "complete_delete", Err: fmt.Errorf("%w: record already deleted", ErrNotFound)}
	}

	exists, err := s.blobStore.Exists(ctx, record.Filename)
	if err != nil {
		return nil, &FileError{Filename: record.Filename, Op: "complete_delete", Err: err}
	}
	if exists {
		// Tombstoning now would leave a live blob without a record.
		return nil, &FileError{Filename: record.Filename, Op: "complete_delete", Err: ErrBlobStillExists}
	}

	deletedAt := s.now().UTC()
	if err := s.metadata.SetDeleteDate(ctx, record.FileID, deletedAt); err != nil {
		if errors.Is(err, ErrConditionFailed) || errors.Is(err, ErrRecordNotFound) {
			return nil, &FileError{Filename: record.Filename, Op: "complete_delete", Err: fmt.Errorf("%w: %w", ErrNotFound, err)}
		}
		return nil, &FileError{Filename: record.Filename, Op: "complete_delete", Err: err}
	}

	record.DeleteDate = &deletedAt
	s.notify(ctx, "file_deleted", s.eventSink.FileDeleted(ctx, record))
	return record, nil
}

func (s *service) List(ctx context.Context) ([]*FileRecord, error) {
	records, err := s.metadata.Scan(ctx, ScanFilter{})
	if err != nil {
		return nil, &FileError{Op: "list", Err: err}
	}

	// Stores filter server-side; this guards against backends whose filter
	// is looser than the contract.
	active := records[:0]
	for _, r := range records {
		if r.IsActive() {
			active = append(active, r)
		}
	}
	return active, nil
}

func (s *service) Stat(ctx context.Context, fileID string) (*FileRecord, error) {
	if fileID == "" {
		return nil, &FileError{Op: "stat", Err: ErrRecordNotFound}
	}
	record, err := s.metadata.GetRecord(ctx, fileID)
	if err != nil {
		return nil, &FileError{Op: "stat", Err: err}
	}
	return record, nil
}

// maxPutAttempts bounds how often Upload re-runs supersede and PutRecord when
// a concurrent upload of the same filename inserts its record in between.
const maxPutAttempts = 3

// putActiveRecord makes record the only active record for its filename.
// Superseded records are tombstoned before the insert so that stores which
// enforce one active record per filename accept it.
func (s *service) putActiveRecord(ctx context.Context, record *FileRecord) error {
	var err error
	for attempt := 0; attempt < maxPutAttempts; attempt++ {
		if err = s.supersede(ctx, record.Filename, record.UploadDate); err != nil {
			return err
		}
		err = s.metadata.PutRecord(ctx, record)
		if !errors.Is(err, ErrAlreadyExists) {
			return err
		}
	}
	return err
}

// supersede tombstones every active record for filename. A record tombstoned
// concurrently by someone else is not an error.
func (s *service) supersede(ctx context.Context, filename string, at time.Time) error {
	records, err := s.metadata.Scan(ctx, ScanFilter{Filename: filename})
	if err != nil {
		return err
	}
	for _, r := range records {
		if !r.IsActive() || r.Filename != filename {
			continue
		}
		err := s.metadata.SetDeleteDate(ctx, r.FileID, at)
		if err != nil && !errors.Is(err, ErrConditionFailed) && !errors.Is(err, ErrRecordNotFound) {
			return err
		}
	}
	return nil
}

// activeRecord resolves the single active record for filename. When more
// than one is found the most recently uploaded wins.
func (s *service) activeRecord(ctx context.Context, filename string) (*FileRecord, error) {
	records, err := s.metadata.Scan(ctx, ScanFilter{Filename: filename})
	if err != nil {
		return nil, err
	}

	var latest *FileRecord
	for _, r := range records {
		if !r.IsActive() || r.Filename != filename {
			continue
		}
		if latest == nil || r.UploadDate.After(latest.UploadDate) {
			latest = r
		}
	}
	if latest == nil {
		return nil, ErrRecordNotFound
	}
	return latest, nil
}

func (s *service) notify(ctx context.Context, event string, err error) {
	if err != nil {
		s.logger.WarnContext(ctx, "Event sink failed", "event", event, "error", err)
	}
}

// countingReader counts the bytes read through it
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
