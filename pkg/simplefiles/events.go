package simplefiles

import (
	"context"
	"errors"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) FileUploaded(ctx context.Context, record *FileRecord) error { return nil }

func (n *NoopEventSink) FileDownloaded(ctx context.Context, event *DownloadEvent) error { return nil }

func (n *NoopEventSink) FileDeleted(ctx context.Context, record *FileRecord) error { return nil }

func (n *NoopEventSink) PartialFailure(ctx context.Context, err *PartialFailureError) error {
	return nil
}

// LoggingEventSink writes one structured log line per lifecycle event
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates an event sink that logs through logger.
// A nil logger uses slog.Default().
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) FileUploaded(ctx context.Context, record *FileRecord) error {
	l.logger.InfoContext(ctx, "File uploaded",
		"file_id", record.FileID,
		"filename", record.Filename,
		"size", record.Size)
	return nil
}

func (l *LoggingEventSink) FileDownloaded(ctx context.Context, event *DownloadEvent) error {
	l.logger.InfoContext(ctx, "File downloaded",
		"download_id", event.DownloadID,
		"filename", event.Filename,
		"requester_address", event.RequesterAddress)
	return nil
}

func (l *LoggingEventSink) FileDeleted(ctx context.Context, record *FileRecord) error {
	l.logger.InfoContext(ctx, "File deleted",
		"file_id", record.FileID,
		"filename", record.Filename)
	return nil
}

// PartialFailure logs at error level so that reconciliation can find it
func (l *LoggingEventSink) PartialFailure(ctx context.Context, err *PartialFailureError) error {
	l.logger.ErrorContext(ctx, "Stores left inconsistent",
		"op", err.Op,
		"file_id", err.FileID,
		"filename", err.Filename,
		"completed", err.Completed,
		"error", err.Err)
	return nil
}

// MultiEventSink fans every event out to all of its sinks
type MultiEventSink []EventSink

func (m MultiEventSink) FileUploaded(ctx context.Context, record *FileRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.FileUploaded(ctx, record))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) FileDownloaded(ctx context.Context, event *DownloadEvent) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.FileDownloaded(ctx, event))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) FileDeleted(ctx context.Context, record *FileRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.FileDeleted(ctx, record))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) PartialFailure(ctx context.Context, err *PartialFailureError) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.PartialFailure(ctx, err))
	}
	return errors.Join(errs...)
}
