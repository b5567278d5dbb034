package simplefiles

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the Service maps to exactly one of
// them through KindOf.
var (
	// ErrConfiguration indicates invalid store credentials or configuration.
	// Not retryable without operator action.
	ErrConfiguration = errors.New("store configuration error")

	// ErrNotFound indicates the file or record is absent or already deleted
	ErrNotFound = errors.New("not found")

	// ErrPartialFailure indicates one store succeeded and the other failed
	ErrPartialFailure = errors.New("partial failure")

	// ErrTransient indicates a network or throttling failure; safe to retry
	ErrTransient = errors.New("transient store error")
)

// Store-level and input errors.
var (
	// ErrObjectNotFound indicates the blob is missing from the object store
	ErrObjectNotFound error = &kindError{msg: "object not found", kind: ErrNotFound}

	// ErrRecordNotFound indicates the record is missing from the metadata store
	ErrRecordNotFound error = &kindError{msg: "record not found", kind: ErrNotFound}

	// ErrConditionFailed indicates a conditional update lost to a concurrent writer
	ErrConditionFailed = errors.New("condition failed")

	// ErrAlreadyExists indicates a record with the same identity already exists
	ErrAlreadyExists = errors.New("file already exists")

	// ErrBlobStillExists indicates CompleteDelete found the blob in place
	ErrBlobStillExists error = &kindError{msg: "blob still exists", kind: ErrAlreadyExists}

	// ErrInvalidFilename indicates an empty or unsafe filename
	ErrInvalidFilename = errors.New("invalid filename")
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// ErrorKind names the category of a failure.
type ErrorKind string

const (
	KindInvalid        ErrorKind = "invalid"
	KindConflict       ErrorKind = "conflict"
	KindNotFound       ErrorKind = "not_found"
	KindConfiguration  ErrorKind = "configuration"
	KindPartialFailure ErrorKind = "partial_failure"
	KindTransient      ErrorKind = "transient"
)

// KindOf classifies err. Unclassified errors are treated as transient.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidFilename):
		return KindInvalid
	case errors.Is(err, ErrPartialFailure):
		return KindPartialFailure
	case errors.Is(err, ErrAlreadyExists):
		return KindConflict
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConditionFailed):
		return KindNotFound
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindTransient
	}
}

// FileError represents an error related to a file operation
type FileError struct {
	Filename string
	Op       string
	Err      error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file operation %s failed for %q: %v", e.Op, e.Filename, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// StorageError represents a classified failure from a backing store.
// Kind is one of ErrConfiguration, ErrTransient, ErrNotFound (or a wrapper of
// it), ErrConditionFailed or ErrAlreadyExists.
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Kind    error
	Err     error
}

// NewStorageError builds a StorageError.
func NewStorageError(backend, op, key string, kind, err error) *StorageError {
	return &StorageError{Backend: backend, Op: op, Key: key, Kind: kind, Err: err}
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Kind)
	}
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v: %v", e.Op, e.Key, e.Backend, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// PartialFailureError reports that the blob store step of an operation
// succeeded and the metadata step did not. The caller or an operator can
// reconcile by retrying the metadata step.
type PartialFailureError struct {
	Op       string
	Filename string
	FileID   string
	// Completed describes what already happened in the object store
	Completed string
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("partial failure in %s for %q (file_id %s): %s, but metadata update failed: %v",
		e.Op, e.Filename, e.FileID, e.Completed, e.Err)
}

func (e *PartialFailureError) Unwrap() []error {
	return []error{ErrPartialFailure, e.Err}
}
