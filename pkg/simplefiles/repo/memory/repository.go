package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-files/pkg/simplefiles"
)

// Repository implements simplefiles.MetadataStore using in-memory storage
type Repository struct {
	mu       sync.RWMutex
	records  map[string]*simplefiles.FileRecord // file_id -> record
	active   map[string]string                  // filename -> file_id of the active record
	events   []*simplefiles.DownloadEvent
	eventIDs map[string]struct{}
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		records:  make(map[string]*simplefiles.FileRecord),
		active:   make(map[string]string),
		eventIDs: make(map[string]struct{}),
	}
}

func (r *Repository) PutRecord(ctx context.Context, record *simplefiles.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.FileID]; exists {
		return simplefiles.NewStorageError("memory", "put_record", record.FileID, simplefiles.ErrAlreadyExists, nil)
	}
	if record.IsActive() {
		if _, exists := r.active[record.Filename]; exists {
			return simplefiles.NewStorageError("memory", "put_record", record.Filename, simplefiles.ErrAlreadyExists, nil)
		}
		r.active[record.Filename] = record.FileID
	}

	// Create a copy to avoid external modifications
	r.records[record.FileID] = copyRecord(record)
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, fileID string) (*simplefiles.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[fileID]
	if !exists {
		return nil, simplefiles.NewStorageError("memory", "get_record", fileID, simplefiles.ErrRecordNotFound, nil)
	}
	return copyRecord(record), nil
}

// SetDeleteDate checks and sets under the write lock, so of two concurrent
// callers exactly one succeeds.
func (r *Repository) SetDeleteDate(ctx context.Context, fileID string, deletedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.records[fileID]
	if !exists {
		return simplefiles.NewStorageError("memory", "set_delete_date", fileID, simplefiles.ErrRecordNotFound, nil)
	}
	if !record.IsActive() {
		return simplefiles.NewStorageError("memory", "set_delete_date", fileID, simplefiles.ErrConditionFailed, nil)
	}

	t := deletedAt
	record.DeleteDate = &t
	if r.active[record.Filename] == fileID {
		delete(r.active, record.Filename)
	}
	return nil
}

// Scan returns matching records ordered by upload date
func (r *Repository) Scan(ctx context.Context, filter simplefiles.ScanFilter) ([]*simplefiles.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*simplefiles.FileRecord, 0)
	for _, record := range r.records {
		if filter.Filename != "" && record.Filename != filter.Filename {
			continue
		}
		if !filter.IncludeDeleted && !record.IsActive() {
			continue
		}
		result = append(result, copyRecord(record))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UploadDate.Before(result[j].UploadDate)
	})
	return result, nil
}

func (r *Repository) PutDownloadEvent(ctx context.Context, event *simplefiles.DownloadEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.eventIDs[event.DownloadID]; exists {
		return simplefiles.NewStorageError("memory", "put_download_event", event.DownloadID, simplefiles.ErrAlreadyExists, nil)
	}
	eventCopy := *event
	r.events = append(r.events, &eventCopy)
	r.eventIDs[event.DownloadID] = struct{}{}
	return nil
}

// DownloadEvents returns the audit entries recorded for filename, oldest first
func (r *Repository) DownloadEvents(filename string) []*simplefiles.DownloadEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplefiles.DownloadEvent
	for _, e := range r.events {
		if e.Filename == filename {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}
	return result
}

func copyRecord(record *simplefiles.FileRecord) *simplefiles.FileRecord {
	c := *record
	if record.DeleteDate != nil {
		t := *record.DeleteDate
		c.DeleteDate = &t
	}
	return &c
}
