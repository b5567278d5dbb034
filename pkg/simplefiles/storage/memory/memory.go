package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/tendant/simple-files/pkg/simplefiles"
)

type object struct {
	data     []byte
	mimeType string
}

// Backend is an in-memory implementation of the simplefiles.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]object),
	}
}

// Upload reads the whole stream and stores it under params.ObjectKey.
// A read error leaves any previous object untouched.
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params simplefiles.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return simplefiles.NewStorageError("memory", "upload", params.ObjectKey, simplefiles.ErrTransient, err)
	}
	if err := ctx.Err(); err != nil {
		return simplefiles.NewStorageError("memory", "upload", params.ObjectKey, simplefiles.ErrTransient, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[params.ObjectKey] = object{
		data:     data,
		mimeType: simplefiles.NormalizeContentType(params.MimeType),
	}
	return nil
}

// Download returns a reader over a snapshot of the stored bytes
func (b *Backend) Download(ctx context.Context, objectKey string) (*simplefiles.Blob, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, simplefiles.NewStorageError("memory", "download", objectKey, simplefiles.ErrObjectNotFound, nil)
	}

	return &simplefiles.Blob{
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
		ContentType: obj.mimeType,
		Size:        int64(len(obj.data)),
	}, nil
}

// Exists reports whether the key is stored
func (b *Backend) Exists(ctx context.Context, objectKey string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.objects[objectKey]
	return exists, nil
}

// Delete removes the object
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return simplefiles.NewStorageError("memory", "delete", objectKey, simplefiles.ErrObjectNotFound, nil)
	}

	delete(b.objects, objectKey)
	return nil
}

// Keys returns the stored keys; used by tests to look for orphans
func (b *Backend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	return keys
}
