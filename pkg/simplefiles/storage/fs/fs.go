package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-files/pkg/simplefiles"
)

// Backend is a filesystem implementation of the simplefiles.BlobStore interface
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, fmt.Errorf("%w: base directory is required", simplefiles.ErrConfiguration)
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create base directory: %w", simplefiles.ErrConfiguration, err)
	}

	return &Backend{baseDir: config.BaseDir}, nil
}

func (b *Backend) path(objectKey string) (string, error) {
	if err := simplefiles.ValidateFilename(objectKey); err != nil {
		return "", err
	}
	return filepath.Join(b.baseDir, filepath.FromSlash(strings.TrimLeft(objectKey, "/"))), nil
}

// Upload writes to a temporary file in the target directory and renames it
// into place once the stream is fully copied. Readers never see a partial file.
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params simplefiles.UploadParams) error {
	filePath, err := b.path(params.ObjectKey)
	if err != nil {
		return simplefiles.NewStorageError("fs", "upload", params.ObjectKey, simplefiles.ErrInvalidFilename, err)
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return b.classify("upload", params.ObjectKey, fmt.Errorf("failed to create directory: %w", err))
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return b.classify("upload", params.ObjectKey, fmt.Errorf("failed to create file: %w", err))
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: reader}); err != nil {
		return b.classify("upload", params.ObjectKey, fmt.Errorf("failed to write file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return b.classify("upload", params.ObjectKey, err)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		return b.classify("upload", params.ObjectKey, err)
	}
	committed = true
	return nil
}

// Download opens the file. The content type comes from the extension, then
// from sniffing the first 512 bytes.
func (b *Backend) Download(ctx context.Context, objectKey string) (*simplefiles.Blob, error) {
	filePath, err := b.path(objectKey)
	if err != nil {
		return nil, simplefiles.NewStorageError("fs", "download", objectKey, simplefiles.ErrInvalidFilename, err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, b.classify("download", objectKey, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, b.classify("download", objectKey, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, simplefiles.NewStorageError("fs", "download", objectKey, simplefiles.ErrObjectNotFound, nil)
	}

	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		buffer := make([]byte, 512)
		n, _ := io.ReadFull(file, buffer)
		contentType = http.DetectContentType(buffer[:n])
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, b.classify("download", objectKey, err)
		}
	}

	return &simplefiles.Blob{
		Body:        file,
		ContentType: contentType,
		Size:        info.Size(),
	}, nil
}

// Exists reports whether a regular file is stored under the key
func (b *Backend) Exists(ctx context.Context, objectKey string) (bool, error) {
	filePath, err := b.path(objectKey)
	if err != nil {
		return false, nil
	}
	info, err := os.Stat(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, b.classify("exists", objectKey, err)
	}
	return !info.IsDir(), nil
}

// Delete removes the file
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	filePath, err := b.path(objectKey)
	if err != nil {
		return simplefiles.NewStorageError("fs", "delete", objectKey, simplefiles.ErrInvalidFilename, err)
	}
	if err := os.Remove(filePath); err != nil {
		return b.classify("delete", objectKey, err)
	}
	return nil
}

func (b *Backend) classify(op, key string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return simplefiles.NewStorageError("fs", op, key, simplefiles.ErrObjectNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return simplefiles.NewStorageError("fs", op, key, simplefiles.ErrConfiguration, err)
	default:
		return simplefiles.NewStorageError("fs", op, key, simplefiles.ErrTransient, err)
	}
}

// contextReader stops a copy once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
