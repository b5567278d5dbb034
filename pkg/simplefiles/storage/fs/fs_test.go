package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/tendant/simple-files/pkg/simplefiles"
)

type brokenReader struct{ sent bool }

func (r *brokenReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("client went away")
}

func TestFSBackend_BasicOps(t *testing.T) {
	tmp := t.TempDir()
	backend, err := New(Config{BaseDir: tmp})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}

	ctx := context.Background()
	key := "reports/2024/summary.txt"

	// Upload
	data := []byte("hello fs")
	if err := backend.Upload(ctx, bytes.NewReader(data), simplefiles.UploadParams{ObjectKey: key, Size: -1}); err != nil {
		t.Fatalf("upload: %v", err)
	}

	// Exists
	exists, err := backend.Exists(ctx, key)
	if err != nil || !exists {
		t.Fatalf("expected object to exist, exists=%v err=%v", exists, err)
	}

	// Download
	blob, err := backend.Download(ctx, key)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	got, _ := io.ReadAll(blob.Body)
	_ = blob.Body.Close()
	if string(got) != string(data) {
		t.Fatalf("download mismatch: %q", string(got))
	}
	if blob.Size != int64(len(data)) {
		t.Fatalf("expected size %d, got %d", len(data), blob.Size)
	}
	if blob.ContentType != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected content type %q", blob.ContentType)
	}

	// Delete
	if err := backend.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmp, key)); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err=%v", err)
	}

	// Delete again reports not found
	if err := backend.Delete(ctx, key); !errors.Is(err, simplefiles.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestFSBackend_MissingObject(t *testing.T) {
	backend, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}

	_, err = backend.Download(context.Background(), "nope.bin")
	if simplefiles.KindOf(err) != simplefiles.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	exists, err := backend.Exists(context.Background(), "nope.bin")
	if err != nil || exists {
		t.Fatalf("expected missing object, exists=%v err=%v", exists, err)
	}
}

func TestFSBackend_SniffsContentTypeWithoutExtension(t *testing.T) {
	backend, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	ctx := context.Background()

	png := []byte("\x89PNG\r\n\x1a\n rest of image")
	if err := backend.Upload(ctx, bytes.NewReader(png), simplefiles.UploadParams{ObjectKey: "logo"}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	blob, err := backend.Download(ctx, "logo")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer blob.Body.Close()
	if blob.ContentType != "image/png" {
		t.Fatalf("expected image/png, got %q", blob.ContentType)
	}
	got, _ := io.ReadAll(blob.Body)
	if !bytes.Equal(got, png) {
		t.Fatalf("sniffing consumed content: %q", got)
	}
}

func TestFSBackend_FailedUploadLeavesNoFile(t *testing.T) {
	tmp := t.TempDir()
	backend, err := New(Config{BaseDir: tmp})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}

	err = backend.Upload(context.Background(), &brokenReader{}, simplefiles.UploadParams{ObjectKey: "broken.txt"})
	if err == nil {
		t.Fatalf("expected upload error")
	}
	if simplefiles.KindOf(err) != simplefiles.KindTransient {
		t.Fatalf("expected transient error, got %v", err)
	}

	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Fatalf("expected empty directory, found %d entries", len(entries))
	}
}

func TestFSBackend_RejectsTraversal(t *testing.T) {
	backend, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}

	for _, key := range []string{"../escape.txt", ".", "sub/./x"} {
		err = backend.Upload(context.Background(), bytes.NewReader([]byte("x")), simplefiles.UploadParams{ObjectKey: key})
		if !errors.Is(err, simplefiles.ErrInvalidFilename) {
			t.Fatalf("upload %q: expected ErrInvalidFilename, got %v", key, err)
		}
	}
}

func TestFSBackend_RequiresBaseDir(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, simplefiles.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
