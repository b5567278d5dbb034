package memory_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-files/pkg/simplefiles"
	memorystorage "github.com/tendant/simple-files/pkg/simplefiles/storage/memory"
)

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestMemoryBackend(t *testing.T) {
	backend := memorystorage.New()
	ctx := context.Background()
	testKey := "test/object/key"
	testData := "Hello, World! This is test data."

	t.Run("Upload", func(t *testing.T) {
		err := backend.Upload(ctx, strings.NewReader(testData), simplefiles.UploadParams{
			ObjectKey: testKey,
			MimeType:  "text/plain",
			Size:      -1,
		})
		assert.NoError(t, err)
	})

	t.Run("Exists", func(t *testing.T) {
		exists, err := backend.Exists(ctx, testKey)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = backend.Exists(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Download", func(t *testing.T) {
		blob, err := backend.Download(ctx, testKey)
		require.NoError(t, err)
		defer blob.Body.Close()

		data, err := io.ReadAll(blob.Body)
		require.NoError(t, err)
		assert.Equal(t, testData, string(data))
		assert.Equal(t, "text/plain", blob.ContentType)
		assert.Equal(t, int64(len(testData)), blob.Size)
	})

	t.Run("DefaultMimeType", func(t *testing.T) {
		require.NoError(t, backend.Upload(ctx, strings.NewReader("x"), simplefiles.UploadParams{ObjectKey: "plain"}))
		blob, err := backend.Download(ctx, "plain")
		require.NoError(t, err)
		assert.Equal(t, simplefiles.DefaultContentType, blob.ContentType)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, backend.Upload(ctx, strings.NewReader(testData), simplefiles.UploadParams{ObjectKey: "key3"}))

		require.NoError(t, backend.Delete(ctx, "key3"))

		_, err := backend.Download(ctx, "key3")
		assert.ErrorIs(t, err, simplefiles.ErrObjectNotFound)
		assert.ErrorIs(t, err, simplefiles.ErrNotFound)
	})

	t.Run("ErrorCases", func(t *testing.T) {
		blob, err := backend.Download(ctx, "nonexistent/key")
		assert.ErrorIs(t, err, simplefiles.ErrNotFound)
		assert.Nil(t, blob)

		err = backend.Delete(ctx, "nonexistent/key")
		assert.ErrorIs(t, err, simplefiles.ErrNotFound)
	})

	t.Run("FailedReadKeepsPreviousObject", func(t *testing.T) {
		err := backend.Upload(ctx, failingReader{}, simplefiles.UploadParams{ObjectKey: testKey})
		require.Error(t, err)
		assert.Equal(t, simplefiles.KindTransient, simplefiles.KindOf(err))

		blob, err := backend.Download(ctx, testKey)
		require.NoError(t, err)
		data, _ := io.ReadAll(blob.Body)
		assert.Equal(t, testData, string(data))
	})
}
