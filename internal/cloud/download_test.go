package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// downloadStub implements just enough of Adapter for DownloadToFile.
type downloadStub struct {
	Adapter

	content string
	err     error
	calls   int
}

func (d *downloadStub) Download(_ context.Context, _ *File, w io.Writer) (int64, error) {
	d.calls++

	if d.err != nil {
		return 0, d.err
	}

	n, err := io.WriteString(w, d.content)

	return int64(n), err
}

func TestDownloadToFile_Success(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.bin")

	stub := &downloadStub{content: "hello world"}

	err := DownloadToFile(context.Background(), stub, &File{ID: "f1", Size: 11}, dst)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestDownloadToFile_InsufficientStorage(t *testing.T) {
	orig := diskFree
	diskFree = func(_ string) (uint64, error) { return 10, nil }

	t.Cleanup(func() { diskFree = orig })

	dir := t.TempDir()
	dst := filepath.Join(dir, "big.bin")

	stub := &downloadStub{content: "never fetched"}

	err := DownloadToFile(context.Background(), stub, &File{ID: "f1", Size: 1 << 30}, dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientStorage)

	// The check precedes the download; no request, no partial file.
	assert.Equal(t, 0, stub.calls)
	assert.NoFileExists(t, dst)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial file left behind")
}

func TestDownloadToFile_ErrorRemovesPartial(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.bin")

	stub := &downloadStub{err: fmt.Errorf("stream: %w", ErrServerError)}

	err := DownloadToFile(context.Background(), stub, &File{ID: "f1", Size: 4}, dst)
	require.Error(t, err)
	assert.NoFileExists(t, dst)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
