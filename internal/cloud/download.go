package cloud

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// diskFree probes available bytes on the filesystem holding path.
// Overridable in tests.
var diskFree = FreeSpace

// DownloadToFile streams a file's content to localPath via its adapter,
// guarding local free space against the declared content length before any
// network I/O. Fails with ErrInsufficientStorage (writing nothing) when
// space is short. The content lands in a temp file first and is renamed
// into place, so an interrupted download leaves no partial file behind.
func DownloadToFile(ctx context.Context, a Adapter, file *File, localPath string) error {
	dir := filepath.Dir(localPath)

	if file.Size > 0 {
		avail, err := diskFree(dir)
		if err == nil && avail < uint64(file.Size) {
			return fmt.Errorf("cloud: need %d bytes, %d available: %w",
				file.Size, avail, ErrInsufficientStorage)
		}
	}

	tmp, err := os.CreateTemp(dir, ".anycloud-*.partial")
	if err != nil {
		return fmt.Errorf("cloud: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := a.Download(ctx, file, tmp); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("cloud: syncing download: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cloud: closing download: %w", err)
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		return fmt.Errorf("cloud: renaming download into place: %w", err)
	}

	success = true

	return nil
}
