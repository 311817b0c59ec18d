//go:build linux || darwin

package cloud

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FreeSpace returns the bytes available to the current user on the
// filesystem holding path.
func FreeSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("cloud: statfs %s: %w", path, err)
	}

	return uint64(st.Bavail) * uint64(st.Bsize), nil //nolint:unconvert // Bavail/Bsize widths differ per platform
}
