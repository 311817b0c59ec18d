//go:build !linux && !darwin

package cloud

import "math"

// FreeSpace is not implemented on this platform; the download guard is
// effectively disabled.
func FreeSpace(_ string) (uint64, error) {
	return math.MaxUint64, nil
}
