//go:build !darwin && !linux

package storage

// Unknown filesystems are treated as local.
func detectFilesystemType(path string) (string, error) {
	return "unknown", nil
}
