// Package diskspace reports available space on local filesystems. The
// transfer queue uses it as the preflight gate for downloads; the remote
// side of the same gate goes through transport.FreeSpace.
package diskspace

import (
	"path/filepath"
	"syscall"
)

// Available returns the free bytes on the filesystem containing path.
// Returns 0 when the filesystem cannot be inspected (network mounts,
// virtual filesystems); callers treat that as "unknown" and let the
// operation fail naturally rather than blocking it.
func Available(path string) int64 {
	dir := filepath.Dir(path)

	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0
	}

	// Bavail: blocks available to unprivileged users.
	return int64(stat.Bavail) * int64(stat.Bsize)
}
