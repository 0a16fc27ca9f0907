//go:build !windows

package diskspace

import "golang.org/x/sys/unix"

// availableBytes returns the bytes available to unprivileged users.
func availableBytes(dir string) (int64, bool) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, false
	}
	return int64(stat.Bavail) * int64(stat.Bsize), true
}
