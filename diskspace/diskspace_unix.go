//go:build linux || darwin

package diskspace

import "golang.org/x/sys/unix"

// freeBytes reports bytes available to an unprivileged process on the
// filesystem containing path, via statfs(2)/statfs64.
func freeBytes(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
