//go:build !windows

package acquire

import "syscall"

// freeDiskSpace returns the bytes available to the current user on the
// filesystem holding path. Bavail, not Bfree: quota-restricted space should
// fail the gate too.
func freeDiskSpace(path string) (uint64, error) {
	var stat syscall.Statfs_t

	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}

	return stat.Bavail * uint64(stat.Bsize), nil
}
