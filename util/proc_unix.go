//go:build !windows

package util

import (
	"errors"

	"golang.org/x/sys/unix"
)

// IsProcessAlive reports whether a process with the pid exists.
// Exited processes that were reaped are not alive.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	// signal 0 performs the permission and existence checks only
	err := unix.Kill(pid, 0)

	return err == nil || errors.Is(err, unix.EPERM)
}
