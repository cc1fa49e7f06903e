//go:build !linux

package channel

import "syscall"

// processAlive reports whether pid still exists, using the same
// kill(pid, 0) liveness probe as the Linux build, through the stdlib
// syscall package.
func processAlive(pid int32) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(int(pid), 0)
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
