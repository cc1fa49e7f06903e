//go:build linux

package channel

import "golang.org/x/sys/unix"

// processAlive reports whether pid still exists, using the standard
// kill(pid, 0) liveness probe: no signal is delivered, only permission
// and existence are checked.
func processAlive(pid int32) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(int(pid), 0)
	if err == nil {
		return true
	}
	return err == unix.EPERM
}
