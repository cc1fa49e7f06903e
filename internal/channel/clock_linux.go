//go:build linux

package channel

import "golang.org/x/sys/unix"

// monotonicNowNS returns the current time in nanoseconds on
// CLOCK_MONOTONIC. Unlike Go's runtime monotonic clock reading (which is
// only meaningfully comparable within a single process), CLOCK_MONOTONIC
// on Linux is comparable across processes on the same host, which is what
// spec.md §4.3's ordinal/timestamp assignment and §4.5's timestamp search
// need: publishers in different processes must produce timestamps that
// sort consistently with wall-clock order.
func monotonicNowNS() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint64(ts.Sec)*1e9 + uint64(ts.Nsec)
}
