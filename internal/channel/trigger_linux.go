//go:build linux

package channel

import (
	"context"
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// eventfdTrigger implements Trigger with a Linux eventfd(2), the
// concrete stand-in for the opaque trigger FDs the server would
// otherwise pass to clients. It accumulates like a semaphore internally,
// but this package only ever writes 1 and drains whatever value is
// there, matching the "any nonzero write wakes" contract.
type eventfdTrigger struct {
	fd int
}

// NewTrigger creates a new eventfd-backed Trigger.
func NewTrigger() (Trigger, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("channel: eventfd: %w", err)
	}
	return &eventfdTrigger{fd: fd}, nil
}

func (t *eventfdTrigger) Notify() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(t.fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("channel: eventfd write: %w", err)
	}
	return nil
}

// pollStepMS bounds how long each Wait iteration blocks in the kernel
// before re-checking ctx, so a cancellation is never missed by more than
// this much.
const pollStepMS = 100

func (t *eventfdTrigger) Wait(ctx context.Context) error {
	fds := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := unix.Poll(fds, pollStepMS)
		if err != nil && err != unix.EINTR {
			return fmt.Errorf("channel: eventfd poll: %w", err)
		}
		if n <= 0 {
			continue
		}

		var buf [8]byte
		_, err = unix.Read(t.fd, buf[:])
		if err == nil {
			return nil
		}
		if err != unix.EAGAIN {
			return fmt.Errorf("channel: eventfd read: %w", err)
		}
	}
}

func (t *eventfdTrigger) Close() error {
	return unix.Close(t.fd)
}
