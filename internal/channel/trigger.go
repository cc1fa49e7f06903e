package channel

import "context"

// Trigger is the core's view of spec.md §6's "opaque edge-notifier" FD:
// one per publisher (woken when slots free up) and one per subscriber
// (woken when new messages arrive). The core never inspects the value
// written; Notify's only contract is "a write of any single byte is the
// notification".
type Trigger interface {
	// Notify wakes any waiter. Safe to call with no waiter present.
	Notify() error
	// Wait blocks until Notify is called or ctx is done, whichever comes
	// first.
	Wait(ctx context.Context) error
	// Close releases the underlying OS resource.
	Close() error
}
