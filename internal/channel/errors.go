package channel

import "errors"

// errFutexTimeout is returned internally by futexWaitTimeout; it never
// escapes this package.
var errFutexTimeout = errors.New("channel: futex wait timed out")

// Kind classifies the structured errors this package can return, per the
// error handling design: some kinds terminate an operation, others (like
// back-pressure and empty reads) are represented by a nil slot/message
// rather than an error at all and so have no Kind here.
type Kind int

const (
	// KindNotConnected: a client-level operation was invoked before the
	// handshake with the server completed. User error, surfaced as-is.
	KindNotConnected Kind = iota
	// KindChannelFull: an unreliable publisher exhausted the slot ring.
	// Fatal for that publish call.
	KindChannelFull
	// KindNoPublisher: reserved for the client layer above this package;
	// a placeholder subscriber with still no bound publisher yields an
	// empty read, not this error, but the kind is defined here so that
	// layer can construct one consistently.
	KindNoPublisher
	// KindOwnerInconsistent: the CCB mutex was taken over from a dead
	// holder. Channel.withLock recovers from this internally (CleanupSlots
	// for the dead owner, then makeConsistent) before running the
	// operation, so no operation in this package returns this kind.
	KindOwnerInconsistent
	// KindCorrupt: an invariant was violated at runtime, e.g. a slot was
	// not on the list its own state implied. Fatal: represents a bug or
	// external memory corruption, never recovered automatically.
	KindCorrupt
)

func (k Kind) String() string {
	switch k {
	case KindNotConnected:
		return "not connected"
	case KindChannelFull:
		return "channel full"
	case KindNoPublisher:
		return "no publisher"
	case KindOwnerInconsistent:
		return "owner inconsistent"
	case KindCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Error is the structured error type returned by this package's
// operations that terminate with a specific, named failure.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Msg
}

// Is makes errors.Is(err, &channel.Error{Kind: channel.KindCorrupt}) match
// any *Error of the same Kind, whatever its Op and Msg; callers more
// commonly compare with a type switch or errors.As(&channel.Error{}) and
// inspect Kind directly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}
