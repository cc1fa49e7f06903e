package channel

import "encoding/binary"

// Fixed layout constants. These affect cross-process and cross-version
// wire compatibility and must never change independently of a protocol
// version bump.
const (
	// MessagePrefixSize is sizeof(MessagePrefix): pad(4) + size(4) +
	// ordinal(8) + timestamp(8) + flags(8).
	MessagePrefixSize = 32

	// MaxChannels is the number of per-channel counter slots in the SCB.
	MaxChannels = 1024

	// MaxSlotOwners is the width of the per-slot owner bitset, in bits.
	// Must be a multiple of 64.
	MaxSlotOwners = 1024

	// MaxChannelName is the size, in bytes, of the truncated channel name
	// stored in the CCB for diagnostic purposes.
	MaxChannelName = 64

	// PayloadAlignment is the alignment, in bytes, of the payload area
	// within a buffer slot, applied after the MessagePrefix.
	PayloadAlignment = 32
)

// Flag bits for MessagePrefix.Flags.
const (
	// FlagActivate marks a reliable publisher's activation message: a
	// single size-1 message published when the publisher is created, whose
	// sole purpose is to put a slot on the active list so that reliable
	// subscribers acquire a reference before any reliable publisher can
	// overwrite it.
	FlagActivate uint64 = 0x1
	// FlagBridged marks a message that arrived via an external TCP bridge
	// rather than from a local publisher.
	FlagBridged uint64 = 0x2
	// FlagSeen marks a message a subscriber has already observed.
	FlagSeen uint64 = 0x4
)

// byteOrder is the wire byte order for MessagePrefix fields: little-endian
// on all supported platforms, per spec.
var byteOrder = binary.LittleEndian

// alignUp rounds v up to the next multiple of align, which must be a power
// of two. Mirrors the original's Aligned<N>(v) = (v+(N-1)) &^ (N-1).
func alignUp(v, align int64) int64 {
	return (v + (align - 1)) &^ (align - 1)
}

// slotStride is the number of bytes in the buffer region occupied by one
// slot: a 32-byte MessagePrefix followed by the payload area, aligned up
// to PayloadAlignment.
func slotStride(slotSize int) int64 {
	return MessagePrefixSize + alignUp(int64(slotSize), PayloadAlignment)
}

// MessagePrefix is the fixed 32-byte header prepended to every buffer
// slot's payload. It is transferred intact across TCP bridges, which is
// why it carries 4 bytes of leading padding: the bridge's length-framing
// step writes the wire length into that padding before sending, so the
// buffer region can never be mapped read-only by a bridge-forwarding
// participant.
type MessagePrefix struct {
	Pad       int32
	Size      int32
	Ordinal   int64
	Timestamp uint64
	Flags     uint64
}

// ReadMessagePrefix decodes a MessagePrefix from the 32 bytes at the start
// of b. b must be at least MessagePrefixSize long.
func ReadMessagePrefix(b []byte) MessagePrefix {
	return MessagePrefix{
		Pad:       int32(byteOrder.Uint32(b[0:4])),
		Size:      int32(byteOrder.Uint32(b[4:8])),
		Ordinal:   int64(byteOrder.Uint64(b[8:16])),
		Timestamp: byteOrder.Uint64(b[16:24]),
		Flags:     byteOrder.Uint64(b[24:32]),
	}
}

// WriteMessagePrefix encodes p into the 32 bytes at the start of b. b must
// be at least MessagePrefixSize long. The leading pad is written as-is;
// callers that are not a bridge leave it zero.
func WriteMessagePrefix(b []byte, p MessagePrefix) {
	byteOrder.PutUint32(b[0:4], uint32(p.Pad))
	byteOrder.PutUint32(b[4:8], uint32(p.Size))
	byteOrder.PutUint64(b[8:16], uint64(p.Ordinal))
	byteOrder.PutUint64(b[16:24], p.Timestamp)
	byteOrder.PutUint64(b[24:32], p.Flags)
}

// IsActivation reports whether p is a reliable-publisher activation
// message.
func (p MessagePrefix) IsActivation() bool { return p.Flags&FlagActivate != 0 }

// IsBridged reports whether p arrived via an external bridge.
func (p MessagePrefix) IsBridged() bool { return p.Flags&FlagBridged != 0 }

// IsSeen reports whether a subscriber has already observed p.
func (p MessagePrefix) IsSeen() bool { return p.Flags&FlagSeen != 0 }
