package channel

import "unsafe"

// BufferRegionSize returns the total size, in bytes, of the buffer
// shared-memory object for a channel with the given slot count and
// payload size (excluding the MessagePrefix).
func BufferRegionSize(numSlots, slotSize int) int64 {
	return int64(numSlots) * slotStride(slotSize)
}

// bufferView is a typed view over a mapped buffer shared-memory object.
type bufferView struct {
	mem      []byte
	slotSize int
}

func newBufferView(mem []byte, slotSize int) *bufferView {
	return &bufferView{mem: mem, slotSize: slotSize}
}

// prefixOffset returns the byte offset of slot id's MessagePrefix.
func (v *bufferView) prefixOffset(id int) int64 {
	return int64(id) * slotStride(v.slotSize)
}

// payloadOffset returns the byte offset of slot id's payload area, i.e.
// buffer_address(slot_id) from spec.md §4.7.
func (v *bufferView) payloadOffset(id int) int64 {
	return v.prefixOffset(id) + MessagePrefixSize
}

// prefixBytes returns the MessagePrefixSize-byte slice backing slot id's
// prefix.
func (v *bufferView) prefixBytes(id int) []byte {
	off := v.prefixOffset(id)
	return v.mem[off : off+MessagePrefixSize]
}

// payload returns the slice backing slot id's payload area, sized to the
// channel's configured slot size (not the aligned stride).
func (v *bufferView) payload(id int) []byte {
	off := v.payloadOffset(id)
	return v.mem[off : off+int64(v.slotSize)]
}

// payloadAddress returns the raw address of slot id's payload area, for
// callers that need unsafe.Pointer interop rather than a []byte.
func (v *bufferView) payloadAddress(id int) unsafe.Pointer {
	return unsafe.Pointer(&v.mem[v.payloadOffset(id)])
}
