package channel

import "unsafe"

// MessageSlot is the per-slot metadata embedded in the CCB's slot table.
// Exactly one of {free, busy, active} holds each slot's element at any
// moment; which one is determined by list membership, not by a field on
// the slot itself.
type MessageSlot struct {
	element          listElement
	id               int32
	refCount         int16
	reliableRefCount int16
	ordinal          int64
	messageSize      int64
	owners           OwnerSet
}

// ID returns the slot's fixed index in [0, numSlots).
func (s *MessageSlot) ID() int { return int(s.id) }

// RefCount returns the number of subscriber references on the slot.
func (s *MessageSlot) RefCount() int { return int(s.refCount) }

// ReliableRefCount returns the subset of RefCount held by reliable
// subscribers.
func (s *MessageSlot) ReliableRefCount() int { return int(s.reliableRefCount) }

// Ordinal returns the ordinal of the message currently occupying the
// slot. Only meaningful while the slot is on the active list.
func (s *MessageSlot) Ordinal() int64 { return s.ordinal }

// MessageSize returns the size of the message currently occupying the
// slot. Only meaningful while the slot is on the active list.
func (s *MessageSlot) MessageSize() int64 { return s.messageSize }

// Owners returns the slot's owner bitset.
func (s *MessageSlot) Owners() *OwnerSet { return &s.owners }

// ccbHeader is the fixed-size prefix of a Channel Control Block. The slot
// table (a variable-length array of MessageSlot, numSlots long) follows
// immediately after it in the mapped region; ccbView computes slot
// addresses from this header's size rather than from a Go slice, since a
// Go slice header has no meaning shared across processes.
type ccbHeader struct {
	channelName   [MaxChannelName]byte
	numSlots      int32
	slotSize      int32
	nextOrdinal   int64
	totalBytes    int64
	totalMessages int64

	active list
	busy   list
	free   list

	mu robustMutex
}

// ccbHeaderSize is the offset of the slot table from the CCB base.
var ccbHeaderSize = alignUp(int64(unsafe.Sizeof(ccbHeader{})), 8)

// MessageSlotSize is the size in bytes of one MessageSlot entry in the
// CCB's slot table.
var MessageSlotSize = int64(unsafe.Sizeof(MessageSlot{}))

// CCBSize returns the total size, in bytes, of the CCB shared-memory
// object for a channel with the given number of slots.
func CCBSize(numSlots int) int64 {
	return ccbHeaderSize + int64(numSlots)*MessageSlotSize
}

// ccbView is a typed view over a mapped CCB shared-memory object.
type ccbView struct {
	mem []byte
}

func newCCBView(mem []byte) *ccbView {
	return &ccbView{mem: mem}
}

func (v *ccbView) base() unsafe.Pointer {
	return unsafe.Pointer(&v.mem[0])
}

func (v *ccbView) header() *ccbHeader {
	return (*ccbHeader)(v.base())
}

func (v *ccbView) slot(i int) *MessageSlot {
	off := ccbHeaderSize + int64(i)*MessageSlotSize
	return (*MessageSlot)(unsafe.Pointer(&v.mem[off]))
}

func (v *ccbView) numSlots() int {
	return int(v.header().numSlots)
}

// elementOf returns the listElement embedded in slot i, used by the list
// primitive which only knows about listElement, not MessageSlot.
func (v *ccbView) elementOf(i int) *listElement {
	return &v.slot(i).element
}

// slotOfElement recovers the MessageSlot containing a given listElement,
// given that element is at offset 0 within MessageSlot.
func (v *ccbView) slotOfElement(e *listElement) *MessageSlot {
	return (*MessageSlot)(unsafe.Pointer(e))
}

// initCCB lays out a freshly allocated CCB: zeroes the header fields that
// matter, puts every slot on the free list in ID order, and initializes
// the robust mutex. name longer than MaxChannelName is truncated; slotSize
// excludes the MessagePrefix.
func initCCB(mem []byte, name string, numSlots, slotSize int) {
	v := newCCBView(mem)
	h := v.header()

	n := copy(h.channelName[:], name)
	for i := n; i < MaxChannelName; i++ {
		h.channelName[i] = 0
	}
	h.numSlots = int32(numSlots)
	h.slotSize = int32(slotSize)
	h.nextOrdinal = 1
	h.totalBytes = 0
	h.totalMessages = 0

	listInit(&h.active)
	listInit(&h.busy)
	listInit(&h.free)
	initRobustMutex(&h.mu)

	base := v.base()
	for i := 0; i < numSlots; i++ {
		s := v.slot(i)
		s.id = int32(i)
		s.refCount = 0
		s.reliableRefCount = 0
		s.ordinal = 0
		s.messageSize = 0
		s.owners.ClearAll()
		listElementInit(&s.element)
		listInsertAtEnd(base, &h.free, &s.element)
	}
}
