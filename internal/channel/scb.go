package channel

import "unsafe"

// ChannelCounters are the lock-free, server-written, client-read update
// counters for one channel. Plain field access is safe here: the server
// is the sole writer, clients only ever read a stale snapshot as a hint
// to decide whether to re-query the server, and every field is a
// naturally aligned 16-bit integer so no individual read can be torn.
type ChannelCounters struct {
	NumPubUpdates   uint16
	NumSubUpdates   uint16
	NumPubs         uint16
	NumReliablePubs uint16
	NumSubs         uint16
	NumReliableSubs uint16
}

// scbCountersSize is the size of one ChannelCounters entry in the SCB.
var scbCountersSize = int64(unsafe.Sizeof(ChannelCounters{}))

// SCBSize returns the total size, in bytes, of the System Control Block
// shared-memory object for a server supporting maxChannels channels.
func SCBSize(maxChannels int) int64 {
	return int64(maxChannels) * scbCountersSize
}

// scbView is a typed view over a mapped SCB shared-memory object.
type scbView struct {
	mem []byte
}

func newSCBView(mem []byte) *scbView {
	return &scbView{mem: mem}
}

// counters returns a pointer to channel id's counters. The caller must
// ensure id is in range; this package only ever indexes with a channel ID
// it was itself constructed with.
func (v *scbView) counters(id int) *ChannelCounters {
	off := int64(id) * scbCountersSize
	return (*ChannelCounters)(unsafe.Pointer(&v.mem[off]))
}
