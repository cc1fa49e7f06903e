package channel

// PublishResult is the outcome of ActivateSlotAndGetAnother: the slot the
// publisher should write its next message into (nil if none was
// allocated), and the ordinal/timestamp/notify outcome of the publish
// that just completed.
type PublishResult struct {
	// Slot is the publisher's next writable slot, or nil if reliable is
	// true (a reliable publisher pulls a fresh slot lazily via
	// FindFreeSlot on its next buffer request) or if none could be
	// allocated (fatal for an unreliable publisher).
	Slot *MessageSlot
	// Ordinal is the ordinal just assigned to the published message.
	Ordinal int64
	// Timestamp is the monotonic timestamp just assigned.
	Timestamp uint64
	// Notify is true iff at least one subscriber could plausibly be
	// asleep waiting for this message: the active list was non-empty
	// immediately before this slot was appended to it.
	Notify bool
}

// SetMessageSize records the size of the message the caller is about to
// publish from slot. Slots on the busy list are exclusively owned by the
// publisher holding them, so this requires no lock.
func SetMessageSize(slot *MessageSlot, size int64) {
	slot.messageSize = size
}

// FindFreeSlot finds a slot for a publisher to write into: the head of
// the free list if one exists, otherwise the oldest active slot with no
// subscriber references (for a reliable publisher, only if reaching it
// does not require passing a slot some reliable subscriber still owes a
// read for). Returns nil, nil if none is available: callers treat that as
// ChannelFull (fatal) for an unreliable publisher or back-pressure (not
// an error) for a reliable one.
func (c *Channel) FindFreeSlot(reliable bool, owner int) (*MessageSlot, error) {
	var result *MessageSlot
	err := c.withLock(owner, func(h *ccbHeader) error {
		result = c.findFreeSlotLocked(h, reliable, owner)
		return nil
	})
	return result, err
}

// findFreeSlotLocked is FindFreeSlot's body, run with the CCB mutex held.
func (c *Channel) findFreeSlotLocked(h *ccbHeader, reliable bool, owner int) *MessageSlot {
	base := c.ccb.base()

	if !listEmpty(&h.free) {
		e := elementAt(base, h.free.first)
		s := c.ccb.slotOfElement(e)
		listRemove(base, &h.free, e)
		listInsertAtEnd(base, &h.busy, e)
		s.owners.Set(owner)
		return s
	}

	var found *MessageSlot
	for off := h.active.first; off != 0; {
		e := elementAt(base, off)
		s := c.ccb.slotOfElement(e)
		if reliable && s.reliableRefCount > 0 {
			// A reliable publisher must not skip past a slot some
			// reliable subscriber still owes a read for; stop here
			// rather than continuing the scan.
			found = nil
			break
		}
		if s.refCount == 0 {
			found = s
			break
		}
		off = e.next
	}
	if found == nil {
		return nil
	}

	listRemove(base, &h.active, &found.element)
	found.owners.ClearAll()
	listInsertAtEnd(base, &h.busy, &found.element)
	found.owners.Set(owner)
	return found
}

// ActivateSlotAndGetAnother moves slot from the busy list to the tail of
// the active list, assigns it the next ordinal and a timestamp, and
// (unless reliable) hands the publisher a fresh writable slot in the same
// locked transaction.
//
// Unless omitPrefix is set (used when relaying a message that arrived
// already framed, e.g. over a bridge) the MessagePrefix is written to the
// slot's buffer using the size most recently set via SetMessageSize.
func (c *Channel) ActivateSlotAndGetAnother(slot *MessageSlot, reliable, isActivation bool, owner int, omitPrefix bool) (PublishResult, error) {
	var res PublishResult
	err := c.withLock(owner, func(h *ccbHeader) error {
		ordinal := h.nextOrdinal
		h.nextOrdinal++
		ts := monotonicNowNS()

		if !omitPrefix {
			prefix := MessagePrefix{
				Size:      int32(slot.messageSize),
				Ordinal:   ordinal,
				Timestamp: ts,
			}
			if isActivation {
				prefix.Flags |= FlagActivate
			}
			WriteMessagePrefix(c.buf.prefixBytes(slot.ID()), prefix)
		}

		slot.ordinal = ordinal
		h.totalBytes += slot.messageSize
		h.totalMessages++

		base := c.ccb.base()
		notify := !listEmpty(&h.active)
		listRemove(base, &h.busy, &slot.element)
		listInsertAtEnd(base, &h.active, &slot.element)
		slot.owners.Clear(owner)

		res.Ordinal = ordinal
		res.Timestamp = ts
		res.Notify = notify

		if reliable {
			res.Slot = nil
			return nil
		}
		res.Slot = c.findFreeSlotLocked(h, false, owner)
		return nil
	})
	return res, err
}

// GetCounters returns the channel's running totals, also refreshing the
// Prometheus gauges from the same locked snapshot.
func (c *Channel) GetCounters(owner int) (totalBytes, totalMessages int64, err error) {
	err = c.withLock(owner, func(h *ccbHeader) error {
		totalBytes = h.totalBytes
		totalMessages = h.totalMessages
		c.metrics.refresh(h, c.numSlots, c.countListLocked)
		return nil
	})
	return
}

// countListLocked returns the number of elements on l. O(N); used only
// for diagnostics and metrics refresh, matching spec.md §4.1's "traversal
// is O(N) worst case and used only for diagnostics".
func (c *Channel) countListLocked(l *list) int {
	n := 0
	base := c.ccb.base()
	for off := l.first; off != 0; {
		n++
		off = elementAt(base, off).next
	}
	return n
}
