package channel

import "sort"

// NextSlot advances a subscriber's cursor by one position on the active
// list: from none to active.first, or from current to current's
// successor. If there is no such slot (the cursor is already at the
// tail), it returns nil without changing any ownership — the caller keeps
// whatever reference it already held on current. Otherwise the old
// cursor's reference (if any) is released and the new one acquired,
// atomically with respect to other participants, under the CCB mutex.
func (c *Channel) NextSlot(current *MessageSlot, reliable bool, owner int) (*MessageSlot, error) {
	var result *MessageSlot
	err := c.withLock(owner, func(h *ccbHeader) error {
		var targetOff int32
		if current == nil {
			targetOff = h.active.first
		} else {
			targetOff = current.element.next
		}
		target := c.slotAtOffset(targetOff)
		if target == nil {
			return nil
		}
		result = c.moveToLocked(current, target, reliable, owner)
		return nil
	})
	return result, err
}

// LastSlot moves a subscriber's cursor directly to the tail of the active
// list, skipping any intermediate slots. Used for "newest message"
// semantics; because it can skip ordinals, a subsequent drop check (see
// Subscriber.observe in handle.go) can report a gap.
func (c *Channel) LastSlot(current *MessageSlot, reliable bool, owner int) (*MessageSlot, error) {
	var result *MessageSlot
	err := c.withLock(owner, func(h *ccbHeader) error {
		target := c.slotAtOffset(h.active.last)
		if target == nil {
			return nil
		}
		result = c.moveToLocked(current, target, reliable, owner)
		return nil
	})
	return result, err
}

// slotAtOffset resolves a list-element offset to its containing slot, or
// nil if the offset is the sentinel "none" value.
func (c *Channel) slotAtOffset(off int32) *MessageSlot {
	if off == 0 {
		return nil
	}
	return c.ccb.slotOfElement(elementAt(c.ccb.base(), off))
}

// moveToLocked performs the release-old/acquire-new ownership transfer
// shared by NextSlot, LastSlot, and FindActiveSlotByTimestamp.
func (c *Channel) moveToLocked(current, target *MessageSlot, reliable bool, owner int) *MessageSlot {
	if current != nil {
		if current.refCount > 0 {
			current.refCount--
		}
		if reliable && current.reliableRefCount > 0 {
			current.reliableRefCount--
		}
		current.owners.Clear(owner)
	}

	target.refCount++
	if reliable {
		target.reliableRefCount++
	}
	target.owners.Set(owner)
	return target
}

// FindActiveSlotByTimestamp searches the active list for the slot with
// the largest MessagePrefix timestamp <= timestamp, and if found performs
// the same ownership transfer as NextSlot/LastSlot. If no such slot
// exists (including an empty active list), it returns nil and changes no
// ownership. scratch is caller-owned and reused across calls to avoid a
// per-search allocation; its contents on return are unspecified.
func (c *Channel) FindActiveSlotByTimestamp(current *MessageSlot, timestamp uint64, reliable bool, owner int, scratch *[]*MessageSlot) (*MessageSlot, error) {
	var result *MessageSlot
	err := c.withLock(owner, func(h *ccbHeader) error {
		base := c.ccb.base()
		*scratch = (*scratch)[:0]
		for off := h.active.first; off != 0; {
			e := elementAt(base, off)
			*scratch = append(*scratch, c.ccb.slotOfElement(e))
			off = e.next
		}
		entries := *scratch
		sort.Slice(entries, func(i, j int) bool {
			return c.prefixTimestamp(entries[i]) < c.prefixTimestamp(entries[j])
		})

		// Binary search for the largest timestamp <= the requested value.
		idx := sort.Search(len(entries), func(i int) bool {
			return c.prefixTimestamp(entries[i]) > timestamp
		})
		if idx == 0 {
			return nil
		}
		target := entries[idx-1]
		result = c.moveToLocked(current, target, reliable, owner)
		return nil
	})
	return result, err
}

func (c *Channel) prefixTimestamp(s *MessageSlot) uint64 {
	return ReadMessagePrefix(c.buf.prefixBytes(s.ID())).Timestamp
}
