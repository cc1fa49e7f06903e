package channel

// CleanupSlots removes every reference participant owner holds on this
// channel: for every slot where owners[owner] is set, the bit is cleared
// and ref_count decremented, and reliable_ref_count too if reliable is
// true. It is idempotent: calling it twice for an owner that holds no
// more references is a no-op, since the second call finds no slot with
// the owner bit set.
//
// This is the operation a server invokes when a publisher or subscriber
// disconnects or is evicted, and the one the robust mutex's recovery path
// invokes automatically when it finds a dead holder (see
// Channel.withLock).
func (c *Channel) CleanupSlots(owner int, reliable bool) error {
	return c.withLock(owner, func(h *ccbHeader) error {
		c.cleanupSlotsLocked(h, owner, reliable)
		return nil
	})
}

// cleanupSlotsLocked is CleanupSlots' body, callable while the CCB mutex
// is already held (used directly by the robust-mutex recovery path, which
// must not re-enter withLock).
func (c *Channel) cleanupSlotsLocked(h *ccbHeader, owner int, reliable bool) {
	for i := 0; i < c.numSlots; i++ {
		s := c.ccb.slot(i)
		if !s.owners.Test(owner) {
			continue
		}
		s.owners.Clear(owner)
		if s.refCount > 0 {
			s.refCount--
		}
		if reliable && s.reliableRefCount > 0 {
			s.reliableRefCount--
		}
	}
}
