package channel

// Printer is the minimal sink DumpLists writes to; satisfied by *log.Logger
// or any type with a compatible Printf method (the debug tool wraps
// fmt.Printf in one), so the debug tool isn't the only thing that can use
// this.
type Printer interface {
	Printf(format string, args ...any)
}

// DumpLists prints the free/busy/active list contents, the way the
// original's Channel::Dump()/PrintLists() did, for the debug tool and for
// diagnosing corruption reports (KindCorrupt) by hand.
func DumpLists(c *Channel, p Printer) {
	_ = c.withLock(-1, func(h *ccbHeader) error {
		dumpList(c, p, "free", &h.free)
		dumpList(c, p, "busy", &h.busy)
		dumpList(c, p, "active", &h.active)
		return nil
	})
}

func dumpList(c *Channel, p Printer, name string, l *list) {
	p.Printf("  %s:\n", name)
	base := c.ccb.base()
	n := 0
	for off := l.first; off != 0; {
		e := elementAt(base, off)
		s := c.ccb.slotOfElement(e)
		p.Printf("    slot %d: ordinal=%d size=%d ref_count=%d reliable_ref_count=%d owners=%d payload=%p\n",
			s.ID(), s.Ordinal(), s.MessageSize(), s.RefCount(), s.ReliableRefCount(), s.Owners().PopCount(), c.buf.payloadAddress(s.ID()))
		n++
		off = e.next
	}
	if n == 0 {
		p.Printf("    (empty)\n")
	}
}
