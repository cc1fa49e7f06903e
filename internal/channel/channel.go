package channel

import (
	"sync"

	log "github.com/golang/glog"
)

// Channel is a participant's mapped view of one shared-memory channel: the
// CCB, the buffer region, and (once bound) the SCB. It is the shared-state
// side of a publisher's or subscriber's per-process Handle (see handle.go);
// every method here that touches the CCB takes the CCB's robust mutex for
// its entire body, per spec.md §5.
type Channel struct {
	Name      string
	ChannelID int
	numSlots  int
	slotSize  int

	ccb *ccbView
	buf *bufferView
	scb *scbView // nil until the SCB is mapped

	metrics *channelMetrics

	regMu       sync.Mutex
	reliable    map[int]bool // ownerID -> reliable, best-effort local registry
	subscribers map[int]bool // ownerID -> reliable, subscribers only

	trigMu   sync.Mutex
	pubTrigs map[int]Trigger // ownerID -> publisher's trigger FD stand-in
	subTrigs map[int]Trigger // ownerID -> subscriber's trigger FD stand-in
}

// NewChannel wraps already-mapped CCB, buffer, and (optionally) SCB
// regions. ccbMem and bufMem must have been sized with CCBSize/
// BufferRegionSize for numSlots/slotSize and initialized with initCCB (or
// already contain a valid CCB written by another participant).
func NewChannel(name string, channelID, numSlots, slotSize int, ccbMem, bufMem []byte, scbMem []byte) *Channel {
	c := &Channel{
		Name:        name,
		ChannelID:   channelID,
		numSlots:    numSlots,
		slotSize:    slotSize,
		ccb:         newCCBView(ccbMem),
		buf:         newBufferView(bufMem, slotSize),
		reliable:    make(map[int]bool),
		subscribers: make(map[int]bool),
		pubTrigs:    make(map[int]Trigger),
		subTrigs:    make(map[int]Trigger),
	}
	if scbMem != nil {
		c.scb = newSCBView(scbMem)
	}
	c.metrics = newChannelMetrics(name)
	return c
}

// IsPlaceholder reports whether this channel has no slots, i.e. it is a
// subscriber's view of a channel with no publishers bound yet.
func (c *Channel) IsPlaceholder() bool { return c.numSlots == 0 }

// NumSlots returns the channel's configured slot count.
func (c *Channel) NumSlots() int { return c.numSlots }

// SlotSize returns the channel's configured payload size, excluding the
// MessagePrefix.
func (c *Channel) SlotSize() int { return c.slotSize }

// RegisterOwner records that participant id is (or is not) a reliable
// participant on this channel. Used as a best-effort hint for robust
// mutex recovery: see withLock. Real owner-identity bookkeeping belongs to
// the server, which is out of scope for this package; this registry only
// helps when the dead owner happened to have been registered by the
// surviving process itself (e.g. in tests that simulate many owners from
// one process).
func (c *Channel) RegisterOwner(id int, reliable bool) {
	c.regMu.Lock()
	c.reliable[id] = reliable
	c.regMu.Unlock()
}

// UnregisterOwner removes a prior RegisterOwner entry.
func (c *Channel) UnregisterOwner(id int) {
	c.regMu.Lock()
	delete(c.reliable, id)
	c.regMu.Unlock()
}

func (c *Channel) ownerReliable(id int) bool {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	return c.reliable[id]
}

// RegisterSubscriber records a live subscriber on this channel, in
// addition to the general owner registry RegisterOwner already maintains.
// NumSubscribers counts these entries; a reliable publisher with none of
// them must not be handed a free slot (spec.md §8's zero-subscriber
// boundary behavior).
func (c *Channel) RegisterSubscriber(id int, reliable bool) {
	c.RegisterOwner(id, reliable)
	c.regMu.Lock()
	c.subscribers[id] = reliable
	c.regMu.Unlock()
}

// UnregisterSubscriber removes a prior RegisterSubscriber entry and the
// underlying RegisterOwner entry.
func (c *Channel) UnregisterSubscriber(id int) {
	c.regMu.Lock()
	delete(c.subscribers, id)
	c.regMu.Unlock()
	c.UnregisterOwner(id)
}

// NumSubscribers returns the number of subscribers currently registered on
// this channel, reliable and unreliable alike.
func (c *Channel) NumSubscribers() int {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	return len(c.subscribers)
}

// RegisterPublisherTrigger attaches the notifier a real server would hand
// this publisher a file descriptor for: one per publisher, per spec.md §6,
// woken when slots free up.
func (c *Channel) RegisterPublisherTrigger(id int, t Trigger) {
	c.trigMu.Lock()
	c.pubTrigs[id] = t
	c.trigMu.Unlock()
}

// UnregisterPublisherTrigger removes a prior RegisterPublisherTrigger entry.
func (c *Channel) UnregisterPublisherTrigger(id int) {
	c.trigMu.Lock()
	delete(c.pubTrigs, id)
	c.trigMu.Unlock()
}

// RegisterSubscriberTrigger attaches the notifier a real server would hand
// this subscriber a file descriptor for: one per subscriber, per spec.md
// §6, woken when new messages arrive.
func (c *Channel) RegisterSubscriberTrigger(id int, t Trigger) {
	c.trigMu.Lock()
	c.subTrigs[id] = t
	c.trigMu.Unlock()
}

// UnregisterSubscriberTrigger removes a prior RegisterSubscriberTrigger entry.
func (c *Channel) UnregisterSubscriberTrigger(id int) {
	c.trigMu.Lock()
	delete(c.subTrigs, id)
	c.trigMu.Unlock()
}

// notifySubscribers wakes every subscriber trigger attached to this
// channel. Called outside the CCB mutex after a publish that made a new
// message visible on active (spec.md §6: "one FD per subscriber, woken
// when new messages arrive").
func (c *Channel) notifySubscribers() error {
	c.trigMu.Lock()
	trigs := make([]Trigger, 0, len(c.subTrigs))
	for _, t := range c.subTrigs {
		trigs = append(trigs, t)
	}
	c.trigMu.Unlock()
	for _, t := range trigs {
		if err := t.Notify(); err != nil {
			return err
		}
	}
	return nil
}

// notifyPublishers wakes every publisher trigger attached to this channel.
// Called outside the CCB mutex after a subscriber releases a slot (spec.md
// §6: "one FD per publisher, woken when slots free up").
func (c *Channel) notifyPublishers() error {
	c.trigMu.Lock()
	trigs := make([]Trigger, 0, len(c.pubTrigs))
	for _, t := range c.pubTrigs {
		trigs = append(trigs, t)
	}
	c.trigMu.Unlock()
	for _, t := range trigs {
		if err := t.Notify(); err != nil {
			return err
		}
	}
	return nil
}

// withLock runs fn with the CCB's robust mutex held on behalf of owner.
// If the mutex is found to have been abandoned by a dead holder, withLock
// recovers it (CleanupSlots for the dead owner, then MakeConsistent)
// before running fn, matching spec.md §7's OwnerInconsistent propagation:
// "recovered internally by cleanup, then the operation retries".
func (c *Channel) withLock(owner int, fn func(h *ccbHeader) error) error {
	h := c.ccb.header()
	res := h.mu.lock(owner)
	if res.Recovered {
		if res.DeadOwnerID >= 0 {
			dead := res.DeadOwnerID
			reliable := c.ownerReliable(dead)
			log.Warningf("channel %s: recovering owner-inconsistent mutex, dead owner=%d reliable=%v", c.Name, dead, reliable)
			c.cleanupSlotsLocked(h, dead, reliable)
			c.UnregisterOwner(dead)
		}
		h.mu.makeConsistent()
	}
	defer h.mu.unlock()
	return fn(h)
}
