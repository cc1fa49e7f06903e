package channel

import "context"

// DropFunc is called by a subscriber's NextSlot/LastSlot wrapper when it
// detects a gap in ordinals: the number of missed messages, computed as
// newOrdinal - lastSeenOrdinal - 1.
type DropFunc func(gap int64)

// Subscriber is a per-process view of one participant's read cursor on a
// channel, implementing the Placeholder/Mapped state machine of spec.md
// §4.8. A zero-value Subscriber (obtained only via NewSubscriber) starts
// in Placeholder if its Channel is nil or a placeholder channel; callers
// transition it to Mapped by calling Rebind once a publisher has bound
// the channel, mirroring the original's "re-realised via a server
// round-trip once the SCB counter changes".
type Subscriber struct {
	ch       *Channel
	ownerID  int
	reliable bool

	current    *MessageSlot
	lastOrdinal int64 // 0 until the first message is read
	seenAny    bool

	onDrop func(gap int64)
	trig   Trigger
}

// SetTrigger attaches the notifier a real server would hand this
// subscriber the FD for (spec.md §6: "one FD per subscriber... woken when
// new messages arrive"), registering it with the channel so a publish on
// any publisher wakes it, and gives Wait something to block on. Passing
// nil detaches it.
func (s *Subscriber) SetTrigger(t Trigger) {
	s.trig = t
	if s.IsPlaceholder() {
		return
	}
	if t == nil {
		s.ch.UnregisterSubscriberTrigger(s.ownerID)
		return
	}
	s.ch.RegisterSubscriberTrigger(s.ownerID, t)
}

// Wait blocks until the subscriber's attached Trigger fires or ctx is
// done, whichever comes first. It is the suspension point a caller uses
// after Next or Last returns (nil, nil): rather than polling, the caller
// waits here for a publish to happen and then retries. Wait returns
// immediately with an error if no Trigger is attached.
func (s *Subscriber) Wait(ctx context.Context) error {
	if s.trig == nil {
		return newError(KindCorrupt, "Wait", "no trigger attached to subscriber")
	}
	return s.trig.Wait(ctx)
}

// NewSubscriber creates a subscriber bound to ch with the given owner ID.
// ch may be a placeholder channel (IsPlaceholder() true); the subscriber
// starts in Placeholder state in that case.
func NewSubscriber(ch *Channel, ownerID int, reliable bool, onDrop DropFunc) *Subscriber {
	s := &Subscriber{ch: ch, ownerID: ownerID, reliable: reliable, onDrop: onDrop}
	if ch != nil && !ch.IsPlaceholder() {
		ch.RegisterSubscriber(ownerID, reliable)
	}
	return s
}

// IsPlaceholder reports whether this subscriber has no bound channel yet.
func (s *Subscriber) IsPlaceholder() bool { return s.ch == nil || s.ch.IsPlaceholder() }

// Rebind attaches a freshly-mapped channel to a placeholder subscriber,
// transitioning Placeholder -> Mapped(current=none). Per spec.md §4.8 this
// is triggered by the SCB counter indicating the server has bound the
// channel; driving that poll loop is the caller's responsibility, this
// method only performs the state transition once the caller decides to.
func (s *Subscriber) Rebind(ch *Channel) {
	s.ch = ch
	s.current = nil
	s.seenAny = false
	s.lastOrdinal = 0
	if ch != nil && !ch.IsPlaceholder() {
		ch.RegisterSubscriber(s.ownerID, s.reliable)
	}
}

// Current returns the subscriber's currently held slot, or nil if its
// cursor is at current=none.
func (s *Subscriber) Current() *MessageSlot { return s.current }

// Next advances the cursor via Channel.NextSlot, skipping activation
// messages unless includeActivation is set (per spec.md §4.3: "Subscribers
// filter activation messages from normal reads unless explicitly asked to
// see them"), and runs drop detection outside the mutex on every slot
// actually returned to the caller.
func (s *Subscriber) Next(includeActivation bool) (*MessageSlot, error) {
	if s.IsPlaceholder() {
		return nil, nil
	}
	for {
		prev := s.current
		slot, err := s.ch.NextSlot(s.current, s.reliable, s.ownerID)
		if err != nil || slot == nil {
			// NextSlot leaves ownership exactly as it was when it has
			// nothing new to offer; s.current must not be clobbered, or
			// the next call would acquire current's slot a second time
			// without ever having released it.
			return slot, err
		}
		s.current = slot
		if prev != nil {
			_ = s.ch.notifyPublishers()
		}
		prefix := ReadMessagePrefix(s.ch.buf.prefixBytes(slot.ID()))
		if prefix.IsActivation() && !includeActivation {
			continue
		}
		s.observe(slot.Ordinal())
		return slot, nil
	}
}

// Last moves the cursor directly to the newest active slot via
// Channel.LastSlot. Unlike Next it does not filter activation messages:
// a caller asking for "the newest message" gets exactly that.
func (s *Subscriber) Last() (*MessageSlot, error) {
	if s.IsPlaceholder() {
		return nil, nil
	}
	prev := s.current
	slot, err := s.ch.LastSlot(s.current, s.reliable, s.ownerID)
	if err != nil || slot == nil {
		return slot, err
	}
	s.current = slot
	if prev != nil {
		_ = s.ch.notifyPublishers()
	}
	s.observe(slot.Ordinal())
	return slot, nil
}

// observe runs the ordinal-gap drop check described in spec.md §4.4,
// outside the CCB mutex, using only the ordinal already read while the
// lock was held.
func (s *Subscriber) observe(ordinal int64) {
	gap := ordinal - s.lastOrdinal - 1
	if gap > 0 && s.onDrop != nil {
		s.onDrop(gap)
	}
	s.lastOrdinal = ordinal
	s.seenAny = true
}

// Close releases the subscriber's hold on its current slot and
// unregisters it from the channel's owner registry. Safe to call on a
// placeholder subscriber.
func (s *Subscriber) Close() error {
	if s.IsPlaceholder() {
		return nil
	}
	if err := s.ch.CleanupSlots(s.ownerID, s.reliable); err != nil {
		return err
	}
	s.ch.UnregisterSubscriber(s.ownerID)
	s.ch.UnregisterSubscriberTrigger(s.ownerID)
	s.current = nil
	_ = s.ch.notifyPublishers()
	return nil
}

// Publisher is a per-process view of one participant's write cursor,
// implementing the Writing/Published (unreliable) or Idle/Writing
// (reliable) state machine of spec.md §4.8. Publish wakes every
// subscriber Trigger registered on the channel whenever
// ActivateSlotAndGetAnother reports one could plausibly be asleep waiting
// for a new message — the concrete stand-in for the trigger FDs a real
// server would hand out (spec.md §6). The publisher's own Trigger, if one
// is attached via SetTrigger, is woken from the other direction, by a
// subscriber releasing a slot.
type Publisher struct {
	ch      *Channel
	ownerID int
	trig    Trigger

	slot              *MessageSlot // the publisher's currently held writable slot, nil while Idle
	activationPending bool         // true until the mandatory reliable activation message is actually sent
}

// SetTrigger attaches the notifier a real server would hand this publisher
// the FD for (spec.md §6: "one FD per publisher... woken when slots free
// up"), registering it with the channel so a subscriber releasing a slot
// wakes it, and gives Wait something to block on. Passing nil detaches it.
func (p *Publisher) SetTrigger(t Trigger) {
	p.trig = t
	if t == nil {
		p.ch.UnregisterPublisherTrigger(p.ownerID)
		return
	}
	p.ch.RegisterPublisherTrigger(p.ownerID, t)
}

// NewPublisher creates an unreliable publisher and immediately obtains its
// first writable slot via FindFreeSlot, entering Writing. Failure to
// obtain one is fatal per spec.md §4.8 ("Created with one slot in
// Writing. ... Failure to obtain a new slot is fatal.").
func NewPublisher(ch *Channel, ownerID int) (*Publisher, error) {
	ch.RegisterOwner(ownerID, false)
	slot, err := ch.FindFreeSlot(false, ownerID)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, newError(KindChannelFull, "NewPublisher", "no free slot for initial write cursor")
	}
	return &Publisher{ch: ch, ownerID: ownerID, slot: slot}, nil
}

// NewReliablePublisher creates a reliable publisher and tries to publish
// the single size-1 Activate message spec.md §4.3 requires. If no slot is
// immediately available, activationPending stays set and WriteBuffer
// sends the activation message itself on the publisher's first successful
// refill, instead of silently skipping it.
func NewReliablePublisher(ch *Channel, ownerID int) (*Publisher, error) {
	ch.RegisterOwner(ownerID, true)
	p := &Publisher{ch: ch, ownerID: ownerID, activationPending: true}
	if err := p.sendPendingActivation(); err != nil {
		return nil, err
	}
	return p, nil
}

// sendPendingActivation tries once to obtain a slot and publish the
// deferred activation message. If no slot is free it leaves
// activationPending set for the next attempt; the publisher is otherwise
// indistinguishable from one that has never been written to.
func (p *Publisher) sendPendingActivation() error {
	slot, err := p.ch.FindFreeSlot(true, p.ownerID)
	if err != nil {
		return err
	}
	if slot == nil {
		return nil
	}
	p.slot = slot
	SetMessageSize(p.slot, 1)
	if _, err := p.publish(true); err != nil {
		return err
	}
	p.activationPending = false
	return nil
}

// WriteBuffer returns the publisher's current writable slot's payload
// buffer, or nil if the publisher is Idle and no free slot is currently
// available (back-pressure, not an error: see spec.md §7). For an
// unreliable publisher this always returns a non-nil buffer once the
// publisher exists, since Writing is guaranteed by construction and by
// Publish always obtaining a replacement.
//
// A reliable publisher that still owes the channel its activation message
// (construction found the channel full) sends it here, on the first slot
// that becomes free, rather than skipping it — silently never sending it
// would otherwise let a later publish reclaim the whole ring before any
// reliable subscriber gets a pinned slot. Sending the activation message
// itself leaves the publisher Idle again; WriteBuffer returns (nil, nil)
// for that call and the caller's next call gets the real writable slot.
//
// A reliable publisher with no subscribers never gets a slot for an
// ordinary write, even if one is free: with no subscriber there is no
// slot with reliable_ref_count > 0 to stop this publisher from
// overwriting every message before anyone reads it, and an incoming
// subscriber would miss all of them — that's not reliable. The deferred
// activation message is exempt from this check, since its entire purpose
// is to be in place before any subscriber exists.
func (p *Publisher) WriteBuffer() ([]byte, error) {
	if p.slot == nil {
		if !p.reliableHint() {
			return nil, newError(KindCorrupt, "WriteBuffer", "unreliable publisher has no writable slot")
		}
		if p.activationPending {
			if err := p.sendPendingActivation(); err != nil {
				return nil, err
			}
			return nil, nil
		}
		if p.ch.NumSubscribers() == 0 {
			return nil, nil
		}
		slot, err := p.ch.FindFreeSlot(true, p.ownerID)
		if err != nil {
			return nil, err
		}
		if slot == nil {
			return nil, nil
		}
		p.slot = slot
	}
	return p.ch.buf.payload(p.slot.ID()), nil
}

// Wait blocks until the publisher's attached Trigger fires or ctx is
// done, whichever comes first. It is the suspension point a caller uses
// after WriteBuffer returns (nil, nil) for back-pressure: rather than
// polling FindFreeSlot in a loop, the caller waits here for some
// subscriber to release a slot and then retries WriteBuffer. Wait returns
// immediately with an error if no Trigger is attached.
func (p *Publisher) Wait(ctx context.Context) error {
	if p.trig == nil {
		return newError(KindCorrupt, "Wait", "no trigger attached to publisher")
	}
	return p.trig.Wait(ctx)
}

// reliableHint distinguishes a reliable publisher (constructed via
// NewReliablePublisher, tracked by the channel's owner registry) from an
// unreliable one for WriteBuffer's error path; it is not itself part of
// the shared-memory state.
func (p *Publisher) reliableHint() bool { return p.ch.ownerReliable(p.ownerID) }

// Publish writes size bytes (the caller has already placed them in the
// slice returned by WriteBuffer) and calls ActivateSlotAndGetAnother,
// transitioning Writing(slot) -> Published(slot') for an unreliable
// publisher, or Writing(slot) -> Idle for a reliable one. If the publish
// reports a subscriber might be waiting, every subscriber Trigger
// registered on the channel is notified after the CCB mutex is released.
func (p *Publisher) Publish(size int64) (PublishResult, error) {
	if p.slot == nil {
		return PublishResult{}, newError(KindCorrupt, "Publish", "no writable slot held")
	}
	SetMessageSize(p.slot, size)
	return p.publish(false)
}

func (p *Publisher) publish(isActivation bool) (PublishResult, error) {
	reliable := p.reliableHint()
	res, err := p.ch.ActivateSlotAndGetAnother(p.slot, reliable, isActivation, p.ownerID, false)
	if err != nil {
		return res, err
	}
	p.slot = res.Slot
	if !reliable && p.slot == nil {
		return res, newError(KindChannelFull, "Publish", "no replacement slot available")
	}
	if res.Notify {
		if err := p.ch.notifySubscribers(); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Close releases any slot the publisher is holding and unregisters it.
func (p *Publisher) Close() error {
	if err := p.ch.CleanupSlots(p.ownerID, p.reliableHint()); err != nil {
		return err
	}
	p.ch.UnregisterOwner(p.ownerID)
	p.ch.UnregisterPublisherTrigger(p.ownerID)
	p.slot = nil
	return nil
}
