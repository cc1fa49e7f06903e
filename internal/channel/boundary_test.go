package channel

import (
	"sync"
	"testing"
)

// Boundary: num_slots = 1. A reliable publisher whose single slot gets
// pinned by a subscriber has nowhere else to go: WriteBuffer must report
// back-pressure rather than reclaiming past the pinned slot or panicking
// on a list with only one member.
func TestBoundarySingleSlotChannel(t *testing.T) {
	ch := newTestChannel(t, "boundary-one-slot", 1, 64)

	pub, err := NewReliablePublisher(ch, 1)
	if err != nil {
		t.Fatalf("NewReliablePublisher: %v", err)
	}
	sub := NewSubscriber(ch, 2, true, nil)
	pinned, err := sub.Next(true)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if pinned == nil {
		t.Fatalf("expected the subscriber to pin the channel's only slot")
	}

	buf, err := pub.WriteBuffer()
	if err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}
	if buf != nil {
		t.Fatalf("expected back-pressure on a single-slot channel whose only slot is pinned")
	}
}

// Boundary: num_slots publishers racing a single slot. Multiple owners
// calling FindFreeSlot concurrently on a one-slot channel must be
// serialized by the CCB mutex: exactly one of them gets the slot, the
// rest see ChannelFull (nil, no error).
func TestBoundaryRacingPublishersSingleSlot(t *testing.T) {
	ch := newTestChannel(t, "boundary-race", 1, 64)

	const n = 8
	var wg sync.WaitGroup
	results := make([]*MessageSlot, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slot, err := ch.FindFreeSlot(false, 100+i)
			results[i] = slot
			errs[i] = err
		}(i)
	}
	wg.Wait()

	won := 0
	for i, s := range results {
		if errs[i] != nil {
			t.Fatalf("FindFreeSlot(owner %d): %v", 100+i, errs[i])
		}
		if s != nil {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one of %d racing publishers to win the single slot, got %d", n, won)
	}
}

// Boundary: a subscriber joining after the ring has wrapped gets whatever
// is currently the oldest surviving message, not an error and not the
// messages that have already been overwritten.
func TestBoundarySubscriberJoinsAfterWrap(t *testing.T) {
	ch := newTestChannel(t, "boundary-afterwrap", 3, 64)

	pub, err := NewPublisher(ch, 1)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	// Publish well past the ring's capacity with nobody subscribed: every
	// slot keeps getting reclaimed as soon as it is written, since
	// ref_count never rises above 0. Steady state leaves numSlots-1
	// messages alive on active once the ring has wrapped.
	for i := 0; i < 7; i++ {
		buf, err := pub.WriteBuffer()
		if err != nil {
			t.Fatalf("WriteBuffer: %v", err)
		}
		if buf == nil {
			t.Fatalf("unreliable publisher unexpectedly back-pressured on iteration %d", i)
		}
		copy(buf, "w")
		if _, err := pub.Publish(1); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	sub := NewSubscriber(ch, 2, false, nil)
	slot, err := sub.Next(false)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if slot == nil {
		t.Fatalf("expected a surviving message after the ring wrapped")
	}
	if slot.Ordinal() != 6 {
		t.Fatalf("expected the oldest surviving ordinal (6) after 7 publishes on 3 slots, got %d", slot.Ordinal())
	}
}

// Boundary: reliable publisher with zero subscribers. WriteBuffer must
// return (nil, nil) even though a free slot exists, per spec.md §8 — with
// no subscriber there is no reliable_ref_count > 0 slot to stop this
// publisher from overwriting every message before anyone reads it.
func TestBoundaryReliablePublisherNoSubscribers(t *testing.T) {
	ch := newTestChannel(t, "boundary-nosubs", 2, 64)

	pub, err := NewReliablePublisher(ch, 1)
	if err != nil {
		t.Fatalf("NewReliablePublisher: %v", err)
	}
	if ch.NumSubscribers() != 0 {
		t.Fatalf("expected zero subscribers, got %d", ch.NumSubscribers())
	}

	buf, err := pub.WriteBuffer()
	if err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}
	if buf != nil {
		t.Fatalf("expected a reliable publisher with no subscribers to get no buffer, even with a free slot available")
	}
}

// Boundary: timestamp search on an empty active list returns none and
// changes no state.
func TestBoundaryTimestampSearchEmptyActive(t *testing.T) {
	ch := newTestChannel(t, "boundary-emptysearch", 4, 64)

	var scratch []*MessageSlot
	slot, err := ch.FindActiveSlotByTimestamp(nil, 12345, false, 1, &scratch)
	if err != nil {
		t.Fatalf("FindActiveSlotByTimestamp: %v", err)
	}
	if slot != nil {
		t.Fatalf("expected no slot from a search over an empty active list, got one")
	}

	_, total, err := ch.GetCounters(0)
	if err != nil {
		t.Fatalf("GetCounters: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected total_messages unchanged at 0, got %d", total)
	}
}
