package channel

import "testing"

func newTestChannel(t *testing.T, name string, numSlots, slotSize int) *Channel {
	t.Helper()
	ccbMem := make([]byte, CCBSize(numSlots))
	bufMem := make([]byte, BufferRegionSize(numSlots, slotSize))
	initCCB(ccbMem, name, numSlots, slotSize)
	return NewChannel(name, 1, numSlots, slotSize, ccbMem, bufMem, nil)
}

// Scenario A: single publisher, single subscriber, unreliable.
func TestScenarioA_UnreliablePublishSubscribe(t *testing.T) {
	ch := newTestChannel(t, "scenario-a", 4, 64)

	pub, err := NewPublisher(ch, 1)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	sub := NewSubscriber(ch, 2, false, nil)

	// With only 4 slots, a slot can be reclaimed for a later message as
	// soon as no subscriber references it; reading each message back
	// immediately (rather than publishing all 5 first) is what keeps
	// every one of ordinals 1..5 alive long enough for the subscriber to
	// see it, exactly as spec.md's scenario narrative assumes.
	messages := []string{"m1", "m2", "m3", "m4", "m5"}
	for i, msg := range messages {
		buf, err := pub.WriteBuffer()
		if err != nil {
			t.Fatalf("WriteBuffer: %v", err)
		}
		copy(buf, msg)
		if _, err := pub.Publish(int64(len(msg))); err != nil {
			t.Fatalf("Publish(%q): %v", msg, err)
		}

		slot, err := sub.Next(false)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if slot == nil {
			t.Fatalf("expected slot for message %d, got none", i+1)
		}
		if slot.Ordinal() != int64(i+1) {
			t.Fatalf("expected ordinal %d, got %d", i+1, slot.Ordinal())
		}
	}

	slot, err := sub.Next(false)
	if err != nil {
		t.Fatalf("Next (tail): %v", err)
	}
	if slot != nil {
		t.Fatalf("expected nil at tail, got slot %d", slot.ID())
	}

	_, total, err := ch.GetCounters(0)
	if err != nil {
		t.Fatalf("GetCounters: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected total_messages 5, got %d", total)
	}
}

// Scenario B: reliable activation message.
func TestScenarioB_ReliableActivation(t *testing.T) {
	ch := newTestChannel(t, "scenario-b", 4, 64)

	_, err := NewReliablePublisher(ch, 1)
	if err != nil {
		t.Fatalf("NewReliablePublisher: %v", err)
	}

	h := ch.ccb.header()
	if listEmpty(&h.active) {
		t.Fatalf("expected one slot on active after activation publish")
	}
	activeOff := h.active.first
	activeSlot := ch.ccb.slotOfElement(elementAt(ch.ccb.base(), activeOff))
	prefix := ReadMessagePrefix(ch.buf.prefixBytes(activeSlot.ID()))
	if !prefix.IsActivation() {
		t.Fatalf("expected activation flag set on the first slot")
	}
	if prefix.Size != 1 {
		t.Fatalf("expected activation message size 1, got %d", prefix.Size)
	}

	sub := NewSubscriber(ch, 2, true, nil)
	slot, err := sub.Next(false)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if slot != nil {
		t.Fatalf("expected activation message filtered from default read, got slot %d", slot.ID())
	}
	if activeSlot.ReliableRefCount() != 1 {
		t.Fatalf("expected reliable_ref_count 1 on activation slot, got %d", activeSlot.ReliableRefCount())
	}
}

// Scenario C: back-pressure with a stuck reliable subscriber.
func TestScenarioC_Backpressure(t *testing.T) {
	ch := newTestChannel(t, "scenario-c", 2, 64)

	pub, err := NewReliablePublisher(ch, 1) // consumes slot 0 for the activation message
	if err != nil {
		t.Fatalf("NewReliablePublisher: %v", err)
	}
	sub := NewSubscriber(ch, 2, true, nil)
	if _, err := sub.Next(true); err != nil { // pins the activation slot, never advances again
		t.Fatalf("Next: %v", err)
	}

	buf, err := pub.WriteBuffer()
	if err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}
	copy(buf, "m1")
	if _, err := pub.Publish(2); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	h := ch.ccb.header()
	ordinalAfterSecondPublish := h.nextOrdinal

	buf, err = pub.WriteBuffer()
	if err != nil {
		t.Fatalf("WriteBuffer (expected backpressure, not error): %v", err)
	}
	if buf != nil {
		t.Fatalf("expected nil buffer under backpressure, got one")
	}

	if h.nextOrdinal != ordinalAfterSecondPublish {
		t.Fatalf("expected next_ordinal unchanged under backpressure, got %d want %d", h.nextOrdinal, ordinalAfterSecondPublish)
	}
}

// Scenario D: drop detection.
func TestScenarioD_DropDetection(t *testing.T) {
	ch := newTestChannel(t, "scenario-d", 3, 64)

	pub, err := NewPublisher(ch, 1)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	publish := func(msg string) {
		buf, err := pub.WriteBuffer()
		if err != nil {
			t.Fatalf("WriteBuffer: %v", err)
		}
		copy(buf, msg)
		if _, err := pub.Publish(int64(len(msg))); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	var gaps []int64
	sub := NewSubscriber(ch, 2, false, func(gap int64) { gaps = append(gaps, gap) })

	publish("m1")
	if _, err := sub.Next(false); err != nil { // reads ordinal 1
		t.Fatalf("Next: %v", err)
	}

	for i := 2; i <= 10; i++ {
		publish("m")
	}

	slot, err := sub.Next(false)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if slot == nil {
		t.Fatalf("expected a slot after the ring wrapped")
	}
	if slot.Ordinal() <= 2 {
		t.Fatalf("expected ordinal > 2 after wraparound, got %d", slot.Ordinal())
	}
	if len(gaps) != 1 {
		t.Fatalf("expected exactly one drop callback, got %d", len(gaps))
	}
	if gaps[0] != slot.Ordinal()-2 {
		t.Fatalf("expected gap %d, got %d", slot.Ordinal()-2, gaps[0])
	}
}

// Scenario E: timestamp search.
func TestScenarioE_TimestampSearch(t *testing.T) {
	// 5 slots for 4 messages: every published timestamp stays on active
	// for the whole test, with no free-list exhaustion forcing a
	// reclaim that would otherwise (harmlessly, but confusingly) drop
	// the oldest one before the search assertions below run.
	ch := newTestChannel(t, "scenario-e", 5, 64)
	pub, err := NewPublisher(ch, 1)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	timestamps := []uint64{100, 200, 300, 400}
	for _, ts := range timestamps {
		slot := pub.slot
		SetMessageSize(slot, 1)
		res, err := ch.ActivateSlotAndGetAnother(slot, false, false, 1, true)
		if err != nil {
			t.Fatalf("ActivateSlotAndGetAnother: %v", err)
		}
		pub.slot = res.Slot
		WriteMessagePrefix(ch.buf.prefixBytes(slot.ID()), MessagePrefix{
			Size:      1,
			Ordinal:   slot.Ordinal(),
			Timestamp: ts,
		})
	}

	var scratch []*MessageSlot
	sub := NewSubscriber(ch, 2, false, nil)

	slot, err := ch.FindActiveSlotByTimestamp(sub.current, 250, false, 2, &scratch)
	if err != nil {
		t.Fatalf("FindActiveSlotByTimestamp(250): %v", err)
	}
	if slot == nil {
		t.Fatalf("expected a slot for timestamp 250")
	}
	got := ReadMessagePrefix(ch.buf.prefixBytes(slot.ID()))
	if got.Timestamp != 200 {
		t.Fatalf("expected slot with timestamp 200, got %d", got.Timestamp)
	}
	sub.current = slot

	none, err := ch.FindActiveSlotByTimestamp(sub.current, 50, false, 2, &scratch)
	if err != nil {
		t.Fatalf("FindActiveSlotByTimestamp(50): %v", err)
	}
	if none != nil {
		t.Fatalf("expected no slot for timestamp 50, got one")
	}
	if sub.current != slot {
		t.Fatalf("expected current cursor unchanged after a failed search")
	}
}

// Scenario F: owner cleanup on death.
func TestScenarioF_OwnerCleanupOnDeath(t *testing.T) {
	ch := newTestChannel(t, "scenario-f", 2, 64)

	pub, err := NewPublisher(ch, 1)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	buf, _ := pub.WriteBuffer()
	copy(buf, "x")
	if _, err := pub.Publish(1); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	sub := NewSubscriber(ch, 5, false, nil)
	slot, err := sub.Next(false)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if slot == nil {
		t.Fatalf("expected a slot")
	}
	if slot.RefCount() != 1 || !slot.Owners().Test(5) {
		t.Fatalf("expected subscriber 5 to hold the slot before cleanup")
	}

	if err := ch.CleanupSlots(5, false); err != nil {
		t.Fatalf("CleanupSlots: %v", err)
	}

	if slot.RefCount() != 0 {
		t.Fatalf("expected ref_count 0 after cleanup, got %d", slot.RefCount())
	}
	if slot.Owners().Test(5) {
		t.Fatalf("expected owner bit 5 cleared after cleanup")
	}

	if err := ch.CleanupSlots(5, false); err != nil {
		t.Fatalf("second CleanupSlots call should be a no-op, got error: %v", err)
	}
	if slot.RefCount() != 0 {
		t.Fatalf("expected CleanupSlots idempotent, got ref_count %d", slot.RefCount())
	}
}
