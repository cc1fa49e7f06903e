package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/poftwaresatent/dallison-subspace/internal/channel"
)

func main() {
	name := flag.String("channel", "", "channel name to dump (required)")
	numSlots := flag.Int("slots", 0, "channel's configured slot count (required)")
	slotSize := flag.Int("slot-size", 0, "channel's configured payload size, excluding the prefix (required)")
	flag.Parse()

	if *name == "" || *numSlots <= 0 || *slotSize <= 0 {
		flag.Usage()
		log.Fatal("channel, slots, and slot-size are all required")
	}

	seg, err := channel.OpenChannelSegment(*name, *numSlots, *slotSize)
	if err != nil {
		log.Fatalf("open channel segment %q: %v", *name, err)
	}
	defer seg.Close()

	ch := channel.NewChannel(*name, 0, *numSlots, *slotSize, seg.CCBMem, seg.BufMem, nil)

	totalBytes, totalMessages, err := ch.GetCounters(-1)
	if err != nil {
		log.Fatalf("get counters: %v", err)
	}

	fmt.Printf("channel %q: %d slots, %d-byte payload\n", *name, *numSlots, *slotSize)
	fmt.Printf("  total_bytes=%d total_messages=%d\n", totalBytes, totalMessages)

	channel.DumpLists(ch, dumpWriter{})
}

// dumpWriter adapts fmt.Printf to channel.DumpLists' io.Writer-free
// line-printing contract (the debug tool has no need for anything more
// structured than stdout text).
type dumpWriter struct{}

func (dumpWriter) Printf(format string, args ...any) {
	fmt.Printf(format, args...)
}
