package channel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// channelMetrics mirrors a channel's CCB running totals and the number of
// slots on each of its free/busy/active lists as Prometheus gauges (the
// SCB counters are not exported), the same counter/gauge-pair shape blb's OpMetric
// uses for its RPC operation stats, adapted here to expose channel
// statistics instead of request latencies. Every channel on a process
// shares one set of vectors, keyed by channel name, so opening many
// channels never re-registers a collector.
type channelMetrics struct {
	totalBytes    prometheus.Gauge
	totalMessages prometheus.Gauge
	freeSlots     prometheus.Gauge
	busySlots     prometheus.Gauge
	activeSlots   prometheus.Gauge
}

var (
	channelTotalBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "subspace_channel_total_bytes",
		Help: "Running total of bytes published on a channel.",
	}, []string{"channel"})
	channelTotalMessages = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "subspace_channel_total_messages",
		Help: "Running total of messages published on a channel.",
	}, []string{"channel"})
	channelSlotsByList = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "subspace_channel_slots",
		Help: "Number of slots currently on each of the free/busy/active lists.",
	}, []string{"channel", "list"})
)

func newChannelMetrics(name string) *channelMetrics {
	return &channelMetrics{
		totalBytes:    channelTotalBytes.WithLabelValues(name),
		totalMessages: channelTotalMessages.WithLabelValues(name),
		freeSlots:     channelSlotsByList.WithLabelValues(name, "free"),
		busySlots:     channelSlotsByList.WithLabelValues(name, "busy"),
		activeSlots:   channelSlotsByList.WithLabelValues(name, "active"),
	}
}

// refresh updates the gauges from the current (already-locked) CCB state.
// Called from GetCounters, which already holds the mutex.
func (m *channelMetrics) refresh(h *ccbHeader, numSlots int, countList func(*list) int) {
	m.totalBytes.Set(float64(h.totalBytes))
	m.totalMessages.Set(float64(h.totalMessages))
	m.freeSlots.Set(float64(countList(&h.free)))
	m.busySlots.Set(float64(countList(&h.busy)))
	m.activeSlots.Set(float64(countList(&h.active)))
}
