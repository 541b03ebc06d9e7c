package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks currently open realtime connections.
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "xtendplex",
			Subsystem: "chat",
			Name:      "connections_active",
			Help:      "Currently open realtime connections",
		},
	)

	// EventsReceivedTotal counts inbound realtime events by type.
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xtendplex",
			Subsystem: "chat",
			Name:      "events_received_total",
			Help:      "Inbound realtime events",
		},
		[]string{"type", "status"},
	)

	// EventsSentTotal counts outbound realtime events by type.
	EventsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xtendplex",
			Subsystem: "chat",
			Name:      "events_sent_total",
			Help:      "Outbound realtime events",
		},
		[]string{"type"},
	)

	// BroadcastFanout observes per-broadcast subscriber counts.
	BroadcastFanout = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "xtendplex",
			Subsystem: "chat",
			Name:      "broadcast_fanout",
			Help:      "Subscribers reached per broadcast",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	// SendDuration observes the persist-to-broadcast latency of message
	// sends.
	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "xtendplex",
			Subsystem: "chat",
			Name:      "send_duration_seconds",
			Help:      "Message send latency from validation to broadcast",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// DroppedFramesTotal counts frames dropped because a subscriber's
	// send buffer was full.
	DroppedFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xtendplex",
			Subsystem: "chat",
			Name:      "dropped_frames_total",
			Help:      "Frames dropped on slow subscriber buffers",
		},
	)
)
