package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sketchsync_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sketchsync_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sketchsync_active_rooms",
			Help: "Rooms with at least one live connection",
		},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sketchsync_active_connections",
			Help: "Live websocket connections",
		},
	)

	ConnectionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sketchsync_connections_opened_total",
			Help: "Total websocket connections accepted",
		},
	)

	SyncMessagesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sketchsync_sync_messages_relayed_total",
			Help: "Total sync deltas rebroadcast to room peers",
		},
	)

	AwarenessMessagesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sketchsync_awareness_messages_relayed_total",
			Help: "Total awareness snapshots broadcast",
		},
	)

	MalformedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sketchsync_malformed_frames_total",
			Help: "Total frames dropped because they failed to decode",
		},
	)

	SlowConsumersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sketchsync_slow_consumers_dropped_total",
			Help: "Total connections dropped for a backlogged send queue",
		},
	)

	PresenceEntriesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sketchsync_presence_entries_pruned_total",
			Help: "Total awareness entries removed by the liveness timeout",
		},
	)
)
