package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveConnections tracks websocket sessions currently being served.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whiteboard_active_connections",
		Help: "Number of websocket connections currently open.",
	})

	// ActiveRooms tracks rooms with at least one connection.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whiteboard_active_rooms",
		Help: "Number of rooms with at least one open connection.",
	})

	// BroadcastsTotal counts room broadcast sweeps.
	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whiteboard_broadcasts_total",
		Help: "Total broadcast fan-outs performed.",
	})

	// ConnectionsDropped counts connections pruned after failed sends.
	ConnectionsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whiteboard_connections_dropped_total",
		Help: "Connections removed from rooms after delivery failures.",
	})

	// SnapshotsSaved counts persisted snapshots by trigger (auto / requested / rest).
	SnapshotsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whiteboard_snapshots_saved_total",
		Help: "Snapshots written to the store.",
	}, []string{"trigger"})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
