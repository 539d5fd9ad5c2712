package services

import "github.com/prometheus/client_golang/prometheus"

var (
	positionUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "position_updates_total",
			Help: "Position samples processed, by result",
		},
		[]string{"result"},
	)
	arrivalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arrivals_total",
			Help: "Users that reached their room destination",
		},
	)
	broadcastSnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_snapshots_total",
			Help: "Leaderboard snapshots pushed to room channels",
		},
	)
	broadcastDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_dropped_total",
			Help: "Room channel messages not delivered, by reason",
		},
		[]string{"reason"},
	)
	broadcastSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_subscribers",
			Help: "Open room channel subscriptions",
		},
	)
	broadcastRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_rooms",
			Help: "Rooms with at least one subscriber",
		},
	)
)

// InitMetrics registers the service metrics. Call this from main.go
func InitMetrics() {
	prometheus.MustRegister(
		positionUpdatesTotal,
		arrivalsTotal,
		broadcastSnapshotsTotal,
		broadcastDroppedTotal,
		broadcastSubscribers,
		broadcastRooms,
	)
}
