package server

import "github.com/prometheus/client_golang/prometheus"

var (
	keepalivesAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_keepalives_accepted_total",
		Help: "Number of keepalives accepted into the client store.",
	})
	keepalivesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_keepalives_rejected_total",
		Help: "Number of keepalives rejected before reaching the store.",
	}, []string{"reason"})
	activeClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_active_clients",
		Help: "Number of clients currently held in the store.",
	})
	evictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_evictions_total",
		Help: "Number of clients evicted for staleness.",
	})
	notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_notifications_total",
		Help: "Number of outbound chat notifications by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		keepalivesAccepted,
		keepalivesRejected,
		activeClients,
		evictionsTotal,
		notificationsTotal,
	)
}
