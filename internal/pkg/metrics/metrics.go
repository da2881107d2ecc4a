// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsTotal counts accepted websocket connections.
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncpad_connections_total",
		Help: "Accepted websocket connections.",
	})

	// ActiveConnections tracks currently open sessions.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "syncpad_active_connections",
		Help: "Currently open sessions.",
	})

	// EditsTotal counts accepted document edits.
	EditsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncpad_edits_total",
		Help: "Accepted document edits.",
	})

	// BroadcastFailuresTotal counts per-recipient send failures during fan-out.
	BroadcastFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncpad_broadcast_failures_total",
		Help: "Per-recipient send failures during broadcast fan-out.",
	})
)
