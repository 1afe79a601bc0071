package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Deliveries seen per transport, before deduplication.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_notify_deliveries_total",
			Help: "Notification deliveries received per transport",
		},
		[]string{"transport", "type"},
	)

	SuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_notify_suppressed_total",
			Help: "Deliveries dropped by the dedup pipeline",
		},
		[]string{"reason"},
	)

	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_console_alerts_total",
			Help: "Alerts raised on the staff console",
		},
		[]string{"type"},
	)

	SocketReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kiosk_socket_reconnects_total",
			Help: "Push transport reconnect attempts",
		},
	)

	PollFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_poll_failures_total",
			Help: "Failed reconciliation polls",
		},
		[]string{"job"},
	)

	HubClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiosk_hub_clients",
			Help: "Connected push hub clients",
		},
	)

	DisplayState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiosk_bigscreen_active",
			Help: "1 while the big screen shows an album, 0 when idle",
		},
	)
)
