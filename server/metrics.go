package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_connections_open",
		Help: "Open websocket connections.",
	})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_sessions_active",
		Help: "Registered (logged in) sessions.",
	})

	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_commands_total",
		Help: "Dispatched commands by name.",
	}, []string{"cmd"})

	protocolErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_protocol_errors_total",
		Help: "Malformed or unrecognized inbound envelopes.",
	})

	backendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_backend_requests_total",
		Help: "Wheatley requests by operation and outcome.",
	}, []string{"op", "outcome"})

	geofenceRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_geofence_rejections_total",
		Help: "Deliveries rejected for exceeding the delivery radius.",
	})

	recoveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_recoveries_total",
		Help: "Disconnect recoveries run for abandoned deliveries.",
	})
)
