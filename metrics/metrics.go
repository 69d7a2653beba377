// Package metrics, gateway'in Prometheus collector'larını tanımlar.
// /metrics endpoint'i init_routes.go'da promhttp.Handler ile açılır.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocket
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_ws_connections_active",
		Help: "The current number of live WebSocket connections on this process.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_ws_connections_total",
		Help: "The total number of WebSocket connections accepted.",
	})
	HandshakeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_ws_handshake_rejections_total",
		Help: "The total number of rejected WebSocket handshakes.",
	}, []string{"reason"})
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_ws_events_received_total",
		Help: "The total number of client events received, by op.",
	}, []string{"op"})
	EventErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_ws_event_errors_total",
		Help: "The total number of error events sent to clients, by code.",
	}, []string{"code"})
	SlowClientsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_ws_slow_clients_dropped_total",
		Help: "The total number of connections closed because their send buffer was full.",
	})

	// Fan-out
	FanoutPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_fanout_published_total",
		Help: "The total number of envelopes published to the broker.",
	}, []string{"transport"})
	FanoutPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_fanout_publish_failures_total",
		Help: "The total number of envelopes that could not be published.",
	}, []string{"reason"})
	FanoutReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_fanout_received_total",
		Help: "The total number of envelopes delivered to subscribers.",
	})
	FanoutSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_fanout_skipped_total",
		Help: "The total number of received envelopes not delivered, by reason.",
	}, []string{"reason"})
	FanoutReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_fanout_reconnects_total",
		Help: "The total number of subscription receive failures followed by a retry.",
	})

	// Registry
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_sessions_created_total",
		Help: "The total number of sessions created.",
	})
	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_sessions_evicted_total",
		Help: "The total number of sessions evicted by the per-user cap.",
	})
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_store_errors_total",
		Help: "The total number of failed shared store operations.",
	}, []string{"op"})

	// Auth
	AuthSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_auth_success_total",
		Help: "The total number of successful logins.",
	})
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_auth_failures_total",
		Help: "The total number of failed logins.",
	}, []string{"reason"})
)
