package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "canvas"

// Paint results recorded in paints_total.
const (
	paintOK           = "ok"
	paintAnonymous    = "anonymous"
	paintOutOfBounds  = "out_of_bounds"
	paintRateLimited  = "rate_limited"
	paintCreditError  = "credit_error"
	paintStoreFailure = "store_error"
)

// Metrics are the Prometheus collectors of one Server.
type Metrics struct {
	sessions          prometheus.Gauge
	messages          *prometheus.CounterVec
	paints            *prometheus.CounterVec
	evictions         prometheus.Counter
	handshakeFailures *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_sessions",
			Help:      "Number of registered WebSocket sessions",
		}),

		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_total",
			Help:      "Inbound messages by decoded opcode",
		}, []string{"op"}),

		paints: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "paints_total",
			Help:      "Write cell requests by result",
		}, []string{"result"}),

		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcast_evictions_total",
			Help:      "Sessions removed because a broadcast could not be queued",
		}),

		handshakeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handshake_failures_total",
			Help:      "Connection attempts that never became a session, by stage",
		}, []string{"stage"}),
	}
}
