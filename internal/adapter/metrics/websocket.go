package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics holds Prometheus metrics for connections and message fan-out.
type RelayMetrics struct {
	ActiveConnections   prometheus.Gauge
	RejectedConnections *prometheus.CounterVec
	MessagesPublished   prometheus.Counter
	MessagesRelayed     prometheus.Counter
	Deliveries          prometheus.Counter
	SendFailures        prometheus.Counter
	DrainDuration       prometheus.Histogram
	ForcedDisconnects   prometheus.Counter
}

// NewRelayMetrics creates and registers relay metrics on the given registry.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of connections held by this instance.",
		}),
		RejectedConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejected_connections_total",
			Help:      "Connection attempts refused, by reason.",
		}, []string{"reason"}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "messages_published_total",
			Help:      "Messages published to the shared channel by this instance.",
		}),
		MessagesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "messages_relayed_total",
			Help:      "Messages received from the shared channel and fanned out locally.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "deliveries_total",
			Help:      "Successful sends to local connections.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "send_failures_total",
			Help:      "Sends to local connections that failed or timed out and were dropped.",
		}),
		DrainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "shutdown",
			Name:      "drain_duration_seconds",
			Help:      "Time spent draining connections before termination.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		ForcedDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shutdown",
			Name:      "forced_disconnects_total",
			Help:      "Connections closed because the drain deadline passed.",
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.RejectedConnections,
		m.MessagesPublished,
		m.MessagesRelayed,
		m.Deliveries,
		m.SendFailures,
		m.DrainDuration,
		m.ForcedDisconnects,
	)
	return m
}
