package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "telemetry"

// Drop reasons recorded on MessagesDropped
const (
	ReasonDecode   = "decode"
	ReasonStore    = "store"
	ReasonInternal = "internal"
	ReasonShutdown = "shutdown"
)

// Metrics holds the ingestor collectors on a dedicated registry
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived   prometheus.Counter
	MessagesProcessed  prometheus.Counter
	MessagesDropped    *prometheus.CounterVec
	FieldsRejected     *prometheus.CounterVec
	StoreOperations    *prometheus.CounterVec
	ProcessingDuration prometheus.Histogram

	BusState      prometheus.Gauge
	BusReconnects prometheus.Counter

	LivenessChecks *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "received_total",
			Help:      "Total number of bus messages received",
		}),
		MessagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "processed_total",
			Help:      "Total number of messages fully written to the store",
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "dropped_total",
			Help:      "Total number of messages dropped, by reason",
		}, []string{"reason"}),
		FieldsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fields",
			Name:      "rejected_total",
			Help:      "Payload fields present but unusable, by wire key",
		}, []string{"field"}),
		StoreOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store operations by operation and outcome",
		}, []string{"op", "status"}),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "processing",
			Name:      "duration_seconds",
			Help:      "Time from dispatch to last store write for one message",
			Buckets:   prometheus.DefBuckets,
		}),
		BusState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "state",
			Help:      "Bus client state (0=disconnected, 1=connecting, 2=subscribed, 3=reconnecting)",
		}),
		BusReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "reconnects_total",
			Help:      "Total number of reconnect attempts after connection loss",
		}),
		LivenessChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liveness",
			Name:      "checks_total",
			Help:      "Store liveness pings by outcome",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MessagesReceived,
		m.MessagesProcessed,
		m.MessagesDropped,
		m.FieldsRejected,
		m.StoreOperations,
		m.ProcessingDuration,
		m.BusState,
		m.BusReconnects,
		m.LivenessChecks,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom gatherers
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStore records the outcome of one store call
func (m *Metrics) ObserveStore(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreOperations.WithLabelValues(op, status).Inc()
}
