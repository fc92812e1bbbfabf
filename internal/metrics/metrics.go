// Package metrics holds the relay's Prometheus collectors and exposes them
// at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relay"

// Delivery results used as the "result" label.
const (
	ResultDelivered = "delivered"
	ResultFailed    = "failed"
)

// Metrics groups the collectors updated by the hub, sessions and broadcast
// engine. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	FramesReceived    *prometheus.CounterVec
	RoomJoins         prometheus.Counter
	Broadcasts        prometheus.Counter
	Deliveries        *prometheus.CounterVec
	SessionErrors     *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of registered WebSocket connections.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "WebSocket connections accepted since start.",
		}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames by classification.",
		}, []string{"kind"}),
		RoomJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_joins_total",
			Help:      "Successful room joins.",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Room broadcasts attempted.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-recipient broadcast deliveries by result.",
		}, []string{"result"}),
		SessionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Errors reported to clients as error envelopes.",
		}, []string{"reason"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by handler, method and status code.",
		}, []string{"handler", "code", "method"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by handler.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler", "code", "method"}),
	}

	reg.MustRegister(
		m.ConnectionsActive,
		m.ConnectionsTotal,
		m.FramesReceived,
		m.RoomJoins,
		m.Broadcasts,
		m.Deliveries,
		m.SessionErrors,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Instrument wraps an HTTP handler with request counting and latency
// observation under the given handler label.
func (m *Metrics) Instrument(name string, h http.Handler) http.Handler {
	if m == nil {
		return h
	}
	labels := prometheus.Labels{"handler": name}
	return promhttp.InstrumentHandlerDuration(
		m.HTTPDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(m.HTTPRequests.MustCurryWith(labels), h),
	)
}

// ConnectionOpened records a registered connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Inc()
	m.ConnectionsTotal.Inc()
}

// ConnectionClosed records an unregistered connection.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

// FrameReceived counts an inbound frame of the given kind.
func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.FramesReceived.WithLabelValues(kind).Inc()
}

// Joined counts a successful room join.
func (m *Metrics) Joined() {
	if m == nil {
		return
	}
	m.RoomJoins.Inc()
}

// Broadcast records one fan-out and its per-recipient outcome.
func (m *Metrics) Broadcast(delivered, failed int) {
	if m == nil {
		return
	}
	m.Broadcasts.Inc()
	m.Deliveries.WithLabelValues(ResultDelivered).Add(float64(delivered))
	m.Deliveries.WithLabelValues(ResultFailed).Add(float64(failed))
}

// SessionError counts an error envelope sent to a client.
func (m *Metrics) SessionError(reason string) {
	if m == nil {
		return
	}
	m.SessionErrors.WithLabelValues(reason).Inc()
}
