package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SSEConnectedClients  prometheus.Gauge
	SSEEventsBroadcast   *prometheus.CounterVec
	SSEConnectionsPruned prometheus.Counter
	SSETickFailures      prometheus.Counter

	OrdersCreated     *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method"},
		),
		SSEConnectedClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_connected_clients",
				Help: "Number of live event-stream connections",
			},
		),
		SSEEventsBroadcast: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_broadcast_total",
				Help: "Total number of events broadcast, by event type",
			},
			[]string{"type"},
		),
		SSEConnectionsPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sse_connections_pruned_total",
				Help: "Total number of connections removed after a failed write",
			},
		),
		SSETickFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sse_periodic_tick_failures_total",
				Help: "Total number of periodic snapshot reads that failed",
			},
		),
		OrdersCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_created_total",
				Help: "Total number of orders created, by vehicle type",
			},
			[]string{"vehicle_type"},
		),
		StatusTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_status_transitions_total",
				Help: "Total number of applied order status transitions",
			},
			[]string{"from", "to"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.SSEConnectedClients,
			m.SSEEventsBroadcast,
			m.SSEConnectionsPruned,
			m.SSETickFailures,
			m.OrdersCreated,
			m.StatusTransitions,
		)
	}
	return m
}

func (m *Metrics) SetConnectedClients(n int) {
	if m == nil {
		return
	}
	m.SSEConnectedClients.Set(float64(n))
}

func (m *Metrics) EventBroadcast(eventType string) {
	if m == nil {
		return
	}
	m.SSEEventsBroadcast.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ConnectionPruned() {
	if m == nil {
		return
	}
	m.SSEConnectionsPruned.Inc()
}

func (m *Metrics) TickFailed() {
	if m == nil {
		return
	}
	m.SSETickFailures.Inc()
}

func (m *Metrics) OrderCreated(vehicleType string) {
	if m == nil {
		return
	}
	m.OrdersCreated.WithLabelValues(vehicleType).Inc()
}

func (m *Metrics) StatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(handler, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(handler, method).Observe(seconds)
	m.HTTPRequestsTotal.WithLabelValues(handler, method, status).Inc()
}
