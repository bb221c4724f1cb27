package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains platform-level metrics shared by every component.
type Metrics struct {
	EventsReceived    *prometheus.CounterVec
	CommandsPublished *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	HealthStatus      *prometheus.GaugeVec
	DeviceStatus      *prometheus.GaugeVec

	// Broker metrics
	BrokerConnected  prometheus.Gauge
	BrokerRTT        prometheus.Gauge
	BrokerReconnects prometheus.Counter
	CircuitBreaker   prometheus.Gauge
}

// NewMetrics creates all platform metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rakan",
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Total sensor events received",
			},
			[]string{"component", "type"},
		),

		CommandsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rakan",
				Subsystem: "commands",
				Name:      "published_total",
				Help:      "Total commands published",
			},
			[]string{"component", "action"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rakan",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total errors by component and type",
			},
			[]string{"component", "type"},
		),

		HealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "rakan",
				Subsystem: "health",
				Name:      "status",
				Help:      "Component health (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),

		DeviceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "rakan",
				Subsystem: "devices",
				Name:      "status",
				Help:      "Device endpoint status (0=disconnected, 1=connecting, 2=connected, 3=running, 4=error)",
			},
			[]string{"device"},
		),

		BrokerConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rakan",
				Subsystem: "broker",
				Name:      "connected",
				Help:      "Broker connection status (0=disconnected, 1=connected)",
			},
		),

		BrokerRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rakan",
				Subsystem: "broker",
				Name:      "rtt_milliseconds",
				Help:      "Broker round-trip time in milliseconds",
			},
		),

		BrokerReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rakan",
				Subsystem: "broker",
				Name:      "reconnects_total",
				Help:      "Total broker reconnections",
			},
		),

		CircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rakan",
				Subsystem: "broker",
				Name:      "circuit_breaker",
				Help:      "Broker circuit breaker status (0=closed, 1=open)",
			},
		),
	}
}

// RecordEventReceived increments the received events counter.
func (m *Metrics) RecordEventReceived(component, eventType string) {
	m.EventsReceived.WithLabelValues(component, eventType).Inc()
}

// RecordCommandPublished increments the published commands counter.
func (m *Metrics) RecordCommandPublished(component, action string) {
	m.CommandsPublished.WithLabelValues(component, action).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordHealthStatus updates a component's health gauge.
func (m *Metrics) RecordHealthStatus(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.HealthStatus.WithLabelValues(component).Set(value)
}

// RecordDeviceStatus updates a device endpoint's status gauge.
func (m *Metrics) RecordDeviceStatus(device string, status int) {
	m.DeviceStatus.WithLabelValues(device).Set(float64(status))
}

// RecordBrokerStatus updates the broker connection gauge.
func (m *Metrics) RecordBrokerStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.BrokerConnected.Set(value)
}

// RecordBrokerRTT updates the broker round-trip time gauge.
func (m *Metrics) RecordBrokerRTT(rtt time.Duration) {
	m.BrokerRTT.Set(float64(rtt.Milliseconds()))
}

// RecordBrokerReconnect increments the reconnection counter.
func (m *Metrics) RecordBrokerReconnect() {
	m.BrokerReconnects.Inc()
}

// RecordCircuitBreakerState updates the circuit breaker gauge.
func (m *Metrics) RecordCircuitBreakerState(open bool) {
	value := 0.0
	if open {
		value = 1.0
	}
	m.CircuitBreaker.Set(value)
}
