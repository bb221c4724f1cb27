package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/CalebLauder/rakan-backend/metric"
)

// Metrics holds Prometheus metrics for event processing.
type Metrics struct {
	eventsTotal   *prometheus.CounterVec // By event type and status (handled/rejected)
	stepFailures  *prometheus.CounterVec // By step (state_read, state_write, log_append)
	deliveries    *prometheus.CounterVec // By outcome (delivered/failed)
	handleSeconds *prometheus.HistogramVec
}

// NewMetrics creates and registers pipeline metrics with the registry. A
// nil registry disables metrics.
func NewMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rakan",
			Subsystem: "pipeline",
			Name:      "events_total",
			Help:      "Total events received by type and status",
		}, []string{"type", "status"}),

		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rakan",
			Subsystem: "pipeline",
			Name:      "step_failures_total",
			Help:      "Non-fatal step failures by step name",
		}, []string{"step"}),

		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rakan",
			Subsystem: "pipeline",
			Name:      "deliveries_total",
			Help:      "Command delivery outcomes",
		}, []string{"outcome"}),

		handleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rakan",
			Subsystem: "pipeline",
			Name:      "handle_duration_seconds",
			Help:      "Full per-event handling duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"type"}),
	}

	if err := registry.RegisterCounterVec("pipeline", "events_total", m.eventsTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("pipeline", "step_failures", m.stepFailures); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("pipeline", "deliveries", m.deliveries); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("pipeline", "handle_duration", m.handleSeconds); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) recordHandled(eventType string, delivered bool, warnings int, duration time.Duration) {
	if m == nil {
		return
	}

	status := "clean"
	if warnings > 0 {
		status = "degraded"
	}
	m.eventsTotal.WithLabelValues(eventType, status).Inc()
	m.handleSeconds.WithLabelValues(eventType).Observe(duration.Seconds())

	outcome := "failed"
	if delivered {
		outcome = "delivered"
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordRejected(reason string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues("unknown", "rejected_"+reason).Inc()
}

func (m *Metrics) recordStepFailure(step string) {
	if m == nil {
		return
	}
	m.stepFailures.WithLabelValues(step).Inc()
}
