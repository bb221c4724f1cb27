// Package publisher delivers commands to device command addresses.
// Delivery is best-effort: failures are reported in the Outcome so the
// pipeline can record them, never raised.
package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/CalebLauder/rakan-backend/errors"
	"github.com/CalebLauder/rakan-backend/event"
	"github.com/CalebLauder/rakan-backend/transport"
)

// Outcome reports a single publish attempt. Err is set when Delivered is
// false; it is informational, not a pipeline failure.
type Outcome struct {
	Delivered bool
	Address   string
	Err       error
}

// Publisher sends commands over a transport.
type Publisher struct {
	transport transport.Transport
	subjects  transport.Subjects
	timeout   time.Duration
	logger    *slog.Logger

	published *prometheus.CounterVec
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTimeout bounds each publish attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Publisher) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithRegistry registers publish metrics on reg.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(p *Publisher) {
		p.published = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rakan_commands_published_total",
			Help: "Commands published by delivery outcome",
		}, []string{"outcome"})
		reg.MustRegister(p.published)
	}
}

// New creates a Publisher over t addressing commands under subjects.
func New(t transport.Transport, subjects transport.Subjects, opts ...Option) *Publisher {
	p := &Publisher{
		transport: t,
		subjects:  subjects,
		timeout:   5 * time.Second,
		logger:    slog.Default().With("component", "publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends the command derived from d to the device's command
// address. It never returns an error; delivery failure is reported in the
// Outcome and left to the caller to record.
func (p *Publisher) Publish(ctx context.Context, cmd *event.Command) Outcome {
	address := p.subjects.Commands(cmd.DeviceID)
	outcome := Outcome{Address: address}

	if err := cmd.Validate(); err != nil {
		outcome.Err = errors.WrapInvalid(err, "Publisher", "Publish", "validate command")
		p.record(outcome)
		return outcome
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		outcome.Err = errors.WrapInvalid(err, "Publisher", "Publish", "encode command")
		p.record(outcome)
		return outcome
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.transport.Publish(pubCtx, address, payload); err != nil {
		outcome.Err = errors.WrapTransient(errors.ErrPublishFailed, "Publisher", "Publish",
			address+": "+err.Error())
		p.record(outcome)
		return outcome
	}

	outcome.Delivered = true
	p.record(outcome)
	return outcome
}

func (p *Publisher) record(o Outcome) {
	if o.Delivered {
		if p.published != nil {
			p.published.WithLabelValues("delivered").Inc()
		}
		p.logger.Debug("command published", "address", o.Address)
		return
	}

	if p.published != nil {
		p.published.WithLabelValues("failed").Inc()
	}
	p.logger.Warn("command publish failed", "address", o.Address, "error", o.Err)
}
