package decision

import (
	"context"
	"log/slog"
	"time"

	"github.com/CalebLauder/rakan-backend/event"
	"github.com/CalebLauder/rakan-backend/pkg/timestamp"
)

// FallbackReason marks decisions substituted after a source failure or a
// malformed candidate.
const FallbackReason = "decision source unavailable, no action taken"

// Resolver turns events into guaranteed well-formed decisions. On any
// source failure or invalid candidate it substitutes the fallback decision
// wholesale. Resolve never returns an error.
type Resolver struct {
	source  Source
	timeout time.Duration
	logger  *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithTimeout bounds each source call.
func WithTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver over source.
func NewResolver(source Source, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		source:  source,
		timeout: 5 * time.Second,
		logger:  slog.Default().With("component", "resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces the decision for ev. The returned decision always has
// deviceId, action and value populated (value may be nil) and a non-empty
// reason and timestamp.
func (r *Resolver) Resolve(ctx context.Context, ev *event.Event, prev *event.DeviceState) *event.Decision {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.source.Decide(callCtx, ev, prev)
	if err != nil {
		r.logger.Warn("decision source failed, using fallback",
			"deviceId", ev.DeviceID, "eventType", ev.Type, "error", err)
		return r.fallback(ev)
	}

	candidate, err := event.ParseCandidate(raw)
	if err != nil {
		r.logger.Warn("decision candidate rejected, using fallback",
			"deviceId", ev.DeviceID, "eventType", ev.Type, "error", err)
		return r.fallback(ev)
	}

	if candidate.Reason == "" {
		candidate.Reason = event.DefaultReason
	}
	if candidate.Timestamp.IsZero() {
		candidate.Timestamp = timestamp.Now()
	}
	return candidate
}

// fallback builds the safe replacement decision. The device id comes from
// the original event, never from the failed candidate.
func (r *Resolver) fallback(ev *event.Event) *event.Decision {
	return &event.Decision{
		DeviceID:  ev.DeviceID,
		Action:    event.ActionIgnore,
		Value:     nil,
		Reason:    FallbackReason,
		Timestamp: timestamp.Now(),
	}
}
