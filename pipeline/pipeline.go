// Package pipeline wires event ingress to decision resolution, command
// publishing and persistence. One Pipeline instance consumes the events
// address and runs the full per-event sequence; failures in any step are
// isolated so a single bad event or unavailable backend never stops the
// loop.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CalebLauder/rakan-backend/decision"
	"github.com/CalebLauder/rakan-backend/errors"
	"github.com/CalebLauder/rakan-backend/event"
	"github.com/CalebLauder/rakan-backend/pkg/timestamp"
	"github.com/CalebLauder/rakan-backend/publisher"
	"github.com/CalebLauder/rakan-backend/store"
	"github.com/CalebLauder/rakan-backend/transport"
)

// Result reports one complete pipeline invocation. Warnings carry
// non-fatal step failures (state read/write, log append); the event is
// still considered processed when warnings are present.
type Result struct {
	Event     *event.Event
	Decision  *event.Decision
	Command   *event.Command
	Delivered bool
	Warnings  []string
}

// Pipeline consumes sensor events and drives the decision loop.
type Pipeline struct {
	transport transport.Transport
	subjects  transport.Subjects
	resolver  *decision.Resolver
	publisher *publisher.Publisher
	states    store.StateStore
	logs      store.LogStore
	logger    *slog.Logger

	stepTimeout time.Duration

	// Lifecycle management
	shutdown    chan struct{}
	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex
	wg          sync.WaitGroup

	// Counters
	eventsReceived int64
	eventsRejected int64
	eventsHandled  int64
	warningsTotal  int64

	metrics *Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStepTimeout bounds each store access inside Handle.
func WithStepTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) {
		if timeout > 0 {
			p.stepTimeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// New creates a Pipeline. All collaborators are injected; the pipeline
// owns none of their lifecycles except its own subscription.
func New(
	t transport.Transport,
	subjects transport.Subjects,
	resolver *decision.Resolver,
	pub *publisher.Publisher,
	states store.StateStore,
	logs store.LogStore,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		transport:   t,
		subjects:    subjects,
		resolver:    resolver,
		publisher:   pub,
		states:      states,
		logs:        logs,
		logger:      slog.Default().With("component", "pipeline"),
		stepTimeout: 5 * time.Second,
		shutdown:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start subscribes to the events address and begins processing.
func (p *Pipeline) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Pipeline", "Start", "check running state")
	}

	address := p.subjects.Events()
	if err := p.transport.Subscribe(ctx, address, p.handleMessage); err != nil {
		return errors.WrapTransient(err, "Pipeline", "Start", fmt.Sprintf("subscribe to %s", address))
	}

	p.mu.Lock()
	p.running = true
	p.startTime = time.Now()
	p.mu.Unlock()

	p.logger.Info("pipeline started", "events_address", address)
	return nil
}

// Stop signals shutdown and waits for in-flight events, bounded by
// timeout.
func (p *Pipeline) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.running {
		return nil
	}

	close(p.shutdown)

	waitCh := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"Pipeline", "Stop", "graceful shutdown")
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("pipeline stopped")
	return nil
}

// Running reports whether the pipeline is started.
func (p *Pipeline) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Stats returns processing counters.
func (p *Pipeline) Stats() (received, rejected, handled, warnings int64) {
	return atomic.LoadInt64(&p.eventsReceived),
		atomic.LoadInt64(&p.eventsRejected),
		atomic.LoadInt64(&p.eventsHandled),
		atomic.LoadInt64(&p.warningsTotal)
}

// handleMessage is the transport callback: parse, then Handle. Parse
// failures are logged and dropped so redelivery of a malformed payload
// cannot wedge the loop.
func (p *Pipeline) handleMessage(ctx context.Context, payload []byte) {
	select {
	case <-p.shutdown:
		return
	default:
	}

	if _, err := p.HandleRaw(ctx, payload); err != nil {
		p.logger.Warn("dropping malformed event", "error", err, "size_bytes", len(payload))
	}
}

// HandleRaw parses payload and runs Handle. A payload that cannot be
// parsed into a valid Event is a terminal input error: no collaborator is
// contacted and the error is returned with a nil Result.
func (p *Pipeline) HandleRaw(ctx context.Context, payload []byte) (*Result, error) {
	atomic.AddInt64(&p.eventsReceived, 1)

	ev, err := event.Parse(payload)
	if err != nil {
		atomic.AddInt64(&p.eventsRejected, 1)
		p.metrics.recordRejected("parse")
		return nil, errors.WrapInvalid(err, "Pipeline", "HandleRaw", "parse event")
	}

	p.wg.Add(1)
	defer p.wg.Done()

	return p.Handle(ctx, ev), nil
}

// Handle runs the full per-event sequence: previous-state read, decision
// resolution, command publish, state write, log append. It never returns
// an error; every failure either falls back (decision) or lands in
// Result.Warnings.
func (p *Pipeline) Handle(ctx context.Context, ev *event.Event) *Result {
	start := time.Now()
	result := &Result{Event: ev}

	p.logger.Debug("handling event", "deviceId", ev.DeviceID, "type", ev.Type)

	// Previous state is an input to the decision, not a prerequisite.
	prev := p.readState(ctx, ev.DeviceID, result)

	result.Decision = p.resolver.Resolve(ctx, ev, prev)
	result.Command = event.CommandFromDecision(result.Decision)

	outcome := p.publisher.Publish(ctx, result.Command)
	result.Delivered = outcome.Delivered

	now := timestamp.Now()
	p.writeState(ctx, event.NextState(ev, result.Decision, result.Command, now), result)
	p.appendLog(ctx, ev, result, outcome, now)

	atomic.AddInt64(&p.eventsHandled, 1)
	atomic.AddInt64(&p.warningsTotal, int64(len(result.Warnings)))
	p.metrics.recordHandled(ev.Type, result.Delivered, len(result.Warnings), time.Since(start))

	if len(result.Warnings) > 0 {
		p.logger.Warn("event handled with warnings",
			"deviceId", ev.DeviceID, "type", ev.Type, "warnings", result.Warnings)
	}
	return result
}

func (p *Pipeline) readState(ctx context.Context, deviceID string, result *Result) *event.DeviceState {
	stepCtx, cancel := context.WithTimeout(ctx, p.stepTimeout)
	defer cancel()

	prev, err := p.states.Get(stepCtx, deviceID)
	if err != nil {
		if errors.Is(err, errors.ErrKeyNotFound) {
			return nil
		}
		result.Warnings = append(result.Warnings, "state read failed: "+err.Error())
		p.metrics.recordStepFailure("state_read")
		return nil
	}
	return prev
}

func (p *Pipeline) writeState(ctx context.Context, state *event.DeviceState, result *Result) {
	stepCtx, cancel := context.WithTimeout(ctx, p.stepTimeout)
	defer cancel()

	if err := p.states.Put(stepCtx, state); err != nil {
		result.Warnings = append(result.Warnings, "state write failed: "+err.Error())
		p.metrics.recordStepFailure("state_write")
	}
}

func (p *Pipeline) appendLog(
	ctx context.Context, ev *event.Event, result *Result, outcome publisher.Outcome, now time.Time,
) {
	entry := &event.LogEntry{
		Timestamp: now,
		Event:     ev,
		Decision:  result.Decision,
		Command:   result.Command,
		Delivered: outcome.Delivered,
	}
	if outcome.Err != nil {
		entry.PublishError = outcome.Err.Error()
	}

	stepCtx, cancel := context.WithTimeout(ctx, p.stepTimeout)
	defer cancel()

	if _, err := p.logs.Append(stepCtx, entry); err != nil {
		result.Warnings = append(result.Warnings, "log append failed: "+err.Error())
		p.metrics.recordStepFailure("log_append")
	}
}
