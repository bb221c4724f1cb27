package device

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CalebLauder/rakan-backend/errors"
	"github.com/CalebLauder/rakan-backend/event"
	"github.com/CalebLauder/rakan-backend/transport"
)

// State is the endpoint lifecycle state.
type State int

// Endpoint states. StateError is always recoverable: the work cycle
// re-attempts the connection before its next publish.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateRunning
	StateError
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Behavior is a concrete device type plugged into an Endpoint. Methods
// are never called concurrently; the Endpoint serializes access.
type Behavior interface {
	// DeviceID returns the stable device identifier.
	DeviceID() string

	// Interval returns the work cycle cadence.
	Interval() time.Duration

	// NextEvent produces the next outbound event, or nil to skip this
	// cycle.
	NextEvent(now time.Time) *event.Event

	// ApplyCommand mutates local state for a recognized command and may
	// return an acknowledgment event. Unrecognized commands return
	// (nil, false) and are dropped.
	ApplyCommand(cmd *event.Command) (ack *event.Event, recognized bool)

	// Snapshot returns a copy of the local state for diagnostics.
	Snapshot() map[string]any
}

// Status is a point-in-time diagnostics snapshot of an Endpoint.
type Status struct {
	DeviceID         string         `json:"deviceId"`
	State            string         `json:"state"`
	SentEvents       int64          `json:"sentEvents"`
	ReceivedCommands int64          `json:"receivedCommands"`
	LastError        string         `json:"lastError,omitempty"`
	LastSeen         time.Time      `json:"lastSeen,omitzero"`
	LocalState       map[string]any `json:"localState"`
}

// Endpoint runs one device: connection lifecycle, periodic work cycle and
// inbound command dispatch.
type Endpoint struct {
	behavior  Behavior
	transport transport.Transport
	subjects  transport.Subjects
	logger    *slog.Logger

	// mu guards state, counters and all behavior access. The work cycle
	// and the command callback both take it.
	mu               sync.Mutex
	state            State
	sentEvents       int64
	receivedCommands int64
	lastError        error
	lastSeen         time.Time

	lifecycleMu sync.Mutex
	started     bool
	stop        chan struct{}
	done        chan struct{}

	sleepStep time.Duration
}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Endpoint) {
		e.logger = logger
	}
}

// WithSleepStep overrides the wake-up granularity of the work cycle
// sleep. Tests use a small step to keep shutdown fast.
func WithSleepStep(step time.Duration) Option {
	return func(e *Endpoint) {
		if step > 0 {
			e.sleepStep = step
		}
	}
}

// NewEndpoint creates an endpoint for behavior over t.
func NewEndpoint(behavior Behavior, t transport.Transport, subjects transport.Subjects, opts ...Option) *Endpoint {
	e := &Endpoint{
		behavior:  behavior,
		transport: t,
		subjects:  subjects,
		logger:    slog.Default().With("component", "device", "deviceId", behavior.DeviceID()),
		state:     StateDisconnected,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sleepStep == 0 {
		// Shutdown latency is bounded by a tenth of the interval.
		e.sleepStep = behavior.Interval() / 10
		if e.sleepStep <= 0 {
			e.sleepStep = 10 * time.Millisecond
		}
	}
	return e
}

// Start connects, subscribes to the device's command address and launches
// the work cycle.
func (e *Endpoint) Start(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.started {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Endpoint", "Start", e.behavior.DeviceID())
	}

	e.setState(StateConnecting)

	if err := e.transport.Connect(ctx); err != nil {
		e.setState(StateError)
		e.recordError(err)
		return errors.WrapTransient(err, "Endpoint", "Start", "connect")
	}

	address := e.subjects.Commands(e.behavior.DeviceID())
	if err := e.transport.Subscribe(ctx, address, e.handleCommand); err != nil {
		e.setState(StateError)
		e.recordError(err)
		return errors.WrapTransient(err, "Endpoint", "Start", fmt.Sprintf("subscribe to %s", address))
	}

	e.setState(StateConnected)
	e.started = true

	// Fresh channels each run so the endpoint can be restarted after a
	// Stop.
	e.stop = make(chan struct{})
	e.done = make(chan struct{})

	go e.runLoop(e.stop, e.done)

	e.logger.Info("device started", "commands_address", address, "interval", e.behavior.Interval())
	return nil
}

// Stop signals the work cycle, joins it bounded by timeout, then
// disconnects. Safe to call at any point in the lifecycle.
func (e *Endpoint) Stop(timeout time.Duration) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if !e.started {
		e.setState(StateDisconnected)
		return nil
	}
	e.started = false

	close(e.stop)

	select {
	case <-e.done:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("work cycle did not exit within %v", timeout),
			"Endpoint", "Stop", e.behavior.DeviceID())
	}

	disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.transport.Disconnect(disconnectCtx); err != nil {
		e.logger.Warn("disconnect failed", "error", err)
	}

	e.setState(StateDisconnected)
	e.logger.Info("device stopped")
	return nil
}

// State returns the current lifecycle state.
func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns a diagnostics snapshot without mutating anything.
func (e *Endpoint) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := Status{
		DeviceID:         e.behavior.DeviceID(),
		State:            e.state.String(),
		SentEvents:       e.sentEvents,
		ReceivedCommands: e.receivedCommands,
		LastSeen:         e.lastSeen,
		LocalState:       e.behavior.Snapshot(),
	}
	if e.lastError != nil {
		status.LastError = e.lastError.Error()
	}
	return status
}

func (e *Endpoint) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Endpoint) recordError(err error) {
	e.mu.Lock()
	e.lastError = err
	e.mu.Unlock()
}

// runLoop is the periodic work cycle. Publish failures land in lastError
// and the cycle continues on schedule. The channels are passed in so a
// loop left over from a timed-out Stop never touches a restarted
// endpoint's channels.
func (e *Endpoint) runLoop(stop chan struct{}, done chan struct{}) {
	defer close(done)

	e.setState(StateRunning)
	e.logger.Debug("work cycle started")

	for {
		e.cycle()

		if !e.sleep(stop, e.behavior.Interval()) {
			e.logger.Debug("work cycle exiting")
			return
		}
	}
}

// cycle produces and publishes one event, reconnecting first if the
// connection dropped mid-run.
func (e *Endpoint) cycle() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !e.transport.Connected() {
		e.setState(StateError)
		if err := e.transport.Connect(ctx); err != nil {
			e.recordError(err)
			e.logger.Warn("reconnect failed", "error", err)
			return
		}
		e.setState(StateRunning)
		e.logger.Info("reconnected")
	}

	e.mu.Lock()
	ev := e.behavior.NextEvent(time.Now().UTC())
	e.mu.Unlock()

	if ev == nil {
		return
	}
	e.publishEvent(ctx, ev)
}

// publishEvent sends ev to the shared events address.
func (e *Endpoint) publishEvent(ctx context.Context, ev *event.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		e.recordError(err)
		return
	}

	if err := e.transport.Publish(ctx, e.subjects.Events(), payload); err != nil {
		e.setState(StateError)
		e.recordError(err)
		e.logger.Warn("publish failed", "error", err)
		return
	}

	e.mu.Lock()
	e.sentEvents++
	e.lastSeen = ev.Timestamp
	e.mu.Unlock()
}

// handleCommand is the transport callback for the device's command
// address. Malformed or unrecognized commands are logged and dropped.
func (e *Endpoint) handleCommand(ctx context.Context, payload []byte) {
	e.mu.Lock()
	e.receivedCommands++
	e.mu.Unlock()

	var cmd event.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		e.recordError(err)
		e.logger.Warn("dropping malformed command", "error", err)
		return
	}
	// The command address is per-device, so the payload may omit the id.
	if cmd.DeviceID == "" {
		cmd.DeviceID = e.behavior.DeviceID()
	}
	if err := cmd.Validate(); err != nil {
		e.recordError(err)
		e.logger.Warn("dropping invalid command", "error", err)
		return
	}

	e.mu.Lock()
	ack, recognized := e.behavior.ApplyCommand(&cmd)
	e.mu.Unlock()

	if !recognized {
		e.logger.Debug("ignoring unrecognized command", "action", cmd.Action)
		return
	}

	e.logger.Info("applied command", "action", cmd.Action)
	if ack != nil {
		e.publishEvent(ctx, ack)
	}
}

// sleep waits for d in sleepStep increments, returning false when stop was
// signalled.
func (e *Endpoint) sleep(stop <-chan struct{}, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		step := e.sleepStep
		if remaining := time.Until(deadline); remaining < step {
			step = remaining
		}
		select {
		case <-stop:
			return false
		case <-time.After(step):
		}
	}
	return true
}
