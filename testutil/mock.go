package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/CalebLauder/rakan-backend/event"
	"github.com/CalebLauder/rakan-backend/transport"
)

// Common injected errors.
var (
	ErrMockPublishFailed = errors.New("mock publish failed")
	ErrMockNotConnected  = errors.New("mock not connected")
	ErrMockStoreDown     = errors.New("mock store unavailable")
	ErrMockSourceDown    = errors.New("mock decision source unavailable")
)

// PublishedMessage is one recorded publish.
type PublishedMessage struct {
	Address string
	Payload []byte
}

// MockTransport is an in-memory Transport. It records publishes and
// dispatches them synchronously to matching subscribers.
type MockTransport struct {
	mu        sync.Mutex
	connected bool
	published []PublishedMessage
	handlers  map[string]transport.Handler

	// Failure injection. Use SetPublishErr when the transport is already
	// running in another goroutine.
	PublishErr   error
	ConnectErr   error
	SubscribeErr error
}

// NewMockTransport creates a disconnected mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{handlers: make(map[string]transport.Handler)}
}

// Connect marks the transport connected.
func (t *MockTransport) Connect(context.Context) error {
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

// Connected reports the connection flag.
func (t *MockTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// SetConnected toggles the connection flag, simulating a drop.
func (t *MockTransport) SetConnected(connected bool) {
	t.mu.Lock()
	t.connected = connected
	t.mu.Unlock()
}

// SetPublishErr swaps the injected publish error under the lock.
func (t *MockTransport) SetPublishErr(err error) {
	t.mu.Lock()
	t.PublishErr = err
	t.mu.Unlock()
}

// Publish records the message and delivers it to matching subscribers.
func (t *MockTransport) Publish(ctx context.Context, address string, payload []byte) error {
	t.mu.Lock()
	if t.PublishErr != nil {
		err := t.PublishErr
		t.mu.Unlock()
		return err
	}
	if !t.connected {
		t.mu.Unlock()
		return ErrMockNotConnected
	}
	copied := make([]byte, len(payload))
	copy(copied, payload)
	t.published = append(t.published, PublishedMessage{Address: address, Payload: copied})

	var matched []transport.Handler
	for pattern, h := range t.handlers {
		if addressMatches(pattern, address) {
			matched = append(matched, h)
		}
	}
	t.mu.Unlock()

	for _, h := range matched {
		h(ctx, payload)
	}
	return nil
}

// Subscribe registers handler for address. A trailing "+" segment matches
// any one segment.
func (t *MockTransport) Subscribe(_ context.Context, address string, handler transport.Handler) error {
	if t.SubscribeErr != nil {
		return t.SubscribeErr
	}
	t.mu.Lock()
	t.handlers[address] = handler
	t.mu.Unlock()
	return nil
}

// Disconnect marks the transport disconnected.
func (t *MockTransport) Disconnect(context.Context) error {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	return nil
}

// Published returns a copy of every recorded publish.
func (t *MockTransport) Published() []PublishedMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PublishedMessage, len(t.published))
	copy(out, t.published)
	return out
}

// PublishedTo returns payloads recorded for a specific address.
func (t *MockTransport) PublishedTo(address string) [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out [][]byte
	for _, m := range t.published {
		if m.Address == address {
			out = append(out, m.Payload)
		}
	}
	return out
}

// Clear drops all recorded publishes.
func (t *MockTransport) Clear() {
	t.mu.Lock()
	t.published = nil
	t.mu.Unlock()
}

func addressMatches(pattern, address string) bool {
	if pattern == address {
		return true
	}

	pp := strings.Split(pattern, "/")
	ap := strings.Split(address, "/")
	if len(pp) != len(ap) {
		return false
	}
	for i := range pp {
		if pp[i] != "+" && pp[i] != ap[i] {
			return false
		}
	}
	return true
}

var _ transport.Transport = (*MockTransport)(nil)

// FailingSource is a decision source that always errors.
type FailingSource struct{}

// Decide always fails.
func (FailingSource) Decide(context.Context, *event.Event, *event.DeviceState) ([]byte, error) {
	return nil, ErrMockSourceDown
}

// FailingStateStore errors on every operation.
type FailingStateStore struct{}

// Get always fails.
func (FailingStateStore) Get(context.Context, string) (*event.DeviceState, error) {
	return nil, ErrMockStoreDown
}

// Put always fails.
func (FailingStateStore) Put(context.Context, *event.DeviceState) error {
	return ErrMockStoreDown
}

// List always fails.
func (FailingStateStore) List(context.Context) ([]*event.DeviceState, error) {
	return nil, ErrMockStoreDown
}

// FailingLogStore errors on every operation.
type FailingLogStore struct{}

// Append always fails.
func (FailingLogStore) Append(context.Context, *event.LogEntry) (string, error) {
	return "", ErrMockStoreDown
}

// Recent always fails.
func (FailingLogStore) Recent(context.Context, int) ([]*event.LogEntry, error) {
	return nil, ErrMockStoreDown
}
