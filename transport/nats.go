package transport

import (
	"context"
	"sync"
	"time"

	"github.com/CalebLauder/rakan-backend/errors"
	"github.com/CalebLauder/rakan-backend/natsclient"
	"github.com/CalebLauder/rakan-backend/pkg/retry"
)

// NATSTransport binds the Transport contract to a NATS connection. Publish
// retries transient failures with backoff; this is the only retry layer in
// the publish path.
type NATSTransport struct {
	client *natsclient.Client
	retry  retry.Config

	mu        sync.Mutex
	connected bool
}

// NATSOption configures a NATSTransport.
type NATSOption func(*NATSTransport)

// WithRetryConfig overrides the publish retry policy.
func WithRetryConfig(cfg retry.Config) NATSOption {
	return func(t *NATSTransport) {
		t.retry = cfg
	}
}

// NewNATS creates a transport over an existing NATS client. The client's
// lifecycle belongs to the transport once passed in.
func NewNATS(client *natsclient.Client, opts ...NATSOption) *NATSTransport {
	t := &NATSTransport{
		client: client,
		retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect establishes the NATS connection.
func (t *NATSTransport) Connect(ctx context.Context) error {
	if err := t.client.Connect(ctx); err != nil {
		return errors.WrapTransient(err, "NATSTransport", "Connect", "connect")
	}

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

// Connected reports whether the underlying connection is healthy.
func (t *NATSTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && t.client.IsHealthy()
}

// Publish sends payload to address, retrying transient failures.
func (t *NATSTransport) Publish(ctx context.Context, address string, payload []byte) error {
	subject := natsSubject(address)

	err := retry.Do(ctx, t.retry, func() error {
		if !t.Connected() {
			return natsclient.ErrNotConnected
		}
		return t.client.Publish(ctx, subject, payload)
	})
	if err != nil {
		return errors.WrapTransient(err, "NATSTransport", "Publish", subject)
	}
	return nil
}

// Subscribe registers handler on address.
func (t *NATSTransport) Subscribe(ctx context.Context, address string, handler Handler) error {
	subject := natsSubject(address)

	err := t.client.Subscribe(ctx, subject, func(msgCtx context.Context, data []byte) {
		handler(msgCtx, data)
	})
	if err != nil {
		return errors.WrapTransient(err, "NATSTransport", "Subscribe", subject)
	}
	return nil
}

// Disconnect drains and closes the connection.
func (t *NATSTransport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()

	if err := t.client.Close(ctx); err != nil {
		return errors.Wrap(err, "NATSTransport", "Disconnect", "close")
	}
	return nil
}
