// Package transport defines the messaging contract the pipeline and device
// endpoints publish and subscribe through, plus the concrete NATS and MQTT
// bindings. All delivery is at-least-once; subscribers must tolerate
// duplicate messages.
package transport

import (
	"context"
)

// Handler processes a single inbound message. The payload slice is only
// valid for the duration of the call.
type Handler func(ctx context.Context, payload []byte)

// Transport is a connection to a message broker. Implementations are safe
// for concurrent use once Connect has returned.
type Transport interface {
	// Connect establishes the broker connection, blocking until the
	// connection is usable or ctx expires.
	Connect(ctx context.Context) error

	// Publish sends payload to the given address with at-least-once
	// semantics. Retries for transient failures happen inside Publish;
	// callers see only the final outcome.
	Publish(ctx context.Context, address string, payload []byte) error

	// Subscribe registers handler for messages arriving at address.
	// Handlers are invoked sequentially per subscription.
	Subscribe(ctx context.Context, address string, handler Handler) error

	// Connected reports whether the connection is currently usable.
	Connected() bool

	// Disconnect flushes pending messages and closes the connection.
	// Bounded by ctx; safe to call more than once.
	Disconnect(ctx context.Context) error
}
