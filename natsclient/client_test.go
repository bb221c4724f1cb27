package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, -1, client.maxReconnects)
	assert.Equal(t, 2*time.Second, client.reconnectWait)
	assert.Equal(t, int32(5), client.circuitThreshold)
}

func TestNewClientOptions(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithName("rakan-test"),
		WithMaxReconnects(10),
		WithReconnectWait(500*time.Millisecond),
		WithTimeout(time.Second),
		WithDrainTimeout(5*time.Second),
		WithCircuitThreshold(3),
		WithMaxBackoff(10*time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, "rakan-test", client.clientName)
	assert.Equal(t, 10, client.maxReconnects)
	assert.Equal(t, 500*time.Millisecond, client.reconnectWait)
	assert.Equal(t, time.Second, client.timeout)
	assert.Equal(t, 5*time.Second, client.drainTimeout)
	assert.Equal(t, int32(3), client.circuitThreshold)
	assert.Equal(t, 10*time.Second, client.maxBackoff)
}

func TestNewClientInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  ClientOption
	}{
		{"nil logger", WithLogger(nil)},
		{"negative reconnects", WithMaxReconnects(-2)},
		{"zero reconnect wait", WithReconnectWait(0)},
		{"zero timeout", WithTimeout(0)},
		{"zero drain timeout", WithDrainTimeout(0)},
		{"zero circuit threshold", WithCircuitThreshold(0)},
		{"zero max backoff", WithMaxBackoff(0)},
		{"empty credentials", WithUserCredentials("", "secret")},
		{"empty token", WithToken("")},
		{"missing key file", WithTLS("cert.pem", "", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient("nats://localhost:4222", tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestConnectionStatusString(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusCircuitOpen, "circuit_open"},
		{ConnectionStatus(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCircuitThreshold(3))
	require.NoError(t, err)

	client.recordFailure()
	client.recordFailure()
	assert.NotEqual(t, StatusCircuitOpen, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(3), client.Failures())
}

func TestCircuitBreakerReset(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCircuitThreshold(2))
	require.NoError(t, err)

	client.recordFailure()
	client.recordFailure()
	require.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, time.Second, client.backoff.Load().(time.Duration))
}

func TestCircuitBreakerBackoffDoubles(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithCircuitThreshold(1),
		WithMaxBackoff(3*time.Second),
	)
	require.NoError(t, err)

	client.recordFailure()
	assert.Equal(t, 2*time.Second, client.backoff.Load().(time.Duration))

	client.recordFailure()
	assert.Equal(t, 3*time.Second, client.backoff.Load().(time.Duration))

	// Capped at max
	client.recordFailure()
	assert.Equal(t, 3*time.Second, client.backoff.Load().(time.Duration))
}

func TestConnectWhileCircuitOpen(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCircuitThreshold(1))
	require.NoError(t, err)

	client.recordFailure()
	require.Equal(t, StatusCircuitOpen, client.Status())

	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestPublishNotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = client.Publish(context.Background(), "rakan.events", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSubscribeNotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = client.Subscribe(context.Background(), "rakan.events", func(context.Context, []byte) {})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestJetStreamNotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	_, err = client.JetStream()
	assert.Error(t, err)
}

func TestWaitForConnectionTimeout(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = client.WaitForConnection(ctx)
	assert.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseIdempotent(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Close(ctx))
	require.NoError(t, client.Close(ctx))
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestGetStatusSnapshot(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	client.recordFailure()
	status := client.GetStatus()

	assert.Equal(t, int32(1), status.FailureCount)
	assert.False(t, status.LastFailureTime.IsZero())
}
