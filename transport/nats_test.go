package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CalebLauder/rakan-backend/natsclient"
	"github.com/CalebLauder/rakan-backend/pkg/retry"
)

func newTestNATSTransport(t *testing.T) *NATSTransport {
	t.Helper()
	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)

	return NewNATS(client, WithRetryConfig(retry.Config{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}))
}

func TestNATSTransportNotConnected(t *testing.T) {
	tr := newTestNATSTransport(t)

	assert.False(t, tr.Connected())

	err := tr.Publish(context.Background(), "rakan/events", []byte(`{}`))
	assert.Error(t, err)

	err = tr.Subscribe(context.Background(), "rakan/events", func(context.Context, []byte) {})
	assert.Error(t, err)
}

func TestNATSTransportDisconnectIdempotent(t *testing.T) {
	tr := newTestNATSTransport(t)

	ctx := context.Background()
	require.NoError(t, tr.Disconnect(ctx))
	require.NoError(t, tr.Disconnect(ctx))
	assert.False(t, tr.Connected())
}

func TestNATSTransportPublishRespectsContext(t *testing.T) {
	tr := newTestNATSTransport(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.Publish(ctx, "rakan/events", []byte(`{}`))
	assert.Error(t, err)
}
