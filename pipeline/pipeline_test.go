package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CalebLauder/rakan-backend/decision"
	"github.com/CalebLauder/rakan-backend/event"
	"github.com/CalebLauder/rakan-backend/publisher"
	"github.com/CalebLauder/rakan-backend/store"
	"github.com/CalebLauder/rakan-backend/testutil"
	"github.com/CalebLauder/rakan-backend/transport"
)

type fixture struct {
	transport *testutil.MockTransport
	states    *store.MemoryStateStore
	logs      *store.MemoryLogStore
	pipeline  *Pipeline
}

func newFixture(t *testing.T, source decision.Source, opts ...Option) *fixture {
	t.Helper()

	tr := testutil.NewMockTransport()
	require.NoError(t, tr.Connect(context.Background()))

	subjects := transport.NewSubjects("rakan")
	states := store.NewMemoryStateStore()
	logs := store.NewMemoryLogStore(0)

	p := New(
		tr,
		subjects,
		decision.NewResolver(source),
		publisher.New(tr, subjects),
		states,
		logs,
		opts...,
	)

	return &fixture{transport: tr, states: states, logs: logs, pipeline: p}
}

func localFixture(t *testing.T, opts ...Option) *fixture {
	return newFixture(t, decision.NewLocalSource(decision.NewThresholdPolicy()), opts...)
}

func motionEvent(deviceID string, motion bool) *event.Event {
	return &event.Event{
		DeviceID:  deviceID,
		Type:      event.TypeMotion,
		Data:      map[string]any{"motion": motion},
		Timestamp: time.Now().UTC(),
	}
}

func TestHandleMotionEvent(t *testing.T) {
	f := localFixture(t)
	ctx := context.Background()

	result := f.pipeline.Handle(ctx, motionEvent("sensor-1", true))

	require.NotNil(t, result)
	assert.Empty(t, result.Warnings)
	assert.True(t, result.Delivered)
	assert.Equal(t, event.ActionSwitch, result.Decision.Action)
	assert.Equal(t, true, result.Decision.Value)

	// Command published to the device address.
	payloads := f.transport.PublishedTo("rakan/commands/sensor-1")
	require.Len(t, payloads, 1)
	var cmd map[string]any
	require.NoError(t, json.Unmarshal(payloads[0], &cmd))
	assert.Equal(t, "switch", cmd["action"])
	assert.Equal(t, true, cmd["value"])

	// State store holds the event and command.
	state, err := f.states.Get(ctx, "sensor-1")
	require.NoError(t, err)
	assert.Equal(t, "sensor-1", state.LastEvent.DeviceID)
	assert.Equal(t, event.TypeMotion, state.LastEvent.Type)
	assert.Equal(t, "switch", state.LastCommand.Action)

	// Exactly one log entry appended.
	entries, err := f.logs.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Delivered)
	assert.NotEmpty(t, entries[0].LogID)
}

func TestHandleDecisionSourceDownFallsBack(t *testing.T) {
	f := newFixture(t, testutil.FailingSource{})
	ctx := context.Background()

	ev := &event.Event{
		DeviceID:  "sensor-2",
		Type:      event.TypeTemperature,
		Data:      map[string]any{"temperature": 80.0},
		Timestamp: time.Now().UTC(),
	}

	result := f.pipeline.Handle(ctx, ev)

	assert.Equal(t, event.ActionIgnore, result.Decision.Action)
	assert.Nil(t, result.Decision.Value)
	assert.Equal(t, decision.FallbackReason, result.Decision.Reason)
	assert.Equal(t, "sensor-2", result.Decision.DeviceID)

	// Fallback command still published.
	payloads := f.transport.PublishedTo("rakan/commands/sensor-2")
	require.Len(t, payloads, 1)
	var cmd map[string]any
	require.NoError(t, json.Unmarshal(payloads[0], &cmd))
	assert.Equal(t, "ignore", cmd["action"])
	assert.Nil(t, cmd["value"])

	// Log records the fallback reason.
	entries, err := f.logs.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, decision.FallbackReason, entries[0].Decision.Reason)
}

func TestHandlePublishFailureStillPersists(t *testing.T) {
	f := localFixture(t)
	f.transport.PublishErr = testutil.ErrMockPublishFailed
	ctx := context.Background()

	result := f.pipeline.Handle(ctx, motionEvent("sensor-1", true))

	assert.False(t, result.Delivered)
	// Publish failure is an outcome, not a warning.
	assert.Empty(t, result.Warnings)

	_, err := f.states.Get(ctx, "sensor-1")
	assert.NoError(t, err)

	entries, err := f.logs.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Delivered)
	assert.NotEmpty(t, entries[0].PublishError)
}

func TestHandleStateStoreDownDegrades(t *testing.T) {
	tr := testutil.NewMockTransport()
	require.NoError(t, tr.Connect(context.Background()))

	subjects := transport.NewSubjects("rakan")
	logs := store.NewMemoryLogStore(0)

	p := New(
		tr,
		subjects,
		decision.NewResolver(decision.NewLocalSource(decision.NewThresholdPolicy())),
		publisher.New(tr, subjects),
		testutil.FailingStateStore{},
		logs,
	)

	result := p.Handle(context.Background(), motionEvent("sensor-1", true))

	// Read and write both failed, still delivered and logged.
	assert.Len(t, result.Warnings, 2)
	assert.True(t, result.Delivered)
	assert.Equal(t, 1, logs.Len())
}

func TestHandleLogStoreDownDegrades(t *testing.T) {
	tr := testutil.NewMockTransport()
	require.NoError(t, tr.Connect(context.Background()))

	subjects := transport.NewSubjects("rakan")
	states := store.NewMemoryStateStore()

	p := New(
		tr,
		subjects,
		decision.NewResolver(decision.NewLocalSource(decision.NewThresholdPolicy())),
		publisher.New(tr, subjects),
		states,
		testutil.FailingLogStore{},
	)

	result := p.Handle(context.Background(), motionEvent("sensor-1", true))

	assert.Len(t, result.Warnings, 1)
	assert.True(t, result.Delivered)

	_, err := states.Get(context.Background(), "sensor-1")
	assert.NoError(t, err)
}

func TestStartSubscribesAndProcesses(t *testing.T) {
	f := localFixture(t)
	ctx := context.Background()

	require.NoError(t, f.pipeline.Start(ctx))
	defer func() { _ = f.pipeline.Stop(time.Second) }()

	payload := []byte(`{"deviceId":"sensor-1","type":"motion","data":{"motion":true}}`)
	require.NoError(t, f.transport.Publish(ctx, "rakan/events", payload))

	received, rejected, handled, _ := f.pipeline.Stats()
	assert.Equal(t, int64(1), received)
	assert.Equal(t, int64(0), rejected)
	assert.Equal(t, int64(1), handled)

	payloads := f.transport.PublishedTo("rakan/commands/sensor-1")
	assert.Len(t, payloads, 1)
}

func TestMalformedEventDropped(t *testing.T) {
	f := localFixture(t)
	ctx := context.Background()

	require.NoError(t, f.pipeline.Start(ctx))
	defer func() { _ = f.pipeline.Stop(time.Second) }()

	for _, payload := range testutil.TestInvalidEventPayloads {
		require.NoError(t, f.transport.Publish(ctx, "rakan/events", []byte(payload)))
	}

	_, rejected, handled, _ := f.pipeline.Stats()
	assert.Equal(t, int64(len(testutil.TestInvalidEventPayloads)), rejected)
	assert.Equal(t, int64(0), handled)
	assert.Equal(t, 0, f.logs.Len())
}

func TestStartTwiceFails(t *testing.T) {
	f := localFixture(t)

	require.NoError(t, f.pipeline.Start(context.Background()))
	defer func() { _ = f.pipeline.Stop(time.Second) }()

	assert.Error(t, f.pipeline.Start(context.Background()))
}

func TestStopIsBounded(t *testing.T) {
	f := localFixture(t)
	require.NoError(t, f.pipeline.Start(context.Background()))

	start := time.Now()
	require.NoError(t, f.pipeline.Stop(2*time.Second))
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.False(t, f.pipeline.Running())
}

func TestStopWithoutStart(t *testing.T) {
	f := localFixture(t)
	assert.NoError(t, f.pipeline.Stop(time.Second))
}

func TestRedeliveryIsIdempotentOnState(t *testing.T) {
	f := localFixture(t)
	ctx := context.Background()

	ev := motionEvent("sensor-1", true)
	f.pipeline.Handle(ctx, ev)
	f.pipeline.Handle(ctx, ev)

	// Redelivery re-asserts the same state and appends a second log entry.
	state, err := f.states.Get(ctx, "sensor-1")
	require.NoError(t, err)
	assert.Equal(t, "switch", state.State["action"])
	assert.Equal(t, 2, f.logs.Len())
	assert.Len(t, f.transport.PublishedTo("rakan/commands/sensor-1"), 2)
}
