package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CalebLauder/rakan-backend/event"
	"github.com/CalebLauder/rakan-backend/health"
	"github.com/CalebLauder/rakan-backend/pkg/timestamp"
	"github.com/CalebLauder/rakan-backend/publisher"
	"github.com/CalebLauder/rakan-backend/store"
	"github.com/CalebLauder/rakan-backend/testutil"
	"github.com/CalebLauder/rakan-backend/transport"
)

type gatewayFixture struct {
	server    *Server
	states    *store.MemoryStateStore
	logs      *store.MemoryLogStore
	transport *testutil.MockTransport
}

func newGatewayFixture(t *testing.T, opts ...ServerOption) *gatewayFixture {
	t.Helper()

	states := store.NewMemoryStateStore()
	logs := store.NewMemoryLogStore(100)
	tr := testutil.NewMockTransport()
	require.NoError(t, tr.Connect(context.Background()))

	subjects := transport.NewSubjects("rakan")
	pub := publisher.New(tr, subjects)

	return &gatewayFixture{
		server:    NewServer(0, states, logs, pub, opts...),
		states:    states,
		logs:      logs,
		transport: tr,
	}
}

func (f *gatewayFixture) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func seedState(t *testing.T, f *gatewayFixture, deviceID string) {
	t.Helper()
	require.NoError(t, f.states.Put(context.Background(), &event.DeviceState{
		DeviceID:  deviceID,
		State:     map[string]any{"action": "switch", "value": true},
		UpdatedAt: timestamp.Now(),
	}))
}

func TestListDevices(t *testing.T) {
	f := newGatewayFixture(t)
	seedState(t, f, "light-1")
	seedState(t, f, "light-2")

	rec := f.request(t, http.MethodGet, "/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var states []event.DeviceState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &states))
	assert.Len(t, states, 2)
}

func TestListDevicesEmpty(t *testing.T) {
	f := newGatewayFixture(t)

	rec := f.request(t, http.MethodGet, "/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestGetDevice(t *testing.T) {
	f := newGatewayFixture(t)
	seedState(t, f, "light-1")

	rec := f.request(t, http.MethodGet, "/devices/light-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var state event.DeviceState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "light-1", state.DeviceID)
}

func TestGetDeviceNotFound(t *testing.T) {
	f := newGatewayFixture(t)

	rec := f.request(t, http.MethodGet, "/devices/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "device not found")
}

func TestGetLogs(t *testing.T) {
	f := newGatewayFixture(t)
	for range 5 {
		_, err := f.logs.Append(context.Background(), &event.LogEntry{
			LogID:     uuid.NewString(),
			Timestamp: timestamp.Now(),
			Event:     &event.Event{DeviceID: "motion-1", Type: event.TypeMotion},
			Decision:  &event.Decision{DeviceID: "motion-1", Action: event.ActionIgnore},
		})
		require.NoError(t, err)
	}

	rec := f.request(t, http.MethodGet, "/logs?limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []event.LogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 3)
}

func TestGetLogsBadLimit(t *testing.T) {
	f := newGatewayFixture(t)

	for _, limit := range []string{"0", "-1", "abc"} {
		rec := f.request(t, http.MethodGet, "/logs?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestPostCommand(t *testing.T) {
	f := newGatewayFixture(t)

	rec := f.request(t, http.MethodPost, "/devices/light-1/command",
		`{"action": "switch", "value": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status  string        `json:"status"`
		Command event.Command `json:"command"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sent", resp.Status)
	assert.Equal(t, "light-1", resp.Command.DeviceID)
	assert.Equal(t, ManualOverrideReason, resp.Command.Reason)

	published := f.transport.PublishedTo("rakan/commands/light-1")
	require.Len(t, published, 1)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(published[0], &wire))
	assert.Equal(t, "switch", wire["action"])
	assert.Equal(t, true, wire["value"])
}

func TestPostCommandMissingAction(t *testing.T) {
	f := newGatewayFixture(t)

	rec := f.request(t, http.MethodPost, "/devices/light-1/command", `{"value": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "'action' is required")
	assert.Empty(t, f.transport.Published())
}

func TestPostCommandMalformedBody(t *testing.T) {
	f := newGatewayFixture(t)

	rec := f.request(t, http.MethodPost, "/devices/light-1/command", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostCommandPublishFailure(t *testing.T) {
	f := newGatewayFixture(t)
	f.transport.SetConnected(false)

	rec := f.request(t, http.MethodPost, "/devices/light-1/command",
		`{"action": "switch", "value": false}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHealthzWithoutMonitor(t *testing.T) {
	f := newGatewayFixture(t)

	rec := f.request(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthzReportsMonitor(t *testing.T) {
	monitor := health.NewMonitor()
	f := newGatewayFixture(t, WithMonitor(monitor))

	rec := f.request(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	monitor.Set("broker", health.Unhealthy("broker", "connection lost"))
	rec = f.request(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, health.LevelUnhealthy, report.Level)
}

func TestHealthzDegradedStaysOK(t *testing.T) {
	monitor := health.NewMonitor()
	monitor.Set("pipeline", health.Degraded("pipeline", "log store slow"))
	f := newGatewayFixture(t, WithMonitor(monitor))

	rec := f.request(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDPropagated(t *testing.T) {
	f := newGatewayFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestServerStartStop(t *testing.T) {
	f := newGatewayFixture(t)
	f.server.port = 0

	require.NoError(t, f.server.Start(context.Background()))
	assert.Error(t, f.server.Start(context.Background()))
	require.NoError(t, f.server.Stop(time.Second))
	assert.NoError(t, f.server.Stop(time.Second))
}
