package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecision_MarshalAlwaysEmitsValue(t *testing.T) {
	d := Decision{
		DeviceID: "sensor-2",
		Action:   ActionIgnore,
		Value:    nil,
		Reason:   "nothing to do",
	}

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"value":null`)
}

func TestDecision_WireRoundTrip(t *testing.T) {
	d := Decision{
		DeviceID:  "sensor-1",
		Action:    ActionCooling,
		Value:     float64(80),
		Reason:    "High temperature (80). Cooling activated.",
		Timestamp: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
	}

	data, err := json.Marshal(d)
	require.NoError(t, err)

	var back Decision
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, d.DeviceID, back.DeviceID)
	assert.Equal(t, d.Action, back.Action)
	assert.Equal(t, d.Value, back.Value)
	assert.Equal(t, d.Reason, back.Reason)
	assert.True(t, back.Timestamp.Equal(d.Timestamp))
}

func TestParseCandidate_Valid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Decision
	}{
		{
			name: "full candidate",
			raw:  `{"deviceId":"s-1","action":"switch","value":true,"reason":"motion"}`,
			want: Decision{DeviceID: "s-1", Action: "switch", Value: true, Reason: "motion"},
		},
		{
			name: "value null",
			raw:  `{"deviceId":"s-1","action":"ignore","value":null}`,
			want: Decision{DeviceID: "s-1", Action: "ignore", Value: nil},
		},
		{
			name: "value key absent treated as null",
			raw:  `{"deviceId":"s-1","action":"ignore"}`,
			want: Decision{DeviceID: "s-1", Action: "ignore", Value: nil},
		},
		{
			name: "non-string reason tolerated",
			raw:  `{"deviceId":"s-1","action":"adjust","value":65,"reason":42}`,
			want: Decision{DeviceID: "s-1", Action: "adjust", Value: float64(65), Reason: ""},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d, err := ParseCandidate([]byte(test.raw))
			require.NoError(t, err)
			assert.Equal(t, test.want.DeviceID, d.DeviceID)
			assert.Equal(t, test.want.Action, d.Action)
			assert.Equal(t, test.want.Value, d.Value)
			assert.Equal(t, test.want.Reason, d.Reason)
		})
	}
}

func TestParseCandidate_RejectedWholesale(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not an object", `"just a string"`},
		{"array", `[1,2,3]`},
		{"missing deviceId", `{"action":"switch","value":true}`},
		{"missing action", `{"deviceId":"s-1","value":true}`},
		{"deviceId wrong type", `{"deviceId":42,"action":"switch","value":true}`},
		{"action wrong type", `{"deviceId":"s-1","action":{"a":1},"value":true}`},
		{"empty action", `{"deviceId":"s-1","action":"","value":true}`},
		{"not json", `{{{`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d, err := ParseCandidate([]byte(test.raw))
			require.Error(t, err)
			assert.Nil(t, d, "rejected candidates must not be partially returned")
		})
	}
}

func TestCommandFromDecision(t *testing.T) {
	d := &Decision{
		DeviceID:  "switch-1",
		Action:    ActionSwitch,
		Value:     true,
		Reason:    "motion detected",
		Timestamp: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
	}

	cmd := CommandFromDecision(d)
	assert.Equal(t, d.DeviceID, cmd.DeviceID)
	assert.Equal(t, d.Action, cmd.Action)
	assert.Equal(t, d.Value, cmd.Value)
	assert.True(t, cmd.Timestamp.Equal(d.Timestamp))

	// Zero decision timestamp gets stamped at projection time
	cmd2 := CommandFromDecision(&Decision{DeviceID: "x", Action: "ignore"})
	assert.False(t, cmd2.Timestamp.IsZero())
}

func TestCommand_WireRoundTrip(t *testing.T) {
	d := &Decision{DeviceID: "switch-1", Action: ActionSwitch, Value: true}
	cmd := CommandFromDecision(d)

	data, err := json.Marshal(cmd)
	require.NoError(t, err)

	var back Command
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, d.DeviceID, back.DeviceID)
	assert.Equal(t, d.Action, back.Action)
	assert.Equal(t, d.Value, back.Value)
}

func TestCommand_LegacyCommandKey(t *testing.T) {
	var cmd Command
	require.NoError(t, json.Unmarshal([]byte(`{"command":"set_brightness","value":150}`), &cmd))
	assert.Equal(t, "set_brightness", cmd.Action)
	assert.Equal(t, float64(150), cmd.Value)

	// "action" wins when both keys are present.
	require.NoError(t, json.Unmarshal([]byte(`{"action":"turn_on","command":"turn_off"}`), &cmd))
	assert.Equal(t, "turn_on", cmd.Action)
}

func TestNextState(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	ev := &Event{DeviceID: "sensor-1", Type: TypeMotion, Data: map[string]any{"motion": true}}
	d := &Decision{DeviceID: "sensor-1", Action: ActionSwitch, Value: true}
	cmd := CommandFromDecision(d)

	st := NextState(ev, d, cmd, now)
	assert.Equal(t, "sensor-1", st.DeviceID)
	assert.Equal(t, ActionSwitch, st.State["action"])
	assert.Equal(t, true, st.State["value"])
	assert.Equal(t, ev, st.LastEvent)
	assert.Equal(t, cmd, st.LastCommand)
	assert.Equal(t, now, st.UpdatedAt)
}
