package event

import (
	"encoding/json"
	"time"
)

// DeviceState is the durable last-known state of one device. Writes are
// unconditional last-writer-wins overwrites keyed by DeviceID; no history
// is retained.
type DeviceState struct {
	DeviceID    string         `json:"deviceId"`
	State       map[string]any `json:"state"`
	LastEvent   *Event         `json:"lastEvent,omitempty"`
	LastCommand *Command       `json:"lastCommand,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// NextState derives the replacement DeviceState after a pipeline
// invocation. State is replaced wholesale from the decision, not merged.
func NextState(ev *Event, d *Decision, cmd *Command, now time.Time) *DeviceState {
	return &DeviceState{
		DeviceID: ev.DeviceID,
		State: map[string]any{
			"action": d.Action,
			"value":  d.Value,
		},
		LastEvent:   ev,
		LastCommand: cmd,
		UpdatedAt:   now,
	}
}

// Marshal serializes the state for storage.
func (s *DeviceState) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalDeviceState decodes a stored state record.
func UnmarshalDeviceState(data []byte) (*DeviceState, error) {
	var s DeviceState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// LogEntry is one append-only record of a full pipeline transaction: the
// raw event, the resolved decision and the command publish outcome. Log
// writes are independent of state writes; either may succeed without the
// other.
type LogEntry struct {
	LogID        string    `json:"logId"`
	Timestamp    time.Time `json:"timestamp"`
	Event        *Event    `json:"event"`
	Decision     *Decision `json:"decision"`
	Command      *Command  `json:"command,omitempty"`
	Delivered    bool      `json:"delivered"`
	PublishError string    `json:"publishError,omitempty"`
}

// Marshal serializes the entry for storage.
func (e *LogEntry) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalLogEntry decodes a stored log record.
func UnmarshalLogEntry(data []byte) (*LogEntry, error) {
	var e LogEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
