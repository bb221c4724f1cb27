package event

import (
	"encoding/json"
	"time"

	"github.com/CalebLauder/rakan-backend/errors"
	"github.com/CalebLauder/rakan-backend/pkg/timestamp"
)

// Well-known event types. Unknown types are carried through and resolve to
// an ignore decision rather than being rejected.
const (
	TypeMotion      = "motion"
	TypeTemperature = "temperature"
	TypeDoor        = "door"
	TypeHumidity    = "humidity"
	TypeSwitchState = "switch_state"
	TypeSetpoint    = "temperature_setpoint"
)

// legacyReadingKeys maps event types to the reading key that older device
// firmware emitted at the top level instead of under "data".
var legacyReadingKeys = map[string][]string{
	TypeMotion:      {"motion"},
	TypeTemperature: {"temperature", "value"},
	TypeDoor:        {"door_open"},
	TypeHumidity:    {"humidity"},
	TypeSwitchState: {"state"},
}

// Event is one inbound reading or state report from a device. Immutable
// once parsed; it lives only for the duration of one pipeline invocation.
type Event struct {
	DeviceID  string         `json:"deviceId"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// wireEvent is the lenient wire form: timestamp may be an RFC3339 string,
// unix seconds or unix milliseconds, and readings may sit at the top level.
type wireEvent struct {
	DeviceID  string         `json:"deviceId"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp any            `json:"timestamp"`

	// Legacy top-level readings
	Motion      *bool    `json:"motion,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Value       any      `json:"value,omitempty"`
	DoorOpen    *bool    `json:"door_open,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	State       any      `json:"state,omitempty"`
}

// MarshalJSON emits the canonical wire form.
func (e Event) MarshalJSON() ([]byte, error) {
	type wire struct {
		DeviceID  string         `json:"deviceId"`
		Type      string         `json:"type"`
		Data      map[string]any `json:"data"`
		Timestamp string         `json:"timestamp,omitempty"`
	}
	return json.Marshal(wire{
		DeviceID:  e.DeviceID,
		Type:      e.Type,
		Data:      e.Data,
		Timestamp: timestamp.Format(e.Timestamp),
	})
}

// UnmarshalJSON parses the lenient wire form and normalizes it to the
// canonical shape: readings nested under Data, timestamp as time.Time.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.WrapInvalid(err, "Event", "UnmarshalJSON", "parse payload")
	}

	e.DeviceID = w.DeviceID
	e.Type = w.Type
	e.Data = w.Data
	e.Timestamp = timestamp.Parse(w.Timestamp)

	e.normalizeLegacy(&w)
	return nil
}

// normalizeLegacy re-nests top-level readings under Data for known types.
// The canonical shape wins: an existing Data key is never overwritten.
func (e *Event) normalizeLegacy(w *wireEvent) {
	put := func(key string, val any) {
		if val == nil {
			return
		}
		if e.Data == nil {
			e.Data = make(map[string]any)
		}
		if _, exists := e.Data[key]; !exists {
			e.Data[key] = val
		}
	}

	switch e.Type {
	case TypeMotion:
		if w.Motion != nil {
			put("motion", *w.Motion)
		}
	case TypeTemperature:
		if w.Temperature != nil {
			put("temperature", *w.Temperature)
		} else if w.Value != nil {
			put("temperature", w.Value)
		}
	case TypeDoor:
		if w.DoorOpen != nil {
			put("door_open", *w.DoorOpen)
		}
	case TypeHumidity:
		if w.Humidity != nil {
			put("humidity", *w.Humidity)
		}
	case TypeSwitchState:
		if w.State != nil {
			put("state", w.State)
		}
	case TypeSetpoint:
		if w.Value != nil {
			put("value", w.Value)
		}
	}
}

// Validate checks the event satisfies the ingress contract. A missing or
// empty deviceId is a terminal input error for the invocation.
func (e *Event) Validate() error {
	if e.DeviceID == "" {
		return errors.ErrMissingDeviceID
	}
	if e.Type == "" {
		return errors.WrapInvalid(errors.ErrInvalidEvent, "Event", "Validate", "missing type")
	}
	return nil
}

// Parse decodes and validates a raw event payload.
func Parse(raw []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = timestamp.Now()
	}
	return &e, nil
}

// Bool reads a boolean value from Data; ok is false when absent or not a bool.
func (e *Event) Bool(key string) (val, ok bool) {
	v, present := e.Data[key]
	if !present {
		return false, false
	}
	b, isBool := v.(bool)
	return b, isBool
}

// Float reads a numeric value from Data; ok is false when absent or not numeric.
func (e *Event) Float(key string) (float64, bool) {
	v, present := e.Data[key]
	if !present {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
