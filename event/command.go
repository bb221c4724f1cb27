package event

import (
	"encoding/json"
	"time"

	"github.com/CalebLauder/rakan-backend/errors"
	"github.com/CalebLauder/rakan-backend/pkg/timestamp"
)

// Command is the wire-level projection of a Decision, addressed to exactly
// one device. Commands carry desired state, not deltas, so redelivery under
// at-least-once semantics just re-asserts the same state.
type Command struct {
	DeviceID  string    `json:"deviceId"`
	Action    string    `json:"action"`
	Value     any       `json:"value"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CommandFromDecision projects a resolved Decision to its wire Command.
func CommandFromDecision(d *Decision) *Command {
	ts := d.Timestamp
	if ts.IsZero() {
		ts = timestamp.Now()
	}
	return &Command{
		DeviceID:  d.DeviceID,
		Action:    d.Action,
		Value:     d.Value,
		Reason:    d.Reason,
		Timestamp: ts,
	}
}

// MarshalJSON emits canonical wire JSON; value is always present.
func (c Command) MarshalJSON() ([]byte, error) {
	type wire struct {
		DeviceID  string `json:"deviceId"`
		Action    string `json:"action"`
		Value     any    `json:"value"`
		Reason    string `json:"reason,omitempty"`
		Timestamp string `json:"timestamp,omitempty"`
	}
	return json.Marshal(wire{
		DeviceID:  c.DeviceID,
		Action:    c.Action,
		Value:     c.Value,
		Reason:    c.Reason,
		Timestamp: timestamp.Format(c.Timestamp),
	})
}

// UnmarshalJSON parses wire JSON with lenient timestamps. Older
// producers key the action as "command"; it is read as an alias when
// "action" is absent.
func (c *Command) UnmarshalJSON(data []byte) error {
	type wire struct {
		DeviceID  string `json:"deviceId"`
		Action    string `json:"action"`
		Command   string `json:"command"`
		Value     any    `json:"value"`
		Reason    string `json:"reason"`
		Timestamp any    `json:"timestamp"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.WrapInvalid(err, "Command", "UnmarshalJSON", "parse payload")
	}
	c.DeviceID = w.DeviceID
	c.Action = w.Action
	if c.Action == "" {
		c.Action = w.Command
	}
	c.Value = w.Value
	c.Reason = w.Reason
	c.Timestamp = timestamp.Parse(w.Timestamp)
	return nil
}

// Validate checks the command is routable.
func (c *Command) Validate() error {
	if c.DeviceID == "" {
		return errors.WrapInvalid(errors.ErrInvalidDecision, "Command", "Validate", "missing deviceId")
	}
	if c.Action == "" {
		return errors.WrapInvalid(errors.ErrInvalidDecision, "Command", "Validate", "missing action")
	}
	return nil
}
