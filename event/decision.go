package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/CalebLauder/rakan-backend/errors"
	"github.com/CalebLauder/rakan-backend/pkg/timestamp"
)

// Decision actions. The action vocabulary is open: devices ignore actions
// they do not understand.
const (
	ActionSwitch  = "switch"
	ActionCooling = "cooling"
	ActionAdjust  = "adjust"
	ActionIgnore  = "ignore"
)

// DefaultReason populates decisions whose source omitted a reason.
const DefaultReason = "no reason provided"

// Decision is the resolved action for one event. After resolution the
// deviceId, action and value keys are always present (value may be nil);
// candidates violating that are replaced wholesale by the fallback.
type Decision struct {
	DeviceID  string    `json:"deviceId"`
	Action    string    `json:"action"`
	Value     any       `json:"value"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON emits the canonical wire form. The value key is always
// present, as null when unset.
func (d Decision) MarshalJSON() ([]byte, error) {
	type wire struct {
		DeviceID  string `json:"deviceId"`
		Action    string `json:"action"`
		Value     any    `json:"value"`
		Reason    string `json:"reason,omitempty"`
		Timestamp string `json:"timestamp,omitempty"`
	}
	return json.Marshal(wire{
		DeviceID:  d.DeviceID,
		Action:    d.Action,
		Value:     d.Value,
		Reason:    d.Reason,
		Timestamp: timestamp.Format(d.Timestamp),
	})
}

// UnmarshalJSON parses the wire form with lenient timestamps.
func (d *Decision) UnmarshalJSON(data []byte) error {
	type wire struct {
		DeviceID  string `json:"deviceId"`
		Action    string `json:"action"`
		Value     any    `json:"value"`
		Reason    string `json:"reason"`
		Timestamp any    `json:"timestamp"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.WrapInvalid(err, "Decision", "UnmarshalJSON", "parse payload")
	}
	d.DeviceID = w.DeviceID
	d.Action = w.Action
	d.Value = w.Value
	d.Reason = w.Reason
	d.Timestamp = timestamp.Parse(w.Timestamp)
	return nil
}

// Validate checks the resolved-decision invariant.
func (d *Decision) Validate() error {
	if d.DeviceID == "" {
		return errors.WrapInvalid(errors.ErrInvalidDecision, "Decision", "Validate", "missing deviceId")
	}
	if d.Action == "" {
		return errors.WrapInvalid(errors.ErrInvalidDecision, "Decision", "Validate", "missing action")
	}
	return nil
}

// ParseCandidate validates a raw decision-source response wholesale: the
// body must be a JSON object carrying deviceId and action strings; value
// may be absent and is treated as null. Any other shape is rejected as a
// whole so the caller substitutes the fallback, never a partial merge.
func ParseCandidate(raw []byte) (*Decision, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.WrapInvalid(err, "Decision", "ParseCandidate", "candidate is not an object")
	}

	deviceID, err := requireString(fields, "deviceId")
	if err != nil {
		return nil, err
	}
	action, err := requireString(fields, "action")
	if err != nil {
		return nil, err
	}

	d := &Decision{DeviceID: deviceID, Action: action}

	if rawValue, ok := fields["value"]; ok {
		if err := json.Unmarshal(rawValue, &d.Value); err != nil {
			return nil, errors.WrapInvalid(err, "Decision", "ParseCandidate", "decode value")
		}
	}
	if rawReason, ok := fields["reason"]; ok {
		// Tolerate a missing or non-string reason; it is defaulted later
		var reason string
		if err := json.Unmarshal(rawReason, &reason); err == nil {
			d.Reason = reason
		}
	}
	if rawTS, ok := fields["timestamp"]; ok {
		var ts any
		if err := json.Unmarshal(rawTS, &ts); err == nil {
			d.Timestamp = timestamp.Parse(ts)
		}
	}

	return d, nil
}

func requireString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", errors.WrapInvalid(errors.ErrInvalidDecision, "Decision", "ParseCandidate",
			fmt.Sprintf("missing %s key", key))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.WrapInvalid(errors.ErrInvalidDecision, "Decision", "ParseCandidate",
			fmt.Sprintf("%s is not a string", key))
	}
	if s == "" {
		return "", errors.WrapInvalid(errors.ErrInvalidDecision, "Decision", "ParseCandidate",
			fmt.Sprintf("empty %s", key))
	}
	return s, nil
}
