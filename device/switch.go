package device

import (
	"math"
	"time"

	"github.com/CalebLauder/rakan-backend/event"
	"github.com/CalebLauder/rakan-backend/pkg/timestamp"
)

// Switch command actions, accepted alongside the pipeline's "switch"
// action.
const (
	ActionTurnOn        = "turn_on"
	ActionTurnOff       = "turn_off"
	ActionSetBrightness = "set_brightness"
)

// SmartSwitch is a controllable switch with power and brightness. The
// work cycle publishes a heartbeat of its state; commands mutate state and
// emit an acknowledgment event.
type SmartSwitch struct {
	deviceID string
	interval time.Duration

	power      bool
	brightness int
}

// SwitchOption configures a SmartSwitch.
type SwitchOption func(*SmartSwitch)

// WithHeartbeat sets the heartbeat cadence.
func WithHeartbeat(interval time.Duration) SwitchOption {
	return func(s *SmartSwitch) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// NewSmartSwitch creates a switch, initially off.
func NewSmartSwitch(deviceID string, opts ...SwitchOption) *SmartSwitch {
	s := &SmartSwitch{
		deviceID: deviceID,
		interval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeviceID returns the device identifier.
func (s *SmartSwitch) DeviceID() string { return s.deviceID }

// Interval returns the heartbeat cadence.
func (s *SmartSwitch) Interval() time.Duration { return s.interval }

// NextEvent emits the periodic state heartbeat.
func (s *SmartSwitch) NextEvent(now time.Time) *event.Event {
	return s.stateEvent(now)
}

// ApplyCommand handles turn_on, turn_off, set_brightness and the
// pipeline's switch action. Brightness is clamped to [0, 100]; a positive
// brightness forces power on, zero forces it off.
func (s *SmartSwitch) ApplyCommand(cmd *event.Command) (*event.Event, bool) {
	switch cmd.Action {
	case event.ActionSwitch:
		on, ok := cmd.Value.(bool)
		if !ok {
			return nil, false
		}
		s.setPower(on)

	case ActionTurnOn:
		s.setPower(true)

	case ActionTurnOff:
		s.setPower(false)

	case ActionSetBrightness, event.ActionAdjust:
		val, ok := commandNumber(cmd.Value)
		if !ok {
			return nil, false
		}
		s.brightness = clampBrightness(val)
		s.power = s.brightness > 0

	default:
		return nil, false
	}

	return s.stateEvent(timestamp.Now()), true
}

// Snapshot returns the current state.
func (s *SmartSwitch) Snapshot() map[string]any {
	power := "OFF"
	if s.power {
		power = "ON"
	}
	return map[string]any{
		"power":      power,
		"brightness": s.brightness,
	}
}

func (s *SmartSwitch) setPower(on bool) {
	s.power = on
	if on && s.brightness == 0 {
		s.brightness = 100
	}
}

func (s *SmartSwitch) stateEvent(now time.Time) *event.Event {
	return &event.Event{
		DeviceID:  s.deviceID,
		Type:      event.TypeSwitchState,
		Data:      map[string]any{"state": s.Snapshot()},
		Timestamp: now,
	}
}

func clampBrightness(val float64) int {
	return int(math.Min(100, math.Max(0, val)))
}

// commandNumber extracts a numeric command value. JSON decoding yields
// float64; direct construction in tests may use int.
func commandNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

var _ Behavior = (*SmartSwitch)(nil)
