package device

import (
	"math"
	"math/rand"
	"time"

	"github.com/CalebLauder/rakan-backend/event"
	"github.com/CalebLauder/rakan-backend/pkg/timestamp"
)

// Temperature sensor command actions.
const (
	ActionSetSetpoint   = "set_setpoint"
	ActionClearSetpoint = "clear_setpoint"
)

// setpointPull is the per-cycle fraction the reading moves toward an
// active setpoint.
const setpointPull = 0.02

// TemperatureSensor emits readings around a baseline with random drift
// and gaussian noise. An optional setpoint, set by command, pulls the
// reading toward it over time. The pipeline's cooling action is treated
// as a setpoint at the commanded value.
type TemperatureSensor struct {
	deviceID string
	interval time.Duration

	value    float64
	drift    float64
	noise    float64
	setpoint *float64
	rng      *rand.Rand
}

// TemperatureOption configures a TemperatureSensor.
type TemperatureOption func(*TemperatureSensor)

// WithTemperatureInterval sets the sample cadence.
func WithTemperatureInterval(interval time.Duration) TemperatureOption {
	return func(t *TemperatureSensor) {
		if interval > 0 {
			t.interval = interval
		}
	}
}

// WithBaseline sets the starting temperature.
func WithBaseline(baseline float64) TemperatureOption {
	return func(t *TemperatureSensor) {
		t.value = baseline
	}
}

// WithDrift sets the max per-step drift.
func WithDrift(drift float64) TemperatureOption {
	return func(t *TemperatureSensor) {
		t.drift = drift
	}
}

// WithNoise sets the gaussian noise sigma.
func WithNoise(noise float64) TemperatureOption {
	return func(t *TemperatureSensor) {
		t.noise = noise
	}
}

// WithTemperatureSeed makes readings deterministic.
func WithTemperatureSeed(seed int64) TemperatureOption {
	return func(t *TemperatureSensor) {
		t.rng = rand.New(rand.NewSource(seed))
	}
}

// NewTemperatureSensor creates a sensor with the default 3s cadence.
func NewTemperatureSensor(deviceID string, opts ...TemperatureOption) *TemperatureSensor {
	t := &TemperatureSensor{
		deviceID: deviceID,
		interval: 3 * time.Second,
		value:    22.0,
		drift:    0.1,
		noise:    0.2,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.rng == nil {
		t.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return t
}

// DeviceID returns the device identifier.
func (t *TemperatureSensor) DeviceID() string { return t.deviceID }

// Interval returns the sample cadence.
func (t *TemperatureSensor) Interval() time.Duration { return t.interval }

// NextEvent advances the reading by drift, noise and setpoint pull, then
// emits it.
func (t *TemperatureSensor) NextEvent(now time.Time) *event.Event {
	delta := t.rng.Float64()*2*t.drift - t.drift
	noise := t.rng.NormFloat64() * t.noise
	t.value += delta + noise

	if t.setpoint != nil {
		t.value += (*t.setpoint - t.value) * setpointPull
	}
	t.value = round2(t.value)

	return &event.Event{
		DeviceID:  t.deviceID,
		Type:      event.TypeTemperature,
		Data:      map[string]any{"temperature": t.value},
		Timestamp: now,
	}
}

// ApplyCommand handles setpoint changes. Cooling commands carry the
// observed temperature; the sensor adopts it as its setpoint target.
func (t *TemperatureSensor) ApplyCommand(cmd *event.Command) (*event.Event, bool) {
	switch cmd.Action {
	case ActionSetSetpoint, event.ActionCooling:
		val, ok := commandNumber(cmd.Value)
		if !ok {
			return nil, false
		}
		t.setpoint = &val
		return t.setpointEvent(&val), true

	case ActionClearSetpoint:
		t.setpoint = nil
		return t.setpointEvent(nil), true

	default:
		return nil, false
	}
}

// Snapshot returns the current reading and setpoint.
func (t *TemperatureSensor) Snapshot() map[string]any {
	snap := map[string]any{"value": t.value}
	if t.setpoint != nil {
		snap["setpoint"] = *t.setpoint
	} else {
		snap["setpoint"] = nil
	}
	return snap
}

func (t *TemperatureSensor) setpointEvent(val *float64) *event.Event {
	var v any
	if val != nil {
		v = *val
	}
	return &event.Event{
		DeviceID:  t.deviceID,
		Type:      event.TypeSetpoint,
		Data:      map[string]any{"value": v},
		Timestamp: timestamp.Now(),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var _ Behavior = (*TemperatureSensor)(nil)
