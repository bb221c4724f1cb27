package device

import (
	"math/rand"
	"time"

	"github.com/CalebLauder/rakan-backend/event"
)

// MotionSensor emits motion readings with different trigger probabilities
// for day and night hours. A seed makes the output reproducible.
type MotionSensor struct {
	deviceID string
	interval time.Duration

	dayProb    float64
	nightProb  float64
	dayStart   int
	nightStart int
	rng        *rand.Rand

	motion bool
}

// MotionOption configures a MotionSensor.
type MotionOption func(*MotionSensor)

// WithMotionInterval sets the publish cadence.
func WithMotionInterval(interval time.Duration) MotionOption {
	return func(m *MotionSensor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithMotionProbabilities sets the day and night trigger probabilities.
func WithMotionProbabilities(day, night float64) MotionOption {
	return func(m *MotionSensor) {
		m.dayProb = day
		m.nightProb = night
	}
}

// WithMotionHours sets the day start and night start hours.
func WithMotionHours(dayStart, nightStart int) MotionOption {
	return func(m *MotionSensor) {
		m.dayStart = dayStart
		m.nightStart = nightStart
	}
}

// WithMotionSeed makes readings deterministic.
func WithMotionSeed(seed int64) MotionOption {
	return func(m *MotionSensor) {
		m.rng = rand.New(rand.NewSource(seed))
	}
}

// NewMotionSensor creates a motion sensor with the default 5s cadence.
func NewMotionSensor(deviceID string, opts ...MotionOption) *MotionSensor {
	m := &MotionSensor{
		deviceID:   deviceID,
		interval:   5 * time.Second,
		dayProb:    0.02,
		nightProb:  0.10,
		dayStart:   7,
		nightStart: 22,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return m
}

// DeviceID returns the device identifier.
func (m *MotionSensor) DeviceID() string { return m.deviceID }

// Interval returns the publish cadence.
func (m *MotionSensor) Interval() time.Duration { return m.interval }

// NextEvent samples motion for the current hour and emits a reading.
func (m *MotionSensor) NextEvent(now time.Time) *event.Event {
	prob := m.dayProb
	if m.isNight(now) {
		prob = m.nightProb
	}
	m.motion = m.rng.Float64() < prob

	return &event.Event{
		DeviceID:  m.deviceID,
		Type:      event.TypeMotion,
		Data:      map[string]any{"motion": m.motion},
		Timestamp: now,
	}
}

// ApplyCommand drops everything; motion sensors take no commands.
func (m *MotionSensor) ApplyCommand(*event.Command) (*event.Event, bool) {
	return nil, false
}

// Snapshot returns the last sampled reading.
func (m *MotionSensor) Snapshot() map[string]any {
	return map[string]any{"motion": m.motion}
}

func (m *MotionSensor) isNight(now time.Time) bool {
	hour := now.Hour()
	return hour >= m.nightStart || hour < m.dayStart
}

var _ Behavior = (*MotionSensor)(nil)
