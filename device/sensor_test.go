package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CalebLauder/rakan-backend/event"
)

func TestMotionSensorDeterministicWithSeed(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	a := NewMotionSensor("motion-1", WithMotionSeed(42))
	b := NewMotionSensor("motion-1", WithMotionSeed(42))

	for i := 0; i < 50; i++ {
		evA := a.NextEvent(now)
		evB := b.NextEvent(now)
		assert.Equal(t, evA.Data["motion"], evB.Data["motion"])
	}
}

func TestMotionSensorNightMoreActive(t *testing.T) {
	day := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	night := time.Date(2026, 8, 1, 23, 0, 0, 0, time.UTC)

	countTriggers := func(when time.Time) int {
		m := NewMotionSensor("motion-1",
			WithMotionSeed(7),
			WithMotionProbabilities(0.02, 0.50),
		)
		triggers := 0
		for i := 0; i < 500; i++ {
			if m.NextEvent(when).Data["motion"] == true {
				triggers++
			}
		}
		return triggers
	}

	assert.Greater(t, countTriggers(night), countTriggers(day))
}

func TestMotionSensorEventShape(t *testing.T) {
	m := NewMotionSensor("motion-1", WithMotionSeed(1))
	now := time.Now().UTC()

	ev := m.NextEvent(now)

	require.NotNil(t, ev)
	assert.Equal(t, "motion-1", ev.DeviceID)
	assert.Equal(t, event.TypeMotion, ev.Type)
	assert.Contains(t, ev.Data, "motion")
	assert.Equal(t, now, ev.Timestamp)
}

func TestMotionSensorRejectsCommands(t *testing.T) {
	m := NewMotionSensor("motion-1")

	ack, recognized := m.ApplyCommand(&event.Command{DeviceID: "motion-1", Action: ActionTurnOn})
	assert.False(t, recognized)
	assert.Nil(t, ack)
}

func TestTemperatureSensorReadingsNearBaseline(t *testing.T) {
	s := NewTemperatureSensor("temp-1",
		WithTemperatureSeed(42),
		WithBaseline(22.0),
		WithDrift(0.1),
		WithNoise(0.2),
	)
	now := time.Now().UTC()

	for i := 0; i < 100; i++ {
		ev := s.NextEvent(now)
		val, ok := ev.Data["temperature"].(float64)
		require.True(t, ok)
		assert.InDelta(t, 22.0, val, 15.0)
		assert.Equal(t, event.TypeTemperature, ev.Type)
	}
}

func TestTemperatureSensorSetpointPullsReading(t *testing.T) {
	s := NewTemperatureSensor("temp-1",
		WithTemperatureSeed(42),
		WithBaseline(22.0),
		WithDrift(0),
		WithNoise(0),
	)
	now := time.Now().UTC()

	ack, recognized := s.ApplyCommand(&event.Command{
		DeviceID: "temp-1",
		Action:   ActionSetSetpoint,
		Value:    float64(30),
	})
	require.True(t, recognized)
	require.NotNil(t, ack)
	assert.Equal(t, event.TypeSetpoint, ack.Type)

	// With zero drift and noise the reading converges monotonically.
	prev := 22.0
	for i := 0; i < 50; i++ {
		val := s.NextEvent(now).Data["temperature"].(float64)
		assert.GreaterOrEqual(t, val, prev-0.01)
		prev = val
	}
	assert.Greater(t, prev, 25.0)
}

func TestTemperatureSensorCoolingActsAsSetpoint(t *testing.T) {
	s := NewTemperatureSensor("temp-1", WithTemperatureSeed(1))

	_, recognized := s.ApplyCommand(&event.Command{
		DeviceID: "temp-1",
		Action:   event.ActionCooling,
		Value:    float64(18),
	})
	require.True(t, recognized)
	assert.Equal(t, 18.0, s.Snapshot()["setpoint"])
}

func TestTemperatureSensorClearSetpoint(t *testing.T) {
	s := NewTemperatureSensor("temp-1", WithTemperatureSeed(1))

	_, recognized := s.ApplyCommand(&event.Command{DeviceID: "temp-1", Action: ActionSetSetpoint, Value: float64(25)})
	require.True(t, recognized)

	ack, recognized := s.ApplyCommand(&event.Command{DeviceID: "temp-1", Action: ActionClearSetpoint})
	require.True(t, recognized)
	require.NotNil(t, ack)
	assert.Nil(t, s.Snapshot()["setpoint"])
}

func TestTemperatureSensorInvalidSetpointDropped(t *testing.T) {
	s := NewTemperatureSensor("temp-1", WithTemperatureSeed(1))

	_, recognized := s.ApplyCommand(&event.Command{
		DeviceID: "temp-1",
		Action:   ActionSetSetpoint,
		Value:    "very warm",
	})
	assert.False(t, recognized)
	assert.Nil(t, s.Snapshot()["setpoint"])
}
