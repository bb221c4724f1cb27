package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyMonitorReportsHealthy(t *testing.T) {
	m := NewMonitor()
	report := m.Evaluate(context.Background())

	assert.Equal(t, LevelHealthy, report.Level)
	assert.True(t, report.Healthy())
	assert.Empty(t, report.Components)
}

func TestAggregationTakesWorstLevel(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Level
	}{
		{
			name:     "all healthy",
			statuses: []Status{Healthy("a", ""), Healthy("b", "")},
			want:     LevelHealthy,
		},
		{
			name:     "one degraded",
			statuses: []Status{Healthy("a", ""), Degraded("b", "state store slow")},
			want:     LevelDegraded,
		},
		{
			name:     "unhealthy beats degraded",
			statuses: []Status{Degraded("a", ""), Unhealthy("b", "broker down"), Healthy("c", "")},
			want:     LevelUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor()
			for _, status := range tt.statuses {
				m.Set(status.Component, status)
			}
			report := m.Evaluate(context.Background())
			assert.Equal(t, tt.want, report.Level)
			assert.Len(t, report.Components, len(tt.statuses))
		})
	}
}

func TestChecksRunOnEvaluate(t *testing.T) {
	m := NewMonitor()

	calls := 0
	m.Register("pipeline", func(context.Context) Status {
		calls++
		return Healthy("", "running")
	})

	report := m.Evaluate(context.Background())
	require.Len(t, report.Components, 1)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "pipeline", report.Components[0].Component)
	assert.Equal(t, "running", report.Components[0].Message)

	m.Evaluate(context.Background())
	assert.Equal(t, 2, calls)
}

func TestCheckWinsOverPushedStatus(t *testing.T) {
	m := NewMonitor()
	m.Set("broker", Unhealthy("broker", "stale"))
	m.Register("broker", func(context.Context) Status {
		return Healthy("", "connected")
	})

	report := m.Evaluate(context.Background())
	require.Len(t, report.Components, 1)
	assert.Equal(t, LevelHealthy, report.Level)
	assert.Equal(t, "connected", report.Components[0].Message)
}

func TestComponentsSortedAndDeduplicated(t *testing.T) {
	m := NewMonitor()
	m.Set("zeta", Healthy("zeta", ""))
	m.Register("alpha", func(context.Context) Status { return Healthy("", "") })
	m.Register("zeta", func(context.Context) Status { return Healthy("", "") })

	assert.Equal(t, []string{"alpha", "zeta"}, m.Components())

	report := m.Evaluate(context.Background())
	require.Len(t, report.Components, 2)
	assert.Equal(t, "alpha", report.Components[0].Component)
	assert.Equal(t, "zeta", report.Components[1].Component)
}

func TestRemoveDropsComponent(t *testing.T) {
	m := NewMonitor()
	m.Set("device-1", Degraded("device-1", "reconnecting"))
	m.Register("device-1", func(context.Context) Status { return Healthy("", "") })

	m.Remove("device-1")

	assert.Empty(t, m.Components())
	assert.True(t, m.Evaluate(context.Background()).Healthy())
}

func TestStatusDetails(t *testing.T) {
	s := Degraded("pipeline", "log store unavailable").
		WithDetails(map[string]any{"warnings": 3})

	assert.Equal(t, LevelDegraded, s.Level)
	assert.Equal(t, 3, s.Details["warnings"])
	assert.False(t, s.Healthy())
	assert.False(t, s.Timestamp.IsZero())
}
