// Package health tracks the liveness of the system's moving parts: the
// broker connection, the event pipeline and each device endpoint. The
// gateway serves the aggregate from its health route.
package health

import (
	"time"

	"github.com/CalebLauder/rakan-backend/pkg/timestamp"
)

// Level is a component health level.
type Level string

// Health levels, ordered from best to worst.
const (
	LevelHealthy   Level = "healthy"
	LevelDegraded  Level = "degraded"
	LevelUnhealthy Level = "unhealthy"
)

// worse reports whether b outranks a in severity.
func worse(a, b Level) bool {
	rank := map[Level]int{LevelHealthy: 0, LevelDegraded: 1, LevelUnhealthy: 2}
	return rank[b] > rank[a]
}

// Status is the health of one component at a point in time.
type Status struct {
	Component string         `json:"component"`
	Level     Level          `json:"level"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Healthy reports whether the status is at the healthy level.
func (s Status) Healthy() bool {
	return s.Level == LevelHealthy
}

// Healthy builds a healthy status for component.
func Healthy(component, message string) Status {
	return Status{Component: component, Level: LevelHealthy, Message: message, Timestamp: timestamp.Now()}
}

// Degraded builds a degraded status for component.
func Degraded(component, message string) Status {
	return Status{Component: component, Level: LevelDegraded, Message: message, Timestamp: timestamp.Now()}
}

// Unhealthy builds an unhealthy status for component.
func Unhealthy(component, message string) Status {
	return Status{Component: component, Level: LevelUnhealthy, Message: message, Timestamp: timestamp.Now()}
}

// WithDetails attaches diagnostic fields and returns the copy.
func (s Status) WithDetails(details map[string]any) Status {
	s.Details = details
	return s
}

// Report is the aggregate served over HTTP.
type Report struct {
	Level      Level     `json:"level"`
	Timestamp  time.Time `json:"timestamp"`
	Components []Status  `json:"components"`
}

// Healthy reports whether every component is healthy.
func (r Report) Healthy() bool {
	return r.Level == LevelHealthy
}
