package health

import (
	"context"
	"sort"
	"sync"

	"github.com/CalebLauder/rakan-backend/pkg/timestamp"
)

// Check probes one component on demand. Checks must be fast and must not
// block on the component they probe.
type Check func(ctx context.Context) Status

// Monitor combines pull-based checks with pushed statuses. Components that
// expose a snapshot register a Check; components that only learn their
// state from callbacks push with Set.
type Monitor struct {
	mu       sync.RWMutex
	checks   map[string]Check
	statuses map[string]Status
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		checks:   make(map[string]Check),
		statuses: make(map[string]Status),
	}
}

// Register adds a pull-based check under name, replacing any previous one.
func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Set pushes a status for name, replacing any previous pushed status.
func (m *Monitor) Set(name string, status Status) {
	status.Component = name
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[name] = status
}

// Remove drops both the check and the pushed status for name.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checks, name)
	delete(m.statuses, name)
}

// Components returns the sorted names of everything monitored.
func (m *Monitor) Components() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{}, len(m.checks)+len(m.statuses))
	for name := range m.checks {
		seen[name] = struct{}{}
	}
	for name := range m.statuses {
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate runs every check, merges pushed statuses and aggregates. A
// check result wins over a pushed status of the same name. An empty
// monitor reports healthy.
func (m *Monitor) Evaluate(ctx context.Context) Report {
	m.mu.RLock()
	checks := make(map[string]Check, len(m.checks))
	for name, check := range m.checks {
		checks[name] = check
	}
	statuses := make(map[string]Status, len(m.statuses))
	for name, status := range m.statuses {
		statuses[name] = status
	}
	m.mu.RUnlock()

	merged := make(map[string]Status, len(checks)+len(statuses))
	for name, status := range statuses {
		merged[name] = status
	}
	for name, check := range checks {
		status := check(ctx)
		status.Component = name
		merged[name] = status
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	report := Report{Level: LevelHealthy, Timestamp: timestamp.Now()}
	report.Components = make([]Status, 0, len(names))
	for _, name := range names {
		status := merged[name]
		report.Components = append(report.Components, status)
		if worse(report.Level, status.Level) {
			report.Level = status.Level
		}
	}
	return report
}
