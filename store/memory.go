package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/CalebLauder/rakan-backend/errors"
	"github.com/CalebLauder/rakan-backend/event"
)

// MemoryStateStore is an in-process StateStore used in tests and
// single-node simulation runs.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]*event.DeviceState
}

// NewMemoryStateStore creates an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]*event.DeviceState)}
}

// Get returns the stored state for deviceID.
func (s *MemoryStateStore) Get(_ context.Context, deviceID string) (*event.DeviceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[deviceID]
	if !ok {
		return nil, errors.WrapTransient(errors.ErrKeyNotFound, "MemoryStateStore", "Get", deviceID)
	}
	copied := *state
	return &copied, nil
}

// Put overwrites the state for state.DeviceID.
func (s *MemoryStateStore) Put(_ context.Context, state *event.DeviceState) error {
	if state == nil || state.DeviceID == "" {
		return errors.WrapInvalid(errors.ErrMissingDeviceID, "MemoryStateStore", "Put", "validate state")
	}

	copied := *state
	s.mu.Lock()
	s.states[state.DeviceID] = &copied
	s.mu.Unlock()
	return nil
}

// List returns every stored device state, ordered by device id.
func (s *MemoryStateStore) List(_ context.Context) ([]*event.DeviceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*event.DeviceState, 0, len(s.states))
	for _, state := range s.states {
		copied := *state
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

// MemoryLogStore is an in-process LogStore with a bounded ring of entries.
type MemoryLogStore struct {
	mu      sync.RWMutex
	entries []*event.LogEntry
	maxSize int
}

// NewMemoryLogStore creates a log store retaining up to maxSize entries.
// A non-positive maxSize keeps everything.
func NewMemoryLogStore(maxSize int) *MemoryLogStore {
	return &MemoryLogStore{maxSize: maxSize}
}

// Append adds entry to the log, generating a log id when unset.
func (s *MemoryLogStore) Append(_ context.Context, entry *event.LogEntry) (string, error) {
	if entry == nil {
		return "", errors.WrapInvalid(errors.ErrLogUnavailable, "MemoryLogStore", "Append", "validate entry")
	}

	copied := *entry
	if copied.LogID == "" {
		copied.LogID = uuid.NewString()
	}
	s.mu.Lock()
	s.entries = append(s.entries, &copied)
	if s.maxSize > 0 && len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}
	s.mu.Unlock()
	return copied.LogID, nil
}

// Recent returns up to limit entries, newest first.
func (s *MemoryLogStore) Recent(_ context.Context, limit int) ([]*event.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.entries)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]*event.LogEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		copied := *s.entries[i]
		out = append(out, &copied)
	}
	return out, nil
}

// Len returns the number of retained entries.
func (s *MemoryLogStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
