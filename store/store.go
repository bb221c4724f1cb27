// Package store holds the persistence contracts for device state and the
// append-only processing log, with NATS JetStream, Redis, and in-memory
// implementations. State writes are last-writer-wins; log appends are
// independent of state writes, so a crash between the two can leave a log
// entry without a matching state update.
package store

import (
	"context"

	"github.com/CalebLauder/rakan-backend/event"
)

// StateStore persists the latest known state per device. Put overwrites
// unconditionally; readers may observe any previously written version but
// never a partial one.
type StateStore interface {
	// Get returns the state for deviceID, or errors.ErrKeyNotFound when
	// the device has never been written.
	Get(ctx context.Context, deviceID string) (*event.DeviceState, error)

	// Put stores state under state.DeviceID, replacing any prior value.
	Put(ctx context.Context, state *event.DeviceState) error

	// List returns the state of every known device.
	List(ctx context.Context) ([]*event.DeviceState, error)
}

// LogStore is the append-only record of processed events. Entries are
// immutable once appended.
type LogStore interface {
	// Append adds entry to the log and returns its log id. A missing
	// LogID is generated by the store.
	Append(ctx context.Context, entry *event.LogEntry) (string, error)

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]*event.LogEntry, error)
}
