// Package event defines the data model shared by the pipeline and its
// collaborators: inbound device Events, resolved Decisions, wire-level
// Commands, durable DeviceState and append-only LogEntries.
//
// All wire serialization is canonical JSON with the keys deviceId, action,
// value, reason and timestamp. Timestamps are RFC3339 UTC on output and
// lenient on input (see pkg/timestamp). Sensor readings always live under
// the event's "data" map; Normalize re-nests readings that older device
// firmware emitted at the top level.
package event
