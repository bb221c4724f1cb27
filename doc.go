// Package rakan is a smart-home event processing backend.
//
// Sensor events arrive on a shared broker subject, flow through a
// pipeline that resolves each one into a decision (with a guaranteed
// fallback when the decision source is unavailable), and leave as
// best-effort commands addressed to individual devices. Every
// invocation updates a last-writer-wins state store and appends to an
// independent processing log.
//
// The main packages:
//
//   - event: the data model and canonical JSON wire codec
//   - decision: the threshold policy, decision sources and the resolver
//   - pipeline: the orchestrator subscribed to the events subject
//   - publisher: best-effort command publishing
//   - store: state and log persistence (NATS KV / JetStream, Redis, memory)
//   - device: simulated device endpoints with their own lifecycle
//   - transport: the broker abstraction with NATS and MQTT bindings
//   - gateway: the HTTP API and WebSocket live feed
//
// Delivery is at-least-once end to end; consumers tolerate duplicates.
// No transaction spans the command publish, the state write and the log
// append.
package rakan
