// Package device implements simulated device endpoints: a shared Endpoint
// lifecycle (connect, subscribe, periodic work cycle, command dispatch)
// and concrete behaviors for smart switches, motion sensors and
// temperature sensors.
//
// An Endpoint owns one transport connection and one local state mapping.
// The work cycle and the inbound command handler run concurrently; the
// endpoint serializes all behavior access behind a single mutex, so
// behaviors themselves stay lock-free.
package device
