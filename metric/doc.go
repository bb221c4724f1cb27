// Package metric manages Prometheus metrics for the event system: a
// shared registry with per-component namespacing, core platform metrics
// (events, commands, broker connection), and the /metrics HTTP server.
//
// Components register their own collectors through MetricsRegistrar using
// a component-qualified key, so two components can use the same metric
// name without colliding at the registry level.
package metric
