// Package observability wires Prometheus metrics and OpenTelemetry tracing
// into NetFleet.
//
// Metrics satisfies the orchestrator's metrics hook and wraps the HTTP
// router; InitTracing installs the global tracer provider.
package observability
