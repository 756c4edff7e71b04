// Package telemetry provides OpenTelemetry instrumentation for store operations.
//
// Instruments are created once from a configured Meter and reused for the
// lifetime of the engagement. When no meter or tracer is configured, every
// recording call is a no-op: observability never breaks the import or
// review flow.
package telemetry
