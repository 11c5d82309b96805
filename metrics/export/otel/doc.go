// Package otel publishes engine metrics through OpenTelemetry observable
// instruments.
//
// [NewExporter] registers one Int64ObservableCounter per flow counter. Code
// delivery latency is reported as a cumulative bucket gauge carrying an le
// attribute plus a sample counter. Dropped audit events are split by the
// event_type attribute, so a lost code_delivery_failed record stands apart
// from routine login noise. A single callback reads the engine snapshot on
// each collection cycle.
//
// Callers own the MeterProvider and pass a Meter in.
package otel
