// Package otel publishes client metrics through an OpenTelemetry Meter.
//
// Each counter becomes an Int64ObservableCounter. The latency histogram is
// exposed as one Int64ObservableGauge per cumulative bucket plus a count
// gauge. A single callback reads the client snapshot per collection; the
// MeterProvider stays owned by the caller.
package otel
