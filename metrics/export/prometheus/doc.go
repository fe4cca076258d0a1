// Package prometheus renders client metrics in Prometheus text exposition
// format.
//
// Counters are named goicloud_*_total and the round-trip histogram is
// goicloud_request_latency_seconds. Nothing is registered globally; callers
// mount [PrometheusExporter.Handler] where they like.
package prometheus
