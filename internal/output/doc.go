// Package output renders a reconstructed schedule.
//
// Three exporters implement Exporter:
//   - TextFormatter: a per-task table for terminals
//   - JSONFormatter: a stable JSON document for external renderers
//   - OTELFormatter: OpenTelemetry spans, one per task and one per busy
//     interval under a root span, with markers as span events
//
// Formatters do no reconstruction of their own. Custom attribute evaluation
// is delegated to the attributes package and tick to wall-clock conversion
// to timesync.
package output
