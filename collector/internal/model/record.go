// Package model defines the normalized telemetry record set shared by the
// collector's receiver, pipeline, and exporter.
package model

import "time"

// Signal identifies the telemetry signal type of a record or batch.
type Signal string

const (
	SignalTraces  Signal = "traces"
	SignalLogs    Signal = "logs"
	SignalMetrics Signal = "metrics"
)

// Signals lists every signal type, in the order pipelines are built.
func Signals() []Signal {
	return []Signal{SignalTraces, SignalLogs, SignalMetrics}
}

// Span is the trace payload of a record: one traced operation with
// start/duration and parent linkage.
type Span struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Name         string
	Start        time.Time
	Duration     time.Duration
	StatusCode   int32
	StatusText   string
}

// Log is the log payload of a record.
type Log struct {
	Severity     int32
	SeverityText string
	Body         string
}

// Metric is the metric payload of a record: a single numeric point.
type Metric struct {
	Name  string
	Value float64
	Unit  string
}

// Record is one normalized telemetry record. Exactly one of Span, Log, or
// Metric is set, matching Signal. Records are immutable once decoded; stages
// that add attributes or labels operate copy-on-write so concurrently held
// references never observe a mutation.
type Record struct {
	Signal     Signal
	Timestamp  time.Time
	Resource   map[string]any
	Attributes map[string]any

	// Labels is the indexed-label map produced by the label-promotion stage.
	// The log sink indexes streams by label, not by record content.
	Labels map[string]string

	Span   *Span
	Log    *Log
	Metric *Metric
}

// WithResource returns a copy of the record with the extra resource
// attributes added. Existing attributes are never overwritten.
func (r Record) WithResource(extra map[string]any) Record {
	if len(extra) == 0 {
		return r
	}
	res := make(map[string]any, len(r.Resource)+len(extra))
	for k, v := range r.Resource {
		res[k] = v
	}
	for k, v := range extra {
		if _, exists := res[k]; !exists {
			res[k] = v
		}
	}
	r.Resource = res
	return r
}

// WithLabels returns a copy of the record carrying the given indexed labels.
func (r Record) WithLabels(labels map[string]string) Record {
	r.Labels = labels
	return r
}
