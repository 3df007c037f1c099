package logging

import "log/slog"

// Common field names for consistent logging across services.
const (
	FieldService    = "service"
	FieldSignal     = "signal"
	FieldSink       = "sink"
	FieldUpstream   = "upstream"
	FieldDependency = "dependency"
	FieldStage      = "stage"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldRecords    = "records"
	FieldBytes      = "bytes"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Signal returns a slog attribute for the telemetry signal type.
func Signal(signal string) slog.Attr {
	return slog.String(FieldSignal, signal)
}

// Sink returns a slog attribute for an export sink name.
func Sink(name string) slog.Attr {
	return slog.String(FieldSink, name)
}

// Upstream returns a slog attribute for a proxied upstream name.
func Upstream(name string) slog.Attr {
	return slog.String(FieldUpstream, name)
}

// Dependency returns a slog attribute for a monitored dependency name.
func Dependency(name string) slog.Attr {
	return slog.String(FieldDependency, name)
}

// Stage returns a slog attribute for a pipeline stage name.
func Stage(name string) slog.Attr {
	return slog.String(FieldStage, name)
}

// Err returns a slog attribute for an error value.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// Records returns a slog attribute for a record count.
func Records(n int) slog.Attr {
	return slog.Int(FieldRecords, n)
}

// Bytes returns a slog attribute for a byte count.
func Bytes(n int64) slog.Attr {
	return slog.Int64(FieldBytes, n)
}
