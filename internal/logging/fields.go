package logging

import "log/slog"

// Common field names for consistent logging across components.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldError      = "error"
	FieldLine       = "line"
	FieldEventID    = "event_id"
	FieldCustomerID = "customer_id"
	FieldDuration   = "duration_ms"
)

// Component returns a slog attribute naming the emitting component.
func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Line returns a slog attribute for a feed line number.
func Line(n int) slog.Attr {
	return slog.Int(FieldLine, n)
}

// EventID returns a slog attribute for a feed event id.
func EventID(id int64) slog.Attr {
	return slog.Int64(FieldEventID, id)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}
