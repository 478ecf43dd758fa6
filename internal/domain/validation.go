package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrExcluded marks a record filtered out for missing identity fields.
	// It is not a failure.
	ErrExcluded = errors.New("record excluded")
	// ErrInvalid marks a record that cannot be normalized (parse fault).
	ErrInvalid = errors.New("invalid record")
	// ErrBadTimestamp is a parse fault on the timestamp field.
	ErrBadTimestamp = fmt.Errorf("%w: bad timestamp", ErrInvalid)
)

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// ExclusionError lists the identity fields a record was missing.
type ExclusionError struct {
	Fields []FieldError
}

func (e *ExclusionError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "record excluded: " + strings.Join(parts, "; ")
}

func (e *ExclusionError) Unwrap() error { return ErrExcluded }

// InvalidError lists the fields that could not be normalized.
type InvalidError struct {
	Fields []FieldError
}

func (e *InvalidError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "invalid record: " + strings.Join(parts, "; ")
}

func (e *InvalidError) Unwrap() error { return ErrInvalid }

// checkIdentity reports the missing identity fields of a raw payload.
func checkIdentity(p *RawPayload) []FieldError {
	var errs []FieldError
	if !p.CustomerID.Valid {
		errs = append(errs, FieldError{"event.customer-id", "required"})
	}
	if p.IP == nil {
		errs = append(errs, FieldError{"event.ip", "required"})
	}
	return errs
}

// checkLimits enforces the column widths of webshop_events, in characters.
func checkLimits(ev *NormalizedEvent) []FieldError {
	var errs []FieldError
	if utf8.RuneCountInString(ev.EventType) > MaxEventTypeLen {
		errs = append(errs, FieldError{"type", fmt.Sprintf("max length %d", MaxEventTypeLen)})
	}
	if utf8.RuneCountInString(ev.CustomerID) > MaxCustomerIDLen {
		errs = append(errs, FieldError{"event.customer-id", fmt.Sprintf("max length %d", MaxCustomerIDLen)})
	}
	if utf8.RuneCountInString(ev.IP) > MaxIPLen {
		errs = append(errs, FieldError{"event.ip", fmt.Sprintf("max length %d", MaxIPLen)})
	}
	return errs
}
