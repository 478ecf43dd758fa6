package domain

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 feed timestamp into a UTC instant.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrBadTimestamp)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

// Normalize maps a raw feed record onto the canonical event.
// Records without customer-id or ip return an *ExclusionError; an
// unparseable timestamp or an oversized column returns a parse fault.
func Normalize(raw RawEvent) (NormalizedEvent, error) {
	p := &raw.Event
	if missing := checkIdentity(p); len(missing) > 0 {
		return NormalizedEvent{}, &ExclusionError{Fields: missing}
	}

	ts, err := ParseTimestamp(p.Timestamp)
	if err != nil {
		return NormalizedEvent{}, err
	}

	ev := NormalizedEvent{
		ID:         raw.ID,
		EventType:  raw.Type,
		Timestamp:  ts,
		CustomerID: p.CustomerID.Value,
		UserAgent:  p.UserAgent,
		IP:         *p.IP,
		Query:      p.Query,
		URL:        p.URL,
		Page:       p.Page,
		Referrer:   p.Referrer,
	}
	if errs := checkLimits(&ev); len(errs) > 0 {
		return NormalizedEvent{}, &InvalidError{Fields: errs}
	}
	return ev, nil
}
