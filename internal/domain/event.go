package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// RawEvent is one record of the web-shop feed, as delivered.
type RawEvent struct {
	ID    int64      `json:"id"`
	Type  string     `json:"type"`
	Event RawPayload `json:"event"`
}

// RawPayload is the nested "event" object of a feed record. Every field
// may be missing; customer-id shows up both as a number and as a string.
type RawPayload struct {
	CustomerID Identifier `json:"customer-id"`
	IP         *string    `json:"ip"`
	Timestamp  string     `json:"timestamp"`
	UserAgent  string     `json:"user-agent"`
	Query      *string    `json:"query,omitempty"`
	URL        *string    `json:"url,omitempty"`
	Page       *string    `json:"page,omitempty"`
	Referrer   *string    `json:"referrer,omitempty"`
}

// Identifier is a nullable id that accepts JSON strings and numbers.
// Numbers keep their literal text so 1234 becomes "1234".
type Identifier struct {
	Value string
	Valid bool
}

func (id *Identifier) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = Identifier{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = Identifier{Value: s, Valid: true}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = Identifier{Value: n.String(), Valid: true}
	return nil
}

func (id Identifier) MarshalJSON() ([]byte, error) {
	if !id.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(id.Value)
}

// NormalizedEvent is the canonical row stored in webshop_events.
// SessionID is zero until the sessionizer assigns it.
type NormalizedEvent struct {
	ID         int64     `json:"id"`
	EventType  string    `json:"event_type"`
	Timestamp  time.Time `json:"timestamp"`
	CustomerID string    `json:"customer_id"`
	UserAgent  string    `json:"user_agent"`
	IP         string    `json:"ip"`
	Query      *string   `json:"query"`
	URL        *string   `json:"url"`
	Page       *string   `json:"page"`
	Referrer   *string   `json:"referrer"`
	SessionID  int       `json:"session_id"`
}

// EventTypePlacedOrder marks a purchase.
const EventTypePlacedOrder = "placed_order"

// Column limits of webshop_events.
const (
	MaxEventTypeLen  = 50
	MaxCustomerIDLen = 255
	MaxIPLen         = 50
)
