package sessionize

import (
	"slices"
	"strings"
	"time"

	"example.com/webshopsessions/internal/domain"
)

// Session is the grouping view over events sharing (customer, session id).
type Session struct {
	CustomerID string    `json:"customer_id"`
	ID         int       `json:"session_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Events     int       `json:"events"`
}

// Duration is End - Start; zero for single-event sessions.
func (s Session) Duration() time.Duration { return s.End.Sub(s.Start) }

type sessionKey struct {
	customer string
	id       int
}

// Sessions derives the sessions of sessionized events, ordered by customer
// then session id. Input order does not matter.
func Sessions(events []domain.NormalizedEvent) []Session {
	byKey := make(map[sessionKey]*Session)
	for _, ev := range events {
		k := sessionKey{ev.CustomerID, ev.SessionID}
		s, ok := byKey[k]
		if !ok {
			byKey[k] = &Session{
				CustomerID: ev.CustomerID,
				ID:         ev.SessionID,
				Start:      ev.Timestamp,
				End:        ev.Timestamp,
				Events:     1,
			}
			continue
		}
		if ev.Timestamp.Before(s.Start) {
			s.Start = ev.Timestamp
		}
		if ev.Timestamp.After(s.End) {
			s.End = ev.Timestamp
		}
		s.Events++
	}

	out := make([]Session, 0, len(byKey))
	for _, s := range byKey {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b Session) int {
		if c := strings.Compare(a.CustomerID, b.CustomerID); c != 0 {
			return c
		}
		return a.ID - b.ID
	})
	return out
}
