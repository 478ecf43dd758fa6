// Package analytics computes the pre-purchase session statistics and the
// exploratory distributions over sessionized events.
package analytics

import (
	"math"
	"time"

	"example.com/webshopsessions/internal/domain"
)

// Metrics are the two population statistics served by /metrics/orders.
// A nil field means no customer qualified.
type Metrics struct {
	MedianSessionsBeforeFirstOrder               *float64 `json:"median_visits_before_order"`
	MedianSessionDurationMinutesBeforeFirstOrder *float64 `json:"median_session_duration_minutes_before_order"`
}

// Equal reports whether both statistics are identical, nil included.
func (m Metrics) Equal(o Metrics) bool {
	return sameValue(m.MedianSessionsBeforeFirstOrder, o.MedianSessionsBeforeFirstOrder) &&
		sameValue(m.MedianSessionDurationMinutesBeforeFirstOrder, o.MedianSessionDurationMinutesBeforeFirstOrder)
}

func sameValue(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Within is Equal with an absolute tolerance. Values computed by a
// database can differ from in-process ones in the last bits.
func (m Metrics) Within(o Metrics, tol float64) bool {
	return closeValue(m.MedianSessionsBeforeFirstOrder, o.MedianSessionsBeforeFirstOrder, tol) &&
		closeValue(m.MedianSessionDurationMinutesBeforeFirstOrder, o.MedianSessionDurationMinutesBeforeFirstOrder, tol)
}

func closeValue(a, b *float64, tol float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) <= tol
}

// Minutes converts a session length to fractional minutes, the unit of
// session_duration_minutes.
func Minutes(d time.Duration) float64 {
	return d.Seconds() / 60
}

type span struct {
	start, end time.Time
}

type customerActivity struct {
	sessions      map[int]*span
	firstPurchase time.Time
	purchased     bool
}

// Compute derives the metrics in a single pass per customer. A session is
// prior when its start is strictly before the customer's first placed_order.
func Compute(events []domain.NormalizedEvent) Metrics {
	customers := make(map[string]*customerActivity)
	for _, ev := range events {
		c, ok := customers[ev.CustomerID]
		if !ok {
			c = &customerActivity{sessions: make(map[int]*span)}
			customers[ev.CustomerID] = c
		}

		if s, ok := c.sessions[ev.SessionID]; ok {
			if ev.Timestamp.Before(s.start) {
				s.start = ev.Timestamp
			}
			if ev.Timestamp.After(s.end) {
				s.end = ev.Timestamp
			}
		} else {
			c.sessions[ev.SessionID] = &span{start: ev.Timestamp, end: ev.Timestamp}
		}

		if ev.EventType == domain.EventTypePlacedOrder {
			if !c.purchased || ev.Timestamp.Before(c.firstPurchase) {
				c.firstPurchase = ev.Timestamp
				c.purchased = true
			}
		}
	}

	var counts, durations []float64
	for _, c := range customers {
		if !c.purchased {
			continue
		}
		prior := 0
		for _, s := range c.sessions {
			if s.start.Before(c.firstPurchase) {
				prior++
				durations = append(durations, Minutes(s.end.Sub(s.start)))
			}
		}
		if prior > 0 {
			counts = append(counts, float64(prior))
		}
	}

	return Metrics{
		MedianSessionsBeforeFirstOrder:               Median(counts),
		MedianSessionDurationMinutesBeforeFirstOrder: Median(durations),
	}
}
