package analytics

import (
	"time"

	"example.com/webshopsessions/internal/domain"
)

// The functions in this file evaluate the same statistics the store adapters
// push down as SQL, one relational step per CTE:
//
//	customer_sessions  GROUP BY customer_id, session_id -> min/max(timestamp)
//	first_purchase     WHERE event_type = 'placed_order' GROUP BY customer_id -> min(timestamp)
//	prior_sessions     customer_sessions JOIN first_purchase USING (customer_id)
//	                   WHERE session_start_time < first_purchase_time
//	result             PERCENTILE_CONT(0.5) over COUNT(*) GROUP BY customer_id
//	                   and over every prior session's duration.

type sessionRow struct {
	CustomerID string
	SessionID  int
	Start      time.Time
	End        time.Time
}

type firstPurchaseRow struct {
	CustomerID string
	At         time.Time
}

type groupKey struct {
	customer string
	session  int
}

func customerSessions(events []domain.NormalizedEvent) []sessionRow {
	index := make(map[groupKey]int)
	var rows []sessionRow
	for _, ev := range events {
		k := groupKey{ev.CustomerID, ev.SessionID}
		i, ok := index[k]
		if !ok {
			index[k] = len(rows)
			rows = append(rows, sessionRow{ev.CustomerID, ev.SessionID, ev.Timestamp, ev.Timestamp})
			continue
		}
		if ev.Timestamp.Before(rows[i].Start) {
			rows[i].Start = ev.Timestamp
		}
		if ev.Timestamp.After(rows[i].End) {
			rows[i].End = ev.Timestamp
		}
	}
	return rows
}

func firstPurchase(events []domain.NormalizedEvent) []firstPurchaseRow {
	index := make(map[string]int)
	var rows []firstPurchaseRow
	for _, ev := range events {
		if ev.EventType != domain.EventTypePlacedOrder {
			continue
		}
		i, ok := index[ev.CustomerID]
		if !ok {
			index[ev.CustomerID] = len(rows)
			rows = append(rows, firstPurchaseRow{ev.CustomerID, ev.Timestamp})
			continue
		}
		if ev.Timestamp.Before(rows[i].At) {
			rows[i].At = ev.Timestamp
		}
	}
	return rows
}

// priorSessions is a hash join of sessions against first purchases,
// filtered on session start.
func priorSessions(sessions []sessionRow, purchases []firstPurchaseRow) []sessionRow {
	build := make(map[string]time.Time, len(purchases))
	for _, p := range purchases {
		build[p.CustomerID] = p.At
	}
	var out []sessionRow
	for _, s := range sessions {
		at, ok := build[s.CustomerID]
		if !ok {
			continue
		}
		if s.Start.Before(at) {
			out = append(out, s)
		}
	}
	return out
}

func countPerCustomer(rows []sessionRow) []float64 {
	index := make(map[string]int)
	var counts []float64
	for _, r := range rows {
		i, ok := index[r.CustomerID]
		if !ok {
			index[r.CustomerID] = len(counts)
			counts = append(counts, 0)
			i = len(counts) - 1
		}
		counts[i]++
	}
	return counts
}

func durationMinutes(rows []sessionRow) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		out = append(out, Minutes(r.End.Sub(r.Start)))
	}
	return out
}

// ComputeRelational evaluates the metrics through the relational steps
// above. It must agree exactly with Compute.
func ComputeRelational(events []domain.NormalizedEvent) Metrics {
	prior := priorSessions(customerSessions(events), firstPurchase(events))
	return Metrics{
		MedianSessionsBeforeFirstOrder:               PercentileCont(countPerCustomer(prior), 0.5),
		MedianSessionDurationMinutesBeforeFirstOrder: PercentileCont(durationMinutes(prior), 0.5),
	}
}
