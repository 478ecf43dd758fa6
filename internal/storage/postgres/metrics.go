package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"

	"example.com/webshopsessions/internal/analytics"
	"example.com/webshopsessions/internal/domain"
	"example.com/webshopsessions/internal/telemetry"
)

const medianSessionsBeforeOrderSQL = `
WITH customer_sessions AS (
    SELECT customer_id, session_id, MIN(timestamp) AS session_start_time
    FROM webshop_events
    GROUP BY customer_id, session_id
),
first_purchase AS (
    SELECT customer_id, MIN(timestamp) AS first_purchase_time
    FROM webshop_events
    WHERE event_type = 'placed_order'
    GROUP BY customer_id
),
sessions_before_purchase AS (
    SELECT cs.customer_id, COUNT(cs.session_id) AS session_count
    FROM customer_sessions cs
    JOIN first_purchase fp ON cs.customer_id = fp.customer_id
    WHERE cs.session_start_time < fp.first_purchase_time
    GROUP BY cs.customer_id
)
SELECT (PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY session_count))::double precision
FROM sessions_before_purchase`

const medianDurationBeforeOrderSQL = `
WITH session_durations AS (
    SELECT customer_id, session_id,
           MIN(timestamp) AS session_start_time,
           EXTRACT(EPOCH FROM (MAX(timestamp) - MIN(timestamp)))::double precision / 60 AS session_duration_minutes
    FROM webshop_events
    GROUP BY customer_id, session_id
),
first_purchase AS (
    SELECT customer_id, MIN(timestamp) AS first_purchase_time
    FROM webshop_events
    WHERE event_type = 'placed_order'
    GROUP BY customer_id
),
durations_before_purchase AS (
    SELECT sd.session_duration_minutes
    FROM session_durations sd
    JOIN first_purchase fp ON sd.customer_id = fp.customer_id
    WHERE sd.session_start_time < fp.first_purchase_time
)
SELECT (PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY session_duration_minutes))::double precision
FROM durations_before_purchase`

const selectEventsSQL = `
SELECT id, event_type, timestamp, customer_id, user_agent, ip, query, url, page, referrer, session_id
FROM webshop_events`

func observe(query string) func() {
	t := prometheus.NewTimer(telemetry.StoreQueryDuration.WithLabelValues(query))
	return func() { t.ObserveDuration() }
}

// PriorPurchaseMetrics runs both medians inside the database. An empty
// population comes back as SQL NULL and stays nil.
func (db *DB) PriorPurchaseMetrics(ctx context.Context) (analytics.Metrics, error) {
	var m analytics.Metrics

	done := observe("median_sessions_before_order")
	err := db.Pool.QueryRow(ctx, medianSessionsBeforeOrderSQL).Scan(&m.MedianSessionsBeforeFirstOrder)
	done()
	if err != nil {
		return m, fmt.Errorf("median sessions before order: %w", err)
	}

	done = observe("median_duration_before_order")
	err = db.Pool.QueryRow(ctx, medianDurationBeforeOrderSQL).Scan(&m.MedianSessionDurationMinutesBeforeFirstOrder)
	done()
	if err != nil {
		return m, fmt.Errorf("median session duration before order: %w", err)
	}
	return m, nil
}

// Events reads every stored row back, ordered by customer and time.
func (db *DB) Events(ctx context.Context) ([]domain.NormalizedEvent, error) {
	defer observe("events")()
	return db.queryEvents(ctx, selectEventsSQL+" ORDER BY customer_id, timestamp, id")
}

// Preview returns the first limit rows by id.
func (db *DB) Preview(ctx context.Context, limit int) ([]domain.NormalizedEvent, error) {
	defer observe("preview")()
	return db.queryEvents(ctx, selectEventsSQL+" ORDER BY id LIMIT $1", limit)
}

func (db *DB) queryEvents(ctx context.Context, sql string, args ...any) ([]domain.NormalizedEvent, error) {
	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return out, nil
}

func scanEvent(row pgx.CollectableRow) (domain.NormalizedEvent, error) {
	var ev domain.NormalizedEvent
	var eventType, customer, ua, ip *string
	var sessionID *int32
	err := row.Scan(&ev.ID, &eventType, &ev.Timestamp, &customer, &ua, &ip,
		&ev.Query, &ev.URL, &ev.Page, &ev.Referrer, &sessionID)
	if err != nil {
		return ev, err
	}
	ev.EventType = deref(eventType)
	ev.CustomerID = deref(customer)
	ev.UserAgent = deref(ua)
	ev.IP = deref(ip)
	if sessionID != nil {
		ev.SessionID = int(*sessionID)
	}
	ev.Timestamp = ev.Timestamp.UTC()
	return ev, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
