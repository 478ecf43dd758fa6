// Package clickhouse keeps webshop_events in ClickHouse and pushes the
// pre-purchase medians down into it.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/prometheus/client_golang/prometheus"

	"example.com/webshopsessions/internal/analytics"
	"example.com/webshopsessions/internal/domain"
	"example.com/webshopsessions/internal/telemetry"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS webshop_events (
    id          Int64,
    event_type  LowCardinality(String),
    timestamp   DateTime64(6, 'UTC'),
    customer_id String,
    user_agent  String,
    ip          String,
    query       Nullable(String),
    url         Nullable(String),
    page        Nullable(String),
    referrer    Nullable(String),
    session_id  Int32
) ENGINE = ReplacingMergeTree
ORDER BY (customer_id, id)`

const insertSQL = `
INSERT INTO webshop_events (
    id, event_type, timestamp, customer_id, user_agent, ip, query, url, page, referrer, session_id
)`

// sessionsSQL and firstPurchaseSQL are the building blocks of both medians.
const sessionsSQL = `
SELECT customer_id, session_id,
       min(timestamp) AS session_start,
       dateDiff('microsecond', min(timestamp), max(timestamp)) / 60000000.0 AS duration_minutes
FROM webshop_events FINAL
GROUP BY customer_id, session_id`

const firstPurchaseSQL = `
SELECT customer_id, min(timestamp) AS first_purchase
FROM webshop_events FINAL
WHERE event_type = 'placed_order'
GROUP BY customer_id`

const medianSessionsBeforeOrderSQL = `
SELECT if(count() = 0, NULL, quantileExactInclusive(0.5)(toFloat64(session_count)))
FROM (
    SELECT s.customer_id, count() AS session_count
    FROM (` + sessionsSQL + `) AS s
    INNER JOIN (` + firstPurchaseSQL + `) AS fp ON s.customer_id = fp.customer_id
    WHERE s.session_start < fp.first_purchase
    GROUP BY s.customer_id
)`

const medianDurationBeforeOrderSQL = `
SELECT if(count() = 0, NULL, quantileExactInclusive(0.5)(s.duration_minutes))
FROM (` + sessionsSQL + `) AS s
INNER JOIN (` + firstPurchaseSQL + `) AS fp ON s.customer_id = fp.customer_id
WHERE s.session_start < fp.first_purchase`

const selectEventsSQL = `
SELECT id, event_type, timestamp, customer_id, user_agent, ip, query, url, page, referrer, session_id
FROM webshop_events FINAL`

// Options locate the ClickHouse server.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
}

type Store struct {
	Conn driver.Conn
}

// Connect opens a native-protocol connection and pings it.
func Connect(ctx context.Context, o Options) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{o.Addr},
		Auth: clickhouse.Auth{
			Database: o.Database,
			Username: o.Username,
			Password: o.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "webshop-sessions", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Store{Conn: conn}, nil
}

func (s *Store) Close() {
	if s.Conn != nil {
		s.Conn.Close()
	}
}

func (s *Store) Ready(ctx context.Context) error {
	return s.Conn.Ping(ctx)
}

// EnsureSchema creates webshop_events if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.Conn.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("clickhouse create table: %w", err)
	}
	return nil
}

// DropSchema removes webshop_events.
func (s *Store) DropSchema(ctx context.Context) error {
	if err := s.Conn.Exec(ctx, "DROP TABLE IF EXISTS webshop_events"); err != nil {
		return fmt.Errorf("clickhouse drop table: %w", err)
	}
	return nil
}

func appendArgs(ev *domain.NormalizedEvent) []any {
	return []any{
		ev.ID,
		ev.EventType,
		ev.Timestamp.UTC(),
		ev.CustomerID,
		ev.UserAgent,
		ev.IP,
		ev.Query,
		ev.URL,
		ev.Page,
		ev.Referrer,
		int32(ev.SessionID),
	}
}

// WriteBatch sends events as one native batch.
func (s *Store) WriteBatch(ctx context.Context, events []domain.NormalizedEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	defer observe("insert")()

	batch, err := s.Conn.PrepareBatch(ctx, insertSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	for i := range events {
		if err := batch.Append(appendArgs(&events[i])...); err != nil {
			_ = batch.Abort()
			return 0, fmt.Errorf("append event %d: %w", events[i].ID, err)
		}
	}
	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("failed to send batch: %w", err)
	}
	return int64(len(events)), nil
}

func (s *Store) Truncate(ctx context.Context) error {
	if err := s.Conn.Exec(ctx, "TRUNCATE TABLE IF EXISTS webshop_events"); err != nil {
		return fmt.Errorf("clickhouse truncate: %w", err)
	}
	return nil
}

func observe(query string) func() {
	t := prometheus.NewTimer(telemetry.StoreQueryDuration.WithLabelValues("clickhouse_" + query))
	return func() { t.ObserveDuration() }
}

// PriorPurchaseMetrics computes both medians in ClickHouse. Empty
// populations come back as NULL.
func (s *Store) PriorPurchaseMetrics(ctx context.Context) (analytics.Metrics, error) {
	var m analytics.Metrics

	done := observe("median_sessions_before_order")
	err := s.Conn.QueryRow(ctx, medianSessionsBeforeOrderSQL).Scan(&m.MedianSessionsBeforeFirstOrder)
	done()
	if err != nil {
		return m, fmt.Errorf("median sessions before order: %w", err)
	}

	done = observe("median_duration_before_order")
	err = s.Conn.QueryRow(ctx, medianDurationBeforeOrderSQL).Scan(&m.MedianSessionDurationMinutesBeforeFirstOrder)
	done()
	if err != nil {
		return m, fmt.Errorf("median session duration before order: %w", err)
	}
	return m, nil
}

func (s *Store) Events(ctx context.Context) ([]domain.NormalizedEvent, error) {
	defer observe("events")()
	return s.queryEvents(ctx, selectEventsSQL+" ORDER BY customer_id, timestamp, id")
}

func (s *Store) Preview(ctx context.Context, limit int) ([]domain.NormalizedEvent, error) {
	defer observe("preview")()
	return s.queryEvents(ctx, selectEventsSQL+" ORDER BY id LIMIT ?", limit)
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]domain.NormalizedEvent, error) {
	rows, err := s.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []domain.NormalizedEvent
	for rows.Next() {
		var (
			ev        domain.NormalizedEvent
			sessionID int32
		)
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Timestamp, &ev.CustomerID, &ev.UserAgent, &ev.IP,
			&ev.Query, &ev.URL, &ev.Page, &ev.Referrer, &sessionID); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.SessionID = int(sessionID)
		ev.Timestamp = ev.Timestamp.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}
