package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/webshopsessions/internal/domain"
)

const tableName = "webshop_events"

// columns is the COPY column order of webshop_events.
var columns = []string{
	"id", "event_type", "timestamp", "customer_id", "user_agent",
	"ip", "query", "url", "page", "referrer", "session_id",
}

// rowValues lays an event out in column order. Absent optionals become
// nil, which COPY sends as NULL.
func rowValues(ev *domain.NormalizedEvent) []any {
	return []any{
		ev.ID,
		ev.EventType,
		ev.Timestamp.UTC(),
		ev.CustomerID,
		ev.UserAgent,
		ev.IP,
		optional(ev.Query),
		optional(ev.URL),
		optional(ev.Page),
		optional(ev.Referrer),
		ev.SessionID,
	}
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// WriteBatch bulk-loads events with COPY. A duplicate id fails the whole
// batch; the feed reader drops duplicates before they get here.
func (db *DB) WriteBatch(ctx context.Context, events []domain.NormalizedEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	defer observe("copy")()

	n, err := db.Pool.CopyFrom(ctx,
		pgx.Identifier{tableName},
		columns,
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			return rowValues(&events[i]), nil
		}),
	)
	if err != nil {
		return n, fmt.Errorf("copy %s: %w", tableName, err)
	}
	return n, nil
}

// Truncate empties webshop_events.
func (db *DB) Truncate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, "TRUNCATE TABLE "+tableName); err != nil {
		return fmt.Errorf("truncate %s: %w", tableName, err)
	}
	return nil
}
