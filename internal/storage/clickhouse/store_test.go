package clickhouse

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"example.com/webshopsessions/internal/domain"
)

func TestAppendArgs(t *testing.T) {
	ref := "https://example.com"
	ts := time.Date(2022, 4, 28, 7, 38, 46, 290271000, time.UTC)
	ev := domain.NormalizedEvent{
		ID: 9, EventType: "page_view", Timestamp: ts, CustomerID: "12",
		UserAgent: "curl", IP: "10.1.1.1", Referrer: &ref, SessionID: 4,
	}

	args := appendArgs(&ev)
	assert.Len(t, args, 11)
	assert.Equal(t, int64(9), args[0])
	assert.Equal(t, ts, args[2])
	assert.Nil(t, args[6].(*string))
	assert.Equal(t, &ref, args[9])
	assert.Equal(t, int32(4), args[10])
}

func TestInsertColumnsMatchTable(t *testing.T) {
	for _, col := range []string{
		"id", "event_type", "timestamp", "customer_id", "user_agent",
		"ip", "query", "url", "page", "referrer", "session_id",
	} {
		assert.Contains(t, insertSQL, col)
		assert.Contains(t, createTableSQL, col)
	}
}

func TestMedianQueries(t *testing.T) {
	for _, q := range []string{medianSessionsBeforeOrderSQL, medianDurationBeforeOrderSQL} {
		assert.Contains(t, q, "quantileExactInclusive(0.5)")
		assert.Contains(t, q, "if(count() = 0, NULL")
		assert.Contains(t, q, "s.session_start < fp.first_purchase")
		assert.Equal(t, 2, strings.Count(q, "FROM webshop_events FINAL"))
	}
}

func TestTableKeyExcludesSessionID(t *testing.T) {
	// session ids change with the timeout; the key must identify the event only
	assert.Contains(t, createTableSQL, "ORDER BY (customer_id, id)")
	assert.NotContains(t, createTableSQL, "session_id, id)")
}
