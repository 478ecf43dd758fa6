package domain_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/webshopsessions/internal/domain"
)

func decode(t *testing.T, line string) domain.RawEvent {
	t.Helper()
	var raw domain.RawEvent
	require.NoError(t, json.Unmarshal([]byte(line), &raw))
	return raw
}

func TestNormalize_SearchEvent(t *testing.T) {
	raw := decode(t, `{"id": 463469, "type": "search", "event": {"user-agent": "Mozilla/5.0", "ip": "200.15.173.55", "customer-id": 1234, "timestamp": "2022-04-28T07:38:46.290271", "query": "Synchronized didactic task-force"}}`)

	ev, err := domain.Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, int64(463469), ev.ID)
	assert.Equal(t, "search", ev.EventType)
	assert.Equal(t, "1234", ev.CustomerID)
	assert.Equal(t, "200.15.173.55", ev.IP)
	assert.Equal(t, "Mozilla/5.0", ev.UserAgent)
	assert.Equal(t, time.Date(2022, 4, 28, 7, 38, 46, 290271000, time.UTC), ev.Timestamp)
	require.NotNil(t, ev.Query)
	assert.Equal(t, "Synchronized didactic task-force", *ev.Query)
	assert.Nil(t, ev.Page)
	assert.Nil(t, ev.Referrer)
	assert.Nil(t, ev.URL)
	assert.Zero(t, ev.SessionID)
}

func TestNormalize_PageView(t *testing.T) {
	raw := decode(t, `{"id": 452437, "type": "page_view", "event": {"user-agent": "Mozilla/5.0", "ip": "121.225.65.59", "customer-id": "5678", "timestamp": "2022-04-28T07:17:46.290271", "page": "https://xcc-webshop.com/cart", "referrer": "https://google.com"}}`)

	ev, err := domain.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "5678", ev.CustomerID)
	require.NotNil(t, ev.Page)
	assert.Equal(t, "https://xcc-webshop.com/cart", *ev.Page)
	require.NotNil(t, ev.Referrer)
	assert.Nil(t, ev.Query)
}

func TestNormalize_Exclusion(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		fields []string
	}{
		{
			name:   "null customer id",
			line:   `{"id": 1, "type": "page_view", "event": {"ip": "1.2.3.4", "customer-id": null, "timestamp": "2022-04-28T07:17:46"}}`,
			fields: []string{"event.customer-id"},
		},
		{
			name:   "missing ip",
			line:   `{"id": 2, "type": "page_view", "event": {"customer-id": 9, "timestamp": "2022-04-28T07:17:46"}}`,
			fields: []string{"event.ip"},
		},
		{
			name:   "both missing",
			line:   `{"id": 3, "type": "page_view", "event": {"timestamp": "2022-04-28T07:17:46"}}`,
			fields: []string{"event.customer-id", "event.ip"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.Normalize(decode(t, tt.line))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrExcluded))
			assert.False(t, errors.Is(err, domain.ErrInvalid))

			var ex *domain.ExclusionError
			require.True(t, errors.As(err, &ex))
			var got []string
			for _, f := range ex.Fields {
				got = append(got, f.Field)
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestNormalize_EmptyIdentityIsKept(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		customer string
		ip       string
	}{
		{
			name: "empty customer id string",
			line: `{"id": 4, "type": "page_view", "event": {"ip": "1.2.3.4", "customer-id": "", "timestamp": "2022-04-28T07:17:46"}}`,
			ip:   "1.2.3.4",
		},
		{
			name:     "empty ip",
			line:     `{"id": 5, "type": "page_view", "event": {"ip": "", "customer-id": 9, "timestamp": "2022-04-28T07:17:46"}}`,
			customer: "9",
		},
		{
			name:     "blank ip",
			line:     `{"id": 6, "type": "page_view", "event": {"ip": "  ", "customer-id": 9, "timestamp": "2022-04-28T07:17:46"}}`,
			customer: "9",
			ip:       "  ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := domain.Normalize(decode(t, tt.line))
			require.NoError(t, err)
			assert.Equal(t, tt.customer, ev.CustomerID)
			assert.Equal(t, tt.ip, ev.IP)
		})
	}
}

func TestNormalize_BadTimestamp(t *testing.T) {
	raw := decode(t, `{"id": 7, "type": "search", "event": {"ip": "1.2.3.4", "customer-id": 1, "timestamp": "yesterday"}}`)
	_, err := domain.Normalize(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadTimestamp))
	assert.True(t, errors.Is(err, domain.ErrInvalid))
	assert.False(t, errors.Is(err, domain.ErrExcluded))
}

func TestNormalize_ColumnLimits(t *testing.T) {
	raw := domain.RawEvent{
		ID:   8,
		Type: "this_event_type_is_definitely_longer_than_fifty_characters",
		Event: domain.RawPayload{
			CustomerID: domain.Identifier{Value: "c", Valid: true},
			IP:         ptr("10.0.0.1"),
			Timestamp:  "2022-04-28T07:17:46Z",
		},
	}
	_, err := domain.Normalize(raw)
	var inv *domain.InvalidError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "type", inv.Fields[0].Field)
}

func TestNormalize_ColumnLimitsCountCharacters(t *testing.T) {
	// 50 two-byte characters: 100 bytes, but fits VARCHAR(50)
	raw := domain.RawEvent{
		ID:   9,
		Type: strings.Repeat("ü", domain.MaxEventTypeLen),
		Event: domain.RawPayload{
			CustomerID: domain.Identifier{Value: strings.Repeat("名", domain.MaxCustomerIDLen), Valid: true},
			IP:         ptr("10.0.0.1"),
			Timestamp:  "2022-04-28T07:17:46Z",
		},
	}
	_, err := domain.Normalize(raw)
	require.NoError(t, err)

	raw.Type += "ü"
	_, err = domain.Normalize(raw)
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2022-04-28T07:38:46.290271", time.Date(2022, 4, 28, 7, 38, 46, 290271000, time.UTC)},
		{"2022-04-28T07:38:46", time.Date(2022, 4, 28, 7, 38, 46, 0, time.UTC)},
		{"2022-04-28T09:38:46+02:00", time.Date(2022, 4, 28, 7, 38, 46, 0, time.UTC)},
		{"2022-04-28 07:38:46.5", time.Date(2022, 4, 28, 7, 38, 46, 500000000, time.UTC)},
		{"2022-04-28T07:38:46.123Z", time.Date(2022, 4, 28, 7, 38, 46, 123000000, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := domain.ParseTimestamp(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	_, err := domain.ParseTimestamp("")
	assert.ErrorIs(t, err, domain.ErrBadTimestamp)
}

func TestIdentifier_RoundTrip(t *testing.T) {
	var id domain.Identifier
	require.NoError(t, json.Unmarshal([]byte(`12345678901234567890`), &id))
	assert.Equal(t, "12345678901234567890", id.Value)
	assert.True(t, id.Valid)

	b, err := json.Marshal(id)
	require.NoError(t, err)
	assert.JSONEq(t, `"12345678901234567890"`, string(b))

	require.NoError(t, json.Unmarshal([]byte(`""`), &id))
	assert.True(t, id.Valid)
	assert.Empty(t, id.Value)

	b, err = json.Marshal(domain.Identifier{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func ptr(s string) *string { return &s }
