package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/webshopsessions/internal/analytics"
	"example.com/webshopsessions/internal/service"
)

// Customer 1 has two visits before ordering (5 and 2 minutes), customer 2
// one visit of 4 minutes, customer 3 never orders.
const smallFeed = `{"id": 1, "type": "page_view", "event": {"customer-id": 1, "ip": "10.0.0.1", "timestamp": "2022-04-28T10:00:00", "user-agent": "ua"}}
{"id": 2, "type": "page_view", "event": {"customer-id": 1, "ip": "10.0.0.1", "timestamp": "2022-04-28T10:05:00", "user-agent": "ua"}}
{"id": 3, "type": "search", "event": {"customer-id": 1, "ip": "10.0.0.1", "timestamp": "2022-04-28T10:30:00", "user-agent": "ua", "query": "socks"}}
{"id": 4, "type": "placed_order", "event": {"customer-id": 1, "ip": "10.0.0.1", "timestamp": "2022-04-28T10:32:00", "user-agent": "ua"}}
{"id": 5, "type": "page_view", "event": {"customer-id": "2", "ip": "10.0.0.2", "timestamp": "2022-04-28T11:00:00", "user-agent": "ua"}}
{"id": 6, "type": "placed_order", "event": {"customer-id": "2", "ip": "10.0.0.2", "timestamp": "2022-04-28T11:04:00", "user-agent": "ua"}}
{"id": 7, "type": "page_view", "event": {"customer-id": 3, "ip": "10.0.0.3", "timestamp": "2022-04-28T12:00:00", "user-agent": "ua"}}
{"id": 8, "type": "page_view", "event": {"customer-id": null, "ip": "10.0.0.4", "timestamp": "2022-04-28T12:00:00", "user-agent": "ua"}}
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, logs bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&logs)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("WEBSHOP_LOGGING_LEVEL", "error")
}

func TestCommandsRegistered(t *testing.T) {
	root := NewRootCommand()
	want := map[string]bool{"serve": false, "load": false, "metrics": false, "explore": false, "seed": false, "migrate": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		assert.True(t, found, "command %q not registered", name)
	}
}

func TestMetrics_FromFile(t *testing.T) {
	isolate(t)
	path := writeFeed(t, smallFeed)

	out, err := run(t, "metrics", "--file", path)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"median_visits_before_order": 1.5, "median_session_duration_minutes_before_order": 4}`,
		out)
}

func TestMetrics_FromFileVerify(t *testing.T) {
	isolate(t)
	path := writeFeed(t, smallFeed)

	out, err := run(t, "metrics", "--file", path, "--verify")
	require.NoError(t, err)

	var got map[string]analytics.Metrics
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got["memory"].Equal(got["relational"]))
	require.NotNil(t, got["memory"].MedianSessionsBeforeFirstOrder)
	assert.Equal(t, 1.5, *got["memory"].MedianSessionsBeforeFirstOrder)
}

func TestMetrics_UnknownMode(t *testing.T) {
	isolate(t)
	_, err := run(t, "metrics", "--file", writeFeed(t, smallFeed), "--mode", "guess")
	assert.ErrorIs(t, err, service.ErrUnknownMode)
}

func TestMetrics_ShorterTimeoutFromConfig(t *testing.T) {
	isolate(t)
	// with a 3 minute timeout customer 1 has visits of 0, 0 and 2 minutes
	// before ordering, customer 2 a single one of 0 minutes
	t.Setenv("WEBSHOP_SESSION_TIMEOUT", "3m")

	out, err := run(t, "metrics", "--file", writeFeed(t, smallFeed))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"median_visits_before_order": 2, "median_session_duration_minutes_before_order": 0}`,
		out)
}

func TestExplore_FromFile(t *testing.T) {
	isolate(t)
	out, err := run(t, "explore", "--file", writeFeed(t, smallFeed), "--min", "7", "--max", "8")
	require.NoError(t, err)

	var ex analytics.Exploration
	require.NoError(t, json.Unmarshal([]byte(out), &ex))
	require.Len(t, ex.Timeouts, 2)
	assert.Equal(t, 7, ex.Timeouts[0].TimeoutMinutes)
	assert.Equal(t, 8, ex.Timeouts[1].TimeoutMinutes)
	// 1: {10:00,10:05} {10:30,10:32}  2: {11:00,11:04}  3: {12:00}
	assert.Equal(t, 4, ex.Timeouts[0].Sessions)
	// gaps: 5, 25, 2 and 4 minutes
	assert.Equal(t, 4, ex.Gaps.Total)
}

func TestExplore_BadRange(t *testing.T) {
	isolate(t)
	_, err := run(t, "explore", "--file", writeFeed(t, smallFeed), "--min", "9", "--max", "3")
	assert.ErrorIs(t, err, errBadRange)
}

func TestSeed_ThenExplore(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "seed.ndjson")

	out, err := run(t, "seed", "--customers", "25", "--seed", "7", "--malformed", "2", "--out", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	out, err = run(t, "metrics", "--file", path, "--verify")
	require.NoError(t, err)
	assert.Contains(t, out, "relational")
}

func TestLoad_NeedsFeed(t *testing.T) {
	isolate(t)
	_, err := run(t, "load")
	assert.ErrorIs(t, err, errNoFeed)

	_, err = run(t, "load", "--feed", "http://x", "--file", "y")
	assert.Error(t, err)
}

func TestMigrate_Args(t *testing.T) {
	isolate(t)
	_, err := run(t, "migrate", "sideways")
	assert.Error(t, err)

	_, err = run(t, "migrate")
	assert.Error(t, err)
}

func TestBadConfigFails(t *testing.T) {
	isolate(t)
	t.Setenv("WEBSHOP_STORE_BACKEND", "mongodb")
	_, err := run(t, "metrics", "--file", writeFeed(t, smallFeed))
	assert.ErrorContains(t, err, "store.backend")
}
