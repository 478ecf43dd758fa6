package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/webshopsessions/internal/domain"
	"example.com/webshopsessions/internal/logging"
)

type fakeWriter struct {
	mu        sync.Mutex
	batches   [][]domain.NormalizedEvent
	truncated int
	failAt    int // 1-based batch number, 0 = never
	err       error
}

func (f *fakeWriter) WriteBatch(_ context.Context, events []domain.NormalizedEvent) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.batches)+1 == f.failAt {
		return 0, f.err
	}
	f.batches = append(f.batches, append([]domain.NormalizedEvent(nil), events...))
	return int64(len(events)), nil
}

func (f *fakeWriter) Truncate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.truncated++
	f.batches = nil
	return nil
}

func (f *fakeWriter) rows() []domain.NormalizedEvent {
	var out []domain.NormalizedEvent
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

type fakeCache struct {
	calls int
	err   error
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.calls++
	return c.err
}

func silent() *logging.Logger {
	return logging.NewWithWriter(io.Discard, slog.LevelError, "text")
}

func events(n int) []domain.NormalizedEvent {
	base := time.Date(2022, 4, 28, 7, 0, 0, 0, time.UTC)
	out := make([]domain.NormalizedEvent, n)
	for i := range out {
		out[i] = domain.NormalizedEvent{
			ID:         int64(i + 1),
			EventType:  "search",
			CustomerID: fmt.Sprint(i % 3),
			IP:         "10.0.0.1",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestLoader_Batches(t *testing.T) {
	w := &fakeWriter{}
	l := NewLoader(w, 4, WithLogger(silent()))

	rep, err := l.Load(context.Background(), events(10))
	require.NoError(t, err)
	assert.Equal(t, int64(10), rep.Rows)
	assert.Equal(t, 3, rep.Batches)
	require.Len(t, w.batches, 3)
	assert.Len(t, w.batches[2], 2)
	assert.Equal(t, 0, w.truncated)
}

func TestLoader_Empty(t *testing.T) {
	w := &fakeWriter{}
	rep, err := NewLoader(w, 0, WithLogger(silent())).Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Report{Elapsed: rep.Elapsed}, rep)
	assert.Empty(t, w.batches)
}

func TestLoader_StopsAtFailingBatch(t *testing.T) {
	boom := errors.New("connection refused")
	w := &fakeWriter{failAt: 2, err: boom}

	rep, err := NewLoader(w, 3, WithLogger(silent())).Load(context.Background(), events(9))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "batch 1")
	assert.Equal(t, int64(3), rep.Rows)
	assert.Equal(t, 1, rep.Batches)
	assert.Len(t, w.batches, 1)
}

func TestLoader_Replace(t *testing.T) {
	w := &fakeWriter{batches: [][]domain.NormalizedEvent{events(2)}}

	_, err := NewLoader(w, 10, WithReplace(true), WithLogger(silent())).Load(context.Background(), events(5))
	require.NoError(t, err)
	assert.Equal(t, 1, w.truncated)
	assert.Len(t, w.rows(), 5)
}

func TestLoader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLoader(&fakeWriter{}, 2, WithLogger(silent())).Load(ctx, events(4))
	assert.ErrorIs(t, err, context.Canceled)
}

const pipelineFeed = `{"id": 1, "type": "search", "event": {"customer-id": 1, "ip": "1.1.1.1", "timestamp": "2022-04-28T07:00:00"}}
{"id": 2, "type": "search", "event": {"customer-id": 1, "ip": "1.1.1.1", "timestamp": "2022-04-28T07:05:00"}}
{"id": 3, "type": "placed_order", "event": {"customer-id": 1, "ip": "1.1.1.1", "timestamp": "2022-04-28T07:15:00"}}
{"id": 4, "type": "search", "event": {"customer-id": 2, "ip": "1.1.1.2", "timestamp": "2022-04-28T07:00:00"}}
{"id": 5, "type": "search", "event": {"customer-id": null, "ip": "1.1.1.3", "timestamp": "2022-04-28T07:00:00"}}
not json at all
`

func TestPipeline_Run(t *testing.T) {
	w := &fakeWriter{}
	c := &fakeCache{}
	p := &Pipeline{
		Loader:  NewLoader(w, 2, WithLogger(silent())),
		Timeout: 8 * time.Minute,
		Workers: 2,
		Cache:   c,
		Log:     silent(),
	}

	rep, err := p.Run(context.Background(), strings.NewReader(pipelineFeed))
	require.NoError(t, err)

	assert.Equal(t, 4, rep.Feed.Accepted)
	assert.Equal(t, 1, rep.Feed.Excluded)
	assert.Equal(t, 1, rep.Feed.ParseFaults)
	assert.Equal(t, 2, rep.Customers)
	assert.Equal(t, 3, rep.Sessions)
	assert.Equal(t, int64(4), rep.Load.Rows)
	assert.Equal(t, 1, c.calls)

	sessions := map[int64]int{}
	for _, ev := range w.rows() {
		sessions[ev.ID] = ev.SessionID
	}
	assert.Equal(t, map[int64]int{1: 1, 2: 1, 3: 2, 4: 1}, sessions)
}

func TestPipeline_CacheFailureIsNotFatal(t *testing.T) {
	c := &fakeCache{err: errors.New("redis down")}
	p := &Pipeline{Loader: NewLoader(&fakeWriter{}, 10, WithLogger(silent())), Cache: c, Log: silent()}

	_, err := p.Run(context.Background(), strings.NewReader(pipelineFeed))
	require.NoError(t, err)
	assert.Equal(t, 1, c.calls)
}

func TestPipeline_StoreFailureSkipsInvalidation(t *testing.T) {
	boom := errors.New("disk full")
	c := &fakeCache{}
	p := &Pipeline{Loader: NewLoader(&fakeWriter{failAt: 1, err: boom}, 10, WithLogger(silent())), Cache: c, Log: silent()}

	_, err := p.Run(context.Background(), strings.NewReader(pipelineFeed))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.calls)
}
