package analytics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/webshopsessions/internal/analytics"
	"example.com/webshopsessions/internal/domain"
)

func TestNewHistogram(t *testing.T) {
	h, err := analytics.NewHistogram(analytics.HistogramSpec{Min: 0, Max: 10, Buckets: 5}, []float64{0, 1.9, 2, 9.99, 10, 42, -1})
	require.NoError(t, err)

	assert.Equal(t, 2.0, h.BucketWidth)
	assert.Equal(t, []int{2, 1, 0, 0, 1}, h.Counts)
	assert.Equal(t, 2, h.Overflow)
	assert.Equal(t, 6, h.Total)
}

func TestNewHistogram_InvalidSpec(t *testing.T) {
	_, err := analytics.NewHistogram(analytics.HistogramSpec{Min: 0, Max: 10}, nil)
	assert.Error(t, err)
	_, err = analytics.NewHistogram(analytics.HistogramSpec{Min: 5, Max: 5, Buckets: 1}, nil)
	assert.Error(t, err)
}

func TestGaps(t *testing.T) {
	events := []domain.NormalizedEvent{
		at("A", "page_view", 15),
		at("B", "page_view", 0),
		at("A", "page_view", 0),
		at("A", "page_view", 5),
	}
	assert.ElementsMatch(t, []float64{5, 10}, analytics.Gaps(events))
}

func TestExplore(t *testing.T) {
	events := []domain.NormalizedEvent{
		at("A", "page_view", 0),
		at("A", "page_view", 6),
		at("A", "page_view", 13),
		at("B", "page_view", 0),
	}

	out, err := analytics.Explore(events, 5, 7, analytics.DefaultHistogram)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Gaps.Total)
	require.Len(t, out.Timeouts, 3)

	// timeout 5: A splits into three single-event sessions, B has one.
	assert.Equal(t, 5, out.Timeouts[0].TimeoutMinutes)
	assert.Equal(t, 4, out.Timeouts[0].Sessions)
	// timeout 6: A = {0,6}, {13}.
	assert.Equal(t, 3, out.Timeouts[1].Sessions)
	// timeout 7: A is one 13 minute session.
	assert.Equal(t, 2, out.Timeouts[2].Sessions)
	require.NotNil(t, out.Timeouts[2].MedianDurationMinutes)
	assert.Equal(t, 6.5, *out.Timeouts[2].MedianDurationMinutes)
	assert.Equal(t, 2, out.Timeouts[2].Durations.Total)
}

func TestExplore_InvalidRange(t *testing.T) {
	_, err := analytics.Explore(nil, 10, 5, analytics.DefaultHistogram)
	assert.Error(t, err)
	_, err = analytics.Explore(nil, 0, 5, analytics.DefaultHistogram)
	assert.Error(t, err)
}
