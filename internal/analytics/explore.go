package analytics

import (
	"fmt"
	"math"
	"slices"
	"time"

	"example.com/webshopsessions/internal/domain"
	"example.com/webshopsessions/internal/sessionize"
)

// Histogram counts minute values in equal-width buckets over [Min, Max).
// Values at or above Max land in Overflow.
type Histogram struct {
	Min         float64 `json:"min_minutes"`
	Max         float64 `json:"max_minutes"`
	BucketWidth float64 `json:"bucket_width_minutes"`
	Counts      []int   `json:"counts"`
	Overflow    int     `json:"overflow"`
	Total       int     `json:"total"`
}

// HistogramSpec is the bucket layout of a Histogram.
type HistogramSpec struct {
	Min     float64
	Max     float64
	Buckets int
}

// DefaultHistogram covers 0 to 40 minutes in 120 buckets.
var DefaultHistogram = HistogramSpec{Min: 0, Max: 40, Buckets: 120}

func (s HistogramSpec) validate() error {
	if s.Buckets <= 0 {
		return fmt.Errorf("histogram: buckets must be positive, got %d", s.Buckets)
	}
	if !(s.Max > s.Min) {
		return fmt.Errorf("histogram: max %.2f must exceed min %.2f", s.Max, s.Min)
	}
	return nil
}

// NewHistogram buckets values according to spec. Values below Min are ignored.
func NewHistogram(spec HistogramSpec, values []float64) (Histogram, error) {
	if err := spec.validate(); err != nil {
		return Histogram{}, err
	}
	h := Histogram{
		Min:         spec.Min,
		Max:         spec.Max,
		BucketWidth: (spec.Max - spec.Min) / float64(spec.Buckets),
		Counts:      make([]int, spec.Buckets),
	}
	for _, v := range values {
		if v < spec.Min {
			continue
		}
		h.Total++
		if v >= spec.Max {
			h.Overflow++
			continue
		}
		i := int(math.Floor((v - spec.Min) / h.BucketWidth))
		if i >= spec.Buckets {
			i = spec.Buckets - 1
		}
		h.Counts[i]++
	}
	return h, nil
}

// Gaps returns the idle time in minutes between consecutive events of the
// same customer. The first event of each customer contributes nothing.
func Gaps(events []domain.NormalizedEvent) []float64 {
	var gaps []float64
	for _, part := range sessionize.Partition(events) {
		slices.SortStableFunc(part, func(a, b domain.NormalizedEvent) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
		for i := 1; i < len(part); i++ {
			gaps = append(gaps, Minutes(part[i].Timestamp.Sub(part[i-1].Timestamp)))
		}
	}
	return gaps
}

// TimeoutReport describes the sessions produced by one candidate timeout.
type TimeoutReport struct {
	TimeoutMinutes        int       `json:"timeout_minutes"`
	Sessions              int       `json:"sessions"`
	MedianDurationMinutes *float64  `json:"median_duration_minutes"`
	Durations             Histogram `json:"durations"`
}

// Exploration is the data behind the timeout analysis: the raw gap
// distribution plus one report per candidate timeout.
type Exploration struct {
	Gaps     Histogram       `json:"gaps"`
	Timeouts []TimeoutReport `json:"timeouts"`
}

// Explore sessionizes events once per timeout in [minTimeout, maxTimeout]
// minutes and histograms the resulting session durations.
func Explore(events []domain.NormalizedEvent, minTimeout, maxTimeout int, spec HistogramSpec) (Exploration, error) {
	if minTimeout <= 0 || maxTimeout < minTimeout {
		return Exploration{}, fmt.Errorf("explore: invalid timeout range [%d, %d]", minTimeout, maxTimeout)
	}

	gaps, err := NewHistogram(spec, Gaps(events))
	if err != nil {
		return Exploration{}, err
	}
	out := Exploration{Gaps: gaps}

	for timeout := minTimeout; timeout <= maxTimeout; timeout++ {
		sessions := sessionize.Sessions(sessionize.Sessionize(events, time.Duration(timeout)*time.Minute))
		durations := make([]float64, 0, len(sessions))
		for _, s := range sessions {
			durations = append(durations, Minutes(s.Duration()))
		}
		h, err := NewHistogram(spec, durations)
		if err != nil {
			return Exploration{}, err
		}
		out.Timeouts = append(out.Timeouts, TimeoutReport{
			TimeoutMinutes:        timeout,
			Sessions:              len(sessions),
			MedianDurationMinutes: Median(durations),
			Durations:             h,
		})
	}
	return out, nil
}
