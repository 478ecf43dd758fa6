package analytics

import (
	"math"
	"slices"
)

// PercentileCont is the continuous percentile of values at fraction p
// (0 <= p <= 1), interpolating linearly between the two closest ranks.
// It returns nil for an empty input or a p outside [0, 1]. values is not
// modified.
func PercentileCont(values []float64, p float64) *float64 {
	if len(values) == 0 || !(p >= 0 && p <= 1) {
		return nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	rank := p * float64(len(sorted)-1)
	lo := math.Floor(rank)
	hi := math.Ceil(rank)
	v := sorted[int(lo)]
	if hi != lo {
		v += (rank - lo) * (sorted[int(hi)] - v)
	}
	return &v
}

// Median is PercentileCont at 0.5.
func Median(values []float64) *float64 {
	return PercentileCont(values, 0.5)
}
