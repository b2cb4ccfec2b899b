package rimage

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// Percentile returns the p-th percentile (0 <= p <= 100) of values, linearly interpolating
// between the two closest ranks. With n sorted values the rank is p/100*(n-1). values is
// not modified.
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return math.NaN(), errors.New("cannot take the percentile of no values")
	}
	if p < 0 || p > 100 || math.IsNaN(p) {
		return math.NaN(), errors.Errorf("percentile must be in [0, 100], got %v", p)
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo], nil
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac, nil
}
