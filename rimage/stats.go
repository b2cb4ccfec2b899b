package rimage

import (
	"fmt"
	"io"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// DepthStats summarizes the valid values of a depth map.
type DepthStats struct {
	Pixels int
	Valid  int
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	StdDev float64
}

// String renders the summary on one line.
func (s DepthStats) String() string {
	return fmt.Sprintf("valid=%d/%d min=%.4f max=%.4f mean=%.4f median=%.4f stddev=%.4f",
		s.Valid, s.Pixels, s.Min, s.Max, s.Mean, s.Median, s.StdDev)
}

// Stats summarizes the valid values of the depth map. It fails if no value carries depth.
func (dm *DepthMap) Stats() (DepthStats, error) {
	valid := stats.Float64Data(dm.ValidValues())
	summary := DepthStats{Pixels: dm.width * dm.height, Valid: len(valid)}
	if len(valid) == 0 {
		return summary, errors.New("depth map has no valid depth")
	}
	var err error
	if summary.Min, err = stats.Min(valid); err != nil {
		return summary, err
	}
	if summary.Max, err = stats.Max(valid); err != nil {
		return summary, err
	}
	if summary.Mean, err = stats.Mean(valid); err != nil {
		return summary, err
	}
	if summary.Median, err = stats.Median(valid); err != nil {
		return summary, err
	}
	if summary.StdDev, err = stats.StandardDeviation(valid); err != nil {
		return summary, err
	}
	return summary, nil
}

// Histogram buckets the valid values of the depth map into bins equal width buckets.
func (dm *DepthMap) Histogram(bins int) (histogram.Histogram, error) {
	if bins < 1 {
		return histogram.Histogram{}, errors.Errorf("need at least one bin, got %d", bins)
	}
	valid := dm.ValidValues()
	if len(valid) == 0 {
		return histogram.Histogram{}, errors.New("depth map has no valid depth")
	}
	return histogram.Hist(bins, valid), nil
}

// WriteHistogram prints a text histogram of the valid depth values, bars at most width
// characters long.
func (dm *DepthMap) WriteHistogram(w io.Writer, bins, width int) error {
	hist, err := dm.Histogram(bins)
	if err != nil {
		return err
	}
	return histogram.Fprint(w, hist, histogram.Linear(width))
}
