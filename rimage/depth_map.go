package rimage

import (
	"image"
	"math"

	"github.com/pkg/errors"
)

// DepthMap is a width x height grid of depth values in arbitrary but consistent units.
// Values that are zero, negative or not finite carry no depth.
type DepthMap struct {
	width  int
	height int

	data []float64
}

// NewEmptyDepthMap returns a depth map of the given size with no valid depth.
func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]float64, width*height),
	}
}

// NewDepthMapFromValues builds a depth map from row-major values.
func NewDepthMapFromValues(width, height int, values []float64) (*DepthMap, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("bad width or height for depth map %d %d", width, height)
	}
	if len(values) != width*height {
		return nil, errors.Errorf("depth map of size (%d,%d) needs %d values, got %d",
			width, height, width*height, len(values))
	}
	data := make([]float64, len(values))
	copy(data, values)
	return &DepthMap{width: width, height: height, data: data}, nil
}

// NewDepthMapFromRows builds a depth map from a slice of equally long rows.
func NewDepthMapFromRows(rows [][]float64) (*DepthMap, error) {
	if len(rows) == 0 {
		return nil, errors.New("depth map needs at least one row")
	}
	width := len(rows[0])
	values := make([]float64, 0, width*len(rows))
	for y, row := range rows {
		if len(row) != width {
			return nil, errors.Errorf("row %d has %d values, expected %d", y, len(row), width)
		}
		values = append(values, row...)
	}
	return NewDepthMapFromValues(width, len(rows), values)
}

// IsValidDepth reports whether d carries depth.
func IsValidDepth(d float64) bool {
	return d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}

func (dm *DepthMap) kxy(x, y int) int {
	return (y * dm.width) + x
}

// HasData returns whether the map has any pixels.
func (dm *DepthMap) HasData() bool {
	return dm.width > 0 && dm.height > 0 && dm.data != nil
}

// Width returns the width in pixels.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the height in pixels.
func (dm *DepthMap) Height() int {
	return dm.height
}

// Bounds returns the rectangle (0, 0, width, height).
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

// Get returns the depth at the given point.
func (dm *DepthMap) Get(p image.Point) float64 {
	return dm.data[dm.kxy(p.X, p.Y)]
}

// GetDepth returns the depth at the given pixel.
func (dm *DepthMap) GetDepth(x, y int) float64 {
	return dm.data[dm.kxy(x, y)]
}

// Set sets the depth at the given pixel.
func (dm *DepthMap) Set(x, y int, val float64) {
	dm.data[dm.kxy(x, y)] = val
}

// Values returns a row-major copy of every value in the map.
func (dm *DepthMap) Values() []float64 {
	values := make([]float64, len(dm.data))
	copy(values, dm.data)
	return values
}

// FiniteValues returns every value that is neither NaN nor infinite, zeros included.
func (dm *DepthMap) FiniteValues() []float64 {
	values := make([]float64, 0, len(dm.data))
	for _, d := range dm.data {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			continue
		}
		values = append(values, d)
	}
	return values
}

// ValidValues returns every value that carries depth.
func (dm *DepthMap) ValidValues() []float64 {
	values := make([]float64, 0, len(dm.data))
	for _, d := range dm.data {
		if IsValidDepth(d) {
			values = append(values, d)
		}
	}
	return values
}

// Clone returns a deep copy of the depth map.
func (dm *DepthMap) Clone() *DepthMap {
	return &DepthMap{width: dm.width, height: dm.height, data: dm.Values()}
}

// Scale returns a copy of the map with every value multiplied by factor.
func (dm *DepthMap) Scale(factor float64) *DepthMap {
	scaled := dm.Clone()
	for i := range scaled.data {
		scaled.data[i] *= factor
	}
	return scaled
}

// MinMax returns the smallest and largest valid depth. ok is false if there is none.
func (dm *DepthMap) MinMax() (minD, maxD float64, ok bool) {
	minD, maxD = math.Inf(1), math.Inf(-1)
	for _, d := range dm.data {
		if !IsValidDepth(d) {
			continue
		}
		ok = true
		minD = math.Min(minD, d)
		maxD = math.Max(maxD, d)
	}
	if !ok {
		return 0, 0, false
	}
	return minD, maxD, true
}

// Percentile returns the p-th percentile of the map's finite values, zeros included.
func (dm *DepthMap) Percentile(p float64) (float64, error) {
	return Percentile(dm.FiniteValues(), p)
}
