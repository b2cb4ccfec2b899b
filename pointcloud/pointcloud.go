// Package pointcloud defines a point cloud and provides an implementation for one, along
// with the rigid transforms, downsampling and file formats depthcloud needs.
//
// Points are keyed by position so a cloud never holds two points at the same place.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Positions outside this range cannot be stored exactly in the file formats we write.
const (
	minPreciseFloat64 = float64(-(1 << 53))
	maxPreciseFloat64 = float64(1 << 53)
)

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	HasColor bool

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// NewMetaData returns meta data for an empty cloud.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge updates the meta data with a new point.
func (meta *MetaData) Merge(v r3.Vector, data Data) {
	if data != nil && data.HasColor() {
		meta.HasColor = true
	}

	meta.MaxX = math.Max(meta.MaxX, v.X)
	meta.MaxY = math.Max(meta.MaxY, v.Y)
	meta.MaxZ = math.Max(meta.MaxZ, v.Z)

	meta.MinX = math.Min(meta.MinX, v.X)
	meta.MinY = math.Min(meta.MinY, v.Y)
	meta.MinZ = math.Min(meta.MinZ, v.Z)
}

// PointCloud is a general purpose container of points. It does not
// dictate whether or not the cloud is sparse or dense. The current
// basic implementation is sparse however.
type PointCloud interface {
	// Size returns the number of points in the cloud.
	Size() int

	// MetaData returns meta data
	MetaData() MetaData

	// Set places the given point in the cloud, replacing the data of any
	// point already at that position.
	Set(p r3.Vector, d Data) error

	// At returns the point in the cloud at the given position.
	// The 2nd return is if the point exists, the first is data if any.
	At(x, y, z float64) (Data, bool)

	// Iterate iterates over all points in the cloud and calls the given
	// function for each point. If the supplied function returns false,
	// iteration will stop after the function returns.
	// numBatches lets you divide up he work. 0 means don't divide
	// myBatch is used iff numBatches > 0 and is which batch you want
	Iterate(numBatches, myBatch int, fn func(p r3.Vector, d Data) bool)
}

// CloudContains is a silly helper method.
func CloudContains(cloud PointCloud, x, y, z float64) bool {
	_, got := cloud.At(x, y, z)
	return got
}

// CloudCentroid returns the centroid of a pointcloud as a vector.
func CloudCentroid(pc PointCloud) r3.Vector {
	if pc.Size() == 0 {
		return r3.Vector{}
	}
	var total r3.Vector
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		total = total.Add(p)
		return true
	})
	return total.Mul(1 / float64(pc.Size()))
}

// Points returns every position in the cloud in iteration order.
func Points(pc PointCloud) []r3.Vector {
	points := make([]r3.Vector, 0, pc.Size())
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		points = append(points, p)
		return true
	})
	return points
}

func checkPrecise(p r3.Vector) error {
	check := func(name string, v float64) error {
		if v < minPreciseFloat64 || v > maxPreciseFloat64 || math.IsNaN(v) {
			return errors.Errorf("%s component (%v) is out of range [%v,%v]", name, v, minPreciseFloat64, maxPreciseFloat64)
		}
		return nil
	}
	if err := check("x", p.X); err != nil {
		return err
	}
	if err := check("y", p.Y); err != nil {
		return err
	}
	return check("z", p.Z)
}
