package pointcloud

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

type voxelCoords struct {
	I, J, K int64
}

type voxelAccumulator struct {
	sum     r3.Vector
	count   int
	r, g, b float64
	colored int
}

// VoxelDownsample partitions space into cubes of the given edge length and replaces the
// points of every occupied cube by their centroid, colored with their mean color. Voxels
// are emitted in the order they are first seen.
func VoxelDownsample(cloud PointCloud, voxelSize float64) (PointCloud, error) {
	if voxelSize <= 0 || math.IsNaN(voxelSize) || math.IsInf(voxelSize, 0) {
		return nil, errors.Errorf("voxel size must be positive and finite, got %v", voxelSize)
	}
	voxels := map[voxelCoords]*voxelAccumulator{}
	order := make([]voxelCoords, 0)
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		key := voxelCoords{
			I: int64(math.Floor(p.X / voxelSize)),
			J: int64(math.Floor(p.Y / voxelSize)),
			K: int64(math.Floor(p.Z / voxelSize)),
		}
		acc, ok := voxels[key]
		if !ok {
			acc = &voxelAccumulator{}
			voxels[key] = acc
			order = append(order, key)
		}
		acc.sum = acc.sum.Add(p)
		acc.count++
		if d != nil && d.HasColor() {
			r, g, b := d.RGB255()
			acc.r += float64(r)
			acc.g += float64(g)
			acc.b += float64(b)
			acc.colored++
		}
		return true
	})

	out := NewWithPrealloc(len(order))
	for _, key := range order {
		acc := voxels[key]
		data := NewBasicData()
		if acc.colored > 0 {
			n := float64(acc.colored)
			data = NewColoredData(color.NRGBA{
				R: uint8(math.Round(acc.r / n)),
				G: uint8(math.Round(acc.g / n)),
				B: uint8(math.Round(acc.b / n)),
				A: 255,
			})
		}
		if err := out.Set(acc.sum.Mul(1/float64(acc.count)), data); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Decimate keeps every k-th point, with k chosen so at most maxPoints remain. A cloud
// already within the limit is returned as is.
func Decimate(cloud PointCloud, maxPoints int) (PointCloud, error) {
	if maxPoints <= 0 {
		return nil, errors.Errorf("max points must be positive, got %d", maxPoints)
	}
	if cloud.Size() <= maxPoints {
		return cloud, nil
	}
	stride := (cloud.Size() + maxPoints - 1) / maxPoints
	out := NewWithPrealloc(maxPoints)
	i := 0
	var err error
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		if i%stride == 0 {
			err = out.Set(p, d)
		}
		i++
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
