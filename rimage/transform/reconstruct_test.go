package transform

import (
	"context"
	"errors"
	"image/color"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/depthcloud/pointcloud"
	"go.viam.com/depthcloud/rimage"
)

func whiteImage(width, height int) *rimage.Image {
	img := rimage.NewImage(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetXY(x, y, color.NRGBA{255, 255, 255, 255})
		}
	}
	return img
}

func sortedZ(cloud pointcloud.PointCloud) []float64 {
	zs := []float64{}
	cloud.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		zs = append(zs, p.Z)
		return true
	})
	sort.Float64s(zs)
	return zs
}

func TestReconstructTruncatesOutlier(t *testing.T) {
	dm, err := rimage.NewDepthMapFromRows([][]float64{{1, 2}, {3, 100}})
	test.That(t, err, test.ShouldBeNil)
	img := whiteImage(2, 2)

	threshold, err := TruncationThreshold(dm, 95, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, threshold, test.ShouldAlmostEqual, 85.45)

	cloud, err := Reconstruct(context.Background(), img, dm, ReconstructionConfig{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 3)

	// flipped frame: z is negated
	test.That(t, sortedZ(cloud), test.ShouldResemble, []float64{-3, -2, -1})

	unflipped, err := pointcloud.ApplyTransform(cloud, pointcloud.FlipYZ())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sortedZ(unflipped), test.ShouldResemble, []float64{1, 2, 3})
	unflipped.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		r, g, b := d.RGB255()
		test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{255, 255, 255})
		return true
	})
}

func TestReconstructCenterPixel(t *testing.T) {
	img := whiteImage(100, 100)
	dm := rimage.NewEmptyDepthMap(100, 100)
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			dm.Set(x, y, 20)
		}
	}
	dm.Set(50, 50, 10)

	cloud, err := ReconstructWithFocalLength(img, dm, 525)
	test.That(t, err, test.ShouldBeNil)
	// every 20 is at the threshold and dropped
	test.That(t, cloud.Size(), test.ShouldEqual, 1)

	unflipped, err := pointcloud.ApplyTransform(cloud, pointcloud.FlipYZ())
	test.That(t, err, test.ShouldBeNil)
	points := pointcloud.Points(unflipped)
	test.That(t, points[0].X, test.ShouldAlmostEqual, 0)
	test.That(t, points[0].Y, test.ShouldAlmostEqual, 0)
	test.That(t, points[0].Z, test.ShouldEqual, 10)
}

func TestReconstructProperties(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	width, height := 32, 24
	img := rimage.NewImage(width, height)
	dm := rimage.NewEmptyDepthMap(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetXY(x, y, color.NRGBA{uint8(r.Intn(256)), uint8(r.Intn(256)), uint8(r.Intn(256)), 255})
			if r.Intn(10) == 0 {
				continue
			}
			dm.Set(x, y, 0.5+r.Float64()*10)
		}
	}
	threshold, err := TruncationThreshold(dm, 95, 1)
	test.That(t, err, test.ShouldBeNil)

	cloud, err := Reconstruct(context.Background(), img, dm, ReconstructionConfig{FocalLength: 300})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldBeLessThan, width*height)

	expected := 0
	for _, d := range dm.Values() {
		if d > 0 && d < threshold {
			expected++
		}
	}
	test.That(t, cloud.Size(), test.ShouldEqual, expected)
	cloud.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		test.That(t, -p.Z, test.ShouldBeLessThan, threshold)
		test.That(t, -p.Z, test.ShouldBeGreaterThan, 0)
		return true
	})

	twice, err := pointcloud.ApplyTransform(cloud, pointcloud.FlipYZ())
	test.That(t, err, test.ShouldBeNil)
	twice, err = pointcloud.ApplyTransform(twice, pointcloud.FlipYZ())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pointcloud.Points(twice), test.ShouldResemble, pointcloud.Points(cloud))
}

func TestReconstructDepthScale(t *testing.T) {
	dm, err := rimage.NewDepthMapFromRows([][]float64{{1000, 2000}, {3000, 100000}})
	test.That(t, err, test.ShouldBeNil)
	cloud, err := Reconstruct(context.Background(), whiteImage(2, 2), dm, ReconstructionConfig{DepthScale: 1000})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sortedZ(cloud), test.ShouldResemble, []float64{-3, -2, -1})
}

func TestReconstructErrors(t *testing.T) {
	ctx := context.Background()
	dm := rimage.NewEmptyDepthMap(4, 4)

	_, err := Reconstruct(ctx, whiteImage(4, 4), dm, ReconstructionConfig{})
	test.That(t, errors.Is(err, ErrDegenerateDepth), test.ShouldBeTrue)

	nans, err := rimage.NewDepthMapFromRows([][]float64{{math.NaN(), math.NaN()}})
	test.That(t, err, test.ShouldBeNil)
	_, err = Reconstruct(ctx, whiteImage(2, 1), nans, ReconstructionConfig{})
	test.That(t, errors.Is(err, ErrDegenerateDepth), test.ShouldBeTrue)

	_, err = Reconstruct(ctx, whiteImage(3, 4), dm, ReconstructionConfig{})
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)

	ones, err := rimage.NewDepthMapFromRows([][]float64{{1, 2}, {3, 4}})
	test.That(t, err, test.ShouldBeNil)
	_, err = ReconstructWithFocalLength(whiteImage(2, 2), ones, -1)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	_, err = Reconstruct(ctx, whiteImage(2, 2), ones, ReconstructionConfig{FocalLength: -5})
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	_, err = Reconstruct(ctx, whiteImage(2, 2), ones, ReconstructionConfig{TruncationPercentile: 150})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Reconstruct(ctx, whiteImage(2, 2), ones, ReconstructionConfig{DepthScale: -1})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Reconstruct(ctx, nil, ones, ReconstructionConfig{})
	test.That(t, err, test.ShouldNotBeNil)
}
