package transform

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/depthcloud/pointcloud"
	"go.viam.com/depthcloud/rimage"
)

func TestCheckValid(t *testing.T) {
	var nilIntrinsics *PinholeCameraIntrinsics
	test.That(t, errors.Is(nilIntrinsics.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)

	intrinsics := NewApproximateIntrinsics(100, 80, 525)
	test.That(t, intrinsics.CheckValid(), test.ShouldBeNil)
	test.That(t, intrinsics.Ppx, test.ShouldEqual, 50)
	test.That(t, intrinsics.Ppy, test.ShouldEqual, 40)

	for _, bad := range []PinholeCameraIntrinsics{
		{Width: 0, Height: 10, Fx: 1, Fy: 1},
		{Width: 10, Height: 10, Fx: 0, Fy: 1},
		{Width: 10, Height: 10, Fx: 1, Fy: -1},
		{Width: 10, Height: 10, Fx: 1, Fy: 1, Ppx: -1},
		{Width: 10, Height: 10, Fx: 1, Fy: 1, Ppy: -1},
	} {
		bad := bad
		err := bad.CheckValid()
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	}
}

func TestPixelToPointRoundTrip(t *testing.T) {
	intrinsics := NewApproximateIntrinsics(100, 100, 525)
	x, y, z := intrinsics.PixelToPoint(50, 50, 10)
	test.That(t, x, test.ShouldAlmostEqual, 0)
	test.That(t, y, test.ShouldAlmostEqual, 0)
	test.That(t, z, test.ShouldEqual, 10)

	x, y, z = intrinsics.PixelToPoint(80, 20, 5)
	test.That(t, x, test.ShouldAlmostEqual, 30*5/525.)
	test.That(t, y, test.ShouldAlmostEqual, -30*5/525.)
	u, v := intrinsics.PointToPixel(x, y, z)
	test.That(t, u, test.ShouldEqual, 80)
	test.That(t, v, test.ShouldEqual, 20)

	u, v = intrinsics.PointToPixel(1, 1, 0)
	test.That(t, u, test.ShouldEqual, -1)
	test.That(t, v, test.ShouldEqual, -1)
}

func TestGetCameraMatrix(t *testing.T) {
	intrinsics := &PinholeCameraIntrinsics{Width: 4, Height: 2, Fx: 3, Fy: 5, Ppx: 2, Ppy: 1}
	m := intrinsics.GetCameraMatrix()
	test.That(t, m.RawMatrix().Data, test.ShouldResemble, []float64{3, 0, 2, 0, 5, 1, 0, 0, 1})

	var nilIntrinsics *PinholeCameraIntrinsics
	test.That(t, nilIntrinsics.GetCameraMatrix(), test.ShouldBeNil)
}

func TestIntrinsicsFromJSONFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "intrinsics.json")
	content := `{"width_px": 640, "height_px": 480, "fx": 525, "fy": 525, "ppx": 320, "ppy": 240}`
	test.That(t, os.WriteFile(fn, []byte(content), 0o600), test.ShouldBeNil)

	intrinsics, err := NewPinholeCameraIntrinsicsFromJSONFile(fn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, intrinsics, test.ShouldResemble, NewApproximateIntrinsics(640, 480, 525))

	test.That(t, os.WriteFile(fn, []byte("{"), 0o600), test.ShouldBeNil)
	_, err = NewPinholeCameraIntrinsicsFromJSONFile(fn)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewPinholeCameraIntrinsicsFromJSONFile(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRGBDToPointCloud(t *testing.T) {
	img := rimage.NewImage(3, 2)
	img.SetXY(2, 1, color.NRGBA{10, 20, 30, 255})
	dm, err := rimage.NewDepthMapFromRows([][]float64{{0, 2, 4}, {6, -1, 8}})
	test.That(t, err, test.ShouldBeNil)
	intrinsics := &PinholeCameraIntrinsics{Width: 3, Height: 2, Fx: 1, Fy: 1, Ppx: 1, Ppy: 1}

	cloud, err := intrinsics.RGBDToPointCloud(img, dm)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 4)
	d, got := cloud.At(8, 0, 8)
	test.That(t, got, test.ShouldBeTrue)
	r, g, b := d.RGB255()
	test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{10, 20, 30})

	cloud, err = intrinsics.RGBDToPointCloud(img, dm, WithDepthTruncation(6))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 2)

	cloud, err = intrinsics.RGBDToPointCloud(img, dm, WithDepthScale(2))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pointcloud.CloudContains(cloud, 4, 0, 4), test.ShouldBeTrue)

	cloud, err = intrinsics.RGBDToPointCloud(img, dm, WithCrop(image.Rect(2, 0, 10, 10)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 2)

	_, err = intrinsics.RGBDToPointCloud(img, dm, WithDepthScale(0))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = intrinsics.RGBDToPointCloud(nil, dm)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = intrinsics.RGBDToPointCloud(img, nil)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = intrinsics.RGBDToPointCloud(rimage.NewImage(2, 2), dm)
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
}

func TestPointCloudToRGBDRoundTrip(t *testing.T) {
	img := rimage.NewImage(4, 4)
	dm := rimage.NewEmptyDepthMap(4, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetXY(x, y, color.NRGBA{uint8(x * 50), uint8(y * 50), 7, 255})
			dm.Set(x, y, float64(10+x+y))
		}
	}
	dm.Set(3, 3, 0)
	intrinsics := NewApproximateIntrinsics(4, 4, 525)

	cloud, err := intrinsics.RGBDToPointCloud(img, dm)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 15)

	img2, dm2, err := intrinsics.PointCloudToRGBD(cloud)
	test.That(t, err, test.ShouldBeNil)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			test.That(t, dm2.GetDepth(x, y), test.ShouldAlmostEqual, dm.GetDepth(x, y))
			if dm.GetDepth(x, y) > 0 {
				test.That(t, img2.GetXY(x, y), test.ShouldResemble, img.GetXY(x, y))
			}
		}
	}

	uncolored := pointcloud.New()
	test.That(t, uncolored.Set(pointcloud.NewVector(0, 0, 1), pointcloud.NewBasicData()), test.ShouldBeNil)
	_, _, err = intrinsics.PointCloudToRGBD(uncolored)
	test.That(t, err, test.ShouldNotBeNil)
}
