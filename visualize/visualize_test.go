package visualize

import (
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/depthcloud/rimage"
)

func rampDepth(width, height int) *rimage.DepthMap {
	dm := rimage.NewEmptyDepthMap(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dm.Set(x, y, 1+float64(x+y))
		}
	}
	return dm
}

func redImage(width, height int) *rimage.Image {
	img := rimage.NewImage(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetXY(x, y, color.NRGBA{255, 0, 0, 255})
		}
	}
	return img
}

func TestCompare2D(t *testing.T) {
	colored, err := rimage.Colorize(rampDepth(40, 30), rimage.DefaultColorizeOptions())
	test.That(t, err, test.ShouldBeNil)
	images := []image.Image{redImage(40, 30), colored}

	fn := filepath.Join(t.TempDir(), "comparison.png")
	test.That(t, Compare2D(images, []string{"Original Image", "Depth Map"}, fn), test.ShouldBeNil)

	out, err := rimage.ReadImageFromFile(fn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Width(), test.ShouldEqual, 15*compareDPI)
	test.That(t, out.Height(), test.ShouldEqual, 7*compareDPI)

	// the left tile shows the red image
	foundRed := false
	for x := 0; x < out.Width()/2 && !foundRed; x++ {
		r, g, b := out.RGB255(x, out.Height()/2)
		foundRed = r == 255 && g == 0 && b == 0
	}
	test.That(t, foundRed, test.ShouldBeTrue)
}

func TestCompare2DErrors(t *testing.T) {
	_, err := RenderComparison(nil, nil)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = RenderComparison([]image.Image{redImage(2, 2)}, []string{"a", "b"})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = RenderComparison([]image.Image{image.NewNRGBA(image.Rect(0, 0, 0, 0))}, []string{"empty"})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSurfaceGrid(t *testing.T) {
	dm := rampDepth(31, 16)
	grid, err := newSurfaceGrid(dm, 15)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, grid.cols, test.ShouldEqual, 3)
	test.That(t, grid.rows, test.ShouldEqual, 2)
	test.That(t, grid.depth[1][2], test.ShouldEqual, dm.GetDepth(30, 15))
	test.That(t, grid.minD, test.ShouldEqual, 1.0)
	test.That(t, grid.maxD, test.ShouldEqual, 46.0)
	test.That(t, grid.zScale, test.ShouldAlmostEqual, 0.5*45/3)

	// rows are flipped so the first image row is at the far end of the y axis
	test.That(t, grid.vertex(0, 0).y, test.ShouldAlmostEqual, boxY/2)
	test.That(t, grid.vertex(1, 0).y, test.ShouldAlmostEqual, -boxY/2)
	test.That(t, grid.vertex(0, 0).z, test.ShouldAlmostEqual, -boxZ/2)
	test.That(t, grid.vertex(1, 2).z, test.ShouldAlmostEqual, boxZ/2)

	_, err = newSurfaceGrid(rimage.NewEmptyDepthMap(4, 4), 2)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCameraProjection(t *testing.T) {
	cam := newCamera(90, 0)
	// looking straight down, z points at the viewer
	_, _, towards := cam.project(vertex{z: 1})
	test.That(t, towards, test.ShouldAlmostEqual, 1)

	cam = newCamera(0, -45)
	u, v, _ := cam.project(vertex{x: math.Sqrt2 / 2, y: math.Sqrt2 / 2})
	test.That(t, u, test.ShouldAlmostEqual, 1)
	test.That(t, v, test.ShouldAlmostEqual, 0)
}

func TestSurface3D(t *testing.T) {
	dm := rampDepth(60, 45)
	fn := filepath.Join(t.TempDir(), "surface.png")
	opts := SurfaceOptions{DownsampleFactor: 5, Elevation: 30, Azimuth: -45, Width: 600, Height: 400}
	test.That(t, Surface3D(redImage(60, 45), dm, opts, fn), test.ShouldBeNil)

	out, err := rimage.ReadImageFromFile(fn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Width(), test.ShouldEqual, 600)
	test.That(t, out.Height(), test.ShouldEqual, 400)
	r, g, b := out.RGB255(int(600*0.82/2), int(400*0.55))
	test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{255, 0, 0})

	// without an image the faces come from the colormap
	rendered, err := RenderSurface(nil, dm, opts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rendered.Bounds().Dx(), test.ShouldEqual, 600)
}

func TestSurface3DErrors(t *testing.T) {
	dm := rampDepth(10, 10)
	_, err := RenderSurface(redImage(5, 5), dm, SurfaceOptions{})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = RenderSurface(nil, dm, SurfaceOptions{DownsampleFactor: -1})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = RenderSurface(nil, dm, SurfaceOptions{Colormap: "jet"})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = RenderSurface(nil, nil, SurfaceOptions{})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSurfaceHasNoSeams(t *testing.T) {
	opts := SurfaceOptions{DownsampleFactor: 5, Elevation: 30, Azimuth: -45, Width: 600, Height: 400}
	out, err := RenderSurface(redImage(60, 45), rampDepth(60, 45), opts)
	test.That(t, err, test.ShouldBeNil)

	cx, cy := int(600*0.82/2), int(400*0.55)
	tinted := 0
	for y := cy - 15; y < cy+15; y++ {
		for x := cx - 20; x < cx+20; x++ {
			r, g, b, _ := out.At(x, y).RGBA()
			if r>>8 != 255 || g>>8 != 0 || b>>8 != 0 {
				tinted++
			}
		}
	}
	test.That(t, tinted, test.ShouldEqual, 0)
}

func TestFillPolygonSharedEdge(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 20, 20))
	blue := color.NRGBA{0, 0, 255, 255}
	// two triangles splitting a square along a diagonal, in opposite winding
	fillPolygon(dst, [][2]float64{{2.3, 3.1}, {17.6, 3.1}, {17.6, 16.8}}, blue)
	fillPolygon(dst, [][2]float64{{17.6, 16.8}, {2.3, 16.8}, {2.3, 3.1}}, blue)
	for y := 4; y < 16; y++ {
		for x := 3; x < 17; x++ {
			test.That(t, dst.RGBAAt(x, y), test.ShouldResemble, color.RGBA{0, 0, 255, 255})
		}
	}
	test.That(t, dst.RGBAAt(1, 10), test.ShouldResemble, color.RGBA{})
	test.That(t, dst.RGBAAt(10, 18), test.ShouldResemble, color.RGBA{})

	// out of bounds vertices are clipped
	fillPolygon(dst, [][2]float64{{-5, -5}, {30, -5}, {30, 30}, {-5, 30}}, blue)
	test.That(t, dst.RGBAAt(0, 0), test.ShouldResemble, color.RGBA{0, 0, 255, 255})
	test.That(t, dst.RGBAAt(19, 19), test.ShouldResemble, color.RGBA{0, 0, 255, 255})
}

func TestCompareKeepsAspect(t *testing.T) {
	for _, size := range []image.Point{{40, 40}, {80, 20}, {20, 60}} {
		colored, err := rimage.Colorize(rampDepth(size.X, size.Y), rimage.DefaultColorizeOptions())
		test.That(t, err, test.ShouldBeNil)
		out, err := RenderComparison([]image.Image{redImage(size.X, size.Y), colored}, []string{"a", "b"})
		test.That(t, err, test.ShouldBeNil)

		// measure the red block in the left tile
		minX, minY, maxX, maxY := math.MaxInt, math.MaxInt, -1, -1
		bounds := out.Bounds()
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Min.X+bounds.Dx()/2; x++ {
				r, g, b, _ := out.At(x, y).RGBA()
				if r>>8 == 255 && g>>8 == 0 && b>>8 == 0 {
					minX, maxX = min(minX, x), max(maxX, x)
					minY, maxY = min(minY, y), max(maxY, y)
				}
			}
		}
		test.That(t, maxX, test.ShouldBeGreaterThan, minX)
		w, h := float64(maxX-minX+1), float64(maxY-minY+1)
		test.That(t, w/h, test.ShouldAlmostEqual, float64(size.X)/float64(size.Y), 0.05*float64(size.X)/float64(size.Y))
	}
}
