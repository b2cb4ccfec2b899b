package rimage

import (
	"bytes"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func testPattern() *Image {
	img := NewImage(4, 3)
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.SetXY(x, y, color.NRGBA{uint8(x * 60), uint8(y * 100), 200, 255})
		}
	}
	return img
}

func TestImageBasics(t *testing.T) {
	img := NewImage(2, 2)
	test.That(t, img.Bounds(), test.ShouldResemble, image.Rect(0, 0, 2, 2))
	test.That(t, img.GetXY(1, 1), test.ShouldResemble, color.NRGBA{0, 0, 0, 255})
	test.That(t, img.In(2, 0), test.ShouldBeFalse)
	test.That(t, img.At(5, 5), test.ShouldResemble, color.NRGBA{})

	img.SetXY(1, 0, color.NRGBA{10, 20, 30, 0})
	r, g, b := img.RGB255(1, 0)
	test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{10, 20, 30})
	test.That(t, img.GetXY(1, 0).A, test.ShouldEqual, uint8(255))

	clone := img.Clone()
	clone.SetXY(1, 0, color.NRGBA{1, 1, 1, 255})
	test.That(t, img.GetXY(1, 0).R, test.ShouldEqual, uint8(10))
}

func TestNewImageFromStdImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(5, 5, 8, 7))
	src.Set(6, 6, color.RGBA{255, 0, 0, 255})
	img := NewImageFromStdImage(src)
	test.That(t, img.Width(), test.ShouldEqual, 3)
	test.That(t, img.Height(), test.ShouldEqual, 2)
	test.That(t, img.GetXY(1, 1), test.ShouldResemble, color.NRGBA{255, 0, 0, 255})
}

func TestImageFileRoundTrip(t *testing.T) {
	img := testPattern()
	dir := t.TempDir()
	for _, name := range []string{"pattern.png", "pattern.bmp", "pattern.ppm", "pattern.tif"} {
		fn := filepath.Join(dir, name)
		test.That(t, img.WriteToFile(fn), test.ShouldBeNil)
		read, err := ReadImageFromFile(fn)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, read, test.ShouldResemble, img)
	}

	fn := filepath.Join(dir, "pattern.jpg")
	test.That(t, WriteImageToFile(fn, img), test.ShouldBeNil)
	read, err := ReadImageFromFile(fn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, read.Bounds(), test.ShouldResemble, img.Bounds())
}

func TestImageFileErrors(t *testing.T) {
	var buf bytes.Buffer
	test.That(t, EncodeImage(&buf, testPattern(), ".xyz"), test.ShouldNotBeNil)

	_, err := DecodeImage(bytes.NewReader([]byte("not an image")))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = ReadImageFromFile(filepath.Join(t.TempDir(), "missing.png"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEncodePPM(t *testing.T) {
	// the ppm encoder only takes RGBA, so other color models are converted first
	gray := image.NewGray(image.Rect(2, 3, 5, 5))
	gray.SetGray(3, 4, color.Gray{Y: 77})
	nrgba := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	nrgba.SetNRGBA(1, 1, color.NRGBA{10, 20, 30, 255})
	for _, img := range []image.Image{testPattern(), gray, nrgba} {
		var buf bytes.Buffer
		test.That(t, EncodeImage(&buf, img, ".PPM"), test.ShouldBeNil)
		decoded, err := DecodeImage(&buf)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, decoded.Width(), test.ShouldEqual, img.Bounds().Dx())
		test.That(t, decoded.Height(), test.ShouldEqual, img.Bounds().Dy())
	}

	var buf bytes.Buffer
	test.That(t, EncodeImage(&buf, gray, "ppm"), test.ShouldBeNil)
	decoded, err := DecodeImage(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, decoded.GetXY(1, 1), test.ShouldResemble, color.NRGBA{77, 77, 77, 255})
}

func TestCheckEncodable(t *testing.T) {
	for _, ext := range []string{".png", "jpg", ".JPEG", ".ppm", ".bmp", ".tif", ".gif"} {
		test.That(t, CheckEncodable(ext), test.ShouldBeNil)
	}
	for _, ext := range []string{".xyz", "", ".ply", ".webp"} {
		test.That(t, CheckEncodable(ext), test.ShouldNotBeNil)
	}
}
