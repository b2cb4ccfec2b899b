package rimage

import (
	"image"
	"image/color"
	"image/draw"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	_ "golang.org/x/image/bmp"  // register bmp
	_ "golang.org/x/image/tiff" // register tiff
	_ "golang.org/x/image/webp" // register webp
)

// DecodeImage reads any registered image format (png, jpeg, gif, bmp, tiff, webp, ppm),
// honoring EXIF orientation.
func DecodeImage(r io.Reader) (*Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "error decoding image")
	}
	return NewImageFromStdImage(img), nil
}

// ReadImageFromFile reads an image from the given file.
func ReadImageFromFile(path string) (*Image, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	img, err := DecodeImage(f)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read image %q", path)
	}
	return img, nil
}

// CheckEncodable returns an error unless EncodeImage can write the format named by ext.
func CheckEncodable(ext string) error {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "ppm" {
		return nil
	}
	if _, err := imaging.FormatFromExtension(ext); err != nil {
		return errors.Wrapf(err, "cannot encode image as %q", ext)
	}
	return nil
}

// EncodeImage writes img to w in the format named by ext (e.g. ".png" or "ppm").
func EncodeImage(w io.Writer, img image.Image, ext string) error {
	if err := CheckEncodable(ext); err != nil {
		return err
	}
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "ppm" {
		return ppm.Encode(w, toRGBA(img))
	}
	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return err
	}
	return imaging.Encode(w, img, format)
}

// toRGBA returns img as an *image.RGBA, the only color model the ppm encoder accepts.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.ColorModel() == color.RGBAModel {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}

// WriteImageToFile writes the image to the given file, picking the format by extension.
func WriteImageToFile(path string, img image.Image) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return EncodeImage(f, img, filepath.Ext(path))
}
