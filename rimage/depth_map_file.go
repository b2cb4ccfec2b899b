package rimage

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

const maxDepthMapSide = 100000

func readNext(r io.Reader) (uint64, error) {
	data := make([]byte, 8)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

// ParseDepthMap reads a depth map from a file. Files ending in .gz are gunzipped, .png
// files are read as 16-bit grayscale with one unit per value.
func ParseDepthMap(fn string) (*DepthMap, error) {
	if strings.EqualFold(filepath.Ext(fn), ".png") {
		img, err := ReadStdImageFromFile(fn)
		if err != nil {
			return nil, err
		}
		return ConvertImageToDepthMap(img, 1)
	}

	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var r io.Reader = f
	if strings.EqualFold(filepath.Ext(fn), ".gz") {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(gr.Close)
		r = gr
	}

	dm, err := ReadDepthMap(bufio.NewReader(r))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read depth map %q", fn)
	}
	return dm, nil
}

// ReadDepthMap reads the binary depth map format: little endian int64 width and height
// followed by width*height float64 values in row-major order.
func ReadDepthMap(r io.Reader) (*DepthMap, error) {
	rawWidth, err := readNext(r)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read width")
	}
	rawHeight, err := readNext(r)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read height")
	}
	width, height := int(int64(rawWidth)), int(int64(rawHeight))
	if width <= 0 || width >= maxDepthMapSide || height <= 0 || height >= maxDepthMapSide {
		return nil, errors.Errorf("bad width or height for depth map %v %v", width, height)
	}

	dm := NewEmptyDepthMap(width, height)
	for i := range dm.data {
		bits, err := readNext(r)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot read value %d of %d", i, len(dm.data))
		}
		dm.data[i] = math.Float64frombits(bits)
	}
	return dm, nil
}

// WriteTo writes the binary depth map format to out.
func (dm *DepthMap) WriteTo(out io.Writer) (int64, error) {
	buf := make([]byte, 8)
	var written int64
	put := func(v uint64) error {
		binary.LittleEndian.PutUint64(buf, v)
		n, err := out.Write(buf)
		written += int64(n)
		return err
	}

	if err := put(uint64(dm.width)); err != nil {
		return written, err
	}
	if err := put(uint64(dm.height)); err != nil {
		return written, err
	}
	for _, d := range dm.data {
		if err := put(math.Float64bits(d)); err != nil {
			return written, err
		}
	}
	return written, nil
}

// WriteToFile writes the depth map to fn. A .gz extension gzips the binary format, a
// .png extension writes 16-bit grayscale.
func (dm *DepthMap) WriteToFile(fn string) (err error) {
	if strings.EqualFold(filepath.Ext(fn), ".png") {
		return WriteImageToFile(fn, dm.ToGray16(1))
	}

	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	var out io.Writer = f
	if strings.EqualFold(filepath.Ext(fn), ".gz") {
		gout := gzip.NewWriter(f)
		defer func() {
			err = multierr.Combine(err, gout.Close())
		}()
		out = gout
	}

	bout := bufio.NewWriter(out)
	if _, err := dm.WriteTo(bout); err != nil {
		return err
	}
	return bout.Flush()
}

// ConvertImageToDepthMap turns a grayscale image into a depth map, multiplying each gray
// value by unitsPerValue. 16-bit images keep their full precision.
func ConvertImageToDepthMap(img image.Image, unitsPerValue float64) (*DepthMap, error) {
	if unitsPerValue <= 0 {
		return nil, errors.Errorf("units per value must be positive, got %v", unitsPerValue)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, errors.New("cannot convert an empty image to a depth map")
	}
	dm := NewEmptyDepthMap(bounds.Dx(), bounds.Dy())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			var v uint16
			switch typed := img.(type) {
			case *image.Gray16:
				v = typed.Gray16At(x+bounds.Min.X, y+bounds.Min.Y).Y
			case *image.Gray:
				v = uint16(typed.GrayAt(x+bounds.Min.X, y+bounds.Min.Y).Y)
			default:
				v = color.Gray16Model.Convert(img.At(x+bounds.Min.X, y+bounds.Min.Y)).(color.Gray16).Y
			}
			dm.Set(x, y, float64(v)*unitsPerValue)
		}
	}
	return dm, nil
}

// ToGray16 quantizes the depth map into a 16-bit grayscale image at unitsPerValue depth
// units per gray level. Invalid depth becomes 0, out of range depth saturates.
func (dm *DepthMap) ToGray16(unitsPerValue float64) *image.Gray16 {
	img := image.NewGray16(dm.Bounds())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			d := dm.GetDepth(x, y)
			if !IsValidDepth(d) {
				continue
			}
			v := math.Round(d / unitsPerValue)
			if v > math.MaxUint16 {
				v = math.MaxUint16
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v)})
		}
	}
	return img
}

// ReadStdImageFromFile decodes an image file without converting it, keeping 16-bit
// grayscale intact.
func ReadStdImageFromFile(path string) (image.Image, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode %q", path)
	}
	return img, nil
}
