package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ImageToTensor returns the image as an (H, W, 3) uint8 tensor.
func ImageToTensor(img *Image) *tensor.Dense {
	backing := make([]uint8, 0, img.Width()*img.Height()*3)
	for y := 0; y < img.Height(); y++ {
		for x := 0; x < img.Width(); x++ {
			r, g, b := img.RGB255(x, y)
			backing = append(backing, r, g, b)
		}
	}
	return tensor.New(tensor.WithShape(img.Height(), img.Width(), 3), tensor.WithBacking(backing))
}

// DepthMapToTensor returns the depth map as an (H, W) float64 tensor.
func DepthMapToTensor(dm *DepthMap) *tensor.Dense {
	return tensor.New(tensor.WithShape(dm.Height(), dm.Width()), tensor.WithBacking(dm.Values()))
}

// GrayToTensor returns a grayscale image as an (H, W) uint8 tensor.
func GrayToTensor(img *image.Gray) *tensor.Dense {
	bounds := img.Bounds()
	backing := make([]uint8, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			backing = append(backing, img.GrayAt(x, y).Y)
		}
	}
	return tensor.New(tensor.WithShape(bounds.Dy(), bounds.Dx()), tensor.WithBacking(backing))
}

// UnifyDimensions makes a list of grids displayable side by side: every (H, W) grid is
// replicated across three channels into a new (H, W, 3) tensor, (H, W, 3) grids are
// returned as is. Order and length are preserved. Any other shape is an error.
func UnifyDimensions(grids []*tensor.Dense) ([]*tensor.Dense, error) {
	unified := make([]*tensor.Dense, 0, len(grids))
	for i, grid := range grids {
		if grid == nil {
			return nil, errors.Errorf("grid %d is nil", i)
		}
		shape := grid.Shape()
		switch {
		case shape.Dims() == 3 && shape[2] == 3:
			unified = append(unified, grid)
		case shape.Dims() == 2:
			expanded, err := expandToThreeChannels(grid)
			if err != nil {
				return nil, errors.Wrapf(err, "cannot expand grid %d", i)
			}
			unified = append(unified, expanded)
		default:
			return nil, errors.Errorf("grid %d has shape %v, expected (H, W) or (H, W, 3)", i, shape)
		}
	}
	return unified, nil
}

func expandToThreeChannels(grid *tensor.Dense) (*tensor.Dense, error) {
	shape := grid.Shape()
	single, ok := grid.Clone().(*tensor.Dense)
	if !ok {
		return nil, errors.New("clone did not return a dense tensor")
	}
	if err := single.Reshape(shape[0], shape[1], 1); err != nil {
		return nil, err
	}
	repeated, err := tensor.Repeat(single, 2, 3)
	if err != nil {
		return nil, err
	}
	dense, ok := repeated.(*tensor.Dense)
	if !ok {
		return nil, errors.Errorf("expected *tensor.Dense but got %T", repeated)
	}
	return dense, nil
}

// TensorToImage renders an (H, W, 3) or (H, W) tensor of uint8 or float64 values in
// [0, 255] as an image. float64 values are rounded and clipped.
func TensorToImage(t *tensor.Dense) (*image.NRGBA, error) {
	shape := t.Shape()
	if shape.Dims() != 2 && !(shape.Dims() == 3 && shape[2] == 3) {
		return nil, errors.Errorf("cannot render tensor of shape %v as an image", shape)
	}
	height, width := shape[0], shape[1]
	channels := 1
	if shape.Dims() == 3 {
		channels = 3
	}

	var at func(i int) uint8
	switch data := t.Data().(type) {
	case []uint8:
		at = func(i int) uint8 { return data[i] }
	case []float64:
		at = func(i int) uint8 {
			v := math.Round(data[i])
			if math.IsNaN(v) || v < 0 {
				return 0
			}
			if v > 255 {
				return 255
			}
			return uint8(v)
		}
	default:
		return nil, errors.Errorf("cannot render tensor of type %v as an image", t.Dtype())
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			base := (y*width + x) * channels
			if channels == 1 {
				v := at(base)
				img.SetNRGBA(x, y, color.NRGBA{v, v, v, 255})
				continue
			}
			img.SetNRGBA(x, y, color.NRGBA{at(base), at(base + 1), at(base + 2), 255})
		}
	}
	return img, nil
}
