// Package rimage holds the image and depth map types used throughout depthcloud along with
// the helpers that read, write, summarize, colorize and reshape them.
package rimage

import (
	"image"
	"image/color"
	"image/draw"
)

// Image is an 8-bit, three channel image. Alpha is always opaque.
type Image struct {
	data          []color.NRGBA
	width, height int
}

// NewImage returns a black image of the given size.
func NewImage(width, height int) *Image {
	img := &Image{
		data:   make([]color.NRGBA, width*height),
		width:  width,
		height: height,
	}
	for i := range img.data {
		img.data[i].A = 255
	}
	return img
}

// NewImageFromStdImage copies any image.Image into an Image, dropping alpha. The result
// always has its origin at (0, 0).
func NewImageFromStdImage(src image.Image) *Image {
	if img, ok := src.(*Image); ok {
		return img.Clone()
	}
	bounds := src.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, draw.Src)

	img := NewImage(bounds.Dx(), bounds.Dy())
	for y := 0; y < img.height; y++ {
		for x := 0; x < img.width; x++ {
			c := nrgba.NRGBAAt(x, y)
			img.data[img.kxy(x, y)] = color.NRGBA{c.R, c.G, c.B, 255}
		}
	}
	return img
}

func (i *Image) kxy(x, y int) int {
	return (y * i.width) + x
}

// ColorModel returns the NRGBA color model.
func (i *Image) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds returns the rectangle (0, 0, width, height).
func (i *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.width, i.height)
}

// Width returns the width in pixels.
func (i *Image) Width() int {
	return i.width
}

// Height returns the height in pixels.
func (i *Image) Height() int {
	return i.height
}

// In returns whether the given pixel lies inside the image.
func (i *Image) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < i.width && y < i.height
}

// At implements image.Image.
func (i *Image) At(x, y int) color.Color {
	if !i.In(x, y) {
		return color.NRGBA{}
	}
	return i.data[i.kxy(x, y)]
}

// GetXY returns the color at the given pixel.
func (i *Image) GetXY(x, y int) color.NRGBA {
	return i.data[i.kxy(x, y)]
}

// SetXY sets the color at the given pixel. Images handed to the rest of the pipeline are
// treated as read only; SetXY is meant for building new images.
func (i *Image) SetXY(x, y int, c color.NRGBA) {
	c.A = 255
	i.data[i.kxy(x, y)] = c
}

// Clone returns a deep copy of the image.
func (i *Image) Clone() *Image {
	data := make([]color.NRGBA, len(i.data))
	copy(data, i.data)
	return &Image{data: data, width: i.width, height: i.height}
}

// RGB255 returns the red, green and blue components at the given pixel.
func (i *Image) RGB255(x, y int) (uint8, uint8, uint8) {
	c := i.data[i.kxy(x, y)]
	return c.R, c.G, c.B
}

// WriteToFile writes the image to the given file, picking the format by extension.
func (i *Image) WriteToFile(fn string) error {
	return WriteImageToFile(fn, i)
}
