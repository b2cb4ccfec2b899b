// Package visualize renders depth results to static images: a side by side comparison of
// images and a 3D surface view of a depth map.
package visualize

import (
	"image"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"go.viam.com/depthcloud/rimage"
)

const (
	compareWidth  = 15 * vg.Inch
	compareHeight = 7 * vg.Inch
	compareDPI    = 96
)

// RenderComparison lays the images out in one row, each under its title and without axes.
func RenderComparison(images []image.Image, titles []string) (image.Image, error) {
	if len(images) == 0 {
		return nil, errors.New("nothing to compare")
	}
	if len(images) != len(titles) {
		return nil, errors.Errorf("got %d images but %d titles", len(images), len(titles))
	}

	row := make([]*plot.Plot, 0, len(images))
	for i, img := range images {
		if img == nil || img.Bounds().Empty() {
			return nil, errors.Errorf("image %d (%q) is empty", i, titles[i])
		}
		bounds := img.Bounds()
		p := plot.New()
		p.Title.Text = titles[i]
		p.HideAxes()
		p.Add(plotter.NewImage(img, 0, 0, float64(bounds.Dx()), float64(bounds.Dy())))
		row = append(row, p)
	}

	canvas := vgimg.NewWith(vgimg.UseWH(compareWidth, compareHeight), vgimg.UseDPI(compareDPI))
	dc := draw.New(canvas)
	tiles := draw.Tiles{
		Rows:      1,
		Cols:      len(row),
		PadX:      vg.Millimeter * 4,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}
	canvases := plot.Align([][]*plot.Plot{row}, tiles, dc)
	for i, p := range row {
		fitAspect(p, p.DataCanvas(canvases[0][i]), images[i].Bounds())
		p.Draw(canvases[0][i])
	}
	return canvas.Image(), nil
}

// fitAspect widens one axis range of p so the image keeps its aspect ratio inside da,
// centered with blank margins.
func fitAspect(p *plot.Plot, da draw.Canvas, bounds image.Rectangle) {
	areaW, areaH := float64(da.Max.X-da.Min.X), float64(da.Max.Y-da.Min.Y)
	if areaW <= 0 || areaH <= 0 {
		return
	}
	imgW, imgH := float64(bounds.Dx()), float64(bounds.Dy())
	p.X.Min, p.X.Max = 0, imgW
	p.Y.Min, p.Y.Max = 0, imgH
	if imgW/imgH > areaW/areaH {
		pad := (imgW*areaH/areaW - imgH) / 2
		p.Y.Min, p.Y.Max = -pad, imgH+pad
	} else {
		pad := (imgH*areaW/areaH - imgW) / 2
		p.X.Min, p.X.Max = -pad, imgW+pad
	}
}

// Compare2D renders the comparison and writes it to path, picking the format by extension.
func Compare2D(images []image.Image, titles []string, path string) error {
	img, err := RenderComparison(images, titles)
	if err != nil {
		return err
	}
	return rimage.WriteImageToFile(path, img)
}
