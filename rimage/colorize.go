package rimage

import (
	"image/color"
	"math"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// Colormap maps t in [0, 1] to a color.
type Colormap func(t float64) color.NRGBA

type gradientStop struct {
	col colorful.Color
	pos float64
}

type gradient []gradientStop

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

func newGradient(hexes ...string) gradient {
	g := make(gradient, 0, len(hexes))
	for i, h := range hexes {
		g = append(g, gradientStop{col: mustHex(h), pos: float64(i) / float64(len(hexes)-1)})
	}
	return g
}

// at blends the two stops surrounding t in Lab space.
func (g gradient) at(t float64) color.NRGBA {
	t = clamp01(t)
	idx := sort.Search(len(g), func(i int) bool { return g[i].pos >= t })
	if g[idx].pos == t {
		return toNRGBA(g[idx].col)
	}
	lo, hi := g[idx-1], g[idx]
	return toNRGBA(lo.col.BlendLab(hi.col, (t-lo.pos)/(hi.pos-lo.pos)).Clamped())
}

func toNRGBA(c colorful.Color) color.NRGBA {
	r, g, b := c.RGB255()
	return color.NRGBA{r, g, b, 255}
}

func clamp01(t float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

var (
	viridis = newGradient(
		"#440154", "#482878", "#3e4989", "#31688e", "#26828e",
		"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
	)
	magma = newGradient(
		"#000004", "#180f3d", "#440f76", "#721f81", "#9e2f7f",
		"#cd4071", "#f1605d", "#fd9668", "#feca8d", "#fcfdbf",
	)
)

func gray(t float64) color.NRGBA {
	v := uint8(math.Round(clamp01(t) * 255))
	return color.NRGBA{v, v, v, 255}
}

var colormaps = map[string]Colormap{
	"gray":    gray,
	"gray_r":  func(t float64) color.NRGBA { return gray(1 - clamp01(t)) },
	"viridis": viridis.at,
	"magma":   magma.at,
}

// ColormapNames lists the supported colormaps.
func ColormapNames() []string {
	names := make([]string, 0, len(colormaps))
	for name := range colormaps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ColormapByName looks up a colormap, case insensitively.
func ColormapByName(name string) (Colormap, error) {
	cm, ok := colormaps[strings.ToLower(name)]
	if !ok {
		return nil, errors.Errorf("unknown colormap %q, expected one of %v", name, ColormapNames())
	}
	return cm, nil
}

// ColorizeOptions controls how Colorize maps depth to color. VMin and VMax fix the range
// when set; otherwise they come from the LowPercentile and HighPercentile of valid depth.
type ColorizeOptions struct {
	VMin           *float64
	VMax           *float64
	LowPercentile  float64
	HighPercentile float64
	Colormap       string
	Background     color.NRGBA
}

// DefaultColorizeOptions returns a 2nd to 85th percentile range over gray_r with invalid
// pixels painted mid gray.
func DefaultColorizeOptions() ColorizeOptions {
	return ColorizeOptions{
		LowPercentile:  2,
		HighPercentile: 85,
		Colormap:       "gray_r",
		Background:     color.NRGBA{128, 128, 128, 255},
	}
}

// Colorize maps every valid depth value to a color. Values are normalized against
// [vmin, vmax] and clipped, a degenerate range maps everything to the colormap's start.
// Pixels without depth take the background color.
func Colorize(dm *DepthMap, opts ColorizeOptions) (*Image, error) {
	if dm == nil || !dm.HasData() {
		return nil, errors.New("cannot colorize an empty depth map")
	}
	cm, err := ColormapByName(opts.Colormap)
	if err != nil {
		return nil, err
	}
	vmin, vmax, err := colorizeRange(dm, opts)
	if err != nil {
		return nil, err
	}

	img := NewImage(dm.Width(), dm.Height())
	for y := 0; y < dm.Height(); y++ {
		for x := 0; x < dm.Width(); x++ {
			d := dm.GetDepth(x, y)
			if !IsValidDepth(d) {
				img.SetXY(x, y, opts.Background)
				continue
			}
			t := 0.0
			if vmin != vmax {
				t = (d - vmin) / (vmax - vmin)
			}
			img.SetXY(x, y, cm(t))
		}
	}
	return img, nil
}

func colorizeRange(dm *DepthMap, opts ColorizeOptions) (float64, float64, error) {
	valid := dm.ValidValues()
	var vmin, vmax float64
	var err error
	switch {
	case opts.VMin != nil:
		vmin = *opts.VMin
	case len(valid) > 0:
		if vmin, err = Percentile(valid, opts.LowPercentile); err != nil {
			return 0, 0, errors.Wrap(err, "bad low percentile")
		}
	}
	switch {
	case opts.VMax != nil:
		vmax = *opts.VMax
	case len(valid) > 0:
		if vmax, err = Percentile(valid, opts.HighPercentile); err != nil {
			return 0, 0, errors.Wrap(err, "bad high percentile")
		}
	}
	return vmin, vmax, nil
}
