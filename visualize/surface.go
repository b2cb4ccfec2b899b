package visualize

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font/gofont/goregular"

	"go.viam.com/depthcloud/rimage"
)

var font *truetype.Font

func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

func drawString(dc *gg.Context, text string, x, y, ax, ay float64, c color.Color, size float64) {
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawStringAnchored(text, x, y, ax, ay)
}

// SurfaceOptions controls Surface3D. Zero values select the defaults.
type SurfaceOptions struct {
	// DownsampleFactor keeps every n-th row and column of the depth map.
	DownsampleFactor int
	// Elevation and Azimuth place the viewer, in degrees.
	Elevation float64
	Azimuth   float64
	Width     int
	Height    int
	Title     string
	// Colormap colors the colorbar, and the faces when there is no image.
	Colormap string
}

// DefaultSurfaceOptions returns the view used when nothing else is asked for.
func DefaultSurfaceOptions() SurfaceOptions {
	return SurfaceOptions{
		DownsampleFactor: 15,
		Elevation:        30,
		Azimuth:          -45,
		Width:            1200,
		Height:           800,
		Title:            "3D Depth Visualization",
		Colormap:         "viridis",
	}
}

func (opts SurfaceOptions) withDefaults() SurfaceOptions {
	def := DefaultSurfaceOptions()
	if opts.DownsampleFactor == 0 {
		opts.DownsampleFactor = def.DownsampleFactor
	}
	if opts.Width == 0 {
		opts.Width = def.Width
	}
	if opts.Height == 0 {
		opts.Height = def.Height
	}
	if opts.Title == "" {
		opts.Title = def.Title
	}
	if opts.Colormap == "" {
		opts.Colormap = def.Colormap
	}
	return opts
}

// vertex is a grid sample in box coordinates: each axis spans a fixed extent centered on 0.
type vertex struct {
	x, y, z float64
	valid   bool
}

type face struct {
	corners [4]vertex
	color   color.NRGBA
	depth   float64
}

// surfaceGrid is the downsampled depth map positioned in world space.
type surfaceGrid struct {
	rows, cols int
	depth      [][]float64
	minD, maxD float64
	zScale     float64
}

func newSurfaceGrid(dm *rimage.DepthMap, factor int) (*surfaceGrid, error) {
	g := &surfaceGrid{
		rows: (dm.Height() + factor - 1) / factor,
		cols: (dm.Width() + factor - 1) / factor,
		minD: math.Inf(1),
		maxD: math.Inf(-1),
	}
	g.depth = make([][]float64, g.rows)
	for i := range g.depth {
		g.depth[i] = make([]float64, g.cols)
		for j := range g.depth[i] {
			d := dm.GetDepth(j*factor, i*factor)
			g.depth[i][j] = d
			if rimage.IsValidDepth(d) {
				g.minD = math.Min(g.minD, d)
				g.maxD = math.Max(g.maxD, d)
			}
		}
	}
	if math.IsInf(g.minD, 1) {
		return nil, errors.New("depth map has no valid depth to plot")
	}
	g.zScale = 0.5 * (g.maxD - g.minD) / float64(max(g.rows, g.cols))
	return g, nil
}

// normalized maps depth into [0, 1] over the grid's range.
func (g *surfaceGrid) normalized(d float64) float64 {
	if g.maxD == g.minD {
		return 0
	}
	return (d - g.minD) / (g.maxD - g.minD)
}

// Box extents, matching a 4:4:3 plot box.
const (
	boxX = 1.0
	boxY = 1.0
	boxZ = 0.75
)

// vertex places grid sample (i, j) in the box. Rows are flipped so the top of the image
// is at the far end of the Y axis.
func (g *surfaceGrid) vertex(i, j int) vertex {
	d := g.depth[i][j]
	if !rimage.IsValidDepth(d) {
		return vertex{}
	}
	v := vertex{valid: true}
	if g.cols > 1 {
		v.x = (float64(j)/float64(g.cols-1) - 0.5) * boxX
	}
	if g.rows > 1 {
		v.y = (float64(g.rows-1-i)/float64(g.rows-1) - 0.5) * boxY
	}
	if zRange := (g.maxD - g.minD) * g.zScale; zRange > 0 {
		v.z = ((d-g.minD)*g.zScale/zRange - 0.5) * boxZ
	}
	return v
}

// camera projects box coordinates for a viewer at the given elevation and azimuth.
type camera struct {
	right, up, eye [3]float64
}

func newCamera(elevation, azimuth float64) camera {
	el := elevation * math.Pi / 180
	az := azimuth * math.Pi / 180
	return camera{
		eye:   [3]float64{math.Cos(el) * math.Cos(az), math.Cos(el) * math.Sin(az), math.Sin(el)},
		right: [3]float64{-math.Sin(az), math.Cos(az), 0},
		up:    [3]float64{-math.Sin(el) * math.Cos(az), -math.Sin(el) * math.Sin(az), math.Cos(el)},
	}
}

func dot(a [3]float64, v vertex) float64 {
	return a[0]*v.x + a[1]*v.y + a[2]*v.z
}

// project returns screen offsets (u right, v up) and the distance towards the viewer.
func (c camera) project(v vertex) (float64, float64, float64) {
	return dot(c.right, v), dot(c.up, v), dot(c.eye, v)
}

// RenderSurface draws the depth map as an unshaded surface seen from the configured
// viewpoint. Faces take the color of their image pixel, or of the colormap by depth when
// img is nil. Faces touching invalid depth are left out.
func RenderSurface(img *rimage.Image, dm *rimage.DepthMap, opts SurfaceOptions) (image.Image, error) {
	if dm == nil || !dm.HasData() {
		return nil, errors.New("cannot plot an empty depth map")
	}
	if img != nil && img.Bounds() != dm.Bounds() {
		return nil, errors.Errorf("image is %dx%d but depth map is %dx%d",
			img.Width(), img.Height(), dm.Width(), dm.Height())
	}
	opts = opts.withDefaults()
	if opts.DownsampleFactor < 1 {
		return nil, errors.Errorf("downsample factor must be at least 1, got %d", opts.DownsampleFactor)
	}
	cmap, err := rimage.ColormapByName(opts.Colormap)
	if err != nil {
		return nil, err
	}
	grid, err := newSurfaceGrid(dm, opts.DownsampleFactor)
	if err != nil {
		return nil, err
	}
	cam := newCamera(opts.Elevation, opts.Azimuth)

	faces := make([]face, 0, max(grid.rows-1, 1)*max(grid.cols-1, 1))
	for i := 0; i+1 < grid.rows; i++ {
		for j := 0; j+1 < grid.cols; j++ {
			f := face{corners: [4]vertex{
				grid.vertex(i, j), grid.vertex(i, j+1), grid.vertex(i+1, j+1), grid.vertex(i+1, j),
			}}
			complete := true
			for _, c := range f.corners {
				if !c.valid {
					complete = false
					break
				}
				_, _, towards := cam.project(c)
				f.depth += towards / 4
			}
			if !complete {
				continue
			}
			if img != nil {
				r, g, b := img.RGB255(j*opts.DownsampleFactor, i*opts.DownsampleFactor)
				f.color = color.NRGBA{r, g, b, 255}
			} else {
				f.color = cmap(grid.normalized(grid.depth[i][j]))
			}
			faces = append(faces, f)
		}
	}
	// painter's algorithm: farthest first
	sort.SliceStable(faces, func(a, b int) bool { return faces[a].depth < faces[b].depth })

	width, height := float64(opts.Width), float64(opts.Height)
	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	plotW := width * 0.82
	cx, cy := plotW/2, height*0.55
	scale := math.Min(plotW, height) * 0.62
	toScreen := func(v vertex) (float64, float64) {
		u, w, _ := cam.project(v)
		return cx + u*scale, cy - w*scale
	}

	drawBox(dc, toScreen)
	// faces are filled without anti-aliasing so shared edges leave no background seams
	canvas, ok := dc.Image().(*image.RGBA)
	if !ok {
		return nil, errors.Errorf("unexpected canvas type %T", dc.Image())
	}
	for _, f := range faces {
		var corners [4][2]float64
		for k, c := range f.corners {
			corners[k][0], corners[k][1] = toScreen(c)
		}
		fillPolygon(canvas, corners[:], f.color)
	}

	drawString(dc, opts.Title, plotW/2, height*0.05, 0.5, 0.5, color.Black, 22)
	drawColorbar(dc, cmap, grid.minD, grid.maxD, plotW+width*0.05, height*0.2, width*0.025, height*0.6)
	return dc.Image(), nil
}

// fillPolygon paints every pixel whose center lies inside the polygon (even-odd rule).
// Polygons sharing an edge cover each pixel along it exactly once.
func fillPolygon(dst *image.RGBA, pts [][2]float64, c color.NRGBA) {
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		minY = math.Min(minY, p[1])
		maxY = math.Max(maxY, p[1])
	}
	bounds := dst.Bounds()
	y0 := max(int(math.Ceil(minY-0.5)), bounds.Min.Y)
	y1 := min(int(math.Ceil(maxY-0.5)), bounds.Max.Y)
	xs := make([]float64, 0, len(pts))
	for y := y0; y < y1; y++ {
		yc := float64(y) + 0.5
		xs = xs[:0]
		for i := range pts {
			a, b := pts[i], pts[(i+1)%len(pts)]
			if a[1] > b[1] || (a[1] == b[1] && a[0] > b[0]) {
				a, b = b, a
			}
			if yc < a[1] || yc >= b[1] {
				continue
			}
			xs = append(xs, a[0]+(yc-a[1])*(b[0]-a[0])/(b[1]-a[1]))
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			x0 := max(int(math.Ceil(xs[i]-0.5)), bounds.Min.X)
			x1 := min(int(math.Ceil(xs[i+1]-0.5)), bounds.Max.X)
			for x := x0; x < x1; x++ {
				off := dst.PixOffset(x, y)
				dst.Pix[off], dst.Pix[off+1], dst.Pix[off+2], dst.Pix[off+3] = c.R, c.G, c.B, 255
			}
		}
	}
}

// drawBox draws the three labeled axes along the back edges of the plot box.
func drawBox(dc *gg.Context, toScreen func(vertex) (float64, float64)) {
	origin := vertex{x: -boxX / 2, y: -boxY / 2, z: -boxZ / 2}
	axes := []struct {
		end   vertex
		label string
	}{
		{vertex{x: boxX / 2, y: -boxY / 2, z: -boxZ / 2}, "Width"},
		{vertex{x: -boxX / 2, y: boxY / 2, z: -boxZ / 2}, "Height"},
		{vertex{x: -boxX / 2, y: -boxY / 2, z: boxZ / 2}, "Depth"},
	}
	ox, oy := toScreen(origin)
	dc.SetColor(color.Gray{Y: 90})
	dc.SetLineWidth(1)
	for _, axis := range axes {
		ex, ey := toScreen(axis.end)
		dc.DrawLine(ox, oy, ex, ey)
		dc.Stroke()
		drawString(dc, axis.label, ex+(ex-ox)*0.08, ey+(ey-oy)*0.08, 0.5, 0.5, color.Gray{Y: 60}, 14)
	}
}

func drawColorbar(dc *gg.Context, cmap rimage.Colormap, minD, maxD, x, y, w, h float64) {
	steps := int(math.Max(h, 1))
	for k := 0; k < steps; k++ {
		t := 1 - float64(k)/float64(steps)
		dc.SetColor(cmap(t))
		dc.DrawRectangle(x, y+float64(k), w, 1.5)
		dc.Fill()
	}
	dc.SetColor(color.Black)
	dc.SetLineWidth(1)
	dc.DrawRectangle(x, y, w, h)
	dc.Stroke()

	const ticks = 5
	for k := 0; k <= ticks; k++ {
		frac := float64(k) / ticks
		ty := y + h - frac*h
		dc.DrawLine(x+w, ty, x+w+5, ty)
		dc.Stroke()
		drawString(dc, fmt.Sprintf("%.3g", minD+frac*(maxD-minD)), x+w+8, ty, 0, 0.35, color.Black, 12)
	}
	dc.Push()
	dc.RotateAbout(-math.Pi/2, x+w+70, y+h/2)
	drawString(dc, "Depth Value", x+w+70, y+h/2, 0.5, 0.5, color.Black, 14)
	dc.Pop()
}

// Surface3D renders the depth map surface and writes it to path, picking the format by
// extension.
func Surface3D(img *rimage.Image, dm *rimage.DepthMap, opts SurfaceOptions, path string) error {
	rendered, err := RenderSurface(img, dm, opts)
	if err != nil {
		return err
	}
	return rimage.WriteImageToFile(path, rendered)
}
