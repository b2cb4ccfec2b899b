// Package pipeline runs the depthcloud stages in order: load an image, estimate its depth,
// colorize and plot the depth, reconstruct a point cloud, save it and optionally view it.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"
	"gorgonia.org/tensor"

	"go.viam.com/depthcloud/config"
	"go.viam.com/depthcloud/depth"
	"go.viam.com/depthcloud/logging"
	"go.viam.com/depthcloud/pointcloud"
	"go.viam.com/depthcloud/rimage"
	"go.viam.com/depthcloud/rimage/transform"
	"go.viam.com/depthcloud/viewer"
	"go.viam.com/depthcloud/visualize"
)

// Comparison titles.
const (
	OriginalTitle = "Original Image"
	DepthTitle    = "Depth Map"
)

// Output records one file a stage wrote.
type Output struct {
	Stage    string
	Path     string
	Bytes    int64
	Duration time.Duration
}

// Result is everything a run produced.
type Result struct {
	Image   *rimage.Image
	Depth   *rimage.DepthMap
	Stats   rimage.DepthStats
	Cloud   pointcloud.PointCloud
	Outputs []Output
}

// Summary renders the outputs of the run as a table.
func (r *Result) Summary() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Stage", "Output", "Size", "Took"})
	for _, out := range r.Outputs {
		t.AppendRow(table.Row{out.Stage, out.Path, units.HumanSize(float64(out.Bytes)), units.HumanDuration(out.Duration)})
	}
	points := 0
	if r.Cloud != nil {
		points = r.Cloud.Size()
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d points", points), "", r.Stats.String()})
	return t.Render()
}

// Run builds the configured estimator and runs every stage with it.
func Run(ctx context.Context, cfg *config.Config, logger logging.Logger) (res *Result, err error) {
	est, err := depth.New(ctx, cfg.Estimator.Model, cfg.Estimator.Attributes, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, est.Close(ctx))
	}()
	return RunWithEstimator(ctx, cfg, est, logger)
}

// RunWithEstimator runs every stage, estimating depth with est. Any failing stage aborts
// the run.
func RunWithEstimator(
	ctx context.Context,
	cfg *config.Config,
	est depth.Estimator,
	logger logging.Logger,
) (*Result, error) {
	ctx, span := trace.StartSpan(ctx, "pipeline::Run")
	defer span.End()

	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "cannot create output directory %q", cfg.OutputDir)
	}

	r := &runner{cfg: cfg, logger: logger, res: &Result{}}
	stages := []struct {
		name string
		fn   func(ctx context.Context) (string, error)
	}{
		{"load image", r.loadImage},
		{"estimate depth", func(ctx context.Context) (string, error) { return r.estimateDepth(ctx, est) }},
		{"colorize depth", r.colorize},
		{"compare", r.compare},
		{"surface", r.surface},
		{"reconstruct", r.reconstruct},
	}
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.run(ctx, stage.name, stage.fn); err != nil {
			return nil, errors.Wrapf(err, "%s failed", stage.name)
		}
	}

	if cfg.Viewer.Enabled {
		if err := r.view(ctx); err != nil {
			return nil, errors.Wrap(err, "viewer failed")
		}
	}
	return r.res, nil
}

type runner struct {
	cfg     *config.Config
	logger  logging.Logger
	res     *Result
	colored *rimage.Image
}

// run times one stage in its own span and records the file it wrote, if any.
func (r *runner) run(ctx context.Context, name string, fn func(ctx context.Context) (string, error)) error {
	ctx, span := trace.StartSpan(ctx, "pipeline::"+strings.ReplaceAll(name, " ", "_"))
	defer span.End()

	start := time.Now()
	path, err := fn(ctx)
	if err != nil {
		span.SetStatus(trace.Status{Code: trace.StatusCodeUnknown, Message: err.Error()})
		return err
	}
	took := time.Since(start)
	r.logger.Debugw("stage done", "stage", name, "took", took)
	if path == "" {
		return nil
	}
	out := Output{Stage: name, Path: path, Duration: took}
	if info, err := os.Stat(path); err == nil {
		out.Bytes = info.Size()
	}
	span.AddAttributes(trace.StringAttribute("path", path), trace.Int64Attribute("bytes", out.Bytes))
	r.res.Outputs = append(r.res.Outputs, out)
	return nil
}

func (r *runner) loadImage(ctx context.Context) (string, error) {
	img, err := rimage.ReadImageFromFile(r.cfg.ImagePath)
	if err != nil {
		return "", err
	}
	r.logger.Infow("loaded image", "path", r.cfg.ImagePath, "width", img.Width(), "height", img.Height())
	r.res.Image = img
	return "", nil
}

func (r *runner) estimateDepth(ctx context.Context, est depth.Estimator) (string, error) {
	dm, err := depth.Infer(ctx, est, r.res.Image)
	if err != nil {
		return "", err
	}
	stats, err := dm.Stats()
	if err != nil {
		return "", errors.Wrap(transform.ErrDegenerateDepth, err.Error())
	}
	r.res.Depth = dm
	r.res.Stats = stats
	r.logger.Infow("estimated depth", "stats", stats.String())
	if r.logger.Desugar().Core().Enabled(logging.DEBUG.AsZap()) {
		var hist strings.Builder
		if err := dm.WriteHistogram(&hist, 10, 40); err == nil {
			r.logger.Debugf("depth histogram:\n%s", hist.String())
		}
	}
	if r.cfg.DepthFile == "" {
		return "", nil
	}
	path := r.cfg.OutputPath(r.cfg.DepthFile)
	return path, dm.WriteToFile(path)
}

func (r *runner) colorize(ctx context.Context) (string, error) {
	opts := rimage.DefaultColorizeOptions()
	opts.Colormap = r.cfg.Colormap
	colored, err := rimage.Colorize(r.res.Depth, opts)
	if err != nil {
		return "", err
	}
	r.colored = colored
	path := r.cfg.OutputPath(r.cfg.ColoredDepthFile)
	return path, rimage.WriteImageToFile(path, colored)
}

// depthGrid returns the colorized depth as the grid the comparison shows: single channel
// for the gray colormaps, three channels otherwise.
func (r *runner) depthGrid() *tensor.Dense {
	if name := strings.ToLower(r.cfg.Colormap); name != "gray" && name != "gray_r" {
		return rimage.ImageToTensor(r.colored)
	}
	gray := image.NewGray(r.colored.Bounds())
	for y := 0; y < r.colored.Height(); y++ {
		for x := 0; x < r.colored.Width(); x++ {
			v, _, _ := r.colored.RGB255(x, y)
			gray.Pix[gray.PixOffset(x, y)] = v
		}
	}
	return rimage.GrayToTensor(gray)
}

func (r *runner) compare(ctx context.Context) (string, error) {
	grids, err := rimage.UnifyDimensions([]*tensor.Dense{rimage.ImageToTensor(r.res.Image), r.depthGrid()})
	if err != nil {
		return "", err
	}
	images := make([]image.Image, 0, len(grids))
	for _, grid := range grids {
		img, err := rimage.TensorToImage(grid)
		if err != nil {
			return "", err
		}
		images = append(images, img)
	}
	path := r.cfg.OutputPath(r.cfg.ComparisonFile)
	return path, visualize.Compare2D(images, []string{OriginalTitle, DepthTitle}, path)
}

func (r *runner) surface(ctx context.Context) (string, error) {
	opts := visualize.DefaultSurfaceOptions()
	opts.DownsampleFactor = r.cfg.DownsampleFactor
	path := r.cfg.OutputPath(r.cfg.SurfaceFile)
	return path, visualize.Surface3D(r.res.Image, r.res.Depth, opts, path)
}

func (r *runner) reconstruct(ctx context.Context) (string, error) {
	cloud, err := transform.Reconstruct(ctx, r.res.Image, r.res.Depth, transform.ReconstructionConfig{
		FocalLength:          r.cfg.FocalLength,
		TruncationPercentile: r.cfg.TruncationPercentile,
		DepthScale:           r.cfg.DepthScale,
	})
	if err != nil {
		return "", err
	}
	r.res.Cloud = cloud
	r.logger.Infow("reconstructed point cloud", "points", cloud.Size(),
		"pixels", r.res.Image.Width()*r.res.Image.Height())
	path := r.cfg.OutputPath(r.cfg.PointCloudFile)
	return path, pointcloud.WriteToFile(cloud, path)
}

func (r *runner) view(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "pipeline::view")
	defer span.End()

	v, err := viewer.New(r.res.Cloud, viewer.Options{
		Address:   r.cfg.Viewer.Address,
		MaxPoints: r.cfg.Viewer.MaxPoints,
		VoxelSize: r.cfg.Viewer.VoxelSize,
		SavePath:  r.cfg.OutputPath(r.cfg.PointCloudFile),
	}, r.logger.Named("viewer"))
	if err != nil {
		return err
	}
	return v.Run(ctx)
}
