// Package main is the depthcloud command: it turns one RGB image into a depth map, plots
// and a point cloud.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"go.viam.com/depthcloud/config"
	"go.viam.com/depthcloud/depth"
	_ "go.viam.com/depthcloud/depth/register"
	"go.viam.com/depthcloud/logging"
	"go.viam.com/depthcloud/pipeline"
	"go.viam.com/depthcloud/rimage"
	"go.viam.com/depthcloud/utils"
)

const (
	flagConfig        = "config"
	flagImage         = "image"
	flagOutputDir     = "output-dir"
	flagFocalLength   = "focal-length"
	flagDownsample    = "downsample"
	flagPercentile    = "truncation-percentile"
	flagColormap      = "colormap"
	flagEstimator     = "estimator"
	flagEstimatorAttr = "estimator-attr"
	flagView          = "view"
	flagViewerAddress = "viewer-address"
	flagDebug         = "debug"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "depthcloud",
		Usage: "estimate depth from an image and reconstruct a point cloud",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:    flagImage,
				Aliases: []string{"i"},
				Usage:   "input image `PATH`",
			},
			&cli.StringFlag{
				Name:    flagOutputDir,
				Aliases: []string{"o"},
				Usage:   "directory outputs are written to",
			},
			&cli.Float64Flag{
				Name:  flagFocalLength,
				Usage: "approximate focal length in pixels",
			},
			&cli.IntFlag{
				Name:  flagDownsample,
				Usage: "keep every nth pixel in the surface plot",
			},
			&cli.Float64Flag{
				Name:  flagPercentile,
				Usage: "drop depth at or beyond this percentile",
			},
			&cli.StringFlag{
				Name:  flagColormap,
				Usage: fmt.Sprintf("colormap of the depth image, one of %v", rimage.ColormapNames()),
			},
			&cli.StringFlag{
				Name:  flagEstimator,
				Usage: fmt.Sprintf("depth estimator model, one of %v", depth.RegisteredModels()),
			},
			&cli.StringSliceFlag{
				Name:  flagEstimatorAttr,
				Usage: "estimator attribute as `KEY=VALUE`, repeatable",
			},
			&cli.BoolFlag{
				Name:  flagView,
				Usage: "serve the interactive point cloud viewer when done",
			},
			&cli.StringFlag{
				Name:  flagViewerAddress,
				Usage: "address the viewer listens on",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	logger := logging.NewLogger("depthcloud")
	if c.Bool(flagDebug) {
		logger = logging.NewDebugLogger("depthcloud")
	}
	logging.ReplaceGlobal(logger)

	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}
	logger.Debugf("configuration:\n%s", cfg.String())

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.Run(ctx, cfg, logger)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, res.Summary())
	return nil
}

// configFromFlags reads the config file, if any, and lets flags override it.
func configFromFlags(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet(flagImage) {
		cfg.ImagePath = c.String(flagImage)
	}
	if c.IsSet(flagOutputDir) {
		cfg.OutputDir = c.String(flagOutputDir)
	}
	if c.IsSet(flagFocalLength) {
		cfg.FocalLength = c.Float64(flagFocalLength)
	}
	if c.IsSet(flagDownsample) {
		cfg.DownsampleFactor = c.Int(flagDownsample)
	}
	if c.IsSet(flagPercentile) {
		cfg.TruncationPercentile = c.Float64(flagPercentile)
	}
	if c.IsSet(flagColormap) {
		cfg.Colormap = c.String(flagColormap)
	}
	if c.IsSet(flagEstimator) && c.String(flagEstimator) != cfg.Estimator.Model {
		cfg.Estimator.Model = c.String(flagEstimator)
		cfg.Estimator.Attributes = utils.AttributeMap{}
	}
	if pairs := c.StringSlice(flagEstimatorAttr); len(pairs) != 0 {
		attrs, err := utils.ParseAttributes(pairs)
		if err != nil {
			return nil, err
		}
		cfg.Estimator.Attributes = cfg.Estimator.Attributes.Merge(attrs)
	}
	if c.IsSet(flagView) {
		cfg.Viewer.Enabled = c.Bool(flagView)
	}
	if c.IsSet(flagViewerAddress) {
		cfg.Viewer.Address = c.String(flagViewerAddress)
	}
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	return cfg, nil
}
