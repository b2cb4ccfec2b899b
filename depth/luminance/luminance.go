// Package luminance implements an offline depth estimator that reads depth off image
// brightness. It is a heuristic, not a model: bright pixels are taken to be near.
package luminance

import (
	"context"
	"image"
	"image/color"
	"math"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"go.viam.com/depthcloud/depth"
	"go.viam.com/depthcloud/logging"
	"go.viam.com/depthcloud/rimage"
	"go.viam.com/depthcloud/utils"
)

// Model is the registered name of the luminance estimator.
const Model = "luminance"

const (
	defaultNear      = 1.0
	defaultFar       = 10.0
	defaultGamma     = 1.5
	defaultSmoothing = 8
)

func init() {
	depth.RegisterEstimator(Model, depth.Registration{
		AttributeMapConverter: depth.ConvertAttributes[Config],
		Constructor: func(ctx context.Context, conf depth.Validator, logger logging.Logger) (depth.Estimator, error) {
			newConf, err := depth.NativeConfig[*Config](conf)
			if err != nil {
				return nil, err
			}
			return New(*newConf, logger), nil
		},
	})
}

// Config is the attributes of a luminance estimator. Zero values select the defaults.
type Config struct {
	Near   float64 `json:"near,omitempty"`
	Far    float64 `json:"far,omitempty"`
	Gamma  float64 `json:"gamma,omitempty"`
	Invert bool    `json:"invert,omitempty"`
	// Smoothing is the factor the luminance is shrunk by before being scaled back up.
	// 1 disables smoothing.
	Smoothing int `json:"smoothing,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	withDefaults := cfg.withDefaults()
	if withDefaults.Near <= 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("near must be positive, got %v", cfg.Near))
	}
	if withDefaults.Far <= withDefaults.Near {
		return utils.NewConfigValidationError(path,
			errors.Errorf("far (%v) must be greater than near (%v)", withDefaults.Far, withDefaults.Near))
	}
	if withDefaults.Gamma < 0.1 {
		return utils.NewConfigValidationError(path, errors.Errorf("gamma must be at least 0.1, got %v", cfg.Gamma))
	}
	if cfg.Smoothing < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("smoothing cannot be negative, got %d", cfg.Smoothing))
	}
	return nil
}

func (cfg Config) withDefaults() Config {
	if cfg.Near == 0 {
		cfg.Near = defaultNear
	}
	if cfg.Far == 0 {
		cfg.Far = defaultFar
	}
	if cfg.Gamma == 0 {
		cfg.Gamma = defaultGamma
	}
	if cfg.Smoothing == 0 {
		cfg.Smoothing = defaultSmoothing
	}
	return cfg
}

type luminanceEstimator struct {
	cfg    Config
	logger logging.Logger
}

// New returns a luminance estimator.
func New(conf Config, logger logging.Logger) depth.Estimator {
	return &luminanceEstimator{cfg: conf.withDefaults(), logger: logger}
}

func (le *luminanceEstimator) Infer(ctx context.Context, img *rimage.Image) (*rimage.DepthMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	width, height := img.Width(), img.Height()
	if width == 0 || height == 0 {
		return nil, errors.New("cannot estimate depth of an empty image")
	}
	lum := smooth(Luminance(img), le.cfg.Smoothing)

	dm := rimage.NewEmptyDepthMap(width, height)
	span := le.cfg.Far - le.cfg.Near
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			t := math.Pow(float64(lum.Gray16At(x, y).Y)/math.MaxUint16, le.cfg.Gamma)
			if le.cfg.Invert {
				dm.Set(x, y, le.cfg.Near+t*span)
			} else {
				dm.Set(x, y, le.cfg.Far-t*span)
			}
		}
	}
	le.logger.Debugw("estimated depth from luminance", "width", width, "height", height, "invert", le.cfg.Invert)
	return dm, nil
}

func (le *luminanceEstimator) Close(ctx context.Context) error {
	return nil
}

// Luminance converts an image to 16-bit grayscale using the Rec. 601 luma weights.
func Luminance(img *rimage.Image) *image.Gray16 {
	gray := image.NewGray16(image.Rect(0, 0, img.Width(), img.Height()))
	for y := 0; y < img.Height(); y++ {
		for x := 0; x < img.Width(); x++ {
			r, g, b := img.RGB255(x, y)
			l := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) * 257
			gray.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(math.Min(l, math.MaxUint16)))})
		}
	}
	return gray
}

// smooth blurs gray by shrinking it factor times and scaling it back up.
func smooth(gray *image.Gray16, factor int) *image.Gray16 {
	bounds := gray.Bounds()
	if factor <= 1 || bounds.Dx() < 2*factor || bounds.Dy() < 2*factor {
		return gray
	}
	small := resize.Resize(uint(bounds.Dx()/factor), uint(bounds.Dy()/factor), gray, resize.Bilinear)
	back := resize.Resize(uint(bounds.Dx()), uint(bounds.Dy()), small, resize.Bilinear)
	if g16, ok := back.(*image.Gray16); ok && g16.Bounds().Min == (image.Point{}) {
		return g16
	}
	out := image.NewGray16(bounds)
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			out.Set(x, y, back.At(back.Bounds().Min.X+x, back.Bounds().Min.Y+y))
		}
	}
	return out
}
