// Package file implements a depth estimator that serves a precomputed depth map from disk.
package file

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/depthcloud/depth"
	"go.viam.com/depthcloud/logging"
	"go.viam.com/depthcloud/rimage"
	"go.viam.com/depthcloud/rimage/transform"
	"go.viam.com/depthcloud/utils"
)

// Model is the registered name of the file estimator.
const Model = "file"

func init() {
	depth.RegisterEstimator(Model, depth.Registration{
		AttributeMapConverter: depth.ConvertAttributes[Config],
		Constructor: func(ctx context.Context, conf depth.Validator, logger logging.Logger) (depth.Estimator, error) {
			newConf, err := depth.NativeConfig[*Config](conf)
			if err != nil {
				return nil, err
			}
			return New(newConf, logger)
		},
	})
}

// Config is the attributes of a file estimator.
type Config struct {
	Path          string  `json:"path"`
	UnitsPerValue float64 `json:"units_per_value,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Path == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "path")
	}
	if cfg.UnitsPerValue < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("units_per_value must be positive, got %v", cfg.UnitsPerValue))
	}
	return nil
}

type fileEstimator struct {
	dm     *rimage.DepthMap
	path   string
	logger logging.Logger
}

// New reads the depth map named by the config. The map is read once and a copy is
// returned from every Infer.
func New(conf *Config, logger logging.Logger) (depth.Estimator, error) {
	dm, err := rimage.ParseDepthMap(conf.Path)
	if err != nil {
		return nil, err
	}
	if conf.UnitsPerValue != 0 && conf.UnitsPerValue != 1 {
		dm = dm.Scale(conf.UnitsPerValue)
	}
	logger.Debugw("loaded depth map", "path", conf.Path, "width", dm.Width(), "height", dm.Height())
	return &fileEstimator{dm: dm, path: conf.Path, logger: logger}, nil
}

func (fe *fileEstimator) Infer(ctx context.Context, img *rimage.Image) (*rimage.DepthMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img.Bounds() != fe.dm.Bounds() {
		return nil, errors.Wrapf(transform.ErrDimensionMismatch, "depth map %q is %dx%d but image is %dx%d",
			fe.path, fe.dm.Width(), fe.dm.Height(), img.Width(), img.Height())
	}
	return fe.dm.Clone(), nil
}

func (fe *fileEstimator) Close(ctx context.Context) error {
	return nil
}
