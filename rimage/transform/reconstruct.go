package transform

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/depthcloud/pointcloud"
	"go.viam.com/depthcloud/rimage"
)

// DefaultFocalLength is the focal length, in pixels, assumed for images whose camera is
// unknown. It is not derived from the image and is only an approximation.
const DefaultFocalLength = 525.0

// DefaultTruncationPercentile is the depth percentile at and beyond which pixels are dropped.
const DefaultTruncationPercentile = 95.0

// ErrDegenerateDepth is returned when the truncation threshold leaves no usable depth,
// e.g. for an all-zero depth map.
var ErrDegenerateDepth = errors.New("degenerate depth map")

// ReconstructionConfig controls Reconstruct. Zero values select the defaults.
type ReconstructionConfig struct {
	FocalLength          float64
	TruncationPercentile float64
	DepthScale           float64
}

func (cfg ReconstructionConfig) withDefaults() ReconstructionConfig {
	if cfg.FocalLength == 0 {
		cfg.FocalLength = DefaultFocalLength
	}
	if cfg.TruncationPercentile == 0 {
		cfg.TruncationPercentile = DefaultTruncationPercentile
	}
	if cfg.DepthScale == 0 {
		cfg.DepthScale = 1
	}
	return cfg
}

// TruncationThreshold returns the depth at and beyond which pixels are dropped: the given
// percentile of every finite value in the map, divided by depthScale.
func TruncationThreshold(dm *rimage.DepthMap, percentile, depthScale float64) (float64, error) {
	threshold, err := dm.Percentile(percentile)
	if err != nil {
		return 0, errors.Wrap(ErrDegenerateDepth, err.Error())
	}
	threshold /= depthScale
	if threshold <= 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return 0, errors.Wrapf(ErrDegenerateDepth, "truncation threshold %v is not positive", threshold)
	}
	return threshold, nil
}

// Reconstruct back-projects an image and its pixel-aligned depth map into a colored point
// cloud. Intrinsics are approximated from the image size and focal length, depth at or
// beyond the truncation percentile is dropped along with zero or invalid depth, and the
// result is flipped by pointcloud.FlipYZ so y points up and the camera looks down -z.
func Reconstruct(
	ctx context.Context,
	img *rimage.Image,
	dm *rimage.DepthMap,
	cfg ReconstructionConfig,
) (pointcloud.PointCloud, error) {
	_, span := trace.StartSpan(ctx, "transform::Reconstruct")
	defer span.End()

	if img == nil || dm == nil {
		return nil, errors.New("reconstruction needs both an image and a depth map")
	}
	if img.Bounds() != dm.Bounds() {
		return nil, errors.Wrapf(ErrDimensionMismatch, "Depth(%d,%d) != Color(%d,%d)",
			dm.Width(), dm.Height(), img.Width(), img.Height())
	}
	cfg = cfg.withDefaults()
	if cfg.DepthScale < 0 {
		return nil, errors.Errorf("depth scale must be positive, got %v", cfg.DepthScale)
	}
	if cfg.TruncationPercentile < 0 || cfg.TruncationPercentile > 100 {
		return nil, errors.Errorf("truncation percentile must be in (0, 100], got %v", cfg.TruncationPercentile)
	}

	threshold, err := TruncationThreshold(dm, cfg.TruncationPercentile, cfg.DepthScale)
	if err != nil {
		return nil, err
	}
	intrinsics := NewApproximateIntrinsics(img.Width(), img.Height(), cfg.FocalLength)
	cloud, err := intrinsics.RGBDToPointCloud(img, dm,
		WithDepthScale(cfg.DepthScale),
		WithDepthTruncation(threshold),
	)
	if err != nil {
		return nil, err
	}
	span.AddAttributes(
		trace.Float64Attribute("threshold", threshold),
		trace.Int64Attribute("points", int64(cloud.Size())),
	)
	return pointcloud.ApplyTransform(cloud, pointcloud.FlipYZ())
}

// ReconstructWithFocalLength is Reconstruct with default truncation and depth scale.
func ReconstructWithFocalLength(
	img *rimage.Image,
	dm *rimage.DepthMap,
	focalLength float64,
) (pointcloud.PointCloud, error) {
	if focalLength <= 0 {
		return nil, NewNoIntrinsicsError("focal length must be positive")
	}
	return Reconstruct(context.Background(), img, dm, ReconstructionConfig{FocalLength: focalLength})
}
