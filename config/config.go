// Package config defines the configuration of a depthcloud run and how it is read from disk.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"

	"go.viam.com/depthcloud/depth"
	"go.viam.com/depthcloud/rimage"
	"go.viam.com/depthcloud/rimage/transform"
	"go.viam.com/depthcloud/utils"
)

// Defaults of a run.
const (
	DefaultImagePath        = "0001.png"
	DefaultDownsampleFactor = 15
	DefaultColormap         = "gray_r"
	DefaultViewerAddress    = "localhost:8090"
	DefaultViewerMaxPoints  = 100000
	DefaultEstimatorModel   = "luminance"

	DefaultColoredDepthFile = "output_colored.png"
	DefaultComparisonFile   = "comparison.png"
	DefaultSurfaceFile      = "surface.png"
	DefaultPointCloudFile   = "output_point_cloud.ply"
)

// Config describes one run: where the image comes from, how depth is estimated, how the
// scene is reconstructed and where the results go.
type Config struct {
	ImagePath string `json:"image_path"`
	OutputDir string `json:"output_dir,omitempty"`

	FocalLength          float64 `json:"focal_length,omitempty"`
	DownsampleFactor     int     `json:"downsample_factor,omitempty"`
	TruncationPercentile float64 `json:"truncation_percentile,omitempty"`
	DepthScale           float64 `json:"depth_scale,omitempty"`
	Colormap             string  `json:"colormap,omitempty"`

	ColoredDepthFile string `json:"colored_depth_file,omitempty"`
	ComparisonFile   string `json:"comparison_file,omitempty"`
	SurfaceFile      string `json:"surface_file,omitempty"`
	PointCloudFile   string `json:"point_cloud_file,omitempty"`
	// DepthFile, when set, also saves the raw depth map (.dat, .dat.gz or 16-bit .png).
	DepthFile string `json:"depth_file,omitempty"`

	Estimator Estimator `json:"estimator"`
	Viewer    Viewer    `json:"viewer"`

	ConfigFilePath string `json:"-"`
}

// Estimator picks the depth estimator model and its attributes.
type Estimator struct {
	Model      string             `json:"model"`
	Attributes utils.AttributeMap `json:"attributes,omitempty"`
}

// Viewer configures the interactive point cloud viewer.
type Viewer struct {
	Enabled   bool    `json:"enabled"`
	Address   string  `json:"address,omitempty"`
	MaxPoints int     `json:"max_points,omitempty"`
	VoxelSize float64 `json:"voxel_size,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ImagePath == "" {
		c.ImagePath = DefaultImagePath
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.FocalLength == 0 {
		c.FocalLength = transform.DefaultFocalLength
	}
	if c.DownsampleFactor == 0 {
		c.DownsampleFactor = DefaultDownsampleFactor
	}
	if c.TruncationPercentile == 0 {
		c.TruncationPercentile = transform.DefaultTruncationPercentile
	}
	if c.DepthScale == 0 {
		c.DepthScale = 1
	}
	if c.Colormap == "" {
		c.Colormap = DefaultColormap
	}
	if c.ColoredDepthFile == "" {
		c.ColoredDepthFile = DefaultColoredDepthFile
	}
	if c.ComparisonFile == "" {
		c.ComparisonFile = DefaultComparisonFile
	}
	if c.SurfaceFile == "" {
		c.SurfaceFile = DefaultSurfaceFile
	}
	if c.PointCloudFile == "" {
		c.PointCloudFile = DefaultPointCloudFile
	}
	if c.Estimator.Model == "" {
		c.Estimator.Model = DefaultEstimatorModel
	}
	if c.Estimator.Attributes == nil {
		c.Estimator.Attributes = utils.AttributeMap{}
	}
	if c.Viewer.Address == "" {
		c.Viewer.Address = DefaultViewerAddress
	}
	if c.Viewer.MaxPoints == 0 {
		c.Viewer.MaxPoints = DefaultViewerMaxPoints
	}
}

// Read reads a config from the given file. Environment variables in the file are expanded
// first, so "${HOME}/photos/0001.png" works as an image path.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %q", filePath)
	}
	cfg, err := FromReader(filePath, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromReader reads a config from the given reader and specifies where, if applicable, the
// file the reader originated from. Missing fields take their defaults and the result is
// validated.
func FromReader(originalPath string, r io.Reader) (*Config, error) {
	cfg := &Config{ConfigFilePath: originalPath}
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", originalPath)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	return cfg, nil
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

// Validate ensures all parts of the config are valid. Errors name the offending field
// under path.
func (c *Config) Validate(path string) error {
	if c.ImagePath == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "image_path")
	}
	if c.FocalLength <= 0 || math.IsNaN(c.FocalLength) || math.IsInf(c.FocalLength, 0) {
		return utils.NewConfigValidationError(join(path, "focal_length"),
			errors.Errorf("must be a positive number, got %v", c.FocalLength))
	}
	if c.DownsampleFactor < 1 {
		return utils.NewConfigValidationError(join(path, "downsample_factor"),
			errors.Errorf("must be at least 1, got %d", c.DownsampleFactor))
	}
	if c.TruncationPercentile <= 0 || c.TruncationPercentile > 100 {
		return utils.NewConfigValidationError(join(path, "truncation_percentile"),
			errors.Errorf("must be in (0, 100], got %v", c.TruncationPercentile))
	}
	if c.DepthScale <= 0 {
		return utils.NewConfigValidationError(join(path, "depth_scale"),
			errors.Errorf("must be positive, got %v", c.DepthScale))
	}
	if _, err := rimage.ColormapByName(c.Colormap); err != nil {
		return utils.NewConfigValidationError(join(path, "colormap"), err)
	}
	for field, name := range map[string]string{
		"colored_depth_file": c.ColoredDepthFile,
		"comparison_file":    c.ComparisonFile,
		"surface_file":       c.SurfaceFile,
		"point_cloud_file":   c.PointCloudFile,
	} {
		if name == "" {
			return utils.NewConfigValidationFieldRequiredError(path, field)
		}
	}
	for _, out := range []struct{ field, name string }{
		{"colored_depth_file", c.ColoredDepthFile},
		{"comparison_file", c.ComparisonFile},
		{"surface_file", c.SurfaceFile},
	} {
		if err := rimage.CheckEncodable(filepath.Ext(out.name)); err != nil {
			return utils.NewConfigValidationError(join(path, out.field), err)
		}
	}
	if c.DepthFile != "" {
		switch strings.ToLower(filepath.Ext(c.DepthFile)) {
		case ".dat", ".gz", ".png":
		default:
			return utils.NewConfigValidationError(join(path, "depth_file"),
				errors.Errorf("%q must end in .dat, .dat.gz or .png", c.DepthFile))
		}
	}
	switch strings.ToLower(filepath.Ext(c.PointCloudFile)) {
	case ".ply", ".pcd", ".las":
	default:
		return utils.NewConfigValidationError(join(path, "point_cloud_file"),
			errors.Errorf("%q must end in .ply, .pcd or .las", c.PointCloudFile))
	}
	if err := c.Estimator.Validate(join(path, "estimator")); err != nil {
		return err
	}
	return c.Viewer.Validate(join(path, "viewer"))
}

// Validate ensures the model is registered and its attributes decode and validate.
func (e *Estimator) Validate(path string) error {
	if e.Model == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "model")
	}
	_, err := depth.ValidateConfig(path, e.Model, e.Attributes)
	return err
}

// Validate ensures all parts of the config are valid.
func (v *Viewer) Validate(path string) error {
	if v.MaxPoints < 0 {
		return utils.NewConfigValidationError(join(path, "max_points"),
			errors.Errorf("cannot be negative, got %d", v.MaxPoints))
	}
	if v.VoxelSize < 0 {
		return utils.NewConfigValidationError(join(path, "voxel_size"),
			errors.Errorf("cannot be negative, got %v", v.VoxelSize))
	}
	if v.Enabled && v.Address == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "address")
	}
	return nil
}

// OutputPath resolves an output file name against the output directory.
func (c *Config) OutputPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.OutputDir, name)
}

// String renders the config as a table.
func (c *Config) String() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Setting", "Value"})
	t.AppendRow(table.Row{"image", c.ImagePath})
	t.AppendRow(table.Row{"output dir", c.OutputDir})
	t.AppendRow(table.Row{"focal length", c.FocalLength})
	t.AppendRow(table.Row{"downsample factor", c.DownsampleFactor})
	t.AppendRow(table.Row{"truncation percentile", c.TruncationPercentile})
	t.AppendRow(table.Row{"depth scale", c.DepthScale})
	t.AppendRow(table.Row{"colormap", c.Colormap})
	t.AppendRow(table.Row{"estimator", c.Estimator.Model})
	for _, key := range sortedKeys(c.Estimator.Attributes) {
		t.AppendRow(table.Row{"  " + key, fmt.Sprint(c.Estimator.Attributes[key])})
	}
	viewer := "disabled"
	if c.Viewer.Enabled {
		viewer = fmt.Sprintf("http://%s (max %d points)", c.Viewer.Address, c.Viewer.MaxPoints)
	}
	t.AppendRow(table.Row{"viewer", viewer})
	return t.Render()
}

func sortedKeys(am utils.AttributeMap) []string {
	keys := make([]string, 0, len(am))
	for key := range am {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
