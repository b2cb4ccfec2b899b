// Package transform projects between 2D images with depth and 3D point clouds using
// pinhole camera intrinsics.
package transform

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/depthcloud/pointcloud"
	"go.viam.com/depthcloud/rimage"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// ErrDimensionMismatch is returned when an image and its depth map differ in size.
var ErrDimensionMismatch = errors.New("depth map and color dimensions don't match")

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 || math.IsNaN(params.Fx) || math.IsInf(params.Fx, 0) {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 || math.IsNaN(params.Fy) || math.IsInf(params.Fy, 0) {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// NewApproximateIntrinsics returns uncalibrated intrinsics for a width x height image: a
// single focal length for both axes and the principal point at the image center.
func NewApproximateIntrinsics(width, height int, focalLength float64) *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     focalLength,
		Fy:     focalLength,
		Ppx:    float64(width) / 2,
		Ppy:    float64(height) / 2,
	}
}

// NewPinholeCameraIntrinsicsFromJSONFile takes in a file path to a JSON and turns it into PinholeCameraIntrinsics.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	intrinsics := &PinholeCameraIntrinsics{}
	if err := json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	return intrinsics, nil
}

// PixelToPoint transforms a pixel with depth to a 3D point cloud.
// The intrinsics parameters should be the ones of the sensor used to obtain the image that
// contains the pixel.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	if params == nil {
		return float64(0), float64(0), float64(0)
	}
	xOverZ := (x - params.Ppx) / params.Fx
	yOverZ := (y - params.Ppy) / params.Fy
	return xOverZ * z, yOverZ * z, z
}

// PointToPixel projects a 3D point to a pixel in an image plane.
// The intrinsics parameters should be the ones of the sensor we want to project to.
func (params *PinholeCameraIntrinsics) PointToPixel(x, y, z float64) (float64, float64) {
	if z != 0. {
		xPx := math.Round((x/z)*params.Fx + params.Ppx)
		yPx := math.Round((y/z)*params.Fy + params.Ppy)
		return xPx, yPx
	}
	// if depth is zero at this pixel, return negative coordinates so that the cropping to RGB bounds will filter it out
	return -1.0, -1.0
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// RGBDOption tunes RGBDToPointCloud.
type RGBDOption func(*rgbdOptions)

type rgbdOptions struct {
	depthScale float64
	depthTrunc float64
	crop       *image.Rectangle
}

// WithDepthScale divides every depth value by scale before projecting.
func WithDepthScale(scale float64) RGBDOption {
	return func(o *rgbdOptions) {
		o.depthScale = scale
	}
}

// WithDepthTruncation drops every pixel whose scaled depth is at or beyond trunc.
func WithDepthTruncation(trunc float64) RGBDOption {
	return func(o *rgbdOptions) {
		o.depthTrunc = trunc
	}
}

// WithCrop only projects the pixels inside rect.
func WithCrop(rect image.Rectangle) RGBDOption {
	return func(o *rgbdOptions) {
		o.crop = &rect
	}
}

// RGBDToPointCloud takes an Image and Depth map and uses the camera parameters to project it
// to a pointcloud colored by the image. Pixels without valid depth are skipped.
func (params *PinholeCameraIntrinsics) RGBDToPointCloud(
	img *rimage.Image, dm *rimage.DepthMap,
	opts ...RGBDOption,
) (pointcloud.PointCloud, error) {
	options := rgbdOptions{depthScale: 1, depthTrunc: math.Inf(1)}
	for _, opt := range opts {
		opt(&options)
	}
	if options.depthScale <= 0 {
		return nil, errors.Errorf("depth scale must be positive, got %v", options.depthScale)
	}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	return intrinsics2DTo3D(img, dm, params, options)
}

// PointCloudToRGBD takes a PointCloud with color info and returns an Image and DepthMap from the
// perspective of the camera referenceframe.
func (params *PinholeCameraIntrinsics) PointCloudToRGBD(
	cloud pointcloud.PointCloud,
) (*rimage.Image, *rimage.DepthMap, error) {
	if err := params.CheckValid(); err != nil {
		return nil, nil, err
	}
	return intrinsics3DTo2D(cloud, params)
}

// intrinsics3DTo2D uses the camera's intrinsic matrix to project the 3D pointcloud to a 2D image and depth map.
func intrinsics3DTo2D(cloud pointcloud.PointCloud, pci *PinholeCameraIntrinsics) (*rimage.Image, *rimage.DepthMap, error) {
	// Needs to be a pointcloud with color
	if !cloud.MetaData().HasColor {
		return nil, nil, errors.New("pointcloud has no color information, cannot create an image with depth")
	}
	// Image and DepthMap will be in the camera frame of the camera specified by PinholeCameraIntrinsics.
	// Points outside of the frame will be discarded, the nearest point wins a pixel.
	width, height := pci.Width, pci.Height
	img := rimage.NewImage(width, height)
	depth := rimage.NewEmptyDepthMap(width, height)
	cloud.Iterate(0, 0, func(pt r3.Vector, d pointcloud.Data) bool {
		j, i := pci.PointToPixel(pt.X, pt.Y, pt.Z)
		x, y := int(j), int(i)
		if x < 0 || x >= width || y < 0 || y >= height || d == nil || !d.HasColor() || pt.Z <= 0 {
			return true
		}
		if existing := depth.GetDepth(x, y); rimage.IsValidDepth(existing) && existing <= pt.Z {
			return true
		}
		r, g, b := d.RGB255()
		img.SetXY(x, y, color.NRGBA{r, g, b, 255})
		depth.Set(x, y, pt.Z)
		return true
	})
	return img, depth, nil
}

// intrinsics2DTo3D uses the camera's intrinsic matrix to project the 2D image and depth map to a 3D point cloud.
func intrinsics2DTo3D(img *rimage.Image, dm *rimage.DepthMap, pci *PinholeCameraIntrinsics, options rgbdOptions,
) (pointcloud.PointCloud, error) {
	if img == nil {
		return nil, errors.New("no rgb channel. Cannot project to Pointcloud")
	}
	if dm == nil {
		return nil, errors.New("no depth channel. Cannot project to Pointcloud")
	}
	// Check dimensions, they should be equal between the color and depth frame
	if img.Bounds() != dm.Bounds() {
		return nil, errors.Wrapf(ErrDimensionMismatch, "Depth(%d,%d) != Color(%d,%d)",
			dm.Width(), dm.Height(), img.Width(), img.Height())
	}
	bounds := img.Bounds()
	if options.crop != nil {
		bounds = options.crop.Intersect(bounds)
	}
	pc := pointcloud.NewWithPrealloc(bounds.Dx() * bounds.Dy())

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			z := dm.GetDepth(x, y) / options.depthScale
			if !rimage.IsValidDepth(z) || z >= options.depthTrunc {
				continue
			}
			px, py, pz := pci.PixelToPoint(float64(x), float64(y), z)
			r, g, b := img.RGB255(x, y)
			err := pc.Set(pointcloud.NewVector(px, py, pz), pointcloud.NewColoredData(color.NRGBA{r, g, b, 255}))
			if err != nil {
				return nil, err
			}
		}
	}
	return pc, nil
}
