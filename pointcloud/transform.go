package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// FlipYZ returns the homogeneous transform diag(1, -1, -1, 1), which turns the camera
// frame (y down, z forward) into a y up, z toward the viewer frame. It is its own inverse.
func FlipYZ() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, -1, 0, 0,
		0, 0, -1, 0,
		0, 0, 0, 1,
	})
}

// ApplyTransform returns a new cloud with every point moved by the 4x4 homogeneous
// transform. Data is shared with the input cloud.
func ApplyTransform(cloud PointCloud, transform mat.Matrix) (PointCloud, error) {
	if transform == nil {
		return nil, errors.New("transform is nil")
	}
	if rows, cols := transform.Dims(); rows != 4 || cols != 4 {
		return nil, errors.Errorf("transform must be 4x4, got %dx%d", rows, cols)
	}
	if transform.At(3, 0) != 0 || transform.At(3, 1) != 0 || transform.At(3, 2) != 0 || transform.At(3, 3) == 0 {
		return nil, errors.New("transform is not an affine homogeneous matrix")
	}

	out := NewWithPrealloc(cloud.Size())
	in := mat.NewVecDense(4, nil)
	moved := mat.NewVecDense(4, nil)
	var err error
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		in.SetVec(0, p.X)
		in.SetVec(1, p.Y)
		in.SetVec(2, p.Z)
		in.SetVec(3, 1)
		moved.MulVec(transform, in)
		w := moved.AtVec(3)
		err = out.Set(r3.Vector{X: moved.AtVec(0) / w, Y: moved.AtVec(1) / w, Z: moved.AtVec(2) / w}, d)
		return err == nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "error transforming point cloud")
	}
	return out, nil
}
