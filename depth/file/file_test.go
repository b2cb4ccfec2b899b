package file

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/depthcloud/depth"
	"go.viam.com/depthcloud/logging"
	"go.viam.com/depthcloud/rimage"
	"go.viam.com/depthcloud/rimage/transform"
	"go.viam.com/depthcloud/utils"
)

func writeDepth(t *testing.T, name string) (string, *rimage.DepthMap) {
	t.Helper()
	dm, err := rimage.NewDepthMapFromRows([][]float64{{1, 2, 3}, {4, 5, 6}})
	test.That(t, err, test.ShouldBeNil)
	fn := filepath.Join(t.TempDir(), name)
	test.That(t, dm.WriteToFile(fn), test.ShouldBeNil)
	return fn, dm
}

func TestConfigValidate(t *testing.T) {
	err := (&Config{}).Validate("estimator.attributes")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"path" is required`)

	err = (&Config{Path: "a.dat", UnitsPerValue: -1}).Validate("estimator.attributes")
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, (&Config{Path: "a.dat"}).Validate("estimator.attributes"), test.ShouldBeNil)
}

func TestFileEstimator(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx := context.Background()

	for _, name := range []string{"depth.dat", "depth.dat.gz", "depth.png"} {
		t.Run(name, func(t *testing.T) {
			fn, expected := writeDepth(t, name)
			est, err := depth.New(ctx, Model, utils.AttributeMap{"path": fn}, logger)
			test.That(t, err, test.ShouldBeNil)
			defer func() { test.That(t, est.Close(ctx), test.ShouldBeNil) }()

			dm, err := depth.Infer(ctx, est, rimage.NewImage(3, 2))
			test.That(t, err, test.ShouldBeNil)
			test.That(t, dm.Values(), test.ShouldResemble, expected.Values())

			// callers get their own copy
			dm.Set(0, 0, 42)
			again, err := est.Infer(ctx, rimage.NewImage(3, 2))
			test.That(t, err, test.ShouldBeNil)
			test.That(t, again.GetDepth(0, 0), test.ShouldEqual, 1.0)
		})
	}
}

func TestFileEstimatorUnits(t *testing.T) {
	fn, _ := writeDepth(t, "depth.dat")
	est, err := New(&Config{Path: fn, UnitsPerValue: 0.5}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	dm, err := est.Infer(context.Background(), rimage.NewImage(3, 2))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dm.Values(), test.ShouldResemble, []float64{0.5, 1, 1.5, 2, 2.5, 3})
}

func TestFileEstimatorErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := New(&Config{Path: filepath.Join(t.TempDir(), "missing.dat")}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	fn, _ := writeDepth(t, "depth.dat")
	est, err := New(&Config{Path: fn}, logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = est.Infer(context.Background(), rimage.NewImage(2, 3))
	test.That(t, errors.Is(err, transform.ErrDimensionMismatch), test.ShouldBeTrue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = est.Infer(ctx, rimage.NewImage(3, 2))
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}
