package rimage

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestPercentile(t *testing.T) {
	values := []float64{100, 3, 1, 2}

	p, err := Percentile(values, 95)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldAlmostEqual, 85.45)
	test.That(t, values, test.ShouldResemble, []float64{100, 3, 1, 2})

	p, err = Percentile(values, 50)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldAlmostEqual, 2.5)

	p, err = Percentile(values, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldEqual, 1)

	p, err = Percentile(values, 100)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldEqual, 100)

	p, err = Percentile([]float64{7}, 95)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldEqual, 7)

	_, err = Percentile(nil, 95)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Percentile(values, 101)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Percentile(values, math.NaN())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDepthMapPercentileSkipsNonFinite(t *testing.T) {
	dm, err := NewDepthMapFromRows([][]float64{{1, 2}, {math.NaN(), math.Inf(1)}})
	test.That(t, err, test.ShouldBeNil)
	p, err := dm.Percentile(100)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldEqual, 2)

	zeros := NewEmptyDepthMap(3, 3)
	p, err = zeros.Percentile(95)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldEqual, 0)
}
