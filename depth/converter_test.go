package depth

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"

	"go.viam.com/rdk/logging"
	"go.viam.com/test"
)

var testCalib = StereoCalibration{BaselineMeters: 0.5, FocalLengthPx: 700}

func constFloat32Matcher(v float32, width, height int) *PrecomputedMatcher {
	return NewPrecomputedMatcher("const-float32", func(ctx context.Context) (*DisparityMap, error) {
		grid := NewFloat32DisparityMap(width, height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				grid.SetFloat32(x, y, v)
			}
		}
		return grid, nil
	})
}

func constInt16Matcher(v int16, width, height int) *PrecomputedMatcher {
	return NewPrecomputedMatcher("const-int16", func(ctx context.Context) (*DisparityMap, error) {
		grid := NewInt16DisparityMap(width, height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				grid.SetInt16(x, y, v)
			}
		}
		return grid, nil
	})
}

func testPair(width, height int) (image.Image, image.Image) {
	return image.NewGray(image.Rect(0, 0, width, height)), image.NewGray(image.Rect(0, 0, width, height))
}

func TestDisparityToDepth(t *testing.T) {
	test.That(t, DisparityToDepth(70, testCalib), test.ShouldAlmostEqual, 5.0, 1e-9)

	// monotonically decreasing in disparity
	prev := DisparityToDepth(1, testCalib)
	for d := 2.0; d < 100; d++ {
		cur := DisparityToDepth(d, testCalib)
		test.That(t, cur, test.ShouldBeLessThan, prev)
		prev = cur
	}

	// monotonically increasing in baseline and focal length
	test.That(t,
		DisparityToDepth(70, StereoCalibration{BaselineMeters: 0.6, FocalLengthPx: 700}),
		test.ShouldBeGreaterThan,
		DisparityToDepth(70, testCalib))
	test.That(t,
		DisparityToDepth(70, StereoCalibration{BaselineMeters: 0.5, FocalLengthPx: 800}),
		test.ShouldBeGreaterThan,
		DisparityToDepth(70, testCalib))
}

func TestCalibrationValidate(t *testing.T) {
	test.That(t, testCalib.Validate(), test.ShouldBeNil)
	test.That(t, StereoCalibration{BaselineMeters: 0, FocalLengthPx: 700}.Validate(), test.ShouldNotBeNil)
	test.That(t, StereoCalibration{BaselineMeters: -0.5, FocalLengthPx: 700}.Validate(), test.ShouldNotBeNil)
	test.That(t, StereoCalibration{BaselineMeters: 0.5, FocalLengthPx: 0}.Validate(), test.ShouldNotBeNil)

	conv := NewConverter(constFloat32Matcher(70, 4, 4), false, logging.NewTestLogger(t))
	left, right := testPair(4, 4)
	_, err := conv.ComputeDepth(context.Background(), left, right, StereoCalibration{})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestComputeDepthRoundTrip(t *testing.T) {
	// (0.5 * 700) / 70.0 = 5.0m = 5000mm
	conv := NewConverter(constFloat32Matcher(70, 8, 6), false, logging.NewTestLogger(t))
	left, right := testPair(8, 6)

	dm, err := conv.ComputeDepth(context.Background(), left, right, testCalib)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dm.Width(), test.ShouldEqual, 8)
	test.That(t, dm.Height(), test.ShouldEqual, 6)

	for y := 0; y < dm.Height(); y++ {
		for x := 0; x < dm.Width(); x++ {
			test.That(t, dm.GetDepth(x, y), test.ShouldEqual, 5000)
		}
	}

	test.That(t, conv.Name(), test.ShouldEqual, "const-float32")
}

func TestComputeDepthInt16Disparity(t *testing.T) {
	conv := NewConverter(constInt16Matcher(70, 5, 3), false, logging.NewTestLogger(t))
	left, right := testPair(5, 3)

	dm, err := conv.ComputeDepth(context.Background(), left, right, testCalib)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dm.GetDepth(4, 2), test.ShouldEqual, 5000)
}

// millimeterMatcher overrides the triangulation so a disparity value is
// read directly as millimeters, making bound edges exact.
type millimeterMatcher struct {
	*PrecomputedMatcher
}

func (m millimeterMatcher) DisparityToDepth(d float64, _ StereoCalibration) float64 {
	return d / 1000.0
}

func TestDepthBoundsInclusive(t *testing.T) {
	// the .5 inputs truncate to exactly 499 and 15001mm, sidestepping
	// float error on the d/1000*1000 round trip
	cases := []struct {
		mm   float32
		want int16
	}{
		{499.5, InvalidDepth},
		{500, 500},
		{15000, 15000},
		{15001.5, InvalidDepth},
	}

	for _, c := range cases {
		conv := NewConverter(millimeterMatcher{constFloat32Matcher(c.mm, 2, 2)}, false, logging.NewTestLogger(t))
		left, right := testPair(2, 2)

		dm, err := conv.ComputeDepth(context.Background(), left, right, testCalib)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dm.GetDepth(0, 0), test.ShouldEqual, c.want)
		test.That(t, dm.GetDepth(1, 1), test.ShouldEqual, c.want)
	}
}

func TestDegenerateDisparities(t *testing.T) {
	for _, v := range []float32{0, -3, float32(math.NaN()), float32(math.Inf(1))} {
		conv := NewConverter(constFloat32Matcher(v, 3, 3), false, logging.NewTestLogger(t))
		left, right := testPair(3, 3)

		dm, err := conv.ComputeDepth(context.Background(), left, right, testCalib)
		test.That(t, err, test.ShouldBeNil)
		for y := 0; y < 3; y++ {
			for x := 0; x < 3; x++ {
				test.That(t, dm.GetDepth(x, y), test.ShouldEqual, InvalidDepth)
			}
		}
	}
}

func TestOutputAlwaysValidOrSentinel(t *testing.T) {
	// a spread of disparities, including garbage, must land inside the
	// valid range or on the sentinel
	grid := NewFloat32DisparityMap(16, 2)
	for x := 0; x < 16; x++ {
		grid.SetFloat32(x, 0, float32(x)*0.5)
		grid.SetFloat32(x, 1, float32(x)*100)
	}
	matcher := NewPrecomputedMatcher("spread", func(ctx context.Context) (*DisparityMap, error) {
		return grid, nil
	})

	conv := NewConverter(matcher, false, logging.NewTestLogger(t))
	left, right := testPair(16, 2)

	dm, err := conv.ComputeDepth(context.Background(), left, right, testCalib)
	test.That(t, err, test.ShouldBeNil)
	for y := 0; y < dm.Height(); y++ {
		for x := 0; x < dm.Width(); x++ {
			z := dm.GetDepth(x, y)
			ok := z == InvalidDepth || (z >= DefaultMinDepthMM && z <= DefaultMaxDepthMM)
			test.That(t, ok, test.ShouldBeTrue)
		}
	}
}

func TestUnsupportedFormat(t *testing.T) {
	matcher := NewPrecomputedMatcher("bad-format", func(ctx context.Context) (*DisparityMap, error) {
		return &DisparityMap{width: 2, height: 2, format: DisparityFormat(9)}, nil
	})
	conv := NewConverter(matcher, false, logging.NewTestLogger(t))
	left, right := testPair(2, 2)

	// pre-fill a buffer so we can prove nothing was written
	buf := NewEmptyDepthMap(2, 2)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			buf.Set(x, y, 1234)
		}
	}

	_, err := conv.ComputeDepthInto(context.Background(), left, right, testCalib, buf)
	test.That(t, err, test.ShouldNotBeNil)

	var ufe *UnsupportedFormatError
	test.That(t, errors.As(err, &ufe), test.ShouldBeTrue)
	test.That(t, ufe.Error(), test.ShouldContainSubstring, "unknown(9)")

	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			test.That(t, buf.GetDepth(x, y), test.ShouldEqual, 1234)
		}
	}
}

func TestInputIsDepthPassthrough(t *testing.T) {
	grid := NewInt16DisparityMap(4, 2)
	values := []int16{100, 20000, 0, 32000, 499, 15001, -7, 5000}
	i := 0
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			grid.SetInt16(x, y, values[i])
			i++
		}
	}
	matcher := NewPrecomputedMatcher("dataset-depth", func(ctx context.Context) (*DisparityMap, error) {
		return grid, nil
	})

	conv := NewConverter(matcher, true, logging.NewTestLogger(t))
	left, right := testPair(4, 2)

	dm, err := conv.ComputeDepth(context.Background(), left, right, testCalib)
	test.That(t, err, test.ShouldBeNil)

	// values outside the usual range come through untouched: no
	// scaling, no sentinel filtering
	i = 0
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			test.That(t, dm.GetDepth(x, y), test.ShouldEqual, values[i])
			i++
		}
	}
}

func TestPassthroughFloat32Narrowing(t *testing.T) {
	grid := NewFloat32DisparityMap(5, 1)
	grid.SetFloat32(0, 0, 5000.7)
	grid.SetFloat32(1, 0, 100000)
	grid.SetFloat32(2, 0, -100000)
	grid.SetFloat32(3, 0, float32(math.NaN()))
	grid.SetFloat32(4, 0, -12.9)
	matcher := NewPrecomputedMatcher("dataset-float-depth", func(ctx context.Context) (*DisparityMap, error) {
		return grid, nil
	})

	conv := NewConverter(matcher, true, logging.NewTestLogger(t))
	left, right := testPair(5, 1)

	dm, err := conv.ComputeDepth(context.Background(), left, right, testCalib)
	test.That(t, err, test.ShouldBeNil)

	// truncation toward zero, saturation at the int16 bounds
	test.That(t, dm.GetDepth(0, 0), test.ShouldEqual, 5000)
	test.That(t, dm.GetDepth(1, 0), test.ShouldEqual, int16(math.MaxInt16))
	test.That(t, dm.GetDepth(2, 0), test.ShouldEqual, int16(math.MinInt16))
	test.That(t, dm.GetDepth(3, 0), test.ShouldEqual, int16(math.MaxInt16))
	test.That(t, dm.GetDepth(4, 0), test.ShouldEqual, -12)
}

func TestConfigurableDepthRange(t *testing.T) {
	cases := []struct {
		mm   float32
		want int16
	}{
		{999.5, InvalidDepth},
		{1000, 1000},
		{2000, 2000},
		{2001.5, InvalidDepth},
		// fine at the defaults, but outside the tightened range
		{5000, InvalidDepth},
	}

	for _, c := range cases {
		conv := NewConverter(millimeterMatcher{constFloat32Matcher(c.mm, 2, 2)}, false, logging.NewTestLogger(t))
		conv.MinDepthMM = 1000
		conv.MaxDepthMM = 2000
		left, right := testPair(2, 2)

		dm, err := conv.ComputeDepth(context.Background(), left, right, testCalib)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dm.GetDepth(0, 0), test.ShouldEqual, c.want)
	}
}

func TestComputeDepthIntoReusesBuffer(t *testing.T) {
	conv := NewConverter(constFloat32Matcher(70, 6, 4), false, logging.NewTestLogger(t))
	left, right := testPair(6, 4)

	buf := NewEmptyDepthMap(6, 4)
	out, err := conv.ComputeDepthInto(context.Background(), left, right, testCalib, buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out == buf, test.ShouldBeTrue)

	// wrong-sized buffer gets replaced, not resized in place
	small := NewEmptyDepthMap(2, 2)
	out, err = conv.ComputeDepthInto(context.Background(), left, right, testCalib, small)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out == small, test.ShouldBeFalse)
	test.That(t, out.Width(), test.ShouldEqual, 6)
	test.That(t, out.Height(), test.ShouldEqual, 4)
}

func TestPrecomputedMatcherDimensionCheck(t *testing.T) {
	matcher := constFloat32Matcher(70, 4, 4)
	left, right := testPair(8, 8)

	_, err := matcher.DisparityMapFromStereo(context.Background(), left, right)
	test.That(t, err, test.ShouldNotBeNil)
}
