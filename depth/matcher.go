package depth

import (
	"context"
	"fmt"
	"image"
)

// StereoMatcher turns a rectified stereo pair into a disparity map.
// The output format must be one of the two supported element types.
type StereoMatcher interface {
	DisparityMapFromStereo(ctx context.Context, left, right image.Image) (*DisparityMap, error)

	// Name identifies the disparity estimation technique in use.
	Name() string
}

// DisparityScaler is implemented by matchers whose disparities are not
// plain rectified-pixel offsets and therefore need their own relation
// to metric depth. Matchers that don't implement it get the standard
// triangulation via DisparityToDepth.
type DisparityScaler interface {
	DisparityToDepth(disparity float64, calibration StereoCalibration) float64
}

// PrecomputedMatcher serves grids computed elsewhere (a dataset dump,
// an upstream depth sensor) through the StereoMatcher interface. The
// source function is called once per stereo pair; the images are only
// used as a dimension check.
type PrecomputedMatcher struct {
	name string
	next func(ctx context.Context) (*DisparityMap, error)
}

func NewPrecomputedMatcher(name string, next func(ctx context.Context) (*DisparityMap, error)) *PrecomputedMatcher {
	return &PrecomputedMatcher{name: name, next: next}
}

func (m *PrecomputedMatcher) Name() string {
	return m.name
}

func (m *PrecomputedMatcher) DisparityMapFromStereo(ctx context.Context, left, right image.Image) (*DisparityMap, error) {
	grid, err := m.next(ctx)
	if err != nil {
		return nil, err
	}

	if left != nil {
		b := left.Bounds()
		if grid.Width() != b.Dx() || grid.Height() != b.Dy() {
			return nil, fmt.Errorf("precomputed grid is %dx%d but the frame is %dx%d",
				grid.Width(), grid.Height(), b.Dx(), b.Dy())
		}
	}

	return grid, nil
}

// DisparityMapFromGray16 lifts a 16-bit grayscale image, the usual
// encoding for disparity and depth dumps, into an int16 grid. Values
// past the int16 range saturate.
func DisparityMapFromGray16(img *image.Gray16) *DisparityMap {
	b := img.Bounds()
	out := NewInt16DisparityMap(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := img.Gray16At(b.Min.X+x, b.Min.Y+y).Y
			if v > uint16(InvalidDepth) {
				v = uint16(InvalidDepth)
			}
			out.SetInt16(x, y, int16(v))
		}
	}
	return out
}
