package depth

import (
	"context"
	"fmt"
	"image"
	"math"
	"runtime"
	"sync"

	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"
)

// Operating range for trustworthy depth, in millimeters. Closer than
// the minimum, disparity noise saturates; past the maximum the matcher
// output is too unreliable to map. Both bounds are inclusive.
const (
	DefaultMinDepthMM = 500
	DefaultMaxDepthMM = 15000
)

// DisparityToDepth is the triangulation relation for a calibrated
// rectified rig: depth in meters, inversely proportional to disparity.
// Zero disparity yields +Inf, which the range filter turns into
// InvalidDepth.
func DisparityToDepth(disparity float64, calibration StereoCalibration) float64 {
	return float64(calibration.BaselineMeters) * float64(calibration.FocalLengthPx) / disparity
}

// Converter owns the disparity to depth conversion and the range
// filtering policy. It is stateless across calls; a single Converter
// may be shared by concurrent conversions.
type Converter struct {
	matcher StereoMatcher

	// inputIsDepth means the matcher already produces metric depth,
	// so conversion and filtering are skipped entirely. Some datasets
	// ship precomputed depth instead of disparity, and running the
	// triangulation over depth values would corrupt it.
	inputIsDepth bool

	// Valid depth range in millimeters, bounds inclusive. Defaults to
	// DefaultMinDepthMM / DefaultMaxDepthMM.
	MinDepthMM int32
	MaxDepthMM int32

	logger logging.Logger
}

func NewConverter(matcher StereoMatcher, inputIsDepth bool, logger logging.Logger) *Converter {
	return &Converter{
		matcher:      matcher,
		inputIsDepth: inputIsDepth,
		MinDepthMM:   DefaultMinDepthMM,
		MaxDepthMM:   DefaultMaxDepthMM,
		logger:       logger,
	}
}

// Name reports the disparity estimation technique behind this
// converter, for logging and reporting by callers.
func (c *Converter) Name() string {
	return c.matcher.Name()
}

// ComputeDepth runs the matcher over a rectified stereo pair and
// converts the result to a freshly allocated millimeter depth map.
func (c *Converter) ComputeDepth(ctx context.Context, left, right image.Image, calibration StereoCalibration) (*DepthMap, error) {
	return c.computeDepth(ctx, left, right, calibration, nil)
}

// ComputeDepthInto is ComputeDepth with a caller-supplied output
// buffer. The buffer is reused when its dimensions match the disparity
// map and replaced otherwise; the (possibly new) buffer is returned.
func (c *Converter) ComputeDepthInto(ctx context.Context, left, right image.Image, calibration StereoCalibration, out *DepthMap) (*DepthMap, error) {
	return c.computeDepth(ctx, left, right, calibration, out)
}

func (c *Converter) computeDepth(ctx context.Context, left, right image.Image, calibration StereoCalibration, out *DepthMap) (*DepthMap, error) {
	grid, err := c.matcher.DisparityMapFromStereo(ctx, left, right)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.matcher.Name(), err)
	}

	if c.inputIsDepth {
		return passthroughDepth(grid, out)
	}

	if err := calibration.Validate(); err != nil {
		return nil, err
	}

	out = ensureDepthBuffer(out, grid.Width(), grid.Height())
	if err := c.DepthFromDisparityMap(grid, calibration, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DepthFromDisparityMap converts every element of disp to millimeter
// depth and writes it into out, which must have matching dimensions.
// An unsupported element format fails before any pixel is written.
func (c *Converter) DepthFromDisparityMap(disp *DisparityMap, calibration StereoCalibration, out *DepthMap) error {
	if disp.Width() != out.Width() || disp.Height() != out.Height() {
		return fmt.Errorf("disparity is %dx%d but the output buffer is %dx%d",
			disp.Width(), disp.Height(), out.Width(), out.Height())
	}

	var at func(x, y int) float64
	switch disp.Format() {
	case FormatFloat32:
		at = func(x, y int) float64 { return float64(disp.Float32At(x, y)) }
	case FormatInt16:
		at = func(x, y int) float64 { return float64(disp.Int16At(x, y)) }
	default:
		return &UnsupportedFormatError{Format: disp.Format()}
	}

	toDepth := DisparityToDepth
	if scaler, ok := c.matcher.(DisparityScaler); ok {
		toDepth = scaler.DisparityToDepth
	}

	width := out.Width()
	valid := parallelRowBands(out.Height(), func(yFrom, yTo int) int {
		n := 0
		for y := yFrom; y < yTo; y++ {
			for x := 0; x < width; x++ {
				mm := depthMM(toDepth(at(x, y), calibration))
				if mm > c.MaxDepthMM || mm < c.MinDepthMM {
					out.Set(x, y, InvalidDepth)
					continue
				}
				out.Set(x, y, int16(mm))
				n++
			}
		}
		return n
	})

	if c.logger != nil {
		min, max := out.MinMax()
		c.logger.Debugf("%s: %d/%d pixels in range, min %dmm max %dmm",
			c.Name(), valid, width*out.Height(), min, max)
	}
	return nil
}

// depthMM converts meters to whole millimeters, truncating toward
// zero. NaN and +Inf (zero disparity) saturate high so the range
// filter rejects them instead of propagating garbage.
func depthMM(depthM float64) int32 {
	mm := depthM * 1000
	if math.IsNaN(mm) || mm >= float64(math.MaxInt32) {
		return math.MaxInt32
	}
	if mm <= float64(math.MinInt32) {
		return math.MinInt32
	}
	return int32(mm)
}

// passthroughDepth keeps the matcher's values as-is: the grid is
// already metric depth, so no triangulation and no range filtering.
// Float values narrow toward zero.
func passthroughDepth(grid *DisparityMap, out *DepthMap) (*DepthMap, error) {
	out = ensureDepthBuffer(out, grid.Width(), grid.Height())
	switch grid.Format() {
	case FormatInt16:
		copy(out.data, grid.i16)
	case FormatFloat32:
		for i, v := range grid.f32 {
			out.data[i] = narrowMM(v)
		}
	default:
		return nil, &UnsupportedFormatError{Format: grid.Format()}
	}
	return out, nil
}

// narrowMM narrows a float millimeter value to int16, truncating
// toward zero and saturating at the type bounds; narrowing an
// out-of-range float directly is not defined. NaN saturates high like
// the conversion path does.
func narrowMM(v float32) int16 {
	if math.IsNaN(float64(v)) || v >= float32(math.MaxInt16) {
		return math.MaxInt16
	}
	if v <= float32(math.MinInt16) {
		return math.MinInt16
	}
	return int16(v)
}

func ensureDepthBuffer(out *DepthMap, width, height int) *DepthMap {
	if out != nil && out.width == width && out.height == height {
		return out
	}
	return NewEmptyDepthMap(width, height)
}

// parallelRowBands splits rows into contiguous bands, one per worker,
// and sums what f returns per band. Every pixel depends only on its
// co-located input, so disjoint bands need no synchronization.
func parallelRowBands(height int, f func(yFrom, yTo int) int) int {
	workers := runtime.GOMAXPROCS(0)
	if workers > height {
		workers = height
	}
	if workers <= 1 {
		return f(0, height)
	}

	band := height / workers
	counts := make([]int, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		from := i * band
		to := from + band
		if i == workers-1 {
			to = height
		}
		idx := i
		goutils.PanicCapturingGo(func() {
			defer wg.Done()
			counts[idx] = f(from, to)
		})
	}
	wg.Wait()

	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}
