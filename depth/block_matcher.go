package depth

import (
	"context"
	"fmt"
	"image"

	"github.com/erh/vdepth/imgutils"
)

// BlockMatcher is a plain sum-of-absolute-differences block matcher
// over grayscale windows along the epipolar row. It is the
// self-contained default; anything serious (ELAS, a learned matcher)
// should come in through the StereoMatcher interface instead.
type BlockMatcher struct {
	// WindowRadius is the half-size of the matching window in pixels.
	WindowRadius int
	// MaxDisparity bounds the search along the row.
	MaxDisparity int
}

func NewBlockMatcher() *BlockMatcher {
	return &BlockMatcher{
		WindowRadius: 3,
		MaxDisparity: 64,
	}
}

func (m *BlockMatcher) Name() string {
	return "sad-block-matcher"
}

func (m *BlockMatcher) DisparityMapFromStereo(ctx context.Context, left, right image.Image) (*DisparityMap, error) {
	lb := left.Bounds()
	rb := right.Bounds()
	if lb.Dx() != rb.Dx() || lb.Dy() != rb.Dy() {
		return nil, fmt.Errorf("left is %dx%d but right is %dx%d, a stereo pair must match",
			lb.Dx(), lb.Dy(), rb.Dx(), rb.Dy())
	}

	lg := imgutils.ToGray(left)
	rg := imgutils.ToGray(right)

	width, height := lb.Dx(), lb.Dy()
	disp := NewFloat32DisparityMap(width, height)

	parallelRowBands(height, func(yFrom, yTo int) int {
		for y := yFrom; y < yTo; y++ {
			for x := 0; x < width; x++ {
				disp.SetFloat32(x, y, m.bestDisparity(lg, rg, x, y))
			}
		}
		return 0
	})

	return disp, nil
}

// bestDisparity scans candidate offsets along the row; the matching
// point in the right image sits at x-d. A textureless region settles
// on d=0, which the converter maps to InvalidDepth.
func (m *BlockMatcher) bestDisparity(lg, rg *image.Gray, x, y int) float32 {
	maxD := m.MaxDisparity
	if maxD > x {
		maxD = x
	}

	best := 0
	bestCost := int(^uint(0) >> 1)
	for d := 0; d <= maxD; d++ {
		cost := sadWindow(lg, rg, x, y, d, m.WindowRadius)
		if cost < bestCost {
			bestCost = cost
			best = d
		}
	}
	return float32(best)
}

func sadWindow(lg, rg *image.Gray, x, y, d, radius int) int {
	width := lg.Bounds().Dx()
	height := lg.Bounds().Dy()

	cost := 0
	for dy := -radius; dy <= radius; dy++ {
		yy := y + dy
		if yy < 0 || yy >= height {
			continue
		}
		lRow := lg.Pix[yy*lg.Stride:]
		rRow := rg.Pix[yy*rg.Stride:]
		for dx := -radius; dx <= radius; dx++ {
			xl := x + dx
			xr := xl - d
			if xl < 0 || xl >= width || xr < 0 {
				continue
			}
			diff := int(lRow[xl]) - int(rRow[xr])
			if diff < 0 {
				diff = -diff
			}
			cost += diff
		}
	}
	return cost
}
