package depth

import (
	"image"
	"image/color"
	"math"
)

// InvalidDepth marks a pixel with no trustworthy depth estimate.
// Downstream consumers skip these pixels instead of carrying a
// separate validity mask.
const InvalidDepth int16 = math.MaxInt16

// DepthMap is a dense per-pixel depth grid in millimeters, row-major.
type DepthMap struct {
	width  int
	height int

	data []int16
}

func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]int16, width*height),
	}
}

func (dm *DepthMap) HasData() bool {
	return dm.width > 0 && dm.data != nil
}

func (dm *DepthMap) Width() int {
	return dm.width
}

func (dm *DepthMap) Height() int {
	return dm.height
}

func (dm *DepthMap) GetDepth(x, y int) int16 {
	return dm.data[y*dm.width+x]
}

func (dm *DepthMap) Set(x, y int, mm int16) {
	dm.data[y*dm.width+x] = mm
}

// MinMax returns the smallest and largest depth in the map, skipping
// invalid pixels. Returns (0, 0) when nothing is valid.
func (dm *DepthMap) MinMax() (int16, int16) {
	min := int16(math.MaxInt16)
	max := int16(0)
	found := false

	for _, z := range dm.data {
		if z == InvalidDepth || z <= 0 {
			continue
		}
		found = true
		if z < min {
			min = z
		}
		if z > max {
			max = z
		}
	}

	if !found {
		return 0, 0
	}
	return min, max
}

// ToGray16 renders the map as a 16-bit grayscale image, the usual
// encoding for depth frames. Invalid pixels become 0.
func (dm *DepthMap) ToGray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, dm.width, dm.height))
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			z := dm.GetDepth(x, y)
			if z == InvalidDepth || z < 0 {
				continue
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(z)})
		}
	}
	return img
}
