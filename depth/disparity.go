package depth

import (
	"fmt"
)

// DisparityFormat is the element type of a DisparityMap. Only the two
// formats stereo matchers actually produce are recognized; anything
// else is rejected with UnsupportedFormatError.
type DisparityFormat int

const (
	FormatUnknown DisparityFormat = iota
	FormatFloat32
	FormatInt16
)

func (f DisparityFormat) String() string {
	switch f {
	case FormatFloat32:
		return "float32"
	case FormatInt16:
		return "int16"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// UnsupportedFormatError means a disparity map's element type is not
// one the converter knows how to read. This is a configuration error,
// not a transient fault; retrying won't help.
type UnsupportedFormatError struct {
	Format DisparityFormat
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported disparity format [%s], supported formats are float32 and int16", e.Format)
}

// DisparityMap is a dense per-pixel disparity grid over one of the two
// supported element types. Data is row-major.
type DisparityMap struct {
	width  int
	height int
	format DisparityFormat

	f32 []float32
	i16 []int16
}

func NewFloat32DisparityMap(width, height int) *DisparityMap {
	return &DisparityMap{
		width:  width,
		height: height,
		format: FormatFloat32,
		f32:    make([]float32, width*height),
	}
}

func NewInt16DisparityMap(width, height int) *DisparityMap {
	return &DisparityMap{
		width:  width,
		height: height,
		format: FormatInt16,
		i16:    make([]int16, width*height),
	}
}

func (m *DisparityMap) Width() int {
	return m.width
}

func (m *DisparityMap) Height() int {
	return m.height
}

func (m *DisparityMap) Format() DisparityFormat {
	return m.format
}

func (m *DisparityMap) Float32At(x, y int) float32 {
	return m.f32[y*m.width+x]
}

func (m *DisparityMap) SetFloat32(x, y int, v float32) {
	m.f32[y*m.width+x] = v
}

func (m *DisparityMap) Int16At(x, y int) int16 {
	return m.i16[y*m.width+x]
}

func (m *DisparityMap) SetInt16(x, y int, v int16) {
	m.i16[y*m.width+x] = v
}
