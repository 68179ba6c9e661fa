package depth

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestDepthMapBasics(t *testing.T) {
	dm := NewEmptyDepthMap(4, 3)
	test.That(t, dm.Width(), test.ShouldEqual, 4)
	test.That(t, dm.Height(), test.ShouldEqual, 3)
	test.That(t, dm.HasData(), test.ShouldBeTrue)

	dm.Set(2, 1, 750)
	test.That(t, dm.GetDepth(2, 1), test.ShouldEqual, 750)
	test.That(t, dm.GetDepth(1, 2), test.ShouldEqual, 0)
}

func TestDepthMapMinMax(t *testing.T) {
	dm := NewEmptyDepthMap(3, 3)
	min, max := dm.MinMax()
	test.That(t, min, test.ShouldEqual, 0)
	test.That(t, max, test.ShouldEqual, 0)

	dm.Set(0, 0, 900)
	dm.Set(1, 1, 14000)
	dm.Set(2, 2, InvalidDepth)
	min, max = dm.MinMax()
	test.That(t, min, test.ShouldEqual, 900)
	test.That(t, max, test.ShouldEqual, 14000)
}

func TestDepthMapToGray16(t *testing.T) {
	dm := NewEmptyDepthMap(2, 2)
	dm.Set(0, 0, 5000)
	dm.Set(1, 0, InvalidDepth)
	dm.Set(0, 1, 500)

	img := dm.ToGray16()
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 2)
	test.That(t, img.Bounds().Dy(), test.ShouldEqual, 2)
	test.That(t, img.Gray16At(0, 0).Y, test.ShouldEqual, uint16(5000))
	test.That(t, img.Gray16At(1, 0).Y, test.ShouldEqual, uint16(0))
	test.That(t, img.Gray16At(0, 1).Y, test.ShouldEqual, uint16(500))
}

func TestDisparityMapFromGray16(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 3, 2))
	img.SetGray16(0, 0, color.Gray16{Y: 1234})
	img.SetGray16(2, 1, color.Gray16{Y: 60000})

	grid := DisparityMapFromGray16(img)
	test.That(t, grid.Format(), test.ShouldEqual, FormatInt16)
	test.That(t, grid.Width(), test.ShouldEqual, 3)
	test.That(t, grid.Height(), test.ShouldEqual, 2)
	test.That(t, grid.Int16At(0, 0), test.ShouldEqual, 1234)
	// past the int16 range saturates at the sentinel
	test.That(t, grid.Int16At(2, 1), test.ShouldEqual, InvalidDepth)
	test.That(t, grid.Int16At(1, 0), test.ShouldEqual, 0)
}
