package imgutils

import (
	"image"
	"image/color"
)

// ToGray copies img into a grayscale image with its origin at (0, 0).
// An already-gray zero-origin image is returned as-is.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}

	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			grayColor := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			out.SetGray(x-b.Min.X, y-b.Min.Y, grayColor)
		}
	}
	return out
}
