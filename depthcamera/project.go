package depthcamera

import (
	"fmt"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/rimage/transform"

	"github.com/erh/vdepth/depth"
)

// ApproximateIntrinsics builds a pinhole model from just a focal
// length, putting the principal point at the image center. Good enough
// for visualization when the source camera publishes no intrinsics.
func ApproximateIntrinsics(focalLengthPx float64, width, height int) *transform.PinholeCameraIntrinsics {
	return &transform.PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     focalLengthPx,
		Fy:     focalLengthPx,
		Ppx:    float64(width) / 2.0,
		Ppy:    float64(height) / 2.0,
	}
}

// DepthMapToPointCloud back-projects every valid pixel through the
// pinhole model. Units follow the depth map: millimeters.
func DepthMapToPointCloud(dm *depth.DepthMap, intr *transform.PinholeCameraIntrinsics) (pointcloud.PointCloud, error) {
	if intr == nil {
		return nil, fmt.Errorf("intrinsics cannot be null")
	}

	pc := pointcloud.NewBasicEmpty()

	for y := 0; y < dm.Height(); y++ {
		for x := 0; x < dm.Width(); x++ {
			mm := dm.GetDepth(x, y)
			if mm == depth.InvalidDepth || mm <= 0 {
				continue
			}

			px, py, pz := intr.PixelToPoint(float64(x), float64(y), float64(mm))
			if err := pc.Set(r3.Vector{X: px, Y: py, Z: pz}, nil); err != nil {
				return nil, err
			}
		}
	}

	return pc, nil
}
