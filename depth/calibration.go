package depth

import (
	"fmt"
)

// StereoCalibration holds the parameters of a rectified stereo rig
// needed to triangulate metric depth from disparity. It is built once
// per session and shared read-only by all conversions.
type StereoCalibration struct {
	BaselineMeters float32
	FocalLengthPx  float32
}

func (c StereoCalibration) Validate() error {
	if c.BaselineMeters <= 0 {
		return fmt.Errorf("baseline must be positive, got %v", c.BaselineMeters)
	}
	if c.FocalLengthPx <= 0 {
		return fmt.Errorf("focal length must be positive, got %v", c.FocalLengthPx)
	}
	return nil
}
