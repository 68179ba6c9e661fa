package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/rimage"
	"go.viam.com/rdk/robot"
	rutils "go.viam.com/rdk/utils"

	"github.com/erh/vdepth"
	"github.com/erh/vdepth/depth"
	"github.com/erh/vdepth/depthcamera"
)

func main() {
	err := realMain()
	if err != nil {
		panic(err)
	}
}

func realMain() error {
	logger := logging.NewLogger("depthtool")
	ctx := context.Background()

	cmd := flag.String("cmd", "", "command (convert or capture)")
	host := flag.String("host", "", "hostname")
	leftCamera := flag.String("left-camera", "", "left camera name")
	rightCamera := flag.String("right-camera", "", "right camera name")
	leftFile := flag.String("left", "", "left image file")
	rightFile := flag.String("right", "", "right image file")
	out := flag.String("out", "depth.png", "output depth image")
	pcdOut := flag.String("pcd-out", "", "optional output point cloud")

	baseline := flag.Float64("baseline", 0, "baseline in meters")
	focal := flag.Float64("focal", 0, "focal length in pixels")
	maxDisparity := flag.Int("max-disparity", 0, "")
	windowRadius := flag.Int("window-radius", 0, "")

	flag.Parse()

	if *cmd == "" {
		return fmt.Errorf("need a cmd")
	}

	calib := depth.StereoCalibration{
		BaselineMeters: float32(*baseline),
		FocalLengthPx:  float32(*focal),
	}
	if err := calib.Validate(); err != nil {
		return err
	}

	matcher := depth.NewBlockMatcher()
	if *maxDisparity > 0 {
		matcher.MaxDisparity = *maxDisparity
	}
	if *windowRadius > 0 {
		matcher.WindowRadius = *windowRadius
	}
	conv := depth.NewConverter(matcher, false, logger)

	switch *cmd {
	case "convert":
		if *leftFile == "" || *rightFile == "" {
			return fmt.Errorf("convert needs -left and -right image files")
		}

		left, err := rimage.ReadImageFromFile(*leftFile)
		if err != nil {
			return err
		}
		right, err := rimage.ReadImageFromFile(*rightFile)
		if err != nil {
			return err
		}

		dm, err := conv.ComputeDepth(ctx, left, right, calib)
		if err != nil {
			return err
		}
		return writeOutputs(dm, *focal, *out, *pcdOut, logger)

	case "capture":
		if *leftCamera == "" || *rightCamera == "" {
			return fmt.Errorf("capture needs -left-camera and -right-camera")
		}

		machine, err := connectMachine(ctx, *host, logger)
		if err != nil {
			return err
		}
		defer machine.Close(ctx)

		deps, err := vdepth.MachineToDependencies(machine)
		if err != nil {
			return err
		}

		left, err := grabFrame(ctx, deps, *leftCamera)
		if err != nil {
			return err
		}
		right, err := grabFrame(ctx, deps, *rightCamera)
		if err != nil {
			return err
		}

		dm, err := conv.ComputeDepth(ctx, left, right, calib)
		if err != nil {
			return err
		}
		return writeOutputs(dm, *focal, *out, *pcdOut, logger)

	default:
		return fmt.Errorf("unknown cmd [%s]", *cmd)
	}
}

// connectMachine prefers the machine named by the environment (the way
// a deployed process is configured); a -host flag overrides it and
// goes through the viam cli token instead.
func connectMachine(ctx context.Context, host string, logger logging.Logger) (robot.Robot, error) {
	if host == "" {
		return vdepth.ConnectToMachineFromEnv(ctx, logger)
	}
	return vdepth.ConnectToHostFromCLIToken(ctx, host, logger)
}

func grabFrame(ctx context.Context, deps resource.Dependencies, name string) (image.Image, error) {
	res, ok := vdepth.FindDep(deps, name)
	if !ok {
		return nil, fmt.Errorf("no resource named %s on the machine", name)
	}
	cam, ok := res.(camera.Camera)
	if !ok {
		return nil, fmt.Errorf("%s is not a camera", name)
	}

	raw, _, err := cam.Image(ctx, rutils.MimeTypePNG, nil)
	if err != nil {
		return nil, err
	}

	return rimage.DecodeImage(ctx, raw, rutils.MimeTypePNG)
}

func writeOutputs(dm *depth.DepthMap, focal float64, out, pcdOut string, logger logging.Logger) error {
	min, max := dm.MinMax()
	logger.Infof("depth range %dmm - %dmm", min, max)

	file, err := os.Create(out)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := png.Encode(file, dm.ToGray16()); err != nil {
		return err
	}

	if pcdOut == "" {
		return nil
	}

	pc, err := depthcamera.DepthMapToPointCloud(dm, depthcamera.ApproximateIntrinsics(focal, dm.Width(), dm.Height()))
	if err != nil {
		return err
	}

	pcdFile, err := os.Create(pcdOut)
	if err != nil {
		return err
	}
	defer pcdFile.Close()

	return pointcloud.ToPCD(pc, pcdFile, pointcloud.PCDBinary)
}
