package depthcamera

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/data"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/rimage"
	"go.viam.com/rdk/spatialmath"
	rutils "go.viam.com/rdk/utils"

	"github.com/erh/vdepth"
	"github.com/erh/vdepth/depth"
	"github.com/erh/vdepth/imgutils"
)

var Model = vdepth.NamespaceFamily.WithModel("stereo-depth")

// Left/right exposure can drift apart on cheap rigs and quietly ruin
// SAD matching; warn past this grayscale average gap.
const exposureWarnGap = 40.0

func init() {
	resource.RegisterComponent(
		camera.API,
		Model,
		resource.Registration[camera.Camera, *Config]{
			Constructor: newStereoDepthCamera,
		})
}

type Config struct {
	Left  string
	Right string

	BaselineMeters float64 `json:"baseline_m"`
	FocalLengthPx  float64 `json:"focal_length_px"`

	// InputIsDepth means the left source already serves metric depth
	// frames (16-bit grayscale); no matching or conversion runs.
	InputIsDepth bool `json:"input_is_depth"`

	MaxDisparityPx int `json:"max_disparity_px"`
	WindowRadiusPx int `json:"window_radius_px"`
}

func (c *Config) Validate(path string) ([]string, []string, error) {
	if c.Left == "" {
		return nil, nil, fmt.Errorf("need a left camera")
	}

	if c.InputIsDepth {
		return []string{c.Left}, nil, nil
	}

	if c.Right == "" {
		return nil, nil, fmt.Errorf("need a right camera")
	}
	calib := depth.StereoCalibration{
		BaselineMeters: float32(c.BaselineMeters),
		FocalLengthPx:  float32(c.FocalLengthPx),
	}
	if err := calib.Validate(); err != nil {
		return nil, nil, err
	}
	return []string{c.Left, c.Right}, nil, nil
}

func (c *Config) matcher() depth.StereoMatcher {
	if c.InputIsDepth {
		return depthReadthrough{}
	}

	bm := depth.NewBlockMatcher()
	if c.MaxDisparityPx > 0 {
		bm.MaxDisparity = c.MaxDisparityPx
	}
	if c.WindowRadiusPx > 0 {
		bm.WindowRadius = c.WindowRadiusPx
	}
	return bm
}

func newStereoDepthCamera(ctx context.Context, deps resource.Dependencies, config resource.Config, logger logging.Logger) (camera.Camera, error) {
	newConf, err := resource.NativeConfig[*Config](config)
	if err != nil {
		return nil, err
	}

	sdc := &stereoDepthCamera{
		name:   config.ResourceName(),
		cfg:    newConf,
		logger: logger,
		calib: depth.StereoCalibration{
			BaselineMeters: float32(newConf.BaselineMeters),
			FocalLengthPx:  float32(newConf.FocalLengthPx),
		},
	}
	sdc.conv = depth.NewConverter(newConf.matcher(), newConf.InputIsDepth, logger)

	sdc.left, err = camera.FromProvider(deps, newConf.Left)
	if err != nil {
		return nil, err
	}
	if !newConf.InputIsDepth {
		sdc.right, err = camera.FromProvider(deps, newConf.Right)
		if err != nil {
			return nil, err
		}
	}

	return sdc, nil
}

type stereoDepthCamera struct {
	resource.AlwaysRebuild
	resource.TriviallyCloseable

	name   resource.Name
	cfg    *Config
	logger logging.Logger

	left  camera.Camera
	right camera.Camera

	calib depth.StereoCalibration
	conv  *depth.Converter

	// buf is reused between calls; hold lock while reading it.
	lock sync.Mutex
	buf  *depth.DepthMap
}

func (sdc *stereoDepthCamera) Name() resource.Name {
	return sdc.name
}

// computeDepthLocked grabs the current frames and converts them; the
// caller must hold the lock for as long as it uses the result.
func (sdc *stereoDepthCamera) computeDepthLocked(ctx context.Context, extra map[string]interface{}) (*depth.DepthMap, error) {
	start := time.Now()

	left, err := sdc.fetchFrame(ctx, sdc.left, extra)
	if err != nil {
		return nil, fmt.Errorf("left camera: %w", err)
	}

	var right image.Image
	if sdc.right != nil {
		right, err = sdc.fetchFrame(ctx, sdc.right, extra)
		if err != nil {
			return nil, fmt.Errorf("right camera: %w", err)
		}

		gap := imgutils.ComputeGrayscaleAverage(left) - imgutils.ComputeGrayscaleAverage(right)
		if gap > exposureWarnGap || gap < -exposureWarnGap {
			sdc.logger.Warnf("left/right exposure gap is %0.1f, matching will suffer", gap)
		}
	}

	dm, err := sdc.conv.ComputeDepthInto(ctx, left, right, sdc.calib, sdc.buf)
	if err != nil {
		return nil, err
	}
	sdc.buf = dm

	elapsed := time.Since(start)
	if elapsed > (time.Millisecond * 250) {
		sdc.logger.Infof("stereoDepthCamera %s took %v", sdc.conv.Name(), elapsed)
	}

	return dm, nil
}

func (sdc *stereoDepthCamera) fetchFrame(ctx context.Context, cam camera.Camera, extra map[string]interface{}) (image.Image, error) {
	raw, _, err := cam.Image(ctx, rutils.MimeTypePNG, extra)
	if err != nil {
		return nil, err
	}
	return rimage.DecodeImage(ctx, raw, rutils.MimeTypePNG)
}

func (sdc *stereoDepthCamera) Image(ctx context.Context, mimeType string, extra map[string]interface{}) ([]byte, camera.ImageMetadata, error) {
	sdc.lock.Lock()
	defer sdc.lock.Unlock()

	dm, err := sdc.computeDepthLocked(ctx, extra)
	if err != nil {
		return nil, camera.ImageMetadata{}, err
	}

	if mimeType == "" {
		mimeType = rutils.MimeTypePNG
	}
	raw, err := rimage.EncodeImage(ctx, dm.ToGray16(), mimeType)
	if err != nil {
		return nil, camera.ImageMetadata{}, err
	}

	return raw, camera.ImageMetadata{MimeType: mimeType}, nil
}

func (sdc *stereoDepthCamera) Images(ctx context.Context, filterSourceNames []string, extra map[string]interface{}) ([]camera.NamedImage, resource.ResponseMetadata, error) {
	sdc.lock.Lock()
	defer sdc.lock.Unlock()

	dm, err := sdc.computeDepthLocked(ctx, extra)
	if err != nil {
		return nil, resource.ResponseMetadata{}, err
	}

	ni, err := camera.NamedImageFromImage(dm.ToGray16(), "depth", rutils.MimeTypePNG, data.Annotations{})
	if err != nil {
		return nil, resource.ResponseMetadata{}, err
	}
	return []camera.NamedImage{ni}, resource.ResponseMetadata{CapturedAt: time.Now()}, nil
}

func (sdc *stereoDepthCamera) NextPointCloud(ctx context.Context, extra map[string]interface{}) (pointcloud.PointCloud, error) {
	sdc.lock.Lock()
	defer sdc.lock.Unlock()

	dm, err := sdc.computeDepthLocked(ctx, extra)
	if err != nil {
		return nil, err
	}

	intr := ApproximateIntrinsics(sdc.cfg.FocalLengthPx, dm.Width(), dm.Height())
	if props, err := sdc.left.Properties(ctx); err == nil && props.IntrinsicParams != nil {
		intr = props.IntrinsicParams
	}

	return DepthMapToPointCloud(dm, intr)
}

func (sdc *stereoDepthCamera) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"matcher": sdc.conv.Name()}, nil
}

func (sdc *stereoDepthCamera) Properties(ctx context.Context) (camera.Properties, error) {
	return camera.Properties{
		SupportsPCD: true,
	}, nil
}

func (sdc *stereoDepthCamera) Geometries(ctx context.Context, _ map[string]interface{}) ([]spatialmath.Geometry, error) {
	return nil, nil
}

// depthReadthrough treats the left source's frames as depth already in
// millimeters and hands them through untouched.
type depthReadthrough struct{}

func (depthReadthrough) Name() string {
	return "depth-readthrough"
}

func (depthReadthrough) DisparityMapFromStereo(ctx context.Context, left, right image.Image) (*depth.DisparityMap, error) {
	g, ok := left.(*image.Gray16)
	if !ok {
		return nil, fmt.Errorf("a depth source must serve 16-bit grayscale frames, got %T", left)
	}
	return depth.DisparityMapFromGray16(g), nil
}
