package splat

import (
	"fmt"

	"github.com/Faultbox/gsplat/pkg/math"
)

// CameraModel selects the projection used for a view.
type CameraModel int

// Supported camera models.
const (
	Pinhole CameraModel = iota
	Orthographic
)

// String returns the model name used in configuration files.
func (m CameraModel) String() string {
	switch m {
	case Pinhole:
		return "pinhole"
	case Orthographic:
		return "ortho"
	default:
		return fmt.Sprintf("CameraModel(%d)", int(m))
	}
}

// ParseCameraModel converts a configuration string to a CameraModel.
func ParseCameraModel(s string) (CameraModel, error) {
	switch s {
	case "", "pinhole":
		return Pinhole, nil
	case "ortho", "orthographic":
		return Orthographic, nil
	default:
		return Pinhole, fmt.Errorf("%w: unknown camera model %q", ErrInvalidInput, s)
	}
}

// Intrinsics is the upper-triangular pinhole matrix K = [[Fx 0 Cx] [0 Fy Cy] [0 0 1]].
type Intrinsics struct {
	Fx, Fy float64
	Cx, Cy float64
}

// Matrix returns K as a row-major Mat3.
func (k Intrinsics) Matrix() math.Mat3 {
	return math.Mat3{{k.Fx, 0, k.Cx}, {0, k.Fy, k.Cy}, {0, 0, 1}}
}

// ShutterType describes how exposure sweeps across the sensor.
type ShutterType int

// Shutter sweep directions.
const (
	GlobalShutter ShutterType = iota
	RollingTopToBottom
	RollingLeftToRight
	RollingBottomToTop
	RollingRightToLeft
)

// String returns the shutter name.
func (s ShutterType) String() string {
	switch s {
	case GlobalShutter:
		return "global"
	case RollingTopToBottom:
		return "top-to-bottom"
	case RollingLeftToRight:
		return "left-to-right"
	case RollingBottomToTop:
		return "bottom-to-top"
	case RollingRightToLeft:
		return "right-to-left"
	default:
		return fmt.Sprintf("ShutterType(%d)", int(s))
	}
}

// Pose is a world-to-camera rigid transform.
type Pose struct {
	Rotation    math.Quat
	Translation math.Vec3
}

// Viewmat returns the pose as a world-to-camera matrix.
func (p Pose) Viewmat() math.Mat4 {
	return math.FromRotationTranslation(p.Rotation.ToMat3(), p.Translation)
}

// RollingShutter holds the poses at the start and end of the exposure sweep.
type RollingShutter struct {
	Type  ShutterType
	Start Pose
	End   Pose

	// RowHint optionally seeds the per-primitive normalized row time, e.g.
	// from the previous iteration. When nil every primitive starts at 0.5.
	RowHint []float64
}

// PoseAt blends the start and end poses at normalized time t.
// The rotation is left unnormalized; ToMat3 normalizes it.
func (r *RollingShutter) PoseAt(t float64) Pose {
	return Pose{
		Rotation:    r.Start.Rotation.Nlerp(r.End.Rotation, t),
		Translation: r.Start.Translation.Scale(1 - t).Add(r.End.Translation.Scale(t)),
	}
}

// Camera is one view: extrinsics, intrinsics and image size.
type Camera struct {
	Viewmat math.Mat4
	K       Intrinsics
	Width   int
	Height  int
	Model   CameraModel

	// Shutter is nil for a global shutter camera. When set with a rolling
	// type, Viewmat is ignored and the pose is interpolated per primitive.
	Shutter *RollingShutter
}

// IsRolling reports whether the camera needs per-primitive pose interpolation.
func (c *Camera) IsRolling() bool {
	return c.Shutter != nil && c.Shutter.Type != GlobalShutter
}

// Validate checks the camera for finite, well-formed parameters.
func (c *Camera) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: image size %dx%d", ErrInvalidInput, c.Width, c.Height)
	}
	k := c.K
	for _, f := range []float64{k.Fx, k.Fy, k.Cx, k.Cy} {
		if !math.IsFinite(f) {
			return fmt.Errorf("%w: intrinsics are not finite: %+v", ErrInvalidInput, k)
		}
	}
	if k.Fx <= 0 || k.Fy <= 0 {
		return fmt.Errorf("%w: focal lengths must be positive: %+v", ErrInvalidInput, k)
	}
	if !c.Viewmat.IsFinite() {
		return fmt.Errorf("%w: viewmat is not finite", ErrInvalidInput)
	}
	if c.Shutter != nil {
		s := c.Shutter
		if !s.Start.Rotation.IsFinite() || !s.End.Rotation.IsFinite() ||
			!s.Start.Translation.IsFinite() || !s.End.Translation.IsFinite() {
			return fmt.Errorf("%w: rolling shutter poses are not finite", ErrInvalidInput)
		}
		if s.Start.Rotation.Length() == 0 || s.End.Rotation.Length() == 0 {
			return fmt.Errorf("%w: rolling shutter rotation is degenerate", ErrInvalidInput)
		}
		for i, h := range s.RowHint {
			if !math.IsFinite(h) {
				return fmt.Errorf("%w: row hint %d is not finite: %v", ErrInvalidInput, i, h)
			}
		}
	}
	return nil
}

// ValidateCameras checks every camera and requires a shared image size, which
// keeps the flattened tile index space uniform.
func ValidateCameras(cams []Camera) error {
	if len(cams) == 0 {
		return fmt.Errorf("%w: no cameras", ErrInvalidInput)
	}
	for i := range cams {
		if err := cams[i].Validate(); err != nil {
			return fmt.Errorf("camera %d: %w", i, err)
		}
		if cams[i].Width != cams[0].Width || cams[i].Height != cams[0].Height {
			return fmt.Errorf("%w: camera %d is %dx%d, camera 0 is %dx%d", ErrInvalidInput,
				i, cams[i].Width, cams[i].Height, cams[0].Width, cams[0].Height)
		}
	}
	return nil
}
