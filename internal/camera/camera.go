// Package camera places splat cameras around a scene.
package camera

import (
	gomath "math"

	"github.com/Faultbox/gsplat/pkg/math"
	"github.com/Faultbox/gsplat/pkg/splat"
)

// OrbitCamera orbits around a center point.
type OrbitCamera struct {
	// Center point to orbit around
	Center math.Vec3

	// Spherical coordinates
	Distance float64 // Distance from center
	Pitch    float64 // Elevation above the XZ plane (radians)
	Yaw      float64 // Horizontal angle (radians)

	// Constraints
	MinDistance float64
	MaxDistance float64
	MinPitch    float64
	MaxPitch    float64

	// Lens
	FOV    float64 // Vertical field of view (radians)
	Model  splat.CameraModel
	Width  int
	Height int
}

// NewOrbitCamera creates a new orbit camera with default settings.
func NewOrbitCamera(width, height int) *OrbitCamera {
	return &OrbitCamera{
		Distance:    4.0,
		Pitch:       0.26,
		MinDistance: 1e-3,
		MaxDistance: 1e4,
		MinPitch:    -1.5,
		MaxPitch:    1.5,
		FOV:         50 * gomath.Pi / 180,
		Width:       width,
		Height:      height,
	}
}

// Position returns the camera position in world space.
func (c *OrbitCamera) Position() math.Vec3 {
	x := c.Distance * gomath.Cos(c.Pitch) * gomath.Sin(c.Yaw)
	y := c.Distance * gomath.Sin(c.Pitch)
	z := c.Distance * gomath.Cos(c.Pitch) * gomath.Cos(c.Yaw)

	return c.Center.Add(math.Vec3{X: x, Y: y, Z: z})
}

// ViewMatrix returns the world-to-camera matrix for this camera.
func (c *OrbitCamera) ViewMatrix() math.Mat4 {
	up := math.Vec3{X: 0, Y: 1, Z: 0}
	return math.LookAt(c.Position(), c.Center, up)
}

// Intrinsics returns the lens matrix with the principal point at the image
// center. Orthographic cameras are scaled so the plane through Center
// frames the same extent a pinhole camera would.
func (c *OrbitCamera) Intrinsics() splat.Intrinsics {
	f := float64(c.Height) / 2 / gomath.Tan(c.FOV/2)
	if c.Model == splat.Orthographic {
		f /= c.Distance
	}
	return splat.Intrinsics{
		Fx: f,
		Fy: f,
		Cx: float64(c.Width) / 2,
		Cy: float64(c.Height) / 2,
	}
}

// Camera returns the current view.
func (c *OrbitCamera) Camera() splat.Camera {
	return splat.Camera{
		Viewmat: c.ViewMatrix(),
		K:       c.Intrinsics(),
		Width:   c.Width,
		Height:  c.Height,
		Model:   c.Model,
	}
}

// Orbit returns views evenly spaced around the center, starting at the
// current yaw. The camera itself is left unchanged.
func (c *OrbitCamera) Orbit(views int) []splat.Camera {
	cams := make([]splat.Camera, views)
	step := c.clone()
	for i := range cams {
		step.Yaw = c.Yaw + 2*gomath.Pi*float64(i)/float64(views)
		cams[i] = step.Camera()
	}
	return cams
}

func (c *OrbitCamera) clone() *OrbitCamera {
	cp := *c
	return &cp
}

// fitMargin pads the fitted distance so the bounds keep a border.
const fitMargin = 1.05

// FitToBounds centers the camera on the box and backs it off until the
// bounding sphere fits the narrower field of view.
func (c *OrbitCamera) FitToBounds(lo, hi math.Vec3) {
	c.Center = lo.Add(hi).Scale(0.5)
	radius := hi.Sub(lo).Length() / 2

	fov := c.FOV
	if c.Width < c.Height {
		fov = 2 * gomath.Atan(gomath.Tan(c.FOV/2)*float64(c.Width)/float64(c.Height))
	}
	c.Distance = max(c.MinDistance, min(c.MaxDistance, fitMargin*radius/gomath.Sin(fov/2)))
}
