package project

import (
	"github.com/Faultbox/gsplat/pkg/math"
	"github.com/Faultbox/gsplat/pkg/splat"
)

// DefaultRollingIterations bounds the row-time fixed point.
const DefaultRollingIterations = 3

// rowTime reads the normalized exposure time of a projected centre.
func rowTime(mean2d math.Vec2, cam *splat.Camera) float64 {
	w, h := float64(cam.Width), float64(cam.Height)
	var t float64
	switch cam.Shutter.Type {
	case splat.RollingTopToBottom:
		t = mean2d.Y / h
	case splat.RollingBottomToTop:
		t = 1 - mean2d.Y/h
	case splat.RollingLeftToRight:
		t = mean2d.X / w
	case splat.RollingRightToLeft:
		t = 1 - mean2d.X/w
	}
	return clamp(t, 0, 1)
}

// solveRowTime finds the exposure time at which a primitive is seen by a
// rolling shutter camera. The row depends on the pose and the pose on the
// row, so this is a fixed point; a few iterations are run and the result
// is accepted whether or not it converged.
func solveRowTime(shape splat.Shape, in splat.ProjectInput, opts *splat.ProjectOptions, seed float64, iterations int) float64 {
	rs := in.Camera.Shutter
	t := seed
	for range iterations {
		in.Viewmat = rs.PoseAt(t).Viewmat()
		fp := shape.Project(in, *opts)
		if !fp.Visible() {
			break
		}
		t = rowTime(fp.Mean2D, in.Camera)
	}
	return t
}

// PoseGrad is the gradient with respect to a Pose.
type PoseGrad struct {
	Rotation    math.Quat
	Translation math.Vec3
}

// Add accumulates o into g.
func (g *PoseGrad) Add(o PoseGrad) {
	g.Rotation = g.Rotation.Add(o.Rotation)
	g.Translation = g.Translation.Add(o.Translation)
}

// ShutterBackward maps the gradient of the effective viewmat at time t to
// the start and end poses. t is held constant.
func ShutterBackward(rs *splat.RollingShutter, t float64, vView math.Mat4) (start, end PoseGrad) {
	q := rs.Start.Rotation.Nlerp(rs.End.Rotation, t)
	vq := q.ToMat3Backward(vView.Rotation())
	sign := 1.0
	if rs.Start.Rotation.Dot(rs.End.Rotation) < 0 {
		sign = -1
	}
	vt := vView.Translation()
	start = PoseGrad{Rotation: vq.Scale(1 - t), Translation: vt.Scale(1 - t)}
	end = PoseGrad{Rotation: vq.Scale(t * sign), Translation: vt.Scale(t)}
	return start, end
}
