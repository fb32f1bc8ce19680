package project

import (
	gomath "math"

	"github.com/Faultbox/gsplat/pkg/math"
	"github.com/Faultbox/gsplat/pkg/splat"
)

// surfelFilter weights the screen-space low-pass fallback, so a surfel
// seen edge-on still covers about one pixel.
const surfelFilter = 2.0

// surfelExtent is the bounding radius multiplier for surfels.
const surfelExtent = 3.33

// aabbTest is the signature diag(1, 1, -1) of the homogeneous conic used to
// bound a surfel on screen.
var aabbTest = math.Vec3{X: 1, Y: 1, Z: -1}

// Surfel is the planar 2D Gaussian primitive. Its footprint is the ray
// transform T = P·[a b μ; 0 0 1] mapping tangent-plane coordinates (u, v, 1)
// to homogeneous pixels, with a = R_cam R e₀ s₀ and b = R_cam R e₁ s₁.
// Only the first two scale axes are used.
type Surfel struct{}

var _ splat.Shape = Surfel{}

// Name implements splat.Shape.
func (Surfel) Name() string { return "surfel" }

// Planar implements splat.Shape.
func (Surfel) Planar() bool { return true }

type surfelState struct {
	rCam   math.Mat3
	rot    math.Mat3
	meanC  math.Vec3
	t      math.Mat3
	d      float64
	mean2d math.Vec2
	radius int
}

// rayTransform builds T from the camera-space tangent axes and centre.
func rayTransform(cam *splat.Camera, a, b, meanC math.Vec3) math.Mat3 {
	k := cam.K
	h0 := math.Vec3{X: a.X, Y: b.X, Z: meanC.X}
	h1 := math.Vec3{X: a.Y, Y: b.Y, Z: meanC.Y}
	h2 := math.Vec3{X: a.Z, Y: b.Z, Z: meanC.Z}
	if cam.Model == splat.Orthographic {
		h3 := math.Vec3{Z: 1}
		return rows(h0.Scale(k.Fx).Add(h3.Scale(k.Cx)), h1.Scale(k.Fy).Add(h3.Scale(k.Cy)), h3)
	}
	return rows(h0.Scale(k.Fx).Add(h2.Scale(k.Cx)), h1.Scale(k.Fy).Add(h2.Scale(k.Cy)), h2)
}

func rows(r0, r1, r2 math.Vec3) math.Mat3 {
	return math.Mat3{{r0.X, r0.Y, r0.Z}, {r1.X, r1.Y, r1.Z}, {r2.X, r2.Y, r2.Z}}
}

func (Surfel) forward(in *splat.ProjectInput, opts *splat.ProjectOptions) (st surfelState, ok bool) {
	st.rCam = in.Viewmat.Rotation()
	st.meanC = WorldToCam(in.Viewmat, in.Mean)
	if st.meanC.Z <= opts.Near || st.meanC.Z >= opts.Far {
		return st, false
	}
	st.rot = in.Quat.ToMat3()
	a := st.rCam.MulVec(st.rot.Col(0)).Scale(in.Scale.X)
	b := st.rCam.MulVec(st.rot.Col(1)).Scale(in.Scale.Y)
	st.t = rayTransform(in.Camera, a, b, st.meanC)

	u, v, w := st.t.Row(0), st.t.Row(1), st.t.Row(2)
	st.d = aabbTest.Dot(w.Mul(w))
	if st.d == 0 {
		return st, false
	}
	f := aabbTest.Scale(1 / st.d)
	st.mean2d = math.Vec2{X: f.Dot(u.Mul(w)), Y: f.Dot(v.Mul(w))}
	hx := st.mean2d.X*st.mean2d.X - f.Dot(u.Mul(u))
	hy := st.mean2d.Y*st.mean2d.Y - f.Dot(v.Mul(v))
	st.radius = pixelRadius(surfelExtent * gomath.Sqrt(max(1e-4, hx, hy)))

	if !onScreen(st.mean2d, st.radius, in.Camera, opts) {
		return st, false
	}
	return st, true
}

// Project implements splat.Shape.
func (s Surfel) Project(in splat.ProjectInput, opts splat.ProjectOptions) splat.Footprint {
	st, ok := s.forward(&in, &opts)
	if !ok {
		return splat.Footprint{}
	}
	return splat.Footprint{
		Mean2D:       st.mean2d,
		Depth:        st.meanC.Z,
		Radius:       st.radius,
		RayTransform: st.t,
	}
}

// ProjectBackward implements splat.Shape.
func (s Surfel) ProjectBackward(in splat.ProjectInput, opts splat.ProjectOptions, g splat.FootprintGrad) splat.ProjectGrad {
	st, ok := s.forward(&in, &opts)
	if !ok {
		return splat.ProjectGrad{}
	}
	u, v, w := st.t.Row(0), st.t.Row(1), st.t.Row(2)
	vU, vV, vW := g.RayTransform.Row(0), g.RayTransform.Row(1), g.RayTransform.Row(2)

	// mean2d = Σ tₖ uₖ wₖ / d with d = Σ tₖ wₖ².
	gx, gy := g.Mean2D.X, g.Mean2D.Y
	tw := aabbTest.Mul(w).Scale(1 / st.d)
	vU = vU.Add(tw.Scale(gx))
	vV = vV.Add(tw.Scale(gy))
	vW = vW.Add(aabbTest.Mul(u.Scale(gx).Add(v.Scale(gy))).Scale(1 / st.d))
	vW = vW.Sub(tw.Scale(2 * (gx*st.mean2d.X + gy*st.mean2d.Y)))

	k := in.Camera.K
	vH0 := vU.Scale(k.Fx)
	vH1 := vV.Scale(k.Fy)
	var vH2 math.Vec3
	if in.Camera.Model != splat.Orthographic {
		vH2 = vU.Scale(k.Cx).Add(vV.Scale(k.Cy)).Add(vW)
	}
	vA := math.Vec3{X: vH0.X, Y: vH1.X, Z: vH2.X}
	vB := math.Vec3{X: vH0.Y, Y: vH1.Y, Z: vH2.Y}
	vMeanC := math.Vec3{X: vH0.Z, Y: vH1.Z, Z: vH2.Z}
	vMeanC.Z += g.Depth

	r0, r1 := st.rot.Col(0), st.rot.Col(1)
	rct := st.rCam.Transpose()
	var vRot math.Mat3
	vr0 := rct.MulVec(vA).Scale(in.Scale.X)
	vr1 := rct.MulVec(vB).Scale(in.Scale.Y)
	for i := 0; i < 3; i++ {
		vRot[i][0] = vr0.At(i)
		vRot[i][1] = vr1.At(i)
	}
	vScale := math.Vec3{X: st.rCam.MulVec(r0).Dot(vA), Y: st.rCam.MulVec(r1).Dot(vB)}
	vRCam := math.Outer(vA, r0.Scale(in.Scale.X)).Add(math.Outer(vB, r1.Scale(in.Scale.Y)))

	vMean, vView := WorldToCamBackward(in.Viewmat, in.Mean, vMeanC)
	vView = vView.Add(ViewmatGrad(vRCam, math.Vec3{}))
	return splat.ProjectGrad{
		Mean:    vMean,
		Quat:    in.Quat.ToMat3Backward(vRot),
		Scale:   vScale,
		Viewmat: vView,
	}
}

// surfelHit intersects the pixel ray with the surfel plane.
func surfelHit(fp *splat.Footprint, px, py float64) (hu, hv, c math.Vec3) {
	t := &fp.RayTransform
	hu = t.Row(2).Scale(px).Sub(t.Row(0))
	hv = t.Row(2).Scale(py).Sub(t.Row(1))
	return hu, hv, hu.Cross(hv)
}

// Sigma implements splat.Shape. The exponent is the smaller of the
// ray-plane intersection distance and the screen-space low-pass filter.
func (Surfel) Sigma(fp *splat.Footprint, px, py float64) (float64, bool) {
	_, _, c := surfelHit(fp, px, py)
	if c.Z == 0 {
		return 0, false
	}
	sx, sy := c.X/c.Z, c.Y/c.Z
	dx, dy := fp.Mean2D.X-px, fp.Mean2D.Y-py
	g3 := sx*sx + sy*sy
	g2 := surfelFilter * (dx*dx + dy*dy)
	return 0.5 * min(g3, g2), true
}

// SigmaBackward implements splat.Shape.
func (Surfel) SigmaBackward(fp *splat.Footprint, px, py, vSigma float64, g *splat.FootprintGrad) {
	hu, hv, c := surfelHit(fp, px, py)
	if c.Z == 0 {
		return
	}
	sx, sy := c.X/c.Z, c.Y/c.Z
	dx, dy := fp.Mean2D.X-px, fp.Mean2D.Y-py
	g3 := sx*sx + sy*sy
	g2 := surfelFilter * (dx*dx + dy*dy)

	if g3 > g2 {
		k := vSigma * surfelFilter
		g.Mean2D = g.Mean2D.Add(math.Vec2{X: k * dx, Y: k * dy})
		return
	}

	vsx, vsy := vSigma*sx, vSigma*sy
	vc := math.Vec3{X: vsx / c.Z, Y: vsy / c.Z, Z: -(vsx*c.X + vsy*c.Y) / (c.Z * c.Z)}
	vhu := hv.Cross(vc)
	vhv := vc.Cross(hu)

	vT := rows(vhu.Scale(-1), vhv.Scale(-1), vhu.Scale(px).Add(vhv.Scale(py)))
	g.RayTransform = g.RayTransform.Add(vT)
}
