package project

import (
	"github.com/Faultbox/gsplat/pkg/math"
	"github.com/Faultbox/gsplat/pkg/splat"
)

// Ellipsoid is the 3D Gaussian primitive: its footprint is the EWA
// projection of the 3D covariance and its density falls off with the conic.
type Ellipsoid struct{}

var _ splat.Shape = Ellipsoid{}

// Name implements splat.Shape.
func (Ellipsoid) Name() string { return "ellipsoid" }

// Planar implements splat.Shape.
func (Ellipsoid) Planar() bool { return false }

// ellipsoidState holds the forward intermediates the backward pass replays.
type ellipsoidState struct {
	r       math.Mat3
	meanC   math.Vec3
	cov     math.Mat3
	covC    math.Mat3
	cov2d   Sym2
	clamped Sym2
	conic   Sym2
	mean2d  math.Vec2
	radius  int
}

func (Ellipsoid) forward(in *splat.ProjectInput, opts *splat.ProjectOptions) (st ellipsoidState, ok bool) {
	st.r = in.Viewmat.Rotation()
	st.meanC = WorldToCam(in.Viewmat, in.Mean)
	if st.meanC.Z <= opts.Near || st.meanC.Z >= opts.Far {
		return st, false
	}
	st.cov = QuatScaleToCovar(in.Quat, in.Scale)
	st.covC = WorldToCamCovar(st.r, st.cov)
	st.cov2d, st.mean2d = project2D(in.Camera, st.meanC, st.covC)
	st.clamped = ClampEigen(st.cov2d, opts.EigenFloor)

	if st.clamped.Det() <= 0 {
		return st, false
	}
	st.conic = st.clamped.Inverse()
	st.radius = radiusOf(st.clamped)
	if !onScreen(st.mean2d, st.radius, in.Camera, opts) {
		return st, false
	}
	return st, true
}

// onScreen applies the radius clip and rejects footprints whose bounding
// square misses the image.
func onScreen(mean2d math.Vec2, radius int, cam *splat.Camera, opts *splat.ProjectOptions) bool {
	r := float64(radius)
	if r <= opts.RadiusClip {
		return false
	}
	if mean2d.X+r <= 0 || mean2d.X-r >= float64(cam.Width) ||
		mean2d.Y+r <= 0 || mean2d.Y-r >= float64(cam.Height) {
		return false
	}
	return true
}

// Project implements splat.Shape.
func (e Ellipsoid) Project(in splat.ProjectInput, opts splat.ProjectOptions) splat.Footprint {
	st, ok := e.forward(&in, &opts)
	if !ok {
		return splat.Footprint{}
	}
	return splat.Footprint{
		Mean2D: st.mean2d,
		Depth:  st.meanC.Z,
		Radius: st.radius,
		Conic:  math.Vec3{X: st.conic.A, Y: st.conic.B, Z: st.conic.C},
	}
}

// ProjectBackward implements splat.Shape.
func (e Ellipsoid) ProjectBackward(in splat.ProjectInput, opts splat.ProjectOptions, g splat.FootprintGrad) splat.ProjectGrad {
	st, ok := e.forward(&in, &opts)
	if !ok {
		return splat.ProjectGrad{}
	}

	// Conic gradients arrive as parameter derivatives; B appears once in
	// the falloff, so the symmetric matrix entry is half of it.
	vConic := Sym2{A: g.Conic.X, B: 0.5 * g.Conic.Y, C: g.Conic.Z}
	vClamped := InverseBackward(st.conic, vConic)
	vCov2d := ClampEigenBackward(st.cov2d, opts.EigenFloor, vClamped)

	vMeanC, vCovC := project2DBackward(in.Camera, st.meanC, st.covC, vCov2d, g.Mean2D)
	vMeanC.Z += g.Depth

	vCov, vR := WorldToCamCovarBackward(st.r, st.cov, vCovC)
	vMean, vView := WorldToCamBackward(in.Viewmat, in.Mean, vMeanC)
	vView = vView.Add(ViewmatGrad(vR, math.Vec3{}))

	vQuat, vScale := QuatScaleToCovarBackward(in.Quat, in.Scale, vCov)
	return splat.ProjectGrad{Mean: vMean, Quat: vQuat, Scale: vScale, Viewmat: vView}
}

// Sigma implements splat.Shape.
func (Ellipsoid) Sigma(fp *splat.Footprint, px, py float64) (float64, bool) {
	dx := fp.Mean2D.X - px
	dy := fp.Mean2D.Y - py
	c := fp.Conic
	sigma := 0.5*(c.X*dx*dx+c.Z*dy*dy) + c.Y*dx*dy
	return sigma, sigma >= 0
}

// SigmaBackward implements splat.Shape.
func (Ellipsoid) SigmaBackward(fp *splat.Footprint, px, py, vSigma float64, g *splat.FootprintGrad) {
	dx := fp.Mean2D.X - px
	dy := fp.Mean2D.Y - py
	c := fp.Conic
	g.Conic = g.Conic.Add(math.Vec3{X: 0.5 * vSigma * dx * dx, Y: vSigma * dx * dy, Z: 0.5 * vSigma * dy * dy})
	g.Mean2D = g.Mean2D.Add(math.Vec2{X: vSigma * (c.X*dx + c.Y*dy), Y: vSigma * (c.Y*dx + c.Z*dy)})
}
