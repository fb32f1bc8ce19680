package splat

import "github.com/Faultbox/gsplat/pkg/math"

// Footprint is a primitive projected into one camera. A zero Radius marks
// the primitive as not visible; such footprints take no further part.
type Footprint struct {
	Mean2D math.Vec2
	Depth  float64
	Radius int

	// Conic is the inverse 2D covariance (A, B, C) of an ellipsoid, so the
	// falloff exponent is 0.5*(A dx² + C dy²) + B dx dy.
	Conic math.Vec3

	// RayTransform maps pixel rays onto a surfel's tangent plane.
	RayTransform math.Mat3
}

// Visible reports whether the footprint takes part in binning.
func (f *Footprint) Visible() bool {
	return f.Radius > 0
}

// FootprintGrad is the gradient of the loss with respect to a Footprint.
type FootprintGrad struct {
	Mean2D       math.Vec2
	Depth        float64
	Conic        math.Vec3
	RayTransform math.Mat3
}

// Add accumulates other into g.
func (g *FootprintGrad) Add(other *FootprintGrad) {
	g.Mean2D = g.Mean2D.Add(other.Mean2D)
	g.Depth += other.Depth
	g.Conic = g.Conic.Add(other.Conic)
	g.RayTransform = g.RayTransform.Add(other.RayTransform)
}

// ProjectInput is everything a Shape needs to project one primitive.
type ProjectInput struct {
	Mean    math.Vec3
	Quat    math.Quat
	Scale   math.Vec3
	Viewmat math.Mat4
	Camera  *Camera
}

// ProjectOptions carries the culling and numerical settings of projection.
type ProjectOptions struct {
	Near, Far  float64
	EigenFloor float64
	RadiusClip float64
}

// ProjectGrad is the gradient of a Footprint pulled back to the primitive
// parameters and the (effective) viewmat.
type ProjectGrad struct {
	Mean    math.Vec3
	Quat    math.Quat
	Scale   math.Vec3
	Viewmat math.Mat4
}

// Shape is the capability a primitive family provides to the shared
// bin/sort/composite pipeline: how its footprint is projected and how its
// density falls off across pixels, each with its gradient.
type Shape interface {
	// Name identifies the shape in logs.
	Name() string

	// Planar reports whether only the first two scale axes are meaningful.
	Planar() bool

	// Project computes the footprint of one primitive. Culled primitives
	// return a footprint with zero radius.
	Project(in ProjectInput, opts ProjectOptions) Footprint

	// ProjectBackward pulls a footprint gradient back to the primitive.
	ProjectBackward(in ProjectInput, opts ProjectOptions, g FootprintGrad) ProjectGrad

	// Sigma evaluates the falloff exponent at pixel centre (px, py).
	// ok is false when the primitive has no support there.
	Sigma(fp *Footprint, px, py float64) (sigma float64, ok bool)

	// SigmaBackward accumulates vSigma * dSigma/dFootprint into g.
	SigmaBackward(fp *Footprint, px, py, vSigma float64, g *FootprintGrad)
}
