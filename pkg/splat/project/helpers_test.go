package project

import (
	gomath "math"
	"testing"

	"github.com/Faultbox/gsplat/pkg/math"
	"github.com/Faultbox/gsplat/pkg/splat"
)

const fdEps = 1e-6

func testCamera() *splat.Camera {
	return &splat.Camera{
		Viewmat: math.LookAt(math.Vec3{X: 0.3, Y: -0.2, Z: -4}, math.Vec3{}, math.Vec3{Y: 1}),
		K:       splat.Intrinsics{Fx: 120, Fy: 110, Cx: 32, Cy: 24},
		Width:   64,
		Height:  48,
	}
}

func testOptions() splat.ProjectOptions {
	return splat.ProjectOptions{Near: 0.01, Far: 1e10, EigenFloor: 0.3}
}

func testInput(cam *splat.Camera) splat.ProjectInput {
	return splat.ProjectInput{
		Mean:    math.Vec3{X: 0.2, Y: -0.1, Z: 0.3},
		Quat:    math.Quat{X: 0.3, Y: -0.5, Z: 0.2, W: 0.9},
		Scale:   math.Vec3{X: 0.15, Y: 0.05, Z: 0.1},
		Viewmat: cam.Viewmat,
		Camera:  cam,
	}
}

// closeEnough compares an analytic derivative with a central difference.
func closeEnough(analytic, numeric float64) bool {
	return gomath.Abs(analytic-numeric) <= 1e-5+1e-4*gomath.Abs(numeric)
}

func matDot(a, b math.Mat3) float64 {
	s := 0.0
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s += a[i][j] * b[i][j]
		}
	}
	return s
}

// footprintLoss is the linear functional whose gradient is g.
func footprintLoss(fp splat.Footprint, g splat.FootprintGrad) float64 {
	return fp.Mean2D.Dot(g.Mean2D) + fp.Depth*g.Depth + fp.Conic.Dot(g.Conic) + matDot(fp.RayTransform, g.RayTransform)
}

// checkProjectBackward compares ProjectBackward with central differences
// over every primitive parameter and the upper 3x4 block of the viewmat.
func checkProjectBackward(t *testing.T, shape splat.Shape, in splat.ProjectInput, opts splat.ProjectOptions, g splat.FootprintGrad) {
	t.Helper()
	if fp := shape.Project(in, opts); !fp.Visible() {
		t.Fatalf("%s: test primitive is not visible", shape.Name())
	}
	got := shape.ProjectBackward(in, opts, g)
	loss := func(in splat.ProjectInput) float64 {
		return footprintLoss(shape.Project(in, opts), g)
	}
	numeric := func(perturb func(in *splat.ProjectInput, d float64)) float64 {
		plus, minus := in, in
		perturb(&plus, fdEps)
		perturb(&minus, -fdEps)
		return (loss(plus) - loss(minus)) / (2 * fdEps)
	}

	for c := 0; c < 3; c++ {
		n := numeric(func(in *splat.ProjectInput, d float64) { in.Mean = in.Mean.Set(c, in.Mean.At(c)+d) })
		if !closeEnough(got.Mean.At(c), n) {
			t.Errorf("%s mean.%d: analytic %v, numeric %v", shape.Name(), c, got.Mean.At(c), n)
		}
		if shape.Planar() && c == 2 {
			continue
		}
		n = numeric(func(in *splat.ProjectInput, d float64) { in.Scale = in.Scale.Set(c, in.Scale.At(c)+d) })
		if !closeEnough(got.Scale.At(c), n) {
			t.Errorf("%s scale.%d: analytic %v, numeric %v", shape.Name(), c, got.Scale.At(c), n)
		}
	}

	quatComps := []struct {
		name string
		get  func(q math.Quat) float64
		set  func(q *math.Quat, d float64)
	}{
		{"x", func(q math.Quat) float64 { return q.X }, func(q *math.Quat, d float64) { q.X += d }},
		{"y", func(q math.Quat) float64 { return q.Y }, func(q *math.Quat, d float64) { q.Y += d }},
		{"z", func(q math.Quat) float64 { return q.Z }, func(q *math.Quat, d float64) { q.Z += d }},
		{"w", func(q math.Quat) float64 { return q.W }, func(q *math.Quat, d float64) { q.W += d }},
	}
	for _, qc := range quatComps {
		n := numeric(func(in *splat.ProjectInput, d float64) { qc.set(&in.Quat, d) })
		if !closeEnough(qc.get(got.Quat), n) {
			t.Errorf("%s quat.%s: analytic %v, numeric %v", shape.Name(), qc.name, qc.get(got.Quat), n)
		}
	}

	for idx := 0; idx < 15; idx++ {
		if idx%4 == 3 {
			continue
		}
		n := numeric(func(in *splat.ProjectInput, d float64) { in.Viewmat[idx] += d })
		if !closeEnough(got.Viewmat[idx], n) {
			t.Errorf("%s viewmat[%d]: analytic %v, numeric %v", shape.Name(), idx, got.Viewmat[idx], n)
		}
	}
}

// checkSigmaBackward compares SigmaBackward with central differences over
// the footprint fields the shape reads.
func checkSigmaBackward(t *testing.T, shape splat.Shape, fp splat.Footprint, px, py float64) {
	t.Helper()
	const vSigma = 0.7
	var got splat.FootprintGrad
	shape.SigmaBackward(&fp, px, py, vSigma, &got)

	sigma := func(fp splat.Footprint) float64 {
		s, _ := shape.Sigma(&fp, px, py)
		return vSigma * s
	}
	numeric := func(perturb func(fp *splat.Footprint, d float64)) float64 {
		plus, minus := fp, fp
		perturb(&plus, fdEps)
		perturb(&minus, -fdEps)
		return (sigma(plus) - sigma(minus)) / (2 * fdEps)
	}

	if n := numeric(func(fp *splat.Footprint, d float64) { fp.Mean2D.X += d }); !closeEnough(got.Mean2D.X, n) {
		t.Errorf("%s mean2d.x: analytic %v, numeric %v", shape.Name(), got.Mean2D.X, n)
	}
	if n := numeric(func(fp *splat.Footprint, d float64) { fp.Mean2D.Y += d }); !closeEnough(got.Mean2D.Y, n) {
		t.Errorf("%s mean2d.y: analytic %v, numeric %v", shape.Name(), got.Mean2D.Y, n)
	}
	for c := 0; c < 3; c++ {
		n := numeric(func(fp *splat.Footprint, d float64) { fp.Conic = fp.Conic.Set(c, fp.Conic.At(c)+d) })
		if !closeEnough(got.Conic.At(c), n) {
			t.Errorf("%s conic.%d: analytic %v, numeric %v", shape.Name(), c, got.Conic.At(c), n)
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			n := numeric(func(fp *splat.Footprint, d float64) { fp.RayTransform[i][j] += d })
			if !closeEnough(got.RayTransform[i][j], n) {
				t.Errorf("%s ray transform[%d][%d]: analytic %v, numeric %v", shape.Name(), i, j, got.RayTransform[i][j], n)
			}
		}
	}
}
