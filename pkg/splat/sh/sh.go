// Package sh evaluates view-dependent color from real spherical harmonics.
package sh

import (
	gomath "math"

	"github.com/Faultbox/gsplat/pkg/math"
)

// MaxDegree is the highest supported harmonic degree.
const MaxDegree = 4

// Offset is added to the harmonic sum before clamping, so zero
// coefficients render mid-grey.
const Offset = 0.5

// Basis normalization constants.
const (
	c0 = 0.2820947917738781
	c1 = 0.48860251190292
)

// NumBases returns the number of basis functions up to degree.
func NumBases(degree int) int {
	return (degree + 1) * (degree + 1)
}

// ColorFromDC returns the color a lone degree-zero coefficient evaluates to.
func ColorFromDC(dc float64) float64 {
	return dc*c0 + Offset
}

// DCFromColor is the inverse of ColorFromDC.
func DCFromColor(c float64) float64 {
	return (c - Offset) / c0
}

// basis writes the real SH basis up to degree at the unit direction (x, y, z).
// Constants and sign conventions follow the 3DGS reference kernels.
func basis(degree int, x, y, z dual, out []dual) {
	out[0] = constant(c0)
	if degree < 1 {
		return
	}
	out[1] = y.scale(-c1)
	out[2] = z.scale(c1)
	out[3] = x.scale(-c1)
	if degree < 2 {
		return
	}

	z2 := z.mul(z)
	fTmp0B := z.scale(-1.092548430592079)
	fC1 := x.mul(x).sub(y.mul(y))
	fS1 := x.mul(y).scale(2)
	pSH6 := z2.scale(0.9461746957575601).shift(-0.3153915652525201)
	out[4] = fS1.scale(0.5462742152960395)
	out[5] = fTmp0B.mul(y)
	out[6] = pSH6
	out[7] = fTmp0B.mul(x)
	out[8] = fC1.scale(0.5462742152960395)
	if degree < 3 {
		return
	}

	fTmp0C := z2.scale(-2.285228997322329).shift(0.4570457994644658)
	fTmp1B := z.scale(1.445305721320277)
	fC2 := x.mul(fC1).sub(y.mul(fS1))
	fS2 := x.mul(fS1).add(y.mul(fC1))
	pSH12 := z.mul(z2.scale(1.865881662950577).shift(-1.119528997770346))
	out[9] = fS2.scale(-0.5900435899266435)
	out[10] = fTmp1B.mul(fS1)
	out[11] = fTmp0C.mul(y)
	out[12] = pSH12
	out[13] = fTmp0C.mul(x)
	out[14] = fTmp1B.mul(fC1)
	out[15] = fC2.scale(-0.5900435899266435)
	if degree < 4 {
		return
	}

	fTmp0D := z.mul(z2.scale(-4.683325804901025).shift(2.007139630671868))
	fTmp1C := z2.scale(3.31161143515146).shift(-0.47308734787878)
	fTmp2B := z.scale(-1.770130769779931)
	fC3 := x.mul(fC2).sub(y.mul(fS2))
	fS3 := x.mul(fS2).add(y.mul(fC2))
	out[16] = fS3.scale(0.6258357354491763)
	out[17] = fTmp2B.mul(fS2)
	out[18] = fTmp1C.mul(fS1)
	out[19] = fTmp0D.mul(y)
	out[20] = z.mul(pSH12).scale(1.984313483298443).sub(pSH6.scale(1.006230589874905))
	out[21] = fTmp0D.mul(x)
	out[22] = fTmp1C.mul(fC1)
	out[23] = fTmp2B.mul(fC2)
	out[24] = fC3.scale(0.6258357354491763)
}

// effectiveDegree drops to degree 0 for a zero direction, which has no
// orientation to evaluate the higher bands at.
func effectiveDegree(degree int, dir math.Vec3) int {
	if dir.Length() == 0 {
		return 0
	}
	return degree
}

func evalBasis(degree int, dir math.Vec3, seed bool) []dual {
	n := dir.Normalize()
	x, y, z := constant(n.X), constant(n.Y), constant(n.Z)
	if seed {
		x.dx, y.dy, z.dz = 1, 1, 1
	}
	out := make([]dual, NumBases(degree))
	basis(degree, x, y, z, out)
	return out
}

// Eval returns the raw harmonic sum Σ_k Y_k(dir) · coeffs[k] up to degree.
// coeffs may hold more bases than degree needs; the extra ones are ignored.
func Eval(degree int, dir math.Vec3, coeffs []math.Vec3) math.Vec3 {
	degree = effectiveDegree(degree, dir)
	b := evalBasis(degree, dir, false)
	var sum math.Vec3
	for k := range b {
		sum = sum.Add(coeffs[k].Scale(b[k].v))
	}
	return sum
}

// EvalBackward returns the gradients of Eval with respect to the
// coefficients (same length as coeffs) and the unnormalized direction.
func EvalBackward(degree int, dir math.Vec3, coeffs []math.Vec3, vOut math.Vec3) ([]math.Vec3, math.Vec3) {
	vCoeffs := make([]math.Vec3, len(coeffs))
	degree = effectiveDegree(degree, dir)
	b := evalBasis(degree, dir, degree > 0)

	var vn math.Vec3
	for k := range b {
		vCoeffs[k] = vOut.Scale(b[k].v)
		w := coeffs[k].Dot(vOut)
		vn = vn.Add(math.Vec3{X: b[k].dx * w, Y: b[k].dy * w, Z: b[k].dz * w})
	}
	if degree == 0 {
		return vCoeffs, math.Vec3{}
	}
	return vCoeffs, math.NormalizeBackward(dir, vn)
}

// Color returns the renderable color: the harmonic sum plus Offset, clamped
// to be non-negative.
func Color(degree int, dir math.Vec3, coeffs []math.Vec3) math.Vec3 {
	raw := Eval(degree, dir, coeffs)
	return math.Vec3{
		X: gomath.Max(raw.X+Offset, 0),
		Y: gomath.Max(raw.Y+Offset, 0),
		Z: gomath.Max(raw.Z+Offset, 0),
	}
}

// ColorBackward is the gradient of Color. Clamped channels pass no gradient.
func ColorBackward(degree int, dir math.Vec3, coeffs []math.Vec3, vColor math.Vec3) ([]math.Vec3, math.Vec3) {
	raw := Eval(degree, dir, coeffs)
	if raw.X+Offset <= 0 {
		vColor.X = 0
	}
	if raw.Y+Offset <= 0 {
		vColor.Y = 0
	}
	if raw.Z+Offset <= 0 {
		vColor.Z = 0
	}
	return EvalBackward(degree, dir, coeffs, vColor)
}
