package project

import (
	"github.com/Faultbox/gsplat/pkg/math"
	"github.com/Faultbox/gsplat/pkg/splat"
)

// Sym2 is a symmetric 2x2 matrix [[A, B], [B, C]].
//
// A gradient with respect to a Sym2 is carried as the symmetric matrix
// gradient: B holds dL/dM01, which equals dL/dM10.
type Sym2 struct {
	A, B, C float64
}

// Det returns the determinant.
func (s Sym2) Det() float64 {
	return s.A*s.C - s.B*s.B
}

// Inverse returns the matrix inverse. The caller checks Det first.
func (s Sym2) Inverse() Sym2 {
	inv := 1 / s.Det()
	return Sym2{A: s.C * inv, B: -s.B * inv, C: s.A * inv}
}

// Add returns s + o.
func (s Sym2) Add(o Sym2) Sym2 {
	return Sym2{s.A + o.A, s.B + o.B, s.C + o.C}
}

// mul returns s·o as a general 2x2 matrix.
func (s Sym2) mul(o Sym2) [2][2]float64 {
	return [2][2]float64{
		{s.A*o.A + s.B*o.B, s.A*o.B + s.B*o.C},
		{s.B*o.A + s.C*o.B, s.B*o.B + s.C*o.C},
	}
}

// InverseBackward maps a gradient of Q = S⁻¹ to S: -Q vQ Q.
func InverseBackward(q, vQ Sym2) Sym2 {
	t := q.mul(vQ)
	return Sym2{
		A: -(t[0][0]*q.A + t[0][1]*q.B),
		B: -(t[0][0]*q.B + t[0][1]*q.C),
		C: -(t[1][0]*q.B + t[1][1]*q.C),
	}
}

// jacobian is the 2x3 local affine approximation of a camera projection.
type jacobian [2][3]float64

// project returns J Σ Jᵀ.
func (j *jacobian) project(cov math.Mat3) Sym2 {
	var jc [2][3]float64
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			jc[r][c] = j[r][0]*cov[0][c] + j[r][1]*cov[1][c] + j[r][2]*cov[2][c]
		}
	}
	dot := func(r, k int) float64 {
		return jc[r][0]*j[k][0] + jc[r][1]*j[k][1] + jc[r][2]*j[k][2]
	}
	return Sym2{A: dot(0, 0), B: dot(0, 1), C: dot(1, 1)}
}

// backward returns the gradients of J Σ Jᵀ with respect to Σ and J.
func (j *jacobian) backward(cov math.Mat3, g Sym2) (math.Mat3, jacobian) {
	gm := [2][2]float64{{g.A, g.B}, {g.B, g.C}}

	// vΣ = Jᵀ G J
	var gj [2][3]float64
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			gj[r][c] = gm[r][0]*j[0][c] + gm[r][1]*j[1][c]
		}
	}
	var vCov math.Mat3
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			vCov[a][b] = j[0][a]*gj[0][b] + j[1][a]*gj[1][b]
		}
	}

	// vJ = 2 G J Σ
	var vJ jacobian
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			vJ[r][c] = 2 * (gj[r][0]*cov[0][c] + gj[r][1]*cov[1][c] + gj[r][2]*cov[2][c])
		}
	}
	return vCov, vJ
}

// frustumLimits bounds x/z and y/z to the image plus a 30% margin, which
// keeps the Jacobian of far off-axis primitives from blowing up.
func frustumLimits(k splat.Intrinsics, width, height int) (xPos, xNeg, yPos, yNeg float64) {
	w, h := float64(width), float64(height)
	tanFovX := 0.5 * w / k.Fx
	tanFovY := 0.5 * h / k.Fy
	xPos = (w-k.Cx)/k.Fx + 0.3*tanFovX
	xNeg = k.Cx/k.Fx + 0.3*tanFovX
	yPos = (h-k.Cy)/k.Fy + 0.3*tanFovY
	yNeg = k.Cy/k.Fy + 0.3*tanFovY
	return
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

func perspJacobian(p math.Vec3, k splat.Intrinsics, width, height int) (jacobian, float64, float64) {
	xPos, xNeg, yPos, yNeg := frustumLimits(k, width, height)
	rz := 1 / p.Z
	rz2 := rz * rz
	tx := p.Z * clamp(p.X*rz, -xNeg, xPos)
	ty := p.Z * clamp(p.Y*rz, -yNeg, yPos)
	return jacobian{
		{k.Fx * rz, 0, -k.Fx * tx * rz2},
		{0, k.Fy * rz, -k.Fy * ty * rz2},
	}, tx, ty
}

// PerspProj projects a camera-space Gaussian through a pinhole camera with
// the EWA first-order approximation. It returns the 2D covariance and mean.
func PerspProj(meanC math.Vec3, covC math.Mat3, k splat.Intrinsics, width, height int) (Sym2, math.Vec2) {
	j, _, _ := perspJacobian(meanC, k, width, height)
	rz := 1 / meanC.Z
	mean2d := math.Vec2{X: k.Fx*meanC.X*rz + k.Cx, Y: k.Fy*meanC.Y*rz + k.Cy}
	return j.project(covC), mean2d
}

// PerspProjBackward returns the gradients of PerspProj with respect to the
// camera-space mean and covariance.
func PerspProjBackward(meanC math.Vec3, covC math.Mat3, k splat.Intrinsics, width, height int,
	vCov2d Sym2, vMean2d math.Vec2) (math.Vec3, math.Mat3) {
	j, tx, ty := perspJacobian(meanC, k, width, height)
	xPos, xNeg, yPos, yNeg := frustumLimits(k, width, height)
	x, y, z := meanC.X, meanC.Y, meanC.Z
	rz := 1 / z
	rz2 := rz * rz
	rz3 := rz2 * rz

	vCovC, vJ := j.backward(covC, vCov2d)

	vMean := math.Vec3{
		X: k.Fx * rz * vMean2d.X,
		Y: k.Fy * rz * vMean2d.Y,
		Z: -(k.Fx*x*vMean2d.X + k.Fy*y*vMean2d.Y) * rz2,
	}

	// When x/z is clamped tx = z·c, so J02 depends on z alone.
	if xr := x * rz; xr <= xPos && xr >= -xNeg {
		vMean.X += -k.Fx * rz2 * vJ[0][2]
	} else {
		vMean.Z += -k.Fx * rz3 * vJ[0][2] * tx
	}
	if yr := y * rz; yr <= yPos && yr >= -yNeg {
		vMean.Y += -k.Fy * rz2 * vJ[1][2]
	} else {
		vMean.Z += -k.Fy * rz3 * vJ[1][2] * ty
	}
	vMean.Z += -k.Fx*rz2*vJ[0][0] - k.Fy*rz2*vJ[1][1] +
		2*k.Fx*tx*rz3*vJ[0][2] + 2*k.Fy*ty*rz3*vJ[1][2]

	return vMean, vCovC
}

// OrthoProj projects a camera-space Gaussian through an orthographic camera.
func OrthoProj(meanC math.Vec3, covC math.Mat3, k splat.Intrinsics) (Sym2, math.Vec2) {
	j := jacobian{{k.Fx, 0, 0}, {0, k.Fy, 0}}
	mean2d := math.Vec2{X: k.Fx*meanC.X + k.Cx, Y: k.Fy*meanC.Y + k.Cy}
	return j.project(covC), mean2d
}

// OrthoProjBackward returns the gradients of OrthoProj.
func OrthoProjBackward(covC math.Mat3, k splat.Intrinsics, vCov2d Sym2, vMean2d math.Vec2) (math.Vec3, math.Mat3) {
	j := jacobian{{k.Fx, 0, 0}, {0, k.Fy, 0}}
	vCovC, _ := j.backward(covC, vCov2d)
	return math.Vec3{X: k.Fx * vMean2d.X, Y: k.Fy * vMean2d.Y}, vCovC
}

// project2D dispatches on the camera model.
func project2D(cam *splat.Camera, meanC math.Vec3, covC math.Mat3) (Sym2, math.Vec2) {
	if cam.Model == splat.Orthographic {
		return OrthoProj(meanC, covC, cam.K)
	}
	return PerspProj(meanC, covC, cam.K, cam.Width, cam.Height)
}

func project2DBackward(cam *splat.Camera, meanC math.Vec3, covC math.Mat3, vCov2d Sym2, vMean2d math.Vec2) (math.Vec3, math.Mat3) {
	if cam.Model == splat.Orthographic {
		return OrthoProjBackward(covC, cam.K, vCov2d, vMean2d)
	}
	return PerspProjBackward(meanC, covC, cam.K, cam.Width, cam.Height, vCov2d, vMean2d)
}
