// Package project turns primitives into per-camera screen-space footprints
// and pulls footprint gradients back to the primitives and cameras.
package project

import "github.com/Faultbox/gsplat/pkg/math"

// WorldToCam maps a world-space point into camera space.
func WorldToCam(viewmat math.Mat4, p math.Vec3) math.Vec3 {
	return viewmat.TransformVec3(p)
}

// WorldToCamBackward returns the gradients of WorldToCam with respect to the
// point and the viewmat.
func WorldToCamBackward(viewmat math.Mat4, p, vPc math.Vec3) (math.Vec3, math.Mat4) {
	r := viewmat.Rotation()
	return r.Transpose().MulVec(vPc), ViewmatGrad(math.Outer(vPc, p), vPc)
}

// WorldToCamCovar rotates a world-space covariance into camera space: R Σ Rᵀ.
func WorldToCamCovar(r, cov math.Mat3) math.Mat3 {
	return r.Mul(cov).Mul(r.Transpose())
}

// WorldToCamCovarBackward returns the gradients of WorldToCamCovar with
// respect to the world covariance and the rotation.
func WorldToCamCovarBackward(r, cov, vCovC math.Mat3) (vCov, vR math.Mat3) {
	vCov = r.Transpose().Mul(vCovC).Mul(r)
	vR = vCovC.Mul(r).Mul(cov.Transpose()).Add(vCovC.Transpose().Mul(r).Mul(cov))
	return vCov, vR
}

// ViewmatGrad packs rotation and translation gradients into viewmat layout.
// The constant bottom row gets no gradient.
func ViewmatGrad(vR math.Mat3, vT math.Vec3) math.Mat4 {
	m := math.FromRotationTranslation(vR, vT)
	m[15] = 0
	return m
}

// CameraCenter returns the world position of a viewmat's optical centre.
func CameraCenter(viewmat math.Mat4) math.Vec3 {
	return viewmat.Rotation().Transpose().MulVec(viewmat.Translation()).Scale(-1)
}

// CameraCenterBackward maps a camera centre gradient to the viewmat.
func CameraCenterBackward(viewmat math.Mat4, vC math.Vec3) math.Mat4 {
	r := viewmat.Rotation()
	t := viewmat.Translation()
	// c = -Rᵀ t
	return ViewmatGrad(math.Outer(t, vC).Scale(-1), r.MulVec(vC).Scale(-1))
}
