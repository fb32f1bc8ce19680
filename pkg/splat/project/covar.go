package project

import "github.com/Faultbox/gsplat/pkg/math"

// QuatToRotmat returns the rotation of a (possibly unnormalized) quaternion.
func QuatToRotmat(q math.Quat) math.Mat3 {
	return q.ToMat3()
}

// QuatScaleToCovar returns Σ = R S Sᵀ Rᵀ with S = diag(s).
func QuatScaleToCovar(q math.Quat, s math.Vec3) math.Mat3 {
	m := scaleCols(q.ToMat3(), s)
	return m.Mul(m.Transpose())
}

// QuatScaleToPrecision returns the inverse covariance R S⁻² Rᵀ.
func QuatScaleToPrecision(q math.Quat, s math.Vec3) math.Mat3 {
	m := scaleCols(q.ToMat3(), inv(s))
	return m.Mul(m.Transpose())
}

// QuatScaleToCovarBackward returns the gradients of QuatScaleToCovar.
func QuatScaleToCovarBackward(q math.Quat, s math.Vec3, vCov math.Mat3) (math.Quat, math.Vec3) {
	vR, vS := mmtBackward(q.ToMat3(), s, vCov)
	return q.ToMat3Backward(vR), vS
}

// QuatScaleToPrecisionBackward returns the gradients of QuatScaleToPrecision.
func QuatScaleToPrecisionBackward(q math.Quat, s math.Vec3, vPrec math.Mat3) (math.Quat, math.Vec3) {
	vR, vInv := mmtBackward(q.ToMat3(), inv(s), vPrec)
	vS := math.Vec3{X: -vInv.X / (s.X * s.X), Y: -vInv.Y / (s.Y * s.Y), Z: -vInv.Z / (s.Z * s.Z)}
	return q.ToMat3Backward(vR), vS
}

// mmtBackward differentiates M Mᵀ with M = R diag(d).
func mmtBackward(r math.Mat3, d math.Vec3, vOut math.Mat3) (vR math.Mat3, vD math.Vec3) {
	m := scaleCols(r, d)
	vM := vOut.Add(vOut.Transpose()).Mul(m)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			vR[i][j] = vM[i][j] * d.At(j)
			vD = vD.Set(j, vD.At(j)+r[i][j]*vM[i][j])
		}
	}
	return vR, vD
}

func scaleCols(m math.Mat3, s math.Vec3) math.Mat3 {
	for i := 0; i < 3; i++ {
		m[i][0] *= s.X
		m[i][1] *= s.Y
		m[i][2] *= s.Z
	}
	return m
}

func inv(s math.Vec3) math.Vec3 {
	return math.Vec3{X: 1 / s.X, Y: 1 / s.Y, Z: 1 / s.Z}
}
