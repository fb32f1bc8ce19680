package math

// Mat4 is a 4x4 matrix in column-major order (OpenGL compatible).
// Layout: [m0 m4 m8  m12]
//
//	[m1 m5 m9  m13]
//	[m2 m6 m10 m14]
//	[m3 m7 m11 m15]
//
// Splat cameras store their world-to-camera transform (viewmat) as a Mat4
// using the OpenCV convention: +X right, +Y down, +Z forward.
type Mat4 [16]float64

// Identity returns an identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translate returns a translation matrix.
func Translate(x, y, z float64) Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		x, y, z, 1,
	}
}

// FromRotationTranslation builds a rigid transform [R | t].
func FromRotationTranslation(r Mat3, t Vec3) Mat4 {
	return Mat4{
		r[0][0], r[1][0], r[2][0], 0,
		r[0][1], r[1][1], r[2][1], 0,
		r[0][2], r[1][2], r[2][2], 0,
		t.X, t.Y, t.Z, 1,
	}
}

// LookAt returns a world-to-camera matrix for a camera at eye looking at
// center, in the OpenCV convention (+Z forward, +Y down).
func LookAt(eye, center, up Vec3) Mat4 {
	f := center.Sub(eye).Normalize()
	right := f.Cross(up).Normalize()
	down := f.Cross(right)

	r := Mat3{
		{right.X, right.Y, right.Z},
		{down.X, down.Y, down.Z},
		{f.X, f.Y, f.Z},
	}
	return FromRotationTranslation(r, r.MulVec(eye).Scale(-1))
}

// At returns the entry at (row, col).
func (m Mat4) At(row, col int) float64 {
	return m[col*4+row]
}

// Rotation returns the upper-left 3x3 block as a row-major Mat3.
func (m Mat4) Rotation() Mat3 {
	return Mat3{
		{m[0], m[4], m[8]},
		{m[1], m[5], m[9]},
		{m[2], m[6], m[10]},
	}
}

// Translation returns the translation column.
func (m Mat4) Translation() Vec3 {
	return Vec3{m[12], m[13], m[14]}
}

// Mul multiplies this matrix by another (m * other).
func (m Mat4) Mul(other Mat4) Mat4 {
	var result Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			result[col*4+row] =
				m[0*4+row]*other[col*4+0] +
					m[1*4+row]*other[col*4+1] +
					m[2*4+row]*other[col*4+2] +
					m[3*4+row]*other[col*4+3]
		}
	}
	return result
}

// Add returns the entry-wise sum m + other.
func (m Mat4) Add(other Mat4) Mat4 {
	for i := range m {
		m[i] += other[i]
	}
	return m
}

// Scale returns m with every entry multiplied by s.
func (m Mat4) Scale(s float64) Mat4 {
	for i := range m {
		m[i] *= s
	}
	return m
}

// TransformVec3 transforms a point by the affine part of the matrix.
func (m Mat4) TransformVec3(v Vec3) Vec3 {
	return m.Rotation().MulVec(v).Add(m.Translation())
}

// RigidInverse inverts a rigid transform [R | t] as [Rᵀ | -Rᵀt].
func (m Mat4) RigidInverse() Mat4 {
	rt := m.Rotation().Transpose()
	return FromRotationTranslation(rt, rt.MulVec(m.Translation()).Scale(-1))
}

// IsFinite reports whether every entry is finite.
func (m Mat4) IsFinite() bool {
	for _, f := range m {
		if !isFinite(f) {
			return false
		}
	}
	return true
}
