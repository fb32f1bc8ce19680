package math

import "math"

// Quat is a quaternion. W is the scalar part.
type Quat struct {
	X, Y, Z, W float64
}

// QuatIdentity returns an identity quaternion (no rotation).
func QuatIdentity() Quat {
	return Quat{X: 0, Y: 0, Z: 0, W: 1}
}

// QuatFromAxisAngle creates a quaternion from axis-angle rotation.
// axis should be normalized, angle is in radians.
func QuatFromAxisAngle(axis Vec3, angle float64) Quat {
	s := math.Sin(angle / 2)
	return Quat{X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s, W: math.Cos(angle / 2)}
}

// QuatFromMat3 converts a rotation matrix to a unit quaternion, branching
// on the largest diagonal term to stay stable near 180 degree rotations.
func QuatFromMat3(m Mat3) Quat {
	var q Quat
	tr := m[0][0] + m[1][1] + m[2][2]
	switch {
	case tr > 0:
		s := 2 * math.Sqrt(1+tr)
		q = Quat{W: 0.25 * s, X: (m[2][1] - m[1][2]) / s, Y: (m[0][2] - m[2][0]) / s, Z: (m[1][0] - m[0][1]) / s}
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := 2 * math.Sqrt(1+m[0][0]-m[1][1]-m[2][2])
		q = Quat{W: (m[2][1] - m[1][2]) / s, X: 0.25 * s, Y: (m[0][1] + m[1][0]) / s, Z: (m[0][2] + m[2][0]) / s}
	case m[1][1] > m[2][2]:
		s := 2 * math.Sqrt(1+m[1][1]-m[0][0]-m[2][2])
		q = Quat{W: (m[0][2] - m[2][0]) / s, X: (m[0][1] + m[1][0]) / s, Y: 0.25 * s, Z: (m[1][2] + m[2][1]) / s}
	default:
		s := 2 * math.Sqrt(1+m[2][2]-m[0][0]-m[1][1])
		q = Quat{W: (m[1][0] - m[0][1]) / s, X: (m[0][2] + m[2][0]) / s, Y: (m[1][2] + m[2][1]) / s, Z: 0.25 * s}
	}
	return q.Normalize()
}

// Length returns the quaternion norm.
func (q Quat) Length() float64 {
	return math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

// Normalize returns a unit quaternion. Degenerate input maps to identity.
func (q Quat) Normalize() Quat {
	length := q.Length()
	if length < 1e-12 {
		return QuatIdentity()
	}
	inv := 1 / length
	return Quat{X: q.X * inv, Y: q.Y * inv, Z: q.Z * inv, W: q.W * inv}
}

// Dot returns the dot product of two quaternions.
func (q Quat) Dot(other Quat) float64 {
	return q.X*other.X + q.Y*other.Y + q.Z*other.Z + q.W*other.W
}

// Scale returns q * s component-wise.
func (q Quat) Scale(s float64) Quat {
	return Quat{X: q.X * s, Y: q.Y * s, Z: q.Z * s, W: q.W * s}
}

// Add returns q + other component-wise.
func (q Quat) Add(other Quat) Quat {
	return Quat{X: q.X + other.X, Y: q.Y + other.Y, Z: q.Z + other.Z, W: q.W + other.W}
}

// Mul multiplies two quaternions (combines rotations).
func (q Quat) Mul(other Quat) Quat {
	return Quat{
		X: q.W*other.X + q.X*other.W + q.Y*other.Z - q.Z*other.Y,
		Y: q.W*other.Y - q.X*other.Z + q.Y*other.W + q.Z*other.X,
		Z: q.W*other.Z + q.X*other.Y - q.Y*other.X + q.Z*other.W,
		W: q.W*other.W - q.X*other.X - q.Y*other.Y - q.Z*other.Z,
	}
}

// Nlerp blends two rotations linearly and leaves the result unnormalized.
// other is flipped onto q's hemisphere first so the blend takes the short path.
func (q Quat) Nlerp(other Quat, t float64) Quat {
	if q.Dot(other) < 0 {
		other = other.Scale(-1)
	}
	return q.Scale(1 - t).Add(other.Scale(t))
}

// IsFinite reports whether no component is NaN or infinite.
func (q Quat) IsFinite() bool {
	return isFinite(q.X) && isFinite(q.Y) && isFinite(q.Z) && isFinite(q.W)
}

// ToMat3 converts the quaternion to a row-major rotation matrix.
// The quaternion is normalized first.
func (q Quat) ToMat3() Mat3 {
	q = q.Normalize()
	w, x, y, z := q.W, q.X, q.Y, q.Z
	return Mat3{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}

// ToMat3Backward returns the gradient with respect to the (possibly
// unnormalized) quaternion q given the gradient g of ToMat3's output.
func (q Quat) ToMat3Backward(g Mat3) Quat {
	n := q.Normalize()
	w, x, y, z := n.W, n.X, n.Y, n.Z

	vn := Quat{
		W: 2 * (x*(g[2][1]-g[1][2]) + y*(g[0][2]-g[2][0]) + z*(g[1][0]-g[0][1])),
		X: 2 * (y*(g[0][1]+g[1][0]) + z*(g[0][2]+g[2][0]) + w*(g[2][1]-g[1][2]) - 2*x*(g[1][1]+g[2][2])),
		Y: 2 * (x*(g[0][1]+g[1][0]) + z*(g[1][2]+g[2][1]) + w*(g[0][2]-g[2][0]) - 2*y*(g[0][0]+g[2][2])),
		Z: 2 * (x*(g[0][2]+g[2][0]) + y*(g[1][2]+g[2][1]) + w*(g[1][0]-g[0][1]) - 2*z*(g[0][0]+g[1][1])),
	}

	// Through the normalization: (vn - <vn, n> n) / |q|.
	length := q.Length()
	if length < 1e-12 {
		return Quat{}
	}
	return vn.Add(n.Scale(-vn.Dot(n))).Scale(1 / length)
}

// Slerp performs spherical linear interpolation between two quaternions.
// t should be in range [0, 1].
func (q Quat) Slerp(other Quat, t float64) Quat {
	dot := q.Dot(other)
	if dot < 0 {
		other = other.Scale(-1)
		dot = -dot
	}
	if dot > 0.9995 {
		return q.Nlerp(other, t).Normalize()
	}

	theta0 := math.Acos(dot)
	theta := theta0 * t
	sinTheta := math.Sin(theta)
	sinTheta0 := math.Sin(theta0)

	s0 := math.Cos(theta) - dot*sinTheta/sinTheta0
	s1 := sinTheta / sinTheta0
	return q.Scale(s0).Add(other.Scale(s1))
}
