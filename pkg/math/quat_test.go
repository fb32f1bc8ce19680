package math

import (
	"math"
	"testing"
)

func TestQuatIdentity(t *testing.T) {
	q := QuatIdentity()
	if q.X != 0 || q.Y != 0 || q.Z != 0 || q.W != 1 {
		t.Errorf("Identity quaternion should be (0,0,0,1), got (%v,%v,%v,%v)", q.X, q.Y, q.Z, q.W)
	}
}

func TestQuatNormalize(t *testing.T) {
	n := Quat{X: 1, Y: 2, Z: 3, W: 4}.Normalize()
	if math.Abs(n.Length()-1.0) > 1e-12 {
		t.Errorf("Normalized quaternion length should be 1, got %v", n.Length())
	}
	if z := (Quat{}).Normalize(); z != QuatIdentity() {
		t.Errorf("zero quaternion should normalize to identity, got %v", z)
	}
}

func TestQuatSlerp(t *testing.T) {
	q1 := QuatIdentity()
	q2 := QuatFromAxisAngle(Vec3{X: 0, Y: 1, Z: 0}, math.Pi/2)

	if r := q1.Slerp(q2, 0); math.Abs(r.W-q1.W) > 1e-9 {
		t.Errorf("Slerp at t=0 should equal q1")
	}
	if r := q1.Slerp(q2, 1); math.Abs(r.W-q2.W) > 1e-9 {
		t.Errorf("Slerp at t=1 should equal q2")
	}
	expectedW := math.Cos(math.Pi / 8)
	if r := q1.Slerp(q2, 0.5); math.Abs(r.W-expectedW) > 1e-9 {
		t.Errorf("Slerp at t=0.5: expected W ~%v, got %v", expectedW, r.W)
	}
}

func TestQuatToMat3Orthonormal(t *testing.T) {
	r := Quat{X: 0.3, Y: -0.5, Z: 0.2, W: 0.9}.ToMat3()
	p := r.Mul(r.Transpose())
	id := Identity3()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(p[i][j]-id[i][j]) > 1e-12 {
				t.Fatalf("R Rᵀ != I at (%d,%d): %v", i, j, p[i][j])
			}
		}
	}
}

func TestQuatToMat3MatchesAxisAngle(t *testing.T) {
	// 90 degrees around Z maps +X to +Y.
	r := QuatFromAxisAngle(Vec3{0, 0, 1}, math.Pi/2).ToMat3()
	got := r.MulVec(Vec3{1, 0, 0})
	if got.Distance(Vec3{0, 1, 0}) > 1e-12 {
		t.Errorf("rotating +X by 90deg about Z: got %v, want (0,1,0)", got)
	}
}

func TestQuatToMat3Backward(t *testing.T) {
	q := Quat{X: 0.3, Y: -0.5, Z: 0.2, W: 1.4} // deliberately unnormalized
	g := Mat3{{0.1, -0.2, 0.3}, {0.4, 0.5, -0.6}, {-0.7, 0.8, 0.9}}
	got := q.ToMat3Backward(g)

	loss := func(q Quat) float64 {
		r := q.ToMat3()
		s := 0.0
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				s += r[i][j] * g[i][j]
			}
		}
		return s
	}

	const eps = 1e-6
	comps := []struct {
		name string
		get  func(Quat) float64
		bump func(Quat, float64) Quat
	}{
		{"X", func(q Quat) float64 { return q.X }, func(q Quat, d float64) Quat { q.X += d; return q }},
		{"Y", func(q Quat) float64 { return q.Y }, func(q Quat, d float64) Quat { q.Y += d; return q }},
		{"Z", func(q Quat) float64 { return q.Z }, func(q Quat, d float64) Quat { q.Z += d; return q }},
		{"W", func(q Quat) float64 { return q.W }, func(q Quat, d float64) Quat { q.W += d; return q }},
	}
	for _, c := range comps {
		want := (loss(c.bump(q, eps)) - loss(c.bump(q, -eps))) / (2 * eps)
		if math.Abs(c.get(got)-want) > 1e-6 {
			t.Errorf("d/d%s: got %v, want %v", c.name, c.get(got), want)
		}
	}
}

func TestQuatNlerpShortPath(t *testing.T) {
	a := QuatIdentity()
	b := QuatIdentity().Scale(-1)
	m := a.Nlerp(b, 0.5)
	if m.Length() < 0.99 {
		t.Errorf("Nlerp between q and -q should not cancel, got %v", m)
	}
}

func TestQuatFromMat3RoundTrip(t *testing.T) {
	tests := []Quat{
		QuatIdentity(),
		QuatFromAxisAngle(Vec3{0, 0, 1}, math.Pi),
		QuatFromAxisAngle(Vec3{1, 0, 0}, math.Pi),
		QuatFromAxisAngle(Vec3{0, 1, 0}, 3),
		Quat{X: 0.3, Y: -0.5, Z: 0.2, W: 0.9}.Normalize(),
	}
	for _, q := range tests {
		r := q.ToMat3()
		back := QuatFromMat3(r).ToMat3()
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				if math.Abs(back[i][j]-r[i][j]) > 1e-12 {
					t.Fatalf("round trip of %v differs at (%d,%d): %v vs %v", q, i, j, back[i][j], r[i][j])
				}
			}
		}
	}
}
