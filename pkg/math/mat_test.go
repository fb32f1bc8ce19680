package math

import (
	"math"
	"testing"
)

func TestIdentity(t *testing.T) {
	m := Identity()
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 {
		t.Error("Identity diagonal should be 1")
	}
	if m[1] != 0 || m[4] != 0 {
		t.Error("Identity off-diagonal should be 0")
	}
}

func TestMulIdentity(t *testing.T) {
	m := Translate(1, 2, 3)
	result := m.Mul(Identity())
	for i := 0; i < 16; i++ {
		if result[i] != m[i] {
			t.Errorf("M * I should equal M, element %d: got %f, want %f", i, result[i], m[i])
		}
	}
}

func TestTranslate(t *testing.T) {
	m := Translate(5, 10, 15)
	if got := m.Translation(); got != (Vec3{5, 10, 15}) {
		t.Errorf("Translation() = %v, want (5, 10, 15)", got)
	}
	if got := m.TransformVec3(Vec3{1, 2, 3}); got != (Vec3{6, 12, 18}) {
		t.Errorf("TransformVec3() = %v", got)
	}
}

func TestRotationRoundTrip(t *testing.T) {
	r := QuatFromAxisAngle(Vec3{0, 1, 0}, 0.7).ToMat3()
	tr := Vec3{1, -2, 3}
	m := FromRotationTranslation(r, tr)

	if m.Rotation() != r {
		t.Errorf("Rotation() = %v, want %v", m.Rotation(), r)
	}
	if m.At(0, 3) != 1 || m.At(1, 3) != -2 || m.At(2, 3) != 3 {
		t.Errorf("At(row, 3) should return the translation, got %v", m.Translation())
	}
}

func TestRigidInverse(t *testing.T) {
	r := QuatFromAxisAngle(Vec3{1, 0, 0}, 0.4).ToMat3()
	m := FromRotationTranslation(r, Vec3{0.5, 1, -2})
	p := Vec3{3, 1, 4}

	back := m.RigidInverse().TransformVec3(m.TransformVec3(p))
	if back.Distance(p) > 1e-12 {
		t.Errorf("RigidInverse round trip: got %v, want %v", back, p)
	}
}

func TestLookAtForwardIsPlusZ(t *testing.T) {
	eye := Vec3{0, 0, -5}
	view := LookAt(eye, Vec3{}, Vec3{0, 1, 0})

	p := view.TransformVec3(Vec3{})
	if math.Abs(p.X) > 1e-12 || math.Abs(p.Y) > 1e-12 || math.Abs(p.Z-5) > 1e-12 {
		t.Errorf("target should land on +Z at distance 5, got %v", p)
	}
	if c := view.TransformVec3(eye); c.Length() > 1e-12 {
		t.Errorf("eye should map to the origin, got %v", c)
	}
}

func TestMat3Det(t *testing.T) {
	if d := Diag(Vec3{2, 3, 4}).Det(); d != 24 {
		t.Errorf("Det(diag(2,3,4)) = %v, want 24", d)
	}
	r := QuatFromAxisAngle(Vec3{0, 0, 1}, 1.1).ToMat3()
	if math.Abs(r.Det()-1) > 1e-12 {
		t.Errorf("rotation determinant = %v, want 1", r.Det())
	}
}
