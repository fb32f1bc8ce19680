package sh

import (
	gomath "math"
	"testing"

	"github.com/Faultbox/gsplat/pkg/math"
)

func testCoeffs(n int) []math.Vec3 {
	out := make([]math.Vec3, n)
	for k := range out {
		f := float64(k + 1)
		out[k] = math.Vec3{X: 0.1 * gomath.Sin(f), Y: 0.07 * gomath.Cos(2*f), Z: -0.05 * gomath.Sin(3*f+1)}
	}
	return out
}

func TestNumBases(t *testing.T) {
	tests := []struct{ degree, want int }{{0, 1}, {1, 4}, {2, 9}, {3, 16}, {4, 25}}
	for _, tt := range tests {
		if got := NumBases(tt.degree); got != tt.want {
			t.Errorf("NumBases(%d) = %d, want %d", tt.degree, got, tt.want)
		}
	}
}

func TestDegreeZeroIsViewIndependent(t *testing.T) {
	coeffs := []math.Vec3{{X: 1, Y: -2, Z: 0.5}}
	want := math.Vec3{X: c0 + Offset, Y: 0, Z: 0.5*c0 + Offset}
	for _, dir := range []math.Vec3{{X: 1}, {Y: -3}, {X: 1, Y: 1, Z: 1}, {}} {
		got := Color(0, dir, coeffs)
		if got.Distance(want) > 1e-12 {
			t.Errorf("Color(0, %v) = %v, want %v", dir, got, want)
		}
	}
}

func TestZeroDirectionFallsBackToDegreeZero(t *testing.T) {
	coeffs := testCoeffs(NumBases(3))
	got := Eval(3, math.Vec3{}, coeffs)
	want := coeffs[0].Scale(c0)
	if got.Distance(want) > 1e-12 {
		t.Errorf("Eval at zero direction = %v, want %v", got, want)
	}
	_, vDir := EvalBackward(3, math.Vec3{}, coeffs, math.Vec3{X: 1, Y: 1, Z: 1})
	if vDir != (math.Vec3{}) {
		t.Errorf("direction gradient at zero direction = %v, want zero", vDir)
	}
}

func TestDegreeOneSigns(t *testing.T) {
	coeffs := []math.Vec3{{}, {X: 1}, {X: 1}, {X: 1}}
	if got := Eval(1, math.Vec3{Z: 1}, coeffs).X; gomath.Abs(got-c1) > 1e-12 {
		t.Errorf("+Z: got %v, want %v", got, c1)
	}
	if got := Eval(1, math.Vec3{X: 1}, coeffs).X; gomath.Abs(got+c1) > 1e-12 {
		t.Errorf("+X: got %v, want %v", got, -c1)
	}
	if got := Eval(1, math.Vec3{Y: 1}, coeffs).X; gomath.Abs(got+c1) > 1e-12 {
		t.Errorf("+Y: got %v, want %v", got, -c1)
	}
}

// The basis must be orthonormal over the sphere. A Fibonacci lattice
// integrates the degree-8 products accurately enough to catch a wrong constant.
func TestBasisOrthonormal(t *testing.T) {
	const samples = 100000
	nb := NumBases(MaxDegree)
	gram := make([][]float64, nb)
	for i := range gram {
		gram[i] = make([]float64, nb)
	}
	golden := gomath.Pi * (3 - gomath.Sqrt(5))
	b := make([]dual, nb)
	for i := 0; i < samples; i++ {
		z := 1 - (2*float64(i)+1)/samples
		r := gomath.Sqrt(1 - z*z)
		phi := golden * float64(i)
		basis(MaxDegree, constant(r*gomath.Cos(phi)), constant(r*gomath.Sin(phi)), constant(z), b)
		for k := 0; k < nb; k++ {
			for l := k; l < nb; l++ {
				gram[k][l] += b[k].v * b[l].v
			}
		}
	}
	w := 4 * gomath.Pi / samples
	for k := 0; k < nb; k++ {
		for l := k; l < nb; l++ {
			want := 0.0
			if k == l {
				want = 1
			}
			if got := gram[k][l] * w; gomath.Abs(got-want) > 5e-3 {
				t.Errorf("<Y%d, Y%d> = %v, want %v", k, l, got, want)
			}
		}
	}
}

func TestEvalBackwardCoefficients(t *testing.T) {
	dir := math.Vec3{X: 0.3, Y: -0.8, Z: 1.1}
	vOut := math.Vec3{X: 0.7, Y: -0.4, Z: 0.25}
	for degree := 0; degree <= MaxDegree; degree++ {
		coeffs := testCoeffs(NumBases(degree))
		vCoeffs, _ := EvalBackward(degree, dir, coeffs, vOut)

		const eps = 1e-6
		for k := range coeffs {
			for c := 0; c < 3; c++ {
				plus := append([]math.Vec3(nil), coeffs...)
				minus := append([]math.Vec3(nil), coeffs...)
				plus[k] = plus[k].Set(c, plus[k].At(c)+eps)
				minus[k] = minus[k].Set(c, minus[k].At(c)-eps)
				num := (Eval(degree, dir, plus).Dot(vOut) - Eval(degree, dir, minus).Dot(vOut)) / (2 * eps)
				if got := vCoeffs[k].At(c); gomath.Abs(got-num) > 1e-6 {
					t.Errorf("degree %d coeff %d.%d: analytic %v, numeric %v", degree, k, c, got, num)
				}
			}
		}
	}
}

func TestEvalBackwardDirection(t *testing.T) {
	dir := math.Vec3{X: 0.3, Y: -0.8, Z: 1.1}
	vOut := math.Vec3{X: 0.7, Y: -0.4, Z: 0.25}
	for degree := 1; degree <= MaxDegree; degree++ {
		coeffs := testCoeffs(NumBases(degree))
		_, vDir := EvalBackward(degree, dir, coeffs, vOut)

		const eps = 1e-6
		for c := 0; c < 3; c++ {
			plus := dir.Set(c, dir.At(c)+eps)
			minus := dir.Set(c, dir.At(c)-eps)
			num := (Eval(degree, plus, coeffs).Dot(vOut) - Eval(degree, minus, coeffs).Dot(vOut)) / (2 * eps)
			if got := vDir.At(c); gomath.Abs(got-num) > 1e-6 {
				t.Errorf("degree %d dir.%d: analytic %v, numeric %v", degree, c, got, num)
			}
		}
	}
}

func TestColorClampsAndBlocksGradient(t *testing.T) {
	coeffs := []math.Vec3{{X: -10, Y: 0, Z: 10}}
	dir := math.Vec3{Z: 1}
	got := Color(0, dir, coeffs)
	if got.X != 0 {
		t.Errorf("negative channel not clamped: %v", got.X)
	}
	vCoeffs, _ := ColorBackward(0, dir, coeffs, math.Vec3{X: 1, Y: 1, Z: 1})
	if vCoeffs[0].X != 0 {
		t.Errorf("clamped channel passed gradient %v", vCoeffs[0].X)
	}
	if gomath.Abs(vCoeffs[0].Z-c0) > 1e-12 {
		t.Errorf("unclamped channel gradient = %v, want %v", vCoeffs[0].Z, c0)
	}
}

func TestDCRoundTrip(t *testing.T) {
	for _, c := range []float64{0, 0.25, 0.5, 1} {
		dc := DCFromColor(c)
		got := Color(0, math.Vec3{Z: 1}, []math.Vec3{{X: dc, Y: dc, Z: dc}})
		if gomath.Abs(got.X-c) > 1e-12 || gomath.Abs(ColorFromDC(dc)-c) > 1e-12 {
			t.Errorf("color %v round-tripped to %v", c, got.X)
		}
	}
}
