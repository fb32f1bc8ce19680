package project

import gomath "math"

// eigen2 diagonalizes a symmetric 2x2 matrix. l1 >= l2 and (c, s) is the
// unit eigenvector of l1; the eigenvector of l2 is (-s, c).
func eigen2(m Sym2) (l1, l2, c, s float64) {
	theta := 0.5 * gomath.Atan2(2*m.B, m.A-m.C)
	c, s = gomath.Cos(theta), gomath.Sin(theta)
	mid := 0.5 * (m.A + m.C)
	d := gomath.Hypot(0.5*(m.A-m.C), m.B)
	return mid + d, mid - d, c, s
}

// ClampEigen raises every eigenvalue of a 2D covariance to at least floor.
// This keeps zero-area footprints invertible; it slightly enlarges thin
// splats and is an approximation, not an exact repair.
func ClampEigen(m Sym2, floor float64) Sym2 {
	l1, l2, c, s := eigen2(m)
	if l2 >= floor {
		return m
	}
	f1, f2 := max(l1, floor), max(l2, floor)
	return Sym2{
		A: f1*c*c + f2*s*s,
		B: (f1 - f2) * c * s,
		C: f1*s*s + f2*c*c,
	}
}

// ClampEigenBackward maps a gradient of ClampEigen's output to its input
// using the Daleckii-Krein formula for spectral functions.
func ClampEigenBackward(m Sym2, floor float64, g Sym2) Sym2 {
	l1, l2, c, s := eigen2(m)
	if l2 >= floor {
		return g
	}
	f1, f2 := max(l1, floor), max(l2, floor)
	d1, d2 := 0.0, 0.0
	if l1 > floor {
		d1 = 1
	}

	var d12 float64
	if l1-l2 > 1e-12 {
		d12 = (f1 - f2) / (l1 - l2)
	} else {
		d12 = d1
	}

	// Ĝ = Vᵀ G V with V = [[c, -s], [s, c]].
	g11 := c*c*g.A + 2*c*s*g.B + s*s*g.C
	g22 := s*s*g.A - 2*c*s*g.B + c*c*g.C
	g12 := -c*s*g.A + (c*c-s*s)*g.B + c*s*g.C

	h11, h22, h12 := d1*g11, d2*g22, d12*g12

	// V H Vᵀ
	return Sym2{
		A: c*c*h11 - 2*c*s*h12 + s*s*h22,
		B: c*s*h11 + (c*c-s*s)*h12 - c*s*h22,
		C: s*s*h11 + 2*c*s*h12 + c*c*h22,
	}
}

// maxEigen returns the largest eigenvalue.
func maxEigen(m Sym2) float64 {
	l1, _, _, _ := eigen2(m)
	return l1
}

// radiusOf returns the 3-sigma pixel radius of a 2D covariance.
func radiusOf(m Sym2) int {
	return pixelRadius(3 * gomath.Sqrt(max(maxEigen(m), 0)))
}

// MaxRadius caps footprint radii. A capped footprint still spans every tile
// of any image whose centre lies within MaxRadius of its mean.
const MaxRadius = 1 << 30

// pixelRadius rounds r up to whole pixels, saturating at MaxRadius. NaN maps
// to zero.
func pixelRadius(r float64) int {
	if !(r > 0) {
		return 0
	}
	if r >= MaxRadius {
		return MaxRadius
	}
	return int(gomath.Ceil(r))
}
