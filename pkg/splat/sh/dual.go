package sh

// dual carries a value and its partial derivatives with respect to the three
// direction components, so the basis polynomials are written once and yield
// both the basis and its Jacobian.
type dual struct {
	v, dx, dy, dz float64
}

func constant(c float64) dual {
	return dual{v: c}
}

func (a dual) add(b dual) dual {
	return dual{a.v + b.v, a.dx + b.dx, a.dy + b.dy, a.dz + b.dz}
}

func (a dual) sub(b dual) dual {
	return dual{a.v - b.v, a.dx - b.dx, a.dy - b.dy, a.dz - b.dz}
}

func (a dual) mul(b dual) dual {
	return dual{
		a.v * b.v,
		a.dx*b.v + a.v*b.dx,
		a.dy*b.v + a.v*b.dy,
		a.dz*b.v + a.v*b.dz,
	}
}

func (a dual) scale(s float64) dual {
	return dual{a.v * s, a.dx * s, a.dy * s, a.dz * s}
}

func (a dual) shift(c float64) dual {
	a.v += c
	return a
}
