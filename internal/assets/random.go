package assets

import (
	gomath "math"
	"math/rand"

	"github.com/Faultbox/gsplat/pkg/math"
	"github.com/Faultbox/gsplat/pkg/splat"
	"github.com/Faultbox/gsplat/pkg/splat/sh"
)

// Random scene parameters.
const (
	randomExtent   = 1.0  // means fill [-extent, extent]³
	randomMinScale = 0.02 // scales are log-uniform between these
	randomMaxScale = 0.1
	randomDC       = 1.5  // amplitude of the degree-zero coefficients
	randomRest     = 0.05 // amplitude of higher-degree coefficients
)

// RandomScene generates n primitives inside the unit cube. A negative
// degree produces flat RGB colors. planar zeroes the third scale so the
// scene suits surfel rendering. The same seed always yields the same scene.
func RandomScene(n, degree int, seed int64, planar bool) *splat.Gaussians {
	rng := rand.New(rand.NewSource(seed))
	uniform := func(lo, hi float64) float64 { return lo + (hi-lo)*rng.Float64() }
	logScale := func() float64 {
		return gomath.Exp(uniform(gomath.Log(randomMinScale), gomath.Log(randomMaxScale)))
	}

	g := &splat.Gaussians{
		Means:     make([]math.Vec3, n),
		Quats:     make([]math.Quat, n),
		Scales:    make([]math.Vec3, n),
		Opacities: make([]float64, n),
	}
	if degree < 0 {
		g.SHDegree = splat.FlatColors
		g.Channels = 3
		g.Colors = make([]float64, n*3)
	} else {
		degree = min(degree, sh.MaxDegree)
		g.SHDegree = degree
		g.Bases = sh.NumBases(degree)
		g.SH = make([]math.Vec3, n*g.Bases)
	}

	for i := 0; i < n; i++ {
		g.Means[i] = math.Vec3{
			X: uniform(-randomExtent, randomExtent),
			Y: uniform(-randomExtent, randomExtent),
			Z: uniform(-randomExtent, randomExtent),
		}
		g.Quats[i] = math.Quat{
			X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64(), W: rng.NormFloat64(),
		}.Normalize()
		g.Scales[i] = math.Vec3{X: logScale(), Y: logScale(), Z: logScale()}
		if planar {
			g.Scales[i].Z = 0
		}
		g.Opacities[i] = uniform(0.1, 0.9)

		if !g.UsesSH() {
			for c := 0; c < 3; c++ {
				g.Colors[i*3+c] = rng.Float64()
			}
			continue
		}
		coeffs := g.SH[i*g.Bases : (i+1)*g.Bases]
		for j := range coeffs {
			amp := randomRest
			if j == 0 {
				amp = randomDC
			}
			coeffs[j] = math.Vec3{X: uniform(-amp, amp), Y: uniform(-amp, amp), Z: uniform(-amp, amp)}
		}
	}
	return g
}
