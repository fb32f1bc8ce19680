package splat

import (
	"fmt"

	"github.com/Faultbox/gsplat/pkg/math"
)

// FlatColors marks a Gaussians set whose colors are given directly rather
// than as spherical harmonic coefficients.
const FlatColors = -1

// Gaussians holds primitive attributes as parallel slices of equal length N.
//
// Colors are either flat (SHDegree == FlatColors, Colors holds N*Channels
// values) or spherical harmonics (SHDegree in [0, 4], SH holds N*Bases
// coefficient triples where Bases >= (SHDegree+1)²). With PerView set the
// color arrays carry one block per camera: C*N*Channels or C*N*Bases.
type Gaussians struct {
	Means     []math.Vec3
	Quats     []math.Quat
	Scales    []math.Vec3
	Opacities []float64

	Colors   []float64
	Channels int

	SH       []math.Vec3
	SHDegree int
	Bases    int

	PerView bool
}

// Len returns the number of primitives.
func (g *Gaussians) Len() int {
	return len(g.Means)
}

// ColorChannels returns the number of color channels each primitive carries.
func (g *Gaussians) ColorChannels() int {
	if g.SHDegree == FlatColors {
		return g.Channels
	}
	return 3
}

// UsesSH reports whether colors are spherical harmonic coefficients.
func (g *Gaussians) UsesSH() bool {
	return g.SHDegree != FlatColors
}

// FlatColor returns the flat color of primitive i as seen from camera c.
func (g *Gaussians) FlatColor(c, i int) []float64 {
	base := i
	if g.PerView {
		base = c*g.Len() + i
	}
	return g.Colors[base*g.Channels : (base+1)*g.Channels]
}

// Coeffs returns the SH coefficients of primitive i as seen from camera c.
func (g *Gaussians) Coeffs(c, i int) []math.Vec3 {
	base := i
	if g.PerView {
		base = c*g.Len() + i
	}
	return g.SH[base*g.Bases : (base+1)*g.Bases]
}

// Validate checks lengths and values. planar selects the surfel rules, where
// only the two tangent scales must be positive. cameras is the number of
// views the colors must cover when PerView is set.
func (g *Gaussians) Validate(cameras int, planar bool) error {
	n := g.Len()
	if len(g.Quats) != n || len(g.Scales) != n || len(g.Opacities) != n {
		return fmt.Errorf("%w: attribute lengths differ (means %d, quats %d, scales %d, opacities %d)",
			ErrInvalidInput, n, len(g.Quats), len(g.Scales), len(g.Opacities))
	}

	views := 1
	if g.PerView {
		views = cameras
	}
	if g.UsesSH() {
		if g.SHDegree < 0 || g.SHDegree > 4 {
			return fmt.Errorf("%w: sh degree %d outside [0, 4]", ErrInvalidInput, g.SHDegree)
		}
		need := (g.SHDegree + 1) * (g.SHDegree + 1)
		if g.Bases < need {
			return fmt.Errorf("%w: %d sh bases cannot hold degree %d", ErrInvalidInput, g.Bases, g.SHDegree)
		}
		if len(g.SH) != views*n*g.Bases {
			return fmt.Errorf("%w: expected %d sh coefficients, got %d", ErrInvalidInput, views*n*g.Bases, len(g.SH))
		}
		for i, c := range g.SH {
			if !c.IsFinite() {
				return fmt.Errorf("%w: sh coefficient %d is not finite", ErrInvalidInput, i)
			}
		}
	} else {
		if g.Channels <= 0 {
			return fmt.Errorf("%w: flat colors need at least one channel", ErrInvalidInput)
		}
		if len(g.Colors) != views*n*g.Channels {
			return fmt.Errorf("%w: expected %d color values, got %d", ErrInvalidInput, views*n*g.Channels, len(g.Colors))
		}
		for i, c := range g.Colors {
			if !math.IsFinite(c) {
				return fmt.Errorf("%w: color value %d is not finite", ErrInvalidInput, i)
			}
		}
	}

	for i := 0; i < n; i++ {
		if !g.Means[i].IsFinite() {
			return fmt.Errorf("%w: mean %d is not finite", ErrInvalidInput, i)
		}
		if !g.Quats[i].IsFinite() || g.Quats[i].Length() == 0 {
			return fmt.Errorf("%w: quaternion %d is degenerate", ErrInvalidInput, i)
		}
		s := g.Scales[i]
		if !s.IsFinite() {
			return fmt.Errorf("%w: scale %d is not finite", ErrInvalidInput, i)
		}
		if s.X <= 0 || s.Y <= 0 || (!planar && s.Z <= 0) {
			return fmt.Errorf("%w: scale %d is not positive: %v", ErrInvalidInput, i, s)
		}
		o := g.Opacities[i]
		if !math.IsFinite(o) || o < 0 || o > 1 {
			return fmt.Errorf("%w: opacity %d outside [0, 1]: %v", ErrInvalidInput, i, o)
		}
	}
	return nil
}

// Subset returns a new set holding the primitives at the given indices, in
// that order. Per-view color blocks are subset per camera.
func (g *Gaussians) Subset(keep []int) *Gaussians {
	n := g.Len()
	out := &Gaussians{
		Means:     make([]math.Vec3, len(keep)),
		Quats:     make([]math.Quat, len(keep)),
		Scales:    make([]math.Vec3, len(keep)),
		Opacities: make([]float64, len(keep)),
		Channels:  g.Channels,
		SHDegree:  g.SHDegree,
		Bases:     g.Bases,
		PerView:   g.PerView,
	}
	for j, i := range keep {
		out.Means[j] = g.Means[i]
		out.Quats[j] = g.Quats[i]
		out.Scales[j] = g.Scales[i]
		out.Opacities[j] = g.Opacities[i]
	}

	views := 1
	if g.PerView && n > 0 {
		if g.UsesSH() {
			views = len(g.SH) / (n * g.Bases)
		} else {
			views = len(g.Colors) / (n * g.Channels)
		}
	}
	if g.UsesSH() {
		out.SH = make([]math.Vec3, 0, views*len(keep)*g.Bases)
		for c := 0; c < views; c++ {
			for _, i := range keep {
				out.SH = append(out.SH, g.Coeffs(c, i)...)
			}
		}
	} else {
		out.Colors = make([]float64, 0, views*len(keep)*g.Channels)
		for c := 0; c < views; c++ {
			for _, i := range keep {
				out.Colors = append(out.Colors, g.FlatColor(c, i)...)
			}
		}
	}
	return out
}

// Bounds returns the axis-aligned box enclosing all means.
// An empty set returns two zero vectors.
func (g *Gaussians) Bounds() (lo, hi math.Vec3) {
	if g.Len() == 0 {
		return lo, hi
	}
	lo, hi = g.Means[0], g.Means[0]
	for _, m := range g.Means[1:] {
		lo.X = min(lo.X, m.X)
		lo.Y = min(lo.Y, m.Y)
		lo.Z = min(lo.Z, m.Z)
		hi.X = max(hi.X, m.X)
		hi.Y = max(hi.Y, m.Y)
		hi.Z = max(hi.Z, m.Z)
	}
	return lo, hi
}
