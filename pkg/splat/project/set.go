package project

import (
	"context"
	"fmt"

	"github.com/Faultbox/gsplat/internal/parallel"
	"github.com/Faultbox/gsplat/pkg/math"
	"github.com/Faultbox/gsplat/pkg/splat"
)

// View pairs a camera with the contiguous range of primitives it renders.
// Batched scenes are flattened so that each camera sees only its scene.
type View struct {
	Camera *splat.Camera
	First  int
	Count  int
}

// Options controls projection.
type Options struct {
	splat.ProjectOptions

	// Packed keeps only visible (view, primitive) pairs.
	Packed bool

	// RollingIterations bounds the rolling shutter fixed point.
	RollingIterations int
}

// Set is the projection of every primitive into every view.
//
// In dense layout slot ViewStarts[v]+i holds primitive First+i of view v
// whether or not it is visible. In packed layout only visible pairs are
// kept, in the same (view, primitive) order. Slots of one view are always
// contiguous.
type Set struct {
	Shape  splat.Shape
	Packed bool
	Views  []View

	ViewStarts  []int
	ViewIDs     []int
	GaussianIDs []int
	Footprints  []splat.Footprint

	// RowTimes is the solved exposure time of slots in rolling shutter
	// views, and zero elsewhere.
	RowTimes []float64
}

// Len returns the number of slots.
func (s *Set) Len() int {
	return len(s.Footprints)
}

// Visible returns the number of visible slots.
func (s *Set) Visible() int {
	n := 0
	for i := range s.Footprints {
		if s.Footprints[i].Visible() {
			n++
		}
	}
	return n
}

// Viewmat returns the effective world-to-camera transform of a slot.
func (s *Set) Viewmat(slot int) math.Mat4 {
	cam := s.Views[s.ViewIDs[slot]].Camera
	if cam.IsRolling() {
		return cam.Shutter.PoseAt(s.RowTimes[slot]).Viewmat()
	}
	return cam.Viewmat
}

func (s *Set) input(g *splat.Gaussians, slot int) splat.ProjectInput {
	i := s.GaussianIDs[slot]
	return splat.ProjectInput{
		Mean:    g.Means[i],
		Quat:    g.Quats[i],
		Scale:   g.Scales[i],
		Viewmat: s.Viewmat(slot),
		Camera:  s.Views[s.ViewIDs[slot]].Camera,
	}
}

func checkViews(g *splat.Gaussians, views []View) error {
	for v, view := range views {
		if view.Camera == nil {
			return fmt.Errorf("%w: view %d has no camera", splat.ErrInvalidInput, v)
		}
		if view.First < 0 || view.Count < 0 || view.First+view.Count > g.Len() {
			return fmt.Errorf("%w: view %d range [%d, %d) outside %d primitives",
				splat.ErrInvalidInput, v, view.First, view.First+view.Count, g.Len())
		}
		if view.Camera.IsRolling() && view.Camera.Shutter.RowHint != nil && len(view.Camera.Shutter.RowHint) != view.Count {
			return fmt.Errorf("%w: view %d has %d row hints for %d primitives",
				splat.ErrInvalidInput, v, len(view.Camera.Shutter.RowHint), view.Count)
		}
	}
	return nil
}

// Project computes the footprint of every (view, primitive) pair.
func Project(ctx context.Context, pool *parallel.Pool, shape splat.Shape, g *splat.Gaussians, views []View, opts Options) (*Set, error) {
	if err := checkViews(g, views); err != nil {
		return nil, err
	}
	if opts.RollingIterations <= 0 {
		opts.RollingIterations = DefaultRollingIterations
	}

	starts := make([]int, len(views)+1)
	for v, view := range views {
		starts[v+1] = starts[v] + view.Count
	}
	n := starts[len(views)]

	dense := &Set{
		Shape:       shape,
		Views:       views,
		ViewStarts:  starts,
		ViewIDs:     make([]int, n),
		GaussianIDs: make([]int, n),
		Footprints:  make([]splat.Footprint, n),
		RowTimes:    make([]float64, n),
	}
	for v, view := range views {
		for i := 0; i < view.Count; i++ {
			dense.ViewIDs[starts[v]+i] = v
			dense.GaussianIDs[starts[v]+i] = view.First + i
		}
	}

	err := pool.ForEach(ctx, n, func(slot int) {
		cam := views[dense.ViewIDs[slot]].Camera
		in := splat.ProjectInput{Camera: cam, Viewmat: cam.Viewmat}
		gi := dense.GaussianIDs[slot]
		in.Mean, in.Quat, in.Scale = g.Means[gi], g.Quats[gi], g.Scales[gi]

		if cam.IsRolling() {
			seed := 0.5
			if hint := cam.Shutter.RowHint; hint != nil {
				seed = clamp(hint[gi-views[dense.ViewIDs[slot]].First], 0, 1)
			}
			t := solveRowTime(shape, in, &opts.ProjectOptions, seed, opts.RollingIterations)
			dense.RowTimes[slot] = t
			in.Viewmat = cam.Shutter.PoseAt(t).Viewmat()
		}
		dense.Footprints[slot] = shape.Project(in, opts.ProjectOptions)
	})
	if err != nil {
		return nil, err
	}

	if !opts.Packed {
		return dense, nil
	}
	return dense.pack(), nil
}

// pack drops invisible slots, keeping the (view, primitive) order.
func (s *Set) pack() *Set {
	visible := s.Visible()
	p := &Set{
		Shape:       s.Shape,
		Packed:      true,
		Views:       s.Views,
		ViewStarts:  make([]int, len(s.Views)+1),
		ViewIDs:     make([]int, 0, visible),
		GaussianIDs: make([]int, 0, visible),
		Footprints:  make([]splat.Footprint, 0, visible),
		RowTimes:    make([]float64, 0, visible),
	}
	for slot := range s.Footprints {
		if !s.Footprints[slot].Visible() {
			continue
		}
		p.ViewIDs = append(p.ViewIDs, s.ViewIDs[slot])
		p.GaussianIDs = append(p.GaussianIDs, s.GaussianIDs[slot])
		p.Footprints = append(p.Footprints, s.Footprints[slot])
		p.RowTimes = append(p.RowTimes, s.RowTimes[slot])
		p.ViewStarts[s.ViewIDs[slot]+1]++
	}
	for v := range s.Views {
		p.ViewStarts[v+1] += p.ViewStarts[v]
	}
	return p
}
