package project

import (
	"context"
	"fmt"

	"github.com/Faultbox/gsplat/internal/parallel"
	"github.com/Faultbox/gsplat/pkg/math"
	"github.com/Faultbox/gsplat/pkg/splat"
)

// SlotGrad is the loss gradient arriving at one slot.
type SlotGrad struct {
	Footprint splat.FootprintGrad

	// Mean and Viewmat collect direct contributions to the primitive centre
	// and the slot's effective viewmat, e.g. from view-dependent color.
	Mean    math.Vec3
	Viewmat math.Mat4
}

// Grads holds projection gradients reduced per primitive and per view.
type Grads struct {
	Means  []math.Vec3
	Quats  []math.Quat
	Scales []math.Vec3

	// Viewmats is indexed by view. Rolling shutter views report their
	// gradients through ShutterStart and ShutterEnd instead.
	Viewmats     []math.Mat4
	ShutterStart []PoseGrad
	ShutterEnd   []PoseGrad
}

// Backward pulls per-slot gradients back to the primitives and cameras.
// Sums are taken in slot order, so the result does not depend on
// scheduling.
func (s *Set) Backward(ctx context.Context, pool *parallel.Pool, g *splat.Gaussians, opts Options, vSlots []SlotGrad) (*Grads, error) {
	if len(vSlots) != s.Len() {
		return nil, fmt.Errorf("%w: %d slot gradients for %d slots", splat.ErrShapeMismatch, len(vSlots), s.Len())
	}

	perSlot := make([]splat.ProjectGrad, s.Len())
	err := pool.ForEach(ctx, s.Len(), func(slot int) {
		pg := &perSlot[slot]
		if s.Footprints[slot].Visible() {
			*pg = s.Shape.ProjectBackward(s.input(g, slot), opts.ProjectOptions, vSlots[slot].Footprint)
		}
		pg.Mean = pg.Mean.Add(vSlots[slot].Mean)
		pg.Viewmat = pg.Viewmat.Add(vSlots[slot].Viewmat)
	})
	if err != nil {
		return nil, err
	}

	n := g.Len()
	out := &Grads{
		Means:        make([]math.Vec3, n),
		Quats:        make([]math.Quat, n),
		Scales:       make([]math.Vec3, n),
		Viewmats:     make([]math.Mat4, len(s.Views)),
		ShutterStart: make([]PoseGrad, len(s.Views)),
		ShutterEnd:   make([]PoseGrad, len(s.Views)),
	}

	// Slots per primitive, ascending.
	starts := make([]int, n+1)
	for _, gi := range s.GaussianIDs {
		starts[gi+1]++
	}
	for i := 0; i < n; i++ {
		starts[i+1] += starts[i]
	}
	fill := append([]int(nil), starts[:n]...)
	bySlot := make([]int, s.Len())
	for slot, gi := range s.GaussianIDs {
		bySlot[fill[gi]] = slot
		fill[gi]++
	}

	err = pool.ForEach(ctx, n, func(i int) {
		for _, slot := range bySlot[starts[i]:starts[i+1]] {
			pg := &perSlot[slot]
			out.Means[i] = out.Means[i].Add(pg.Mean)
			out.Quats[i] = out.Quats[i].Add(pg.Quat)
			out.Scales[i] = out.Scales[i].Add(pg.Scale)
		}
	})
	if err != nil {
		return nil, err
	}

	err = pool.ForEach(ctx, len(s.Views), func(v int) {
		cam := s.Views[v].Camera
		for slot := s.ViewStarts[v]; slot < s.ViewStarts[v+1]; slot++ {
			vView := perSlot[slot].Viewmat
			if !cam.IsRolling() {
				out.Viewmats[v] = out.Viewmats[v].Add(vView)
				continue
			}
			start, end := ShutterBackward(cam.Shutter, s.RowTimes[slot], vView)
			out.ShutterStart[v].Add(start)
			out.ShutterEnd[v].Add(end)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
