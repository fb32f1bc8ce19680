package render

// Stats is a read-only summary of a forward pass for densification.
type Stats struct {
	// Visible counts slots that reached binning.
	Visible       int
	Intersections int

	// Radii is the pixel radius of every slot of Result.Set.
	Radii []int

	// TilesTouched and MaxWeight are per primitive: tiles summed and
	// blend weights maximized over all views.
	TilesTouched []int
	MaxWeight    []float64
}

// Stats summarizes the forward pass.
func (r *Result) Stats() Stats {
	n := r.flat.Len()
	s := Stats{
		Visible:       r.Set.Visible(),
		Intersections: len(r.Bins.Records),
		Radii:         make([]int, r.Set.Len()),
		TilesTouched:  make([]int, n),
		MaxWeight:     make([]float64, n),
	}
	for slot := range r.Set.Footprints {
		gi := r.Set.GaussianIDs[slot]
		s.Radii[slot] = r.Set.Footprints[slot].Radius
		s.TilesTouched[gi] += r.Bins.TilesTouched[slot]
		s.MaxWeight[gi] = max(s.MaxWeight[gi], r.frame.MaxWeight[slot])
	}
	return s
}
