package raster

import (
	"context"
	"fmt"

	"github.com/Faultbox/gsplat/internal/parallel"
	"github.com/Faultbox/gsplat/pkg/splat"
)

// Hit is one contributing (slot, pixel) pair. Pixel is flattened
// view-major: (view*Height + y)*Width + x.
type Hit struct {
	Slot  int
	Pixel int
}

// IndicesInRange walks records [stepStart, stepEnd) of every tile's list,
// counted from the tile's first record, and reports which slots contribute
// to which pixels. Only records with depthMin < depth < depthMax take part.
//
// transmittances carries each pixel's state between calls (nil starts every
// pixel at 1); the updated state is returned. A pixel that saturates is set
// to zero and skipped by later calls. Hits are ordered by tile, then pixel,
// then front to back.
func IndicesInRange(ctx context.Context, pool *parallel.Pool, in *Input, opts Options,
	stepStart, stepEnd int, transmittances []float64, depthMin, depthMax float64) ([]Hit, []float64, error) {
	opts.fill()
	grid := in.Bins.Grid
	pixels := grid.Cameras * grid.Width * grid.Height

	tOut := make([]float64, pixels)
	if transmittances == nil {
		for i := range tOut {
			tOut[i] = 1
		}
	} else {
		if len(transmittances) != pixels {
			return nil, nil, fmt.Errorf("%w: %d transmittances for %d pixels", splat.ErrShapeMismatch, len(transmittances), pixels)
		}
		copy(tOut, transmittances)
	}

	perTile := make([][]Hit, grid.Len())
	records := in.Bins.Records
	err := pool.ForEach(ctx, grid.Len(), func(tile int) {
		view, _, _ := grid.Split(tile)
		x0, y0, x1, y1 := grid.Pixels(tile)
		start, end := in.Bins.Range(tile)
		lo := start + max(stepStart, 0)
		hi := min(start+stepEnd, end)
		if lo >= hi {
			return
		}

		var hits []Hit
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				pix := pixelIndex(grid, view, x, y)
				t := tOut[pix]
				if t <= opts.TransmittanceThreshold {
					continue
				}
				px, py := float64(x)+0.5, float64(y)+0.5
				for i := lo; i < hi; i++ {
					r := records[i]
					if r.Depth <= depthMin || r.Depth >= depthMax {
						continue
					}
					alpha, _, ok := in.alphaAt(&opts, r.Slot, px, py)
					if !ok {
						continue
					}
					hits = append(hits, Hit{Slot: r.Slot, Pixel: pix})
					t *= 1 - alpha
					if t <= opts.TransmittanceThreshold {
						t = 0
						break
					}
				}
				tOut[pix] = t
			}
		}
		perTile[tile] = hits
	})
	if err != nil {
		return nil, nil, err
	}

	total := 0
	for _, h := range perTile {
		total += len(h)
	}
	hits := make([]Hit, 0, total)
	for _, h := range perTile {
		hits = append(hits, h...)
	}
	return hits, tOut, nil
}

// Accumulate composites the given hits without a background. Hits of one
// pixel must appear front to back; pixels may be interleaved.
func Accumulate(ctx context.Context, pool *parallel.Pool, in *Input, opts Options, hits []Hit) (color, alpha []splat.Image, err error) {
	opts.fill()
	grid := in.Bins.Grid
	pixels := grid.Cameras * grid.Width * grid.Height
	k := in.Channels

	// Stable grouping by pixel keeps each pixel's order.
	starts := make([]int, pixels+1)
	for _, h := range hits {
		if h.Pixel < 0 || h.Pixel >= pixels || h.Slot < 0 || h.Slot >= in.Set.Len() {
			return nil, nil, fmt.Errorf("%w: hit %+v out of range", splat.ErrInvalidInput, h)
		}
		starts[h.Pixel+1]++
	}
	for p := 0; p < pixels; p++ {
		starts[p+1] += starts[p]
	}
	fill := append([]int(nil), starts[:pixels]...)
	grouped := make([]int, len(hits))
	for _, h := range hits {
		grouped[fill[h.Pixel]] = h.Slot
		fill[h.Pixel]++
	}

	color = make([]splat.Image, grid.Cameras)
	alpha = make([]splat.Image, grid.Cameras)
	for v := range color {
		color[v] = splat.NewImage(grid.Width, grid.Height, k)
		alpha[v] = splat.NewImage(grid.Width, grid.Height, 1)
	}

	plane := grid.Width * grid.Height
	err = pool.ForEach(ctx, pixels, func(pix int) {
		view, local := pix/plane, pix%plane
		x, y := local%grid.Width, local/grid.Width
		px, py := float64(x)+0.5, float64(y)+0.5
		out := color[view].Pixel(x, y)
		t := 1.0
		for _, slot := range grouped[starts[pix]:starts[pix+1]] {
			a, _, ok := in.alphaAt(&opts, slot, px, py)
			if !ok {
				continue
			}
			w := a * t
			for c, v := range in.color(slot) {
				out[c] += v * w
			}
			t *= 1 - a
		}
		alpha[view].Pix[local] = 1 - t
	})
	if err != nil {
		return nil, nil, err
	}
	return color, alpha, nil
}
