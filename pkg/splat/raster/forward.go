package raster

import (
	"context"
	"fmt"
	gomath "math"
	"sync/atomic"

	"github.com/Faultbox/gsplat/internal/parallel"
	"github.com/Faultbox/gsplat/pkg/splat"
)

// Frame is the output of a forward composite.
type Frame struct {
	// Color and Alpha are indexed by view.
	Color []splat.Image
	Alpha []splat.Image

	// Last is the index of the last contributing record of every pixel,
	// or -1. Pixels are flattened view-major.
	Last []int

	// MaxWeight is the largest blend weight each slot reached.
	MaxWeight []float64
}

// Forward composites every tile. Tiles own disjoint pixels and read the
// shared inputs only, so they run without locks.
func Forward(ctx context.Context, pool *parallel.Pool, in *Input, opts Options) (*Frame, error) {
	opts.fill()
	k := in.Channels
	if opts.Background != nil && len(opts.Background) != k {
		return nil, fmt.Errorf("%w: background has %d channels, colors have %d", splat.ErrInvalidInput, len(opts.Background), k)
	}
	if len(in.Colors) != in.Set.Len()*k {
		return nil, fmt.Errorf("%w: %d color values for %d slots of %d channels", splat.ErrInvalidInput, len(in.Colors), in.Set.Len(), k)
	}

	grid := in.Bins.Grid
	views := grid.Cameras
	frame := &Frame{
		Color: make([]splat.Image, views),
		Alpha: make([]splat.Image, views),
		Last:  make([]int, views*grid.Width*grid.Height),
	}
	for v := 0; v < views; v++ {
		frame.Color[v] = splat.NewImage(grid.Width, grid.Height, k)
		frame.Alpha[v] = splat.NewImage(grid.Width, grid.Height, 1)
	}
	maxWeight := make([]atomic.Uint64, in.Set.Len())

	err := pool.ForEach(ctx, grid.Len(), func(tile int) {
		view, _, _ := grid.Split(tile)
		x0, y0, x1, y1 := grid.Pixels(tile)
		start, end := in.Bins.Range(tile)
		records := in.Bins.Records

		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				px, py := float64(x)+0.5, float64(y)+0.5
				out := frame.Color[view].Pixel(x, y)
				t := 1.0
				last := -1

				for i := start; i < end; i++ {
					slot := records[i].Slot
					alpha, _, ok := in.alphaAt(&opts, slot, px, py)
					if !ok {
						continue
					}
					next := t * (1 - alpha)
					w := alpha * t
					for c, v := range in.color(slot) {
						out[c] += v * w
					}
					atomicMax(&maxWeight[slot], w)
					t = next
					last = i
					if t <= opts.TransmittanceThreshold {
						break
					}
				}

				for c, bg := range opts.Background {
					out[c] += t * bg
				}
				frame.Alpha[view].Pix[y*grid.Width+x] = 1 - t
				frame.Last[pixelIndex(grid, view, x, y)] = last
			}
		}
	})
	if err != nil {
		return nil, err
	}

	frame.MaxWeight = make([]float64, len(maxWeight))
	for i := range maxWeight {
		frame.MaxWeight[i] = gomath.Float64frombits(maxWeight[i].Load())
	}
	return frame, nil
}
