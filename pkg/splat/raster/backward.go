package raster

import (
	"context"
	"fmt"

	"github.com/Faultbox/gsplat/internal/parallel"
	"github.com/Faultbox/gsplat/pkg/math"
	"github.com/Faultbox/gsplat/pkg/splat"
)

// Grads holds per-slot gradients of the composite.
type Grads struct {
	// Colors holds Channels values per slot.
	Colors     []float64
	Opacities  []float64
	Footprints []splat.FootprintGrad

	// AbsMean2D sums the absolute per-pixel mean2d gradients. It is only
	// filled with Options.AbsGrad.
	AbsMean2D []math.Vec2
}

// recordGrad is the gradient collected by one intersection record. Each
// record belongs to exactly one tile, so its owner writes it unshared.
type recordGrad struct {
	opacity   float64
	footprint splat.FootprintGrad
	abs       math.Vec2
}

// Backward replays every pixel from its last contributing record back to
// the front of the tile, recovering the transmittance before each record
// by division. Per-record gradients are then summed per slot in record
// order, which makes the result independent of scheduling.
//
// vColor and vAlpha are indexed by view like the frame; vAlpha may be nil.
func Backward(ctx context.Context, pool *parallel.Pool, in *Input, opts Options, frame *Frame, vColor, vAlpha []splat.Image) (*Grads, error) {
	opts.fill()
	grid := in.Bins.Grid
	k := in.Channels

	if len(vColor) != grid.Cameras {
		return nil, fmt.Errorf("%w: %d color gradients for %d views", splat.ErrShapeMismatch, len(vColor), grid.Cameras)
	}
	for v := range vColor {
		if !vColor[v].SameShape(&frame.Color[v]) {
			return nil, fmt.Errorf("%w: color gradient %d is %dx%dx%d, frame is %dx%dx%d", splat.ErrShapeMismatch, v,
				vColor[v].Width, vColor[v].Height, vColor[v].Channels, frame.Color[v].Width, frame.Color[v].Height, frame.Color[v].Channels)
		}
	}
	if vAlpha != nil {
		if len(vAlpha) != grid.Cameras {
			return nil, fmt.Errorf("%w: %d alpha gradients for %d views", splat.ErrShapeMismatch, len(vAlpha), grid.Cameras)
		}
		for v := range vAlpha {
			if !vAlpha[v].SameShape(&frame.Alpha[v]) {
				return nil, fmt.Errorf("%w: alpha gradient %d has the wrong shape", splat.ErrShapeMismatch, v)
			}
		}
	}

	records := in.Bins.Records
	recColors := make([]float64, len(records)*k)
	recGrads := make([]recordGrad, len(records))

	err := pool.ForEach(ctx, grid.Len(), func(tile int) {
		view, _, _ := grid.Split(tile)
		x0, y0, x1, y1 := grid.Pixels(tile)
		start, _ := in.Bins.Range(tile)
		buffer := make([]float64, k)

		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				last := frame.Last[pixelIndex(grid, view, x, y)]
				if last < 0 {
					continue
				}
				px, py := float64(x)+0.5, float64(y)+0.5
				vC := vColor[view].Pixel(x, y)
				vA := 0.0
				if vAlpha != nil {
					vA = vAlpha[view].Pix[y*grid.Width+x]
				}
				tFinal := 1 - frame.Alpha[view].Pix[y*grid.Width+x]
				bgDot := 0.0
				for c, bg := range opts.Background {
					bgDot += bg * vC[c]
				}

				t := tFinal
				clear(buffer)
				for i := last; i >= start; i-- {
					slot := records[i].Slot
					alpha, vis, ok := in.alphaAt(&opts, slot, px, py)
					if !ok {
						continue
					}
					ra := 1 / (1 - alpha)
					t *= ra
					fac := alpha * t

					color := in.color(slot)
					rc := recColors[i*k : (i+1)*k]
					vAlphaRec := 0.0
					for c := range color {
						rc[c] += fac * vC[c]
						vAlphaRec += (color[c]*t - buffer[c]*ra) * vC[c]
					}
					vAlphaRec += tFinal * ra * vA
					vAlphaRec -= tFinal * ra * bgDot

					op := in.opacity(slot)
					if op*vis <= opts.MaxAlpha {
						rg := &recGrads[i]
						vSigma := -op * vis * vAlphaRec
						var local splat.FootprintGrad
						in.Shape.SigmaBackward(&in.Set.Footprints[slot], px, py, vSigma, &local)
						rg.footprint.Add(&local)
						if opts.AbsGrad {
							rg.abs = rg.abs.Add(local.Mean2D.Abs())
						}
						rg.opacity += vis * vAlphaRec
					}
					for c := range color {
						buffer[c] += color[c] * fac
					}
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}

	return reduce(ctx, pool, in, opts, recColors, recGrads)
}

// reduce sums record gradients into their slots in record order.
func reduce(ctx context.Context, pool *parallel.Pool, in *Input, opts Options, recColors []float64, recGrads []recordGrad) (*Grads, error) {
	n := in.Set.Len()
	k := in.Channels
	records := in.Bins.Records

	starts := make([]int, n+1)
	for _, r := range records {
		starts[r.Slot+1]++
	}
	for s := 0; s < n; s++ {
		starts[s+1] += starts[s]
	}
	fill := append([]int(nil), starts[:n]...)
	bySlot := make([]int, len(records))
	for i, r := range records {
		bySlot[fill[r.Slot]] = i
		fill[r.Slot]++
	}

	out := &Grads{
		Colors:     make([]float64, n*k),
		Opacities:  make([]float64, n),
		Footprints: make([]splat.FootprintGrad, n),
	}
	if opts.AbsGrad {
		out.AbsMean2D = make([]math.Vec2, n)
	}
	err := pool.ForEach(ctx, n, func(slot int) {
		dst := out.Colors[slot*k : (slot+1)*k]
		for _, i := range bySlot[starts[slot]:starts[slot+1]] {
			for c, v := range recColors[i*k : (i+1)*k] {
				dst[c] += v
			}
			rg := &recGrads[i]
			out.Opacities[slot] += rg.opacity
			out.Footprints[slot].Add(&rg.footprint)
			if out.AbsMean2D != nil {
				out.AbsMean2D[slot] = out.AbsMean2D[slot].Add(rg.abs)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
