package render

import (
	"context"
	"fmt"
	gomath "math"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/gsplat/internal/logger"
	"github.com/Faultbox/gsplat/internal/parallel"
	"github.com/Faultbox/gsplat/pkg/math"
	"github.com/Faultbox/gsplat/pkg/splat"
	"github.com/Faultbox/gsplat/pkg/splat/project"
	"github.com/Faultbox/gsplat/pkg/splat/raster"
	"github.com/Faultbox/gsplat/pkg/splat/sh"
)

// RenderGrads is the loss gradient with respect to the images of a Result.
// A nil slice stands for a zero gradient.
type RenderGrads struct {
	Color []splat.Image
	Depth []splat.Image
	Alpha []splat.Image
}

// Gradients is the loss gradient with respect to every render input, laid
// out like the flattened batch: primitives and color blocks scene after
// scene, views in call order.
type Gradients struct {
	Means     []math.Vec3
	Quats     []math.Quat
	Scales    []math.Vec3
	Opacities []float64

	// Colors is filled for flat colors, SH for spherical harmonics.
	Colors []float64
	SH     []math.Vec3

	Viewmats     []math.Mat4
	ShutterStart []project.PoseGrad
	ShutterEnd   []project.PoseGrad

	// Background is nil unless the render used one.
	Background []float64

	// Mean2D and AbsMean2D are per slot of Result.Set, the inputs of
	// gradient-driven densification. AbsMean2D needs Raster.AbsGrad.
	Mean2D    []math.Vec2
	AbsMean2D []math.Vec2

	layout     layout
	slotStarts []int
	channels   int
	bases      int
}

// Scene returns the gradients of scene b of a batch. The slices alias g.
func (g *Gradients) Scene(b int) *Gradients {
	l := &g.layout
	g0, g1 := l.gaussians[b], l.gaussians[b+1]
	v0, v1 := l.views[b], l.views[b+1]
	c0, c1 := l.colors[b], l.colors[b+1]
	s0, s1 := g.slotStarts[v0], g.slotStarts[v1]

	out := &Gradients{
		Means:        g.Means[g0:g1],
		Quats:        g.Quats[g0:g1],
		Scales:       g.Scales[g0:g1],
		Opacities:    g.Opacities[g0:g1],
		Viewmats:     g.Viewmats[v0:v1],
		ShutterStart: g.ShutterStart[v0:v1],
		ShutterEnd:   g.ShutterEnd[v0:v1],
		Background:   g.Background,
		Mean2D:       g.Mean2D[s0:s1],
		channels:     g.channels,
		bases:        g.bases,
	}
	if g.Colors != nil {
		out.Colors = g.Colors[c0*g.channels : c1*g.channels]
	}
	if g.SH != nil {
		out.SH = g.SH[c0*g.bases : c1*g.bases]
	}
	if g.AbsMean2D != nil {
		out.AbsMean2D = g.AbsMean2D[s0:s1]
	}
	return out
}

func checkImages(name string, imgs []splat.Image, views, width, height, channels int) error {
	if imgs == nil {
		return nil
	}
	if len(imgs) != views {
		return fmt.Errorf("%w: %d %s gradients for %d views", splat.ErrShapeMismatch, len(imgs), name, views)
	}
	for v := range imgs {
		im := &imgs[v]
		if im.Width != width || im.Height != height || im.Channels != channels || len(im.Pix) != width*height*channels {
			return fmt.Errorf("%w: %s gradient %d is %dx%dx%d, want %dx%dx%d", splat.ErrShapeMismatch,
				name, v, im.Width, im.Height, im.Channels, width, height, channels)
		}
	}
	return nil
}

// Backward pulls the image gradients back to the primitives and cameras.
func (r *Result) Backward(ctx context.Context, vOut RenderGrads) (*Gradients, error) {
	start := time.Now()
	mode := r.opts.Mode
	views := len(r.cams)
	w, h := r.cams[0].Width, r.cams[0].Height

	if vOut.Color != nil && !mode.HasColor() {
		return nil, fmt.Errorf("%w: color gradient for %v mode", splat.ErrShapeMismatch, mode)
	}
	if vOut.Depth != nil && !mode.HasDepth() {
		return nil, fmt.Errorf("%w: depth gradient for %v mode", splat.ErrShapeMismatch, mode)
	}
	if err := checkImages("color", vOut.Color, views, w, h, r.colorK); err != nil {
		return nil, err
	}
	if err := checkImages("depth", vOut.Depth, views, w, h, 1); err != nil {
		return nil, err
	}
	if err := checkImages("alpha", vOut.Alpha, views, w, h, 1); err != nil {
		return nil, err
	}

	pool := parallel.New(r.opts.Workers)
	defer pool.Close()

	vColor, vAlpha := r.compositeGrads(vOut)
	t := time.Now()
	rg, err := raster.Backward(ctx, pool, r.in, r.rasterOptions(), r.frame, vColor, vAlpha)
	if err != nil {
		return nil, err
	}
	logger.Stage("composite backward", t, zap.Int("intersections", len(r.Bins.Records)))

	out := r.newGradients()
	n := r.Set.Len()
	k := r.channels
	g0 := r.scenes[0].Gaussians
	useSH := mode.HasColor() && g0.UsesSH()

	t = time.Now()
	slotGrads := make([]project.SlotGrad, n)
	var slotSH [][]math.Vec3
	if useSH {
		slotSH = make([][]math.Vec3, n)
	}
	err = pool.ForEach(ctx, n, func(slot int) {
		if !r.Set.Footprints[slot].Visible() {
			return
		}
		sg := &slotGrads[slot]
		sg.Footprint = rg.Footprints[slot]
		vc := rg.Colors[slot*k : (slot+1)*k]
		if mode.HasDepth() {
			sg.Footprint.Depth += vc[r.colorK]
		}
		if !useSH {
			return
		}
		b, c, i := r.locate(slot)
		g := r.scenes[b].Gaussians
		vCoeffs, vDir := sh.ColorBackward(g.SHDegree, r.dirs[slot], g.Coeffs(c, i), math.Vec3{X: vc[0], Y: vc[1], Z: vc[2]})
		slotSH[slot] = vCoeffs
		sg.Mean = vDir
		sg.Viewmat = project.CameraCenterBackward(r.Set.Viewmat(slot), vDir.Scale(-1))
	})
	if err != nil {
		return nil, err
	}

	// Shared color blocks and opacities collect from several slots; sum
	// them in slot order.
	for slot := 0; slot < n; slot++ {
		if !r.Set.Footprints[slot].Visible() {
			continue
		}
		out.Opacities[r.Set.GaussianIDs[slot]] += rg.Opacities[slot]
		out.Mean2D[slot] = rg.Footprints[slot].Mean2D
		if rg.AbsMean2D != nil {
			out.AbsMean2D[slot] = rg.AbsMean2D[slot]
		}
		if !mode.HasColor() {
			continue
		}
		block := r.colorBlock(r.locate(slot))
		if useSH {
			dst := out.SH[block*out.bases : (block+1)*out.bases]
			for j, v := range slotSH[slot] {
				dst[j] = dst[j].Add(v)
			}
			continue
		}
		dst := out.Colors[block*out.channels : (block+1)*out.channels]
		for j := range dst {
			dst[j] += rg.Colors[slot*k+j]
		}
	}
	logger.Stage("color backward", t)

	t = time.Now()
	pg, err := r.Set.Backward(ctx, pool, r.flat, r.opts.project(), slotGrads)
	if err != nil {
		return nil, err
	}
	out.Means, out.Quats, out.Scales = pg.Means, pg.Quats, pg.Scales
	out.Viewmats, out.ShutterStart, out.ShutterEnd = pg.Viewmats, pg.ShutterStart, pg.ShutterEnd
	logger.Stage("project backward", t)

	if r.opts.Raster.Background != nil && vOut.Color != nil {
		out.Background = make([]float64, r.colorK)
		for v := range vOut.Color {
			alpha := r.frame.Alpha[v].Pix
			for p, a := range alpha {
				for c := 0; c < r.colorK; c++ {
					out.Background[c] += (1 - a) * vOut.Color[v].Pix[p*r.colorK+c]
				}
			}
		}
	}

	logger.Stage("backward", start, zap.Int("slots", n))
	return out, nil
}

// compositeGrads interleaves the color and depth gradients into composite
// channels and folds expected depth normalization into both.
func (r *Result) compositeGrads(vOut RenderGrads) (vColor, vAlpha []splat.Image) {
	views := len(r.cams)
	w, h := r.cams[0].Width, r.cams[0].Height
	k := r.channels
	vColor = make([]splat.Image, views)
	vAlpha = make([]splat.Image, views)
	for v := 0; v < views; v++ {
		vColor[v] = splat.NewImage(w, h, k)
		vAlpha[v] = splat.NewImage(w, h, 1)
		if vOut.Alpha != nil {
			copy(vAlpha[v].Pix, vOut.Alpha[v].Pix)
		}
		for p := 0; p < w*h; p++ {
			dst := vColor[v].Pix[p*k : (p+1)*k]
			if vOut.Color != nil {
				copy(dst[:r.colorK], vOut.Color[v].Pix[p*r.colorK:(p+1)*r.colorK])
			}
			if vOut.Depth == nil {
				continue
			}
			vd := vOut.Depth[v].Pix[p]
			if !r.opts.Mode.ExpectedDepth() {
				dst[r.colorK] = vd
				continue
			}
			a := r.frame.Alpha[v].Pix[p]
			denom := gomath.Max(a, depthAlphaFloor)
			dst[r.colorK] = vd / denom
			if a > depthAlphaFloor {
				vAlpha[v].Pix[p] -= vd * r.Depth[v].Pix[p] / denom
			}
		}
	}
	return vColor, vAlpha
}

func (r *Result) newGradients() *Gradients {
	g0 := r.scenes[0].Gaussians
	n := r.flat.Len()
	blocks := r.layout.colors[r.layout.scenes()]
	out := &Gradients{
		Opacities:  make([]float64, n),
		Mean2D:     make([]math.Vec2, r.Set.Len()),
		layout:     r.layout,
		slotStarts: r.Set.ViewStarts,
		channels:   g0.Channels,
		bases:      g0.Bases,
	}
	if r.opts.Raster.AbsGrad {
		out.AbsMean2D = make([]math.Vec2, r.Set.Len())
	}
	if r.opts.Mode.HasColor() {
		if g0.UsesSH() {
			out.SH = make([]math.Vec3, blocks*g0.Bases)
		} else {
			out.Colors = make([]float64, blocks*g0.Channels)
		}
	}
	return out
}
