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
	"github.com/Faultbox/gsplat/pkg/splat/tiles"
)

// depthAlphaFloor bounds the alpha that expected depth divides by.
const depthAlphaFloor = 1e-10

// Scene is one set of primitives and the cameras that view it.
type Scene struct {
	Gaussians *splat.Gaussians
	Cameras   []splat.Camera
}

// Result holds the images of a render call and the intermediate state its
// backward pass replays. Images are indexed by view; batched scenes are laid
// out one after another in call order.
type Result struct {
	// Color has the primitives' color channels; nil unless the mode
	// renders color.
	Color []splat.Image

	// Depth is accumulated or expected depth; nil unless the mode renders
	// depth.
	Depth []splat.Image

	// Alpha is one minus the final transmittance of every pixel.
	Alpha []splat.Image

	// Hits lists contributing (slot, pixel) pairs in ModeIndices.
	Hits []raster.Hit

	Set  *project.Set
	Bins *tiles.Bins

	opts   Options
	scenes []Scene
	layout layout
	flat   *splat.Gaussians
	cams   []splat.Camera

	in       *raster.Input
	frame    *raster.Frame
	colorK   int
	channels int

	// dirs holds each slot's viewing direction for SH colors.
	dirs []math.Vec3
}

// layout maps the flattened index spaces of a batch back to its scenes.
type layout struct {
	gaussians []int
	views     []int
	colors    []int
	viewScene []int
}

func (l *layout) scenes() int {
	return len(l.gaussians) - 1
}

// Views returns the range of views that belong to scene b.
func (r *Result) Views(b int) (start, end int) {
	return r.layout.views[b], r.layout.views[b+1]
}

// Rasterize renders g from every camera.
func Rasterize(ctx context.Context, g *splat.Gaussians, cams []splat.Camera, opts Options) (*Result, error) {
	return RasterizeBatch(ctx, []Scene{{Gaussians: g, Cameras: cams}}, opts)
}

// RasterizeBatch renders several independent scenes in one pass. Each camera
// only sees the primitives of its own scene, so every scene's images equal
// those of a separate Rasterize call. All cameras must share one image size
// and all scenes one color layout.
func RasterizeBatch(ctx context.Context, scenes []Scene, opts Options) (*Result, error) {
	opts.fill()
	start := time.Now()

	if err := validate(scenes, &opts); err != nil {
		return nil, err
	}

	r := &Result{opts: opts, scenes: scenes}
	r.flatten()

	pool := parallel.New(opts.Workers)
	defer pool.Close()

	views := make([]project.View, len(r.cams))
	for v := range r.cams {
		b := r.layout.viewScene[v]
		views[v] = project.View{
			Camera: &r.cams[v],
			First:  r.layout.gaussians[b],
			Count:  r.layout.gaussians[b+1] - r.layout.gaussians[b],
		}
	}

	t := time.Now()
	set, err := project.Project(ctx, pool, opts.Shape, r.flat, views, opts.project())
	if err != nil {
		return nil, err
	}
	r.Set = set
	logger.Stage("project", t, zap.String("shape", opts.Shape.Name()),
		zap.Int("slots", set.Len()), zap.Int("visible", set.Visible()))

	t = time.Now()
	colors, err := r.evalColors(ctx, pool)
	if err != nil {
		return nil, err
	}
	logger.Stage("colors", t, zap.Int("channels", r.channels))

	t = time.Now()
	grid := tiles.NewGrid(r.cams[0].Width, r.cams[0].Height, opts.TileSize, len(r.cams))
	bins, err := tiles.Bin(ctx, pool, set, grid, opts.MaxIntersections)
	if err != nil {
		return nil, err
	}
	r.Bins = bins
	logger.Stage("bin", t, zap.Int("tiles", grid.Len()), zap.Int("intersections", len(bins.Records)))

	r.in = &raster.Input{
		Shape:     opts.Shape,
		Set:       set,
		Bins:      bins,
		Opacities: r.flat.Opacities,
		Colors:    colors,
		Channels:  r.channels,
	}

	t = time.Now()
	frame, err := raster.Forward(ctx, pool, r.in, r.rasterOptions())
	if err != nil {
		return nil, err
	}
	r.frame = frame
	r.Alpha = frame.Alpha
	r.split()
	logger.Stage("composite", t)

	if opts.Mode == splat.ModeIndices {
		t = time.Now()
		hits, _, err := raster.IndicesInRange(ctx, pool, r.in, r.rasterOptions(), 0, len(bins.Records), nil, 0, gomath.Inf(1))
		if err != nil {
			return nil, err
		}
		r.Hits = hits
		logger.Stage("indices", t, zap.Int("hits", len(hits)))
	}

	logger.Stage("rasterize", start, zap.Int("scenes", len(scenes)), zap.Int("views", len(r.cams)))
	return r, nil
}

func validate(scenes []Scene, opts *Options) error {
	if len(scenes) == 0 {
		return fmt.Errorf("%w: no scenes", splat.ErrInvalidInput)
	}
	var cams []splat.Camera
	first := scenes[0].Gaussians
	for b, s := range scenes {
		if s.Gaussians == nil {
			return fmt.Errorf("%w: scene %d has no primitives", splat.ErrInvalidInput, b)
		}
		if err := s.Gaussians.Validate(len(s.Cameras), opts.Shape.Planar()); err != nil {
			return fmt.Errorf("scene %d: %w", b, err)
		}
		g := s.Gaussians
		if g.SHDegree != first.SHDegree || g.Bases != first.Bases || g.Channels != first.Channels || g.PerView != first.PerView {
			return fmt.Errorf("%w: scene %d color layout differs from scene 0", splat.ErrInvalidInput, b)
		}
		cams = append(cams, s.Cameras...)
	}
	if err := splat.ValidateCameras(cams); err != nil {
		return err
	}

	bg := opts.Raster.Background
	if bg != nil {
		if !opts.Mode.HasColor() {
			return fmt.Errorf("%w: background set for %v mode", splat.ErrInvalidInput, opts.Mode)
		}
		if len(bg) != first.ColorChannels() {
			return fmt.Errorf("%w: background has %d channels, colors have %d", splat.ErrInvalidInput, len(bg), first.ColorChannels())
		}
	}
	return nil
}

// flatten concatenates the scenes into one primitive and view index space.
func (r *Result) flatten() {
	n := len(r.scenes)
	r.layout = layout{
		gaussians: make([]int, n+1),
		views:     make([]int, n+1),
		colors:    make([]int, n+1),
	}
	for b, s := range r.scenes {
		g := s.Gaussians
		r.layout.gaussians[b+1] = r.layout.gaussians[b] + g.Len()
		r.layout.views[b+1] = r.layout.views[b] + len(s.Cameras)
		blocks := g.Len()
		if g.PerView {
			blocks *= len(s.Cameras)
		}
		r.layout.colors[b+1] = r.layout.colors[b] + blocks
		for range s.Cameras {
			r.layout.viewScene = append(r.layout.viewScene, b)
		}
		r.cams = append(r.cams, s.Cameras...)
	}

	if n == 1 {
		r.flat = r.scenes[0].Gaussians
		return
	}
	total := r.layout.gaussians[n]
	r.flat = &splat.Gaussians{
		Means:     make([]math.Vec3, 0, total),
		Quats:     make([]math.Quat, 0, total),
		Scales:    make([]math.Vec3, 0, total),
		Opacities: make([]float64, 0, total),
		SHDegree:  splat.FlatColors,
	}
	for _, s := range r.scenes {
		g := s.Gaussians
		r.flat.Means = append(r.flat.Means, g.Means...)
		r.flat.Quats = append(r.flat.Quats, g.Quats...)
		r.flat.Scales = append(r.flat.Scales, g.Scales...)
		r.flat.Opacities = append(r.flat.Opacities, g.Opacities...)
	}
}

// locate returns the scene, local camera and local primitive of a slot.
func (r *Result) locate(slot int) (b, c, i int) {
	v := r.Set.ViewIDs[slot]
	b = r.layout.viewScene[v]
	return b, v - r.layout.views[b], r.Set.GaussianIDs[slot] - r.layout.gaussians[b]
}

// colorBlock returns the flattened color block index of (b, c, i).
func (r *Result) colorBlock(b, c, i int) int {
	g := r.scenes[b].Gaussians
	if g.PerView {
		return r.layout.colors[b] + c*g.Len() + i
	}
	return r.layout.colors[b] + i
}

// evalColors fills the per-slot composite channels: the primitive color
// followed by camera-space depth.
func (r *Result) evalColors(ctx context.Context, pool *parallel.Pool) ([]float64, error) {
	mode := r.opts.Mode
	g0 := r.scenes[0].Gaussians
	if mode.HasColor() {
		r.colorK = g0.ColorChannels()
	}
	r.channels = r.colorK
	if mode.HasDepth() {
		r.channels++
	}
	useSH := mode.HasColor() && g0.UsesSH()
	if useSH {
		r.dirs = make([]math.Vec3, r.Set.Len())
	}

	k := r.channels
	colors := make([]float64, r.Set.Len()*k)
	err := pool.ForEach(ctx, r.Set.Len(), func(slot int) {
		fp := &r.Set.Footprints[slot]
		if !fp.Visible() {
			return
		}
		out := colors[slot*k : (slot+1)*k]
		b, c, i := r.locate(slot)
		g := r.scenes[b].Gaussians
		if mode.HasColor() {
			if useSH {
				dir := r.flat.Means[r.Set.GaussianIDs[slot]].Sub(project.CameraCenter(r.Set.Viewmat(slot)))
				r.dirs[slot] = dir
				col := sh.Color(g.SHDegree, dir, g.Coeffs(c, i))
				out[0], out[1], out[2] = col.X, col.Y, col.Z
			} else {
				copy(out, g.FlatColor(c, i))
			}
		}
		if mode.HasDepth() {
			out[r.colorK] = fp.Depth
		}
	})
	if err != nil {
		return nil, err
	}
	return colors, nil
}

// rasterOptions pads the color background with zero depth.
func (r *Result) rasterOptions() raster.Options {
	opts := r.opts.Raster
	if opts.Background != nil && r.channels > r.colorK {
		opts.Background = append(append([]float64(nil), opts.Background...), 0)
	}
	return opts
}

// split separates the composite channels into color and depth images.
func (r *Result) split() {
	mode := r.opts.Mode
	views := len(r.cams)
	if mode.HasColor() {
		r.Color = make([]splat.Image, views)
	}
	if mode.HasDepth() {
		r.Depth = make([]splat.Image, views)
	}
	for v := 0; v < views; v++ {
		src := &r.frame.Color[v]
		if mode.HasColor() {
			if !mode.HasDepth() {
				r.Color[v] = *src
			} else {
				r.Color[v] = splat.NewImage(src.Width, src.Height, r.colorK)
			}
		}
		if mode.HasDepth() {
			r.Depth[v] = splat.NewImage(src.Width, src.Height, 1)
		}
		if !mode.HasDepth() {
			continue
		}
		alpha := r.frame.Alpha[v].Pix
		for p := 0; p < src.Width*src.Height; p++ {
			px := src.Pix[p*r.channels : (p+1)*r.channels]
			if mode.HasColor() {
				copy(r.Color[v].Pix[p*r.colorK:(p+1)*r.colorK], px[:r.colorK])
			}
			d := px[r.colorK]
			if mode.ExpectedDepth() {
				d /= gomath.Max(alpha[p], depthAlphaFloor)
			}
			r.Depth[v].Pix[p] = d
		}
	}
}

// IndicesInRange attributes pixels to the records [stepStart, stepEnd) of
// every tile within the depth range, continuing from transmittances.
func (r *Result) IndicesInRange(ctx context.Context, stepStart, stepEnd int, transmittances []float64, depthMin, depthMax float64) ([]raster.Hit, []float64, error) {
	pool := parallel.New(r.opts.Workers)
	defer pool.Close()
	return raster.IndicesInRange(ctx, pool, r.in, r.rasterOptions(), stepStart, stepEnd, transmittances, depthMin, depthMax)
}

// Accumulate composites hits over a transparent background. The images
// carry the same channels as the forward composite: color, then depth.
func (r *Result) Accumulate(ctx context.Context, hits []raster.Hit) (color, alpha []splat.Image, err error) {
	pool := parallel.New(r.opts.Workers)
	defer pool.Close()
	return raster.Accumulate(ctx, pool, r.in, r.rasterOptions(), hits)
}
