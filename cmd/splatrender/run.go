package main

import (
	"context"
	"fmt"
	gomath "math"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/colornames"

	"github.com/Faultbox/gsplat/internal/assets"
	"github.com/Faultbox/gsplat/internal/camera"
	"github.com/Faultbox/gsplat/internal/config"
	"github.com/Faultbox/gsplat/internal/logger"
	"github.com/Faultbox/gsplat/internal/snapshot"
	"github.com/Faultbox/gsplat/pkg/math"
	"github.com/Faultbox/gsplat/pkg/splat"
	"github.com/Faultbox/gsplat/pkg/splat/project"
	"github.com/Faultbox/gsplat/pkg/splat/render"
)

// depthDisplayAlpha hides depth where the composite is mostly background.
const depthDisplayAlpha = 0.5

// run renders every view of the configured scene and returns the written
// file paths.
func run(ctx context.Context, cfg *config.Config) ([]string, error) {
	g, planar, err := loadScene(cfg.Scene, cfg.Render.Shape)
	if err != nil {
		return nil, err
	}

	opts, err := cfg.Render.Options()
	if err != nil {
		return nil, err
	}
	if planar && !opts.Shape.Planar() {
		logger.Warn("scene stores two scales, rendering as surfels")
		opts.Shape = project.Surfel{}
	}

	cams, err := cameras(cfg.Scene.Camera, cfg.Render.Width, cfg.Render.Height, g)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := render.Rasterize(ctx, g, cams, opts)
	if err != nil {
		return nil, err
	}
	stats := res.Stats()
	logger.Info("rendered",
		zap.Int("primitives", g.Len()),
		zap.Int("views", len(cams)),
		zap.String("mode", opts.Mode.String()),
		zap.String("shape", opts.Shape.Name()),
		zap.Int("visible", stats.Visible),
		zap.Int("intersections", stats.Intersections),
		zap.Duration("elapsed", time.Since(start)))

	if opts.Mode == splat.ModeIndices {
		logger.Info("contributing pairs", zap.Int("hits", len(res.Hits)))
		return nil, nil
	}
	return writeFrames(res, opts.Mode, cfg.Output)
}

// loadScene returns the configured primitives and whether they are planar.
func loadScene(sc config.SceneConfig, shape string) (*splat.Gaussians, bool, error) {
	if sc.PLY == "" {
		s, err := config.ParseShape(shape)
		if err != nil {
			return nil, false, err
		}
		logger.Info("generating random scene",
			zap.Int("primitives", sc.RandomCount),
			zap.Int64("seed", sc.Seed))
		return assets.RandomScene(sc.RandomCount, sc.SHDegree, sc.Seed, s.Planar()), s.Planar(), nil
	}

	m := assets.NewManager()
	defer m.Close()
	if err := m.AddDir(filepath.Join(config.ConfigDir(), "scenes")); err != nil {
		logger.Debug("scene dir unavailable", zap.Error(err))
	}
	ply, err := m.Load(sc.PLY)
	if err != nil {
		return nil, false, err
	}
	for _, c := range ply.Header.Comments {
		logger.Debug("ply comment", zap.String("text", c))
	}
	return ply.Gaussians, ply.Planar, nil
}

// cameras places the orbit views. A non-positive distance frames the
// scene's bounds instead of orbiting Target.
func cameras(cc config.CameraConfig, width, height int, g *splat.Gaussians) ([]splat.Camera, error) {
	model, err := splat.ParseCameraModel(cc.Model)
	if err != nil {
		return nil, err
	}

	const deg = gomath.Pi / 180
	oc := camera.NewOrbitCamera(width, height)
	oc.Model = model
	oc.FOV = cc.FOV * deg
	oc.Pitch = cc.Elevation * deg
	oc.Yaw = cc.Azimuth * deg
	if cc.Distance > 0 {
		oc.Center = math.Vec3{X: cc.Target[0], Y: cc.Target[1], Z: cc.Target[2]}
		oc.Distance = cc.Distance
	} else {
		oc.FitToBounds(g.Bounds())
	}
	logger.Debug("camera orbit",
		zap.Float64("distance", oc.Distance),
		zap.Int("views", cc.Views))
	return oc.Orbit(cc.Views), nil
}

func writeFrames(res *render.Result, mode splat.RenderMode, out config.OutputConfig) ([]string, error) {
	w, err := snapshot.NewWriter(out.Dir, out.Prefix, out.Format)
	if err != nil {
		return nil, err
	}
	w.SetScale(out.Scale)

	var paths []string
	for v := range res.Alpha {
		if mode.HasColor() {
			img, err := snapshot.ColorImage(&res.Color[v], nil)
			if err != nil {
				return paths, err
			}
			if out.Label {
				snapshot.Label(img, fmt.Sprintf("view %d", v), colornames.White)
			}
			path, err := w.Write(img, v, "")
			if err != nil {
				return paths, err
			}
			paths = append(paths, path)
		}

		if mode.HasDepth() && (out.Depth || !mode.HasColor()) {
			depth := res.Depth[v]
			if !mode.ExpectedDepth() {
				depth = normalizeDepth(&depth, &res.Alpha[v])
			}
			img, err := snapshot.DepthImage(&depth, &res.Alpha[v], depthDisplayAlpha)
			if err != nil {
				return paths, err
			}
			path, err := w.Write(img, v, "_depth")
			if err != nil {
				return paths, err
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// normalizeDepth divides accumulated depth by alpha for display.
func normalizeDepth(depth, alpha *splat.Image) splat.Image {
	out := splat.NewImage(depth.Width, depth.Height, 1)
	for i, a := range alpha.Pix {
		if a > 0 {
			out.Pix[i] = depth.Pix[i] / a
		}
	}
	return out
}
