// Package render wires the pipeline stages into complete render calls:
// validate, project, evaluate colors, bin, composite. Every stage is a
// barrier on one worker pool, and the backward pass replays them in
// reverse.
package render

import (
	"github.com/Faultbox/gsplat/pkg/splat"
	"github.com/Faultbox/gsplat/pkg/splat/project"
	"github.com/Faultbox/gsplat/pkg/splat/raster"
	"github.com/Faultbox/gsplat/pkg/splat/tiles"
)

// Projection defaults.
const (
	DefaultNear       = 0.01
	DefaultFar        = 1e10
	DefaultEigenFloor = 0.3
)

// Options configures a render call. Zero fields take their defaults.
type Options struct {
	Mode  splat.RenderMode
	Shape splat.Shape

	TileSize int
	Packed   bool

	Near, Far  float64
	EigenFloor float64

	// RadiusClip culls footprints whose pixel radius is at most this value.
	RadiusClip float64

	MaxIntersections  int
	RollingIterations int

	// Raster holds the composite settings. Its Background has one value
	// per color channel; depth channels always composite over zero.
	Raster raster.Options

	// Workers bounds the worker pool; zero uses GOMAXPROCS.
	Workers int
}

// DefaultOptions returns the settings of a plain RGB ellipsoid render.
func DefaultOptions() Options {
	return Options{
		Mode:              splat.ModeRGB,
		Shape:             project.Ellipsoid{},
		TileSize:          tiles.DefaultTileSize,
		Near:              DefaultNear,
		Far:               DefaultFar,
		EigenFloor:        DefaultEigenFloor,
		MaxIntersections:  tiles.DefaultMaxIntersections,
		RollingIterations: project.DefaultRollingIterations,
		Raster:            raster.Defaults(),
	}
}

func (o *Options) fill() {
	d := DefaultOptions()
	if o.Shape == nil {
		o.Shape = d.Shape
	}
	if o.TileSize <= 0 {
		o.TileSize = d.TileSize
	}
	if o.Near <= 0 {
		o.Near = d.Near
	}
	if o.Far <= 0 {
		o.Far = d.Far
	}
	if o.EigenFloor <= 0 {
		o.EigenFloor = d.EigenFloor
	}
	if o.MaxIntersections <= 0 {
		o.MaxIntersections = d.MaxIntersections
	}
	if o.RollingIterations <= 0 {
		o.RollingIterations = d.RollingIterations
	}
}

func (o *Options) project() project.Options {
	return project.Options{
		ProjectOptions: splat.ProjectOptions{
			Near:       o.Near,
			Far:        o.Far,
			EigenFloor: o.EigenFloor,
			RadiusClip: o.RadiusClip,
		},
		Packed:            o.Packed,
		RollingIterations: o.RollingIterations,
	}
}
