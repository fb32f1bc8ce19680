// Package config handles renderer configuration loading and management.
package config

import (
	"fmt"
	"time"

	"github.com/Faultbox/gsplat/pkg/splat"
	"github.com/Faultbox/gsplat/pkg/splat/project"
	"github.com/Faultbox/gsplat/pkg/splat/raster"
	"github.com/Faultbox/gsplat/pkg/splat/render"
)

// Config holds all renderer settings.
type Config struct {
	Render  RenderConfig  `yaml:"render"`
	Scene   SceneConfig   `yaml:"scene"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
}

// RenderConfig holds image and pipeline settings.
type RenderConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Mode   string `yaml:"mode"`  // RGB, D, ED, RGB+D, RGB+ED
	Shape  string `yaml:"shape"` // 3dgs or 2dgs

	TileSize int  `yaml:"tile_size"`
	Packed   bool `yaml:"packed"`
	Workers  int  `yaml:"workers"`

	Near       float64 `yaml:"near"`
	Far        float64 `yaml:"far"`
	EigenFloor float64 `yaml:"eigen_floor"`
	RadiusClip float64 `yaml:"radius_clip"`

	MinAlpha               float64   `yaml:"min_alpha"`
	MaxAlpha               float64   `yaml:"max_alpha"`
	TransmittanceThreshold float64   `yaml:"transmittance_threshold"`
	Background             []float64 `yaml:"background"`

	MaxIntersections int           `yaml:"max_intersections"`
	Timeout          time.Duration `yaml:"timeout"`
}

// SceneConfig selects the primitives and the camera path.
type SceneConfig struct {
	PLY string `yaml:"ply"` // empty renders a random scene

	RandomCount int   `yaml:"random_count"`
	Seed        int64 `yaml:"seed"`
	SHDegree    int   `yaml:"sh_degree"`

	Camera CameraConfig `yaml:"camera"`
}

// CameraConfig describes an orbit around Target.
type CameraConfig struct {
	Model     string     `yaml:"model"` // pinhole or ortho
	FOV       float64    `yaml:"fov"`   // vertical, degrees
	Distance  float64    `yaml:"distance"`
	Elevation float64    `yaml:"elevation"` // degrees
	Azimuth   float64    `yaml:"azimuth"`   // degrees, first view
	Views     int        `yaml:"views"`     // evenly spaced around the orbit
	Target    [3]float64 `yaml:"target"`
}

// OutputConfig holds image export settings.
type OutputConfig struct {
	Dir    string  `yaml:"dir"`
	Format string  `yaml:"format"` // png or bmp
	Prefix string  `yaml:"prefix"`
	Scale  float64 `yaml:"scale"` // resample factor applied on export
	Depth  bool    `yaml:"depth"` // also write depth images
	Label  bool    `yaml:"label"` // stamp the view index on each frame
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	JSON    bool   `yaml:"json"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Render: RenderConfig{
			Width:                  800,
			Height:                 600,
			Mode:                   splat.ModeRGB.String(),
			Shape:                  "3dgs",
			TileSize:               16,
			Near:                   render.DefaultNear,
			Far:                    render.DefaultFar,
			EigenFloor:             render.DefaultEigenFloor,
			MinAlpha:               raster.DefaultMinAlpha,
			MaxAlpha:               raster.DefaultMaxAlpha,
			TransmittanceThreshold: raster.DefaultTransmittanceThreshold,
			Timeout:                time.Minute,
		},
		Scene: SceneConfig{
			RandomCount: 10000,
			Seed:        1,
			SHDegree:    3,
			Camera: CameraConfig{
				Model:     "pinhole",
				FOV:       50,
				Distance:  4,
				Elevation: 15,
				Views:     1,
			},
		},
		Output: OutputConfig{
			Dir:    "renders",
			Format: "png",
			Prefix: "frame",
			Scale:  1,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// ParseShape converts a configuration string to a primitive shape.
func ParseShape(s string) (splat.Shape, error) {
	switch s {
	case "", "3dgs", "ellipsoid":
		return project.Ellipsoid{}, nil
	case "2dgs", "surfel":
		return project.Surfel{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown shape %q", splat.ErrInvalidInput, s)
	}
}

// Options converts the render section to pipeline options.
func (c *RenderConfig) Options() (render.Options, error) {
	mode, err := splat.ParseRenderMode(c.Mode)
	if err != nil {
		return render.Options{}, err
	}
	shape, err := ParseShape(c.Shape)
	if err != nil {
		return render.Options{}, err
	}

	opts := render.DefaultOptions()
	opts.Mode = mode
	opts.Shape = shape
	opts.TileSize = c.TileSize
	opts.Packed = c.Packed
	opts.Workers = c.Workers
	opts.Near = c.Near
	opts.Far = c.Far
	opts.EigenFloor = c.EigenFloor
	opts.RadiusClip = c.RadiusClip
	opts.MaxIntersections = c.MaxIntersections
	opts.Raster.MinAlpha = c.MinAlpha
	opts.Raster.MaxAlpha = c.MaxAlpha
	opts.Raster.TransmittanceThreshold = c.TransmittanceThreshold
	if len(c.Background) > 0 {
		opts.Raster.Background = append([]float64(nil), c.Background...)
	}
	return opts, nil
}
