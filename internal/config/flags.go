package config

import "flag"

var (
	flagConfig  = flag.String("config", "", "Path to config file")
	flagDebug   = flag.Bool("debug", false, "Enable debug logging")
	flagWidth   = flag.Int("width", 0, "Image width")
	flagHeight  = flag.Int("height", 0, "Image height")
	flagMode    = flag.String("mode", "", "Render mode: RGB, D, ED, RGB+D, RGB+ED")
	flagShape   = flag.String("shape", "", "Primitive shape: 3dgs or 2dgs")
	flagPLY     = flag.String("ply", "", "Scene PLY file")
	flagViews   = flag.Int("views", 0, "Number of orbit views")
	flagOut     = flag.String("out", "", "Output directory")
	flagWorkers = flag.Int("workers", 0, "Worker count (0 = all CPUs)")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagWidth > 0 {
		cfg.Render.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Render.Height = *flagHeight
	}
	if *flagMode != "" {
		cfg.Render.Mode = *flagMode
	}
	if *flagShape != "" {
		cfg.Render.Shape = *flagShape
	}
	if *flagPLY != "" {
		cfg.Scene.PLY = *flagPLY
	}
	if *flagViews > 0 {
		cfg.Scene.Camera.Views = *flagViews
	}
	if *flagOut != "" {
		cfg.Output.Dir = *flagOut
	}
	if *flagWorkers > 0 {
		cfg.Render.Workers = *flagWorkers
	}
}
