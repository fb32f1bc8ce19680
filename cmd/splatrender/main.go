// splatrender renders a Gaussian splat scene from an orbit of cameras.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/gsplat/internal/config"
	"github.com/Faultbox/gsplat/internal/logger"
)

var flagSaveConfig = flag.Bool("save-config", false, "Write the effective config next to the renders")

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	opts := logger.Options{
		Level:   cfg.Logging.Level,
		Console: os.Stderr,
		JSON:    cfg.Logging.JSON,
	}
	if cfg.Logging.LogFile != "" {
		opts.File = logger.DefaultFileConfig(cfg.Logging.LogFile)
	}
	if err := logger.InitWithOptions(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== gsplat renderer ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Render.Timeout)
	defer cancel()

	paths, err := run(ctx, cfg)
	if err != nil {
		logger.Error("render failed", zap.Error(err))
		os.Exit(1)
	}

	if *flagSaveConfig {
		path := filepath.Join(cfg.Output.Dir, "gsplat.yaml")
		if err := cfg.SaveTo(path); err != nil {
			logger.Error("failed to save config", zap.Error(err))
			os.Exit(1)
		}
		logger.Info("config saved", zap.String("path", path))
	}

	logger.Info("render finished", zap.Int("files", len(paths)))
}
