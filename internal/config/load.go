package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/gsplat/pkg/splat"
)

// Load loads configuration with priority: defaults < file < flags.
func Load() (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Try to load from file (explicit path takes priority)
	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	// Apply CLI flags (highest priority)
	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that the pipeline cannot default.
func (c *Config) Validate() error {
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return fmt.Errorf("render size %dx%d must be positive", c.Render.Width, c.Render.Height)
	}
	if _, err := c.Render.Options(); err != nil {
		return err
	}
	if _, err := splat.ParseCameraModel(c.Scene.Camera.Model); err != nil {
		return err
	}
	if fov := c.Scene.Camera.FOV; fov <= 0 || fov >= 180 {
		return fmt.Errorf("camera fov %v must be inside (0, 180) degrees", fov)
	}
	if c.Scene.Camera.Views <= 0 {
		return fmt.Errorf("camera views must be positive, got %d", c.Scene.Camera.Views)
	}
	if c.Scene.PLY == "" && c.Scene.RandomCount <= 0 {
		return fmt.Errorf("no ply file and no random primitives")
	}
	switch c.Output.Format {
	case "png", "bmp":
	default:
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}
	return nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./gsplat.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "gsplat")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "gsplat")
	default: // Linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "gsplat")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "gsplat")
	}
}

// loadFromFile loads config from a YAML file, merging with existing values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
