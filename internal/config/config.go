// Package config loads the engine's runtime configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/suricates/suitability/internal/domain"
)

// Cleanup modes for temporary artifacts.
const (
	// CleanupKeep leaves every temp artifact on disk.
	CleanupKeep = "keep"
	// CleanupIncremental deletes tracked artifacts after each constraint fold.
	CleanupIncremental = "incremental"
	// CleanupSession purges the whole temp directory after publication.
	CleanupSession = "session"
)

// Config holds the engine's runtime configuration.
type Config struct {
	DBPath       string  `json:"db_path"`
	DataDir      string  `json:"data_dir"`
	TempDir      string  `json:"temp_dir"`
	GridWidth    int     `json:"grid_width"`
	GridHeight   int     `json:"grid_height"`
	ExtentMargin float64 `json:"extent_margin"`
	Cleanup      string  `json:"cleanup"`
	Preview      bool    `json:"preview"`
	PreviewScale int     `json:"preview_scale"`
	LogLevel     string  `json:"log_level"`
}

// Load reads a JSON config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.TempDir == "" && c.DataDir != "" {
		c.TempDir = filepath.Join(c.DataDir, "tmp")
	}
	if c.DBPath == "" && c.DataDir != "" {
		c.DBPath = filepath.Join(c.DataDir, "suitability.db")
	}
	if c.GridWidth == 0 {
		c.GridWidth = 100
	}
	if c.GridHeight == 0 {
		c.GridHeight = 100
	}
	if c.ExtentMargin == 0 {
		c.ExtentMargin = 100
	}
	if c.Cleanup == "" {
		c.Cleanup = CleanupKeep
	}
	if c.PreviewScale == 0 {
		c.PreviewScale = 4
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.DataDir == "" {
		problems = append(problems, "data_dir is required")
	}
	if c.GridWidth < 1 || c.GridHeight < 1 {
		problems = append(problems, "grid dimensions must be positive")
	}
	if c.ExtentMargin < 0 {
		problems = append(problems, "extent_margin must not be negative")
	}
	switch c.Cleanup {
	case CleanupKeep, CleanupIncremental, CleanupSession:
	default:
		problems = append(problems, fmt.Sprintf("cleanup must be one of keep, incremental, session (got %q)", c.Cleanup))
	}
	if c.PreviewScale < 1 {
		problems = append(problems, "preview_scale must be positive")
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}
