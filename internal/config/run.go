// Package config loads run configuration from JSON files. A loaded
// config is a value object: fields omitted from the file fall back to
// defaults through the Get accessors, and nothing mutates a config
// after Load returns.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/demworks/waffle/internal/grid"
	"github.com/demworks/waffle/internal/region"
)

// RunConfig is the root configuration for a gridding or uncertainty
// run. Pointer fields distinguish "unset" from zero, so partial
// configs are safe.
type RunConfig struct {
	// Target extent and resolution
	Region   *string  `json:"region,omitempty"` // "west/east/south/north[/zmin/zmax]"
	CellSize *float64 `json:"cell_size,omitempty"`
	Nodata   *float64 `json:"nodata,omitempty"`

	// Gridding params
	Mode           *string  `json:"mode,omitempty"` // count, mean or presence
	WeightOverride *float64 `json:"weight_override,omitempty"`
	ChunkCells     *int     `json:"chunk_cells,omitempty"` // 0: grid in one piece
	OverwriteCache *bool    `json:"overwrite_cache,omitempty"`

	// Uncertainty params
	Percentile      *float64 `json:"percentile,omitempty"`
	Sims            *int     `json:"sims,omitempty"`
	ChunkLevel      *float64 `json:"chunk_level,omitempty"`
	MaxTilesPerZone *int     `json:"max_tiles_per_zone,omitempty"`
	Seed            *int64   `json:"seed,omitempty"`

	// Archive and persistence params
	ArchiveDir *string `json:"archive_dir,omitempty"`
	DBPath     *string `json:"db_path,omitempty"`
	Workers    *int    `json:"workers,omitempty"`
}

// Empty returns a RunConfig with all fields unset.
func Empty() *RunConfig {
	return &RunConfig{}
}

// Load reads and validates a RunConfig from a JSON file.
func Load(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every set field.
func (c *RunConfig) Validate() error {
	if c.Region != nil {
		if _, err := region.Parse(*c.Region); err != nil {
			return fmt.Errorf("invalid region %q: %w", *c.Region, err)
		}
	}
	if c.CellSize != nil && *c.CellSize <= 0 {
		return fmt.Errorf("cell_size must be positive, got %g", *c.CellSize)
	}
	if c.Mode != nil {
		switch *c.Mode {
		case "count", "mean", "presence":
		default:
			return fmt.Errorf("mode must be count, mean or presence, got %q", *c.Mode)
		}
	}
	if c.WeightOverride != nil && *c.WeightOverride <= 0 {
		return fmt.Errorf("weight_override must be positive, got %g", *c.WeightOverride)
	}
	if c.ChunkCells != nil && *c.ChunkCells < 0 {
		return fmt.Errorf("chunk_cells must be non-negative, got %d", *c.ChunkCells)
	}
	if c.Percentile != nil && (*c.Percentile <= 0 || *c.Percentile >= 100) {
		return fmt.Errorf("percentile must be between 0 and 100, got %g", *c.Percentile)
	}
	if c.Sims != nil && *c.Sims <= 0 {
		return fmt.Errorf("sims must be positive, got %d", *c.Sims)
	}
	if c.ChunkLevel != nil && *c.ChunkLevel <= 0 {
		return fmt.Errorf("chunk_level must be positive, got %g", *c.ChunkLevel)
	}
	if c.MaxTilesPerZone != nil && *c.MaxTilesPerZone <= 0 {
		return fmt.Errorf("max_tiles_per_zone must be positive, got %d", *c.MaxTilesPerZone)
	}
	if c.Workers != nil && *c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", *c.Workers)
	}
	return nil
}

// ParsedRegion returns the parsed target region. ok is false when no
// region is configured.
func (c *RunConfig) ParsedRegion() (r region.Region, ok bool, err error) {
	if c.Region == nil || *c.Region == "" {
		return region.Region{}, false, nil
	}
	r, err = region.Parse(*c.Region)
	if err != nil {
		return region.Region{}, false, err
	}
	return r, true, nil
}

// GetCellSize returns the cell size, or 0 when unset.
func (c *RunConfig) GetCellSize() float64 {
	if c.CellSize == nil {
		return 0
	}
	return *c.CellSize
}

// GetNodata returns the nodata value or the standard default.
func (c *RunConfig) GetNodata() float64 {
	if c.Nodata == nil {
		return grid.DefaultNodata
	}
	return *c.Nodata
}

// GetMode returns the gridding mode or the default.
func (c *RunConfig) GetMode() string {
	if c.Mode == nil {
		return "mean"
	}
	return *c.Mode
}

// GetChunkCells returns the gridding tile size in cells; 0 disables
// chunking.
func (c *RunConfig) GetChunkCells() int {
	if c.ChunkCells == nil {
		return 0
	}
	return *c.ChunkCells
}

// GetOverwriteCache reports whether extent sidecars are regenerated.
func (c *RunConfig) GetOverwriteCache() bool {
	if c.OverwriteCache == nil {
		return false
	}
	return *c.OverwriteCache
}

// GetPercentile returns the uncertainty percentile or the default.
func (c *RunConfig) GetPercentile() float64 {
	if c.Percentile == nil {
		return 95
	}
	return *c.Percentile
}

// GetSims returns the simulation count or the default.
func (c *RunConfig) GetSims() int {
	if c.Sims == nil {
		return 10
	}
	return *c.Sims
}

// GetChunkLevel returns the uncertainty chunk level or the default.
func (c *RunConfig) GetChunkLevel() float64 {
	if c.ChunkLevel == nil {
		return 4
	}
	return *c.ChunkLevel
}

// GetMaxTilesPerZone returns the per-zone tile cap or the default.
func (c *RunConfig) GetMaxTilesPerZone() int {
	if c.MaxTilesPerZone == nil {
		return 25
	}
	return *c.MaxTilesPerZone
}

// GetSeed returns the RNG seed or the default.
func (c *RunConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetDBPath returns the run-store path or the default.
func (c *RunConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "waffle.db"
	}
	return *c.DBPath
}

// GetWorkers returns the worker count or the default.
func (c *RunConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}
