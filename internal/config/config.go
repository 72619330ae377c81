// Package config loads pipeline configuration from TOML with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalid is returned for any configuration that must be rejected before a run starts.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full pipeline configuration.
type Config struct {
	Series    SeriesConfig    `toml:"series"`
	Features  FeaturesConfig  `toml:"features"`
	Ranges    RangesConfig    `toml:"ranges"`
	Normalize NormalizeConfig `toml:"normalize"`
	Optimizer OptimizerConfig `toml:"optimizer"`
	Storage   StorageConfig   `toml:"storage"`
	LogLevel  string          `toml:"log_level"`
}

// SeriesConfig names the source series and where its bars come from.
type SeriesConfig struct {
	Name   string `toml:"name"`   // prefix of every derived table
	Source string `toml:"source"` // csv | parquet | postgres | clickhouse; empty picks by file extension
	Path   string `toml:"path"`   // file path for csv/parquet sources
}

// AverageConfig defines one moving average and its smoothing sub-periods.
type AverageConfig struct {
	Period    int   `toml:"period"`
	Smoothing []int `toml:"smoothing"`
}

// FeaturesConfig drives the source feature builder.
type FeaturesConfig struct {
	Average      string          `toml:"average"` // sma | wma | ema
	Speed        string          `toml:"speed"`   // diff | regression
	SpeedWindow  int             `toml:"speed_window"`
	Displacement bool            `toml:"displacement"`
	Averages     []AverageConfig `toml:"averages"`
}

// RangesConfig lists the window periods of the range extractor.
type RangesConfig struct {
	Periods []int `toml:"periods"`
}

// NormalizeConfig drives the continuous and discrete passes.
type NormalizeConfig struct {
	StdDevMultiplier float64  `toml:"stddev_multiplier"`
	Segments         int      `toml:"segments"`
	Scale            int      `toml:"scale"`
	KeyColumns       []string `toml:"key_columns"`
}

// OptimizerConfig holds curve-fit parameters.
type OptimizerConfig struct {
	LearningRate  float64 `toml:"learning_rate"`
	MaxError      float64 `toml:"max_error"`
	MaxIterations int     `toml:"max_iterations"`
}

// StorageConfig selects the backend of the derived tables.
type StorageConfig struct {
	Backend       string `toml:"backend"` // memory | postgres | sqlite
	PostgresDSN   string `toml:"postgres_dsn"`
	ClickhouseDSN string `toml:"clickhouse_dsn"`
	SQLitePath    string `toml:"sqlite_path"`
	BatchSize     int    `toml:"batch_size"`

	// ClickhouseRanges keeps the range table in ClickHouse whatever the backend.
	ClickhouseRanges bool `toml:"clickhouse_ranges"`
}

// Speed modes.
const (
	SpeedDiff       = "diff"
	SpeedRegression = "regression"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Series: SeriesConfig{Name: "series", Source: "csv"},
		Features: FeaturesConfig{
			Average:     "sma",
			Speed:       SpeedDiff,
			SpeedWindow: 3,
		},
		Normalize: NormalizeConfig{
			StdDevMultiplier: 2.0,
			Segments:         20,
			Scale:            2,
		},
		Optimizer: OptimizerConfig{
			LearningRate:  0.1,
			MaxError:      1e-9,
			MaxIterations: 200,
		},
		Storage:  StorageConfig{Backend: "memory", BatchSize: 500},
		LogLevel: "info",
	}
}

// Load reads a TOML file on top of Default, applies env overrides and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML bytes on top of Default, applies env overrides and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides connection settings from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("MSL_POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("MSL_CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv("MSL_SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("MSL_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("MSL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks every field that can be checked without building the feature schema.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Series.Name) == "" {
		return invalid("series.name is empty")
	}
	for _, r := range c.Series.Name {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return invalid("series.name %q must match [a-z0-9_]+", c.Series.Name)
		}
	}

	switch c.Series.Source {
	case "csv", "parquet", "postgres", "clickhouse":
	case "":
		if c.Series.Path == "" {
			return invalid("series.source is empty and series.path gives no file extension")
		}
	default:
		return invalid("series.source %q (use csv, parquet, postgres, clickhouse)", c.Series.Source)
	}

	switch c.Features.Average {
	case "sma", "wma", "ema":
	default:
		return invalid("features.average %q (use sma, wma, ema)", c.Features.Average)
	}
	switch c.Features.Speed {
	case SpeedDiff:
	case SpeedRegression:
		if c.Features.SpeedWindow < 2 {
			return invalid("features.speed_window must be >= 2 for regression, got %d", c.Features.SpeedWindow)
		}
	default:
		return invalid("features.speed %q (use diff, regression)", c.Features.Speed)
	}
	if len(c.Features.Averages) == 0 {
		return invalid("features.averages is empty")
	}
	seen := make(map[int]bool, len(c.Features.Averages))
	for _, a := range c.Features.Averages {
		if a.Period <= 0 {
			return invalid("average period must be > 0, got %d", a.Period)
		}
		if seen[a.Period] {
			return invalid("duplicate average period %d", a.Period)
		}
		seen[a.Period] = true
		for _, s := range a.Smoothing {
			if s <= 0 {
				return invalid("smoothing period of average %d must be > 0, got %d", a.Period, s)
			}
		}
	}

	for _, p := range c.Ranges.Periods {
		if p <= 0 {
			return invalid("range period must be > 0, got %d", p)
		}
	}

	n := c.Normalize
	if !(n.StdDevMultiplier > 0) || math.IsInf(n.StdDevMultiplier, 0) {
		return invalid("normalize.stddev_multiplier must be > 0, got %v", n.StdDevMultiplier)
	}
	if n.Segments < 2 {
		return invalid("normalize.segments must be >= 2, got %d", n.Segments)
	}
	if n.Scale < 0 || n.Scale > 9 {
		return invalid("normalize.scale must be in [0,9], got %d", n.Scale)
	}
	if len(n.KeyColumns) == 0 {
		return invalid("normalize.key_columns is empty")
	}

	o := c.Optimizer
	if !(o.LearningRate > 0) || math.IsInf(o.LearningRate, 0) {
		return invalid("optimizer.learning_rate must be > 0, got %v", o.LearningRate)
	}
	if !(o.MaxError >= 0) || math.IsInf(o.MaxError, 0) {
		return invalid("optimizer.max_error must be >= 0, got %v", o.MaxError)
	}
	if o.MaxIterations <= 0 {
		return invalid("optimizer.max_iterations must be > 0, got %d", o.MaxIterations)
	}

	switch c.Storage.Backend {
	case "memory", "postgres", "sqlite":
	default:
		return invalid("storage.backend %q (use memory, postgres, sqlite)", c.Storage.Backend)
	}
	if c.Storage.BatchSize <= 0 {
		return invalid("storage.batch_size must be > 0, got %d", c.Storage.BatchSize)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
