// Package config loads egx settings from YAML or CUE files.
//
// A file only needs the fields it changes; everything else keeps the value
// from Default. Durations are written as Go duration strings ("90s").
//
//	extractor: ilp
//	workers: 8
//	ilp:
//	  bound: 1.5
//	  solver:
//	    path: cbc_solver
//	    time_limit: 2m
//	store:
//	  path: runs.db
//	trace:
//	  file: spans.jsonl
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/egx/internal/extract"
	"github.com/roach88/egx/internal/ilp"
)

// Config is the full set of egx settings.
type Config struct {
	// Extractor is the registry name used by `egx extract`.
	Extractor string `yaml:"extractor"`

	// Workers and BatchSize tune the parallel extractors. Zero means the
	// built-in default.
	Workers   int `yaml:"workers"`
	BatchSize int `yaml:"batch_size"`

	// Passes is the number of outer passes of the parallel greedy-DAG
	// extractor; Seed fixes its shuffle order. Zero picks the default.
	Passes int    `yaml:"passes"`
	Seed   uint64 `yaml:"seed"`

	// Dedup collapses nodes with identical children before extracting.
	Dedup bool `yaml:"dedup"`

	ILP     ilp.Config    `yaml:"ilp"`
	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
	Trace   TraceConfig   `yaml:"trace"`
}

// StoreConfig locates the run store. An empty path disables recording.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig names the Prometheus textfile written after each command.
// Empty disables export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// TraceConfig names the file spans are exported to as JSON lines. Empty
// disables tracing.
type TraceConfig struct {
	File string `yaml:"file"`
}

// LogConfig sets the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Extractor: "greedy-dag",
		BatchSize: extract.DefaultBatchSize,
		Passes:    extract.DefaultGreedyPasses,
		ILP:       ilp.DefaultConfig(),
		Log:       LogConfig{Level: "info"},
	}
}

// ExtractOptions returns the heuristic registry options.
func (c Config) ExtractOptions() extract.Options {
	return extract.Options{
		Workers:      c.Workers,
		BatchSize:    c.BatchSize,
		GreedyPasses: c.Passes,
		Seed:         c.Seed,
	}
}

// Validate checks every field that has a restricted range.
func (c Config) Validate() error {
	if c.Extractor == "" {
		return fmt.Errorf("extractor is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch_size must be >= 0, got %d", c.BatchSize)
	}
	if c.Passes < 0 {
		return fmt.Errorf("passes must be >= 0, got %d", c.Passes)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if err := c.ILP.Validate(); err != nil {
		return fmt.Errorf("ilp: %w", err)
	}
	return nil
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
