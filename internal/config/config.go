// Package config defines the application configuration, its defaults, and
// the viper plumbing that loads it from files and environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration object.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	Solver   SolverConfig   `mapstructure:"solver" yaml:"solver"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// AnalysisConfig bounds and tunes the propagation engine.
type AnalysisConfig struct {
	MaxDepth        int           `mapstructure:"max_depth" yaml:"max_depth"`
	MaxModules      int           `mapstructure:"max_modules" yaml:"max_modules"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ConfidenceDecay float64       `mapstructure:"confidence_decay" yaml:"confidence_decay"`
	DecayByEdgeKind bool          `mapstructure:"decay_by_edge_kind" yaml:"decay_by_edge_kind"`
	CountLazyEdges  bool          `mapstructure:"count_lazy_edges" yaml:"count_lazy_edges"`
	Workers         int           `mapstructure:"workers" yaml:"workers"`
	// Catalog optionally points at a YAML overlay extending the built-in
	// source/sink tables.
	Catalog string `mapstructure:"catalog" yaml:"catalog"`
}

// SolverConfig tunes the reachability pruner.
type SolverConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ReportConfig selects the output surface.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"` // json or sarif
	Output string `mapstructure:"output" yaml:"output"` // path, empty for stdout
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "crossflow")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Analysis --
	v.SetDefault("analysis.max_depth", 10)
	v.SetDefault("analysis.max_modules", 500)
	v.SetDefault("analysis.timeout", "30s")
	v.SetDefault("analysis.confidence_decay", 0.9)
	v.SetDefault("analysis.decay_by_edge_kind", false)
	v.SetDefault("analysis.count_lazy_edges", true)
	v.SetDefault("analysis.workers", 8)
	v.SetDefault("analysis.catalog", "")

	// -- Solver --
	v.SetDefault("solver.timeout", "100ms")

	// -- Report --
	v.SetDefault("report.format", "json")
	v.SetDefault("report.output", "")
}

// NewConfigFromViper creates a validated configuration from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Analysis.MaxDepth < 0 {
		return fmt.Errorf("analysis.max_depth must not be negative")
	}
	if c.Analysis.MaxModules <= 0 {
		return fmt.Errorf("analysis.max_modules must be a positive integer")
	}
	if c.Analysis.Workers <= 0 {
		return fmt.Errorf("analysis.workers must be a positive integer")
	}
	if c.Analysis.ConfidenceDecay <= 0 || c.Analysis.ConfidenceDecay > 1 {
		return fmt.Errorf("analysis.confidence_decay must be in (0, 1]")
	}
	switch c.Report.Format {
	case "json", "sarif":
	default:
		return fmt.Errorf("report.format must be json or sarif, got %q", c.Report.Format)
	}
	return nil
}
