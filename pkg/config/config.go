// Package config handles graphrule configuration via YAML files and
// environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--log-level, etc.)
//  2. Environment variables (GRAPHRULE_*)
//  3. Config file (graphrule.yaml)
//  4. Built-in defaults
//
// Environment Variables (all use the GRAPHRULE_ prefix):
//
// Engine:
//   - GRAPHRULE_MAX_PATH_DEPTH=10
//   - GRAPHRULE_MAX_PATH_RESULTS=1000
//   - GRAPHRULE_CASE_SENSITIVE_LABELS=false
//   - GRAPHRULE_COERCE_NUMERICS=false
//   - GRAPHRULE_ID_GENERATOR=counter|uuid
//
// Logging:
//   - GRAPHRULE_LOG_LEVEL=info
//   - GRAPHRULE_LOG_FORMAT=text|json
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/graphrule/pkg/rules"
)

// Config holds all graphrule configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig tunes matching and execution.
type EngineConfig struct {
	// MaxPathDepth caps the number of edges on any matched path.
	MaxPathDepth int `yaml:"max_path_depth"`

	// MaxPathResults truncates path enumeration per pattern.
	MaxPathResults int `yaml:"max_path_results"`

	// CaseSensitiveLabels switches label/type matching to exact compare.
	CaseSensitiveLabels bool `yaml:"case_sensitive_labels"`

	// CoerceNumerics lets numeric strings compare equal to numbers.
	CoerceNumerics bool `yaml:"coerce_numerics"`

	// IDGenerator selects node ID allocation: "counter" or "uuid".
	IDGenerator string `yaml:"id_generator"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxPathDepth:   rules.DefaultMaxPathDepth,
			MaxPathResults: rules.DefaultMaxPathResults,
			IDGenerator:    "counter",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile reads a YAML config file over the defaults, then applies
// environment overrides.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv returns defaults plus environment overrides.
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GRAPHRULE_MAX_PATH_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.MaxPathDepth = n
		}
	}
	if v := os.Getenv("GRAPHRULE_MAX_PATH_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.MaxPathResults = n
		}
	}
	if v := os.Getenv("GRAPHRULE_CASE_SENSITIVE_LABELS"); v != "" {
		c.Engine.CaseSensitiveLabels = isTrue(v)
	}
	if v := os.Getenv("GRAPHRULE_COERCE_NUMERICS"); v != "" {
		c.Engine.CoerceNumerics = isTrue(v)
	}
	if v := os.Getenv("GRAPHRULE_ID_GENERATOR"); v != "" {
		c.Engine.IDGenerator = strings.ToLower(v)
	}
	if v := os.Getenv("GRAPHRULE_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("GRAPHRULE_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Engine.MaxPathDepth <= 0 {
		return fmt.Errorf("engine.max_path_depth must be positive, got %d", c.Engine.MaxPathDepth)
	}
	if c.Engine.MaxPathResults <= 0 {
		return fmt.Errorf("engine.max_path_results must be positive, got %d", c.Engine.MaxPathResults)
	}
	switch c.Engine.IDGenerator {
	case "", "counter", "uuid":
	default:
		return fmt.Errorf("engine.id_generator must be \"counter\" or \"uuid\", got %q", c.Engine.IDGenerator)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}

// EngineOptions converts the configuration into engine options.
func (c *Config) EngineOptions() rules.Options {
	opts := rules.Options{
		MaxPathDepth:        c.Engine.MaxPathDepth,
		MaxPathResults:      c.Engine.MaxPathResults,
		CaseSensitiveLabels: c.Engine.CaseSensitiveLabels,
		CoerceNumerics:      c.Engine.CoerceNumerics,
	}
	if c.Engine.IDGenerator == "uuid" {
		opts.IDGenerator = rules.UUIDIDs()
	}
	return opts
}

func isTrue(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
