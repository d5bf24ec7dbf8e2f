// Package config provides YAML configuration loading and validation for the
// fswatch command.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tripwire/fswatch/internal/filter"
)

// Config is the top-level configuration structure. Every field can also be
// set on the command line; flags win over the file.
type Config struct {
	// Directory is the path to watch. Usually given as the positional
	// argument instead.
	Directory string `yaml:"directory"`

	// Recursive extends the watch to every directory beneath Directory.
	Recursive bool `yaml:"recursive"`

	// Level selects a preset event set: "default", "verbose", or "all".
	// Mutually exclusive with Events.
	Level string `yaml:"level"`

	// Events is an explicit list of event names ("Created", "IN_MODIFY").
	// Mutually exclusive with Level.
	Events []string `yaml:"events"`

	// LogLevel sets the minimum diagnostic log severity: "debug", "info",
	// "warn", or "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// Format is the event output format, "text" or "json". Defaults to
	// "text".
	Format string `yaml:"format"`

	// Color controls text styling: "auto", "always", or "never". Defaults
	// to "auto", which styles only when stdout is a terminal.
	Color string `yaml:"color"`

	// HealthAddr is the listen address for the /healthz HTTP server
	// (e.g. "127.0.0.1:9000"). Empty disables the server.
	HealthAddr string `yaml:"health_addr"`

	// MoveCacheSize bounds the number of unpaired rename cookies kept for
	// correlating moves. Defaults to 1024.
	MoveCacheSize int `yaml:"move_cache_size"`
}

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

var validFormats = map[string]bool{
	"text": true,
	"json": true,
}

var validColors = map[string]bool{
	"auto":   true,
	"always": true,
	"never":  true,
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates every field. All validation failures are reported
// together.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

// applyDefaults fills in zero-value optional fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Color == "" {
		cfg.Color = "auto"
	}
	if cfg.MoveCacheSize == 0 {
		cfg.MoveCacheSize = 1024
	}
}

// Validate checks enumerated fields and the event selection. It is exported
// so the command can re-check a configuration after applying flag overrides.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := validLogLevels[strings.ToLower(c.LogLevel)]; !ok {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", c.LogLevel))
	}
	if !validFormats[c.Format] {
		errs = append(errs, fmt.Errorf("format %q must be one of: text, json", c.Format))
	}
	if !validColors[c.Color] {
		errs = append(errs, fmt.Errorf("color %q must be one of: auto, always, never", c.Color))
	}
	if c.MoveCacheSize < 0 {
		errs = append(errs, fmt.Errorf("move_cache_size %d must not be negative", c.MoveCacheSize))
	}
	if c.Level != "" && c.Events != nil {
		errs = append(errs, errors.New("level and events are mutually exclusive"))
	}
	if _, err := c.Filter(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Filter builds the event filter the configuration selects: the explicit
// Events list when present, otherwise the Level preset. A present but empty
// Events list is rejected with filter.ErrEmptySelection.
func (c *Config) Filter() (*filter.Set, error) {
	if c.Events != nil {
		return filter.Explicit(c.Events)
	}
	level, err := filter.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	return filter.Preset(level), nil
}

// SlogLevel maps LogLevel onto a slog.Level, falling back to info.
func (c *Config) SlogLevel() slog.Level {
	if l, ok := validLogLevels[strings.ToLower(c.LogLevel)]; ok {
		return l
	}
	return slog.LevelInfo
}
