package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/spanfix/internal/merge"
	"github.com/ppiankov/spanfix/internal/traceio"
)

// Reconstruct configures span identity reconstruction.
type Reconstruct struct {
	SingleTrack bool `yaml:"single_track"`
}

// Merge configures duplicate span merging.
type Merge struct {
	Style string `yaml:"style"`
}

// Output configures how transformed traces are written.
type Output struct {
	Indent bool   `yaml:"indent"`
	Layout string `yaml:"layout"`
}

// Log configures diagnostic logging on stderr.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config holds all spanfix settings.
type Config struct {
	Reconstruct Reconstruct `yaml:"reconstruct"`
	Merge       Merge       `yaml:"merge"`
	Output      Output      `yaml:"output"`
	Log         Log         `yaml:"log"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Merge: Merge{
			Style: string(merge.StyleCollapse),
		},
		Output: Output{
			Indent: true,
			Layout: string(traceio.LayoutAuto),
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath returns ~/.spanfix/config.yaml, or "" when the home
// directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".spanfix", "config.yaml")
}

// LoadConfig loads settings from a YAML file.
// Empty path falls back to ~/.spanfix/config.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
		if path == "" {
			return DefaultConfig(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if _, err := merge.ParseStyle(c.Merge.Style); err != nil {
		result = multierror.Append(result, fmt.Errorf("merge.style: %w", err))
	}
	if _, err := traceio.ParseLayout(c.Output.Layout); err != nil {
		result = multierror.Append(result, fmt.Errorf("output.layout: %w", err))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		result = multierror.Append(result, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("log.format: unknown format %q (valid: console, json)", c.Log.Format))
	}
	return result.ErrorOrNil()
}

// MergeStyle returns the parsed merge style. Call Validate first.
func (c *Config) MergeStyle() merge.Style {
	s, _ := merge.ParseStyle(c.Merge.Style)
	return s
}

// OutputLayout returns the parsed output layout. Call Validate first.
func (c *Config) OutputLayout() traceio.Layout {
	l, _ := traceio.ParseLayout(c.Output.Layout)
	return l
}
