// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for expiry.
package config

import (
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/expiry/internal/settings"
	"github.com/flemzord/expiry/internal/telemetry"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Log controls the process logger.
	Log LogConfig `yaml:"log"`

	// Tracing configures OpenTelemetry trace export. Off when no endpoint is set.
	Tracing telemetry.Config `yaml:"tracing"`

	// Settings is the configuration store consulted when content is marked
	// temporary. It is swapped in place on reload.
	Settings settings.Settings `yaml:"settings"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "store.sqlite").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level" json:"level"`

	// Format is "text" (default) or "json".
	Format string `yaml:"format" json:"format"`
}

// SlogLevel converts Level to a slog.Level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.Level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
