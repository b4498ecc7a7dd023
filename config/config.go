// Package config defines the server configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/seringal/tapping-engine/tapping"
)

// Config is the top-level configuration.
type Config struct {
	Server       ServerConfig   `json:"server" yaml:"server"`
	DatabasePath string         `json:"database_path" yaml:"database_path"`
	LogLevel     string         `json:"log_level" yaml:"log_level"`
	LogFormat    string         `json:"log_format" yaml:"log_format"` // "text" or "json"
	Timezone     string         `json:"timezone" yaml:"timezone"`     // IANA name used for "today"
	RecoveryDays int            `json:"recovery_days" yaml:"recovery_days"`
	Roster       tapping.Roster `json:"roster,omitempty" yaml:"roster"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr           string   `json:"addr" yaml:"addr"` // listen address, e.g., ":8080"
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:8080"},
		},
		DatabasePath: "seringal.db",
		LogLevel:     "info",
		LogFormat:    "text",
		Timezone:     "America/Rio_Branco",
		RecoveryDays: tapping.DefaultRecoveryDays,
		Roster:       tapping.DefaultRoster(),
	}
}

// Load reads a YAML config file and returns the parsed configuration.
// Keys absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.RecoveryDays < 1 {
		return fmt.Errorf("recovery_days must be at least 1, got %d", c.RecoveryDays)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, a := range c.Roster {
		if a.WorkerID == "" {
			return fmt.Errorf("roster entry %q has no worker_id", a.Name)
		}
		for _, s := range a.Sections {
			if seen[string(s.Code)] {
				return fmt.Errorf("section %s assigned twice", s.Code)
			}
			seen[string(s.Code)] = true
		}
	}
	return nil
}

// Location resolves Timezone. Empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c *Config) Logger() *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log_level %q: %w", s, err)
	}
	return level, nil
}
