// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package config loads hero-scout settings from a YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/confighub/hero-scout/internal/tree"
)

const (
	// DefaultAPIURL is the platform API endpoint.
	DefaultAPIURL = "https://api.heroku.com"

	// DefaultCallsPerMinute is the polling budget.
	DefaultCallsPerMinute = 30

	// DefaultResyncEvery is how many poll ticks pass between full resyncs.
	DefaultResyncEvery = 5

	// EnvAPIKey overrides api.key.
	EnvAPIKey = "HEROKU_API_KEY"

	// EnvAPIURL overrides api.url.
	EnvAPIURL = "HEROKU_API_URL"
)

type Config struct {
	API      APIConfig      `yaml:"api"`
	Poll     PollConfig     `yaml:"poll"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Log      LogConfig      `yaml:"log"`
}

type APIConfig struct {
	URL            string `yaml:"url"`
	Key            string `yaml:"key"`
	CallsPerMinute int    `yaml:"calls_per_minute"`
	Timeout        string `yaml:"timeout"`
}

type PollConfig struct {
	// ResyncEvery marks the whole tree dirty every N ticks. Negative disables resyncs.
	ResyncEvery int `yaml:"resync_every"`
}

type PipelineConfig struct {
	// AuthoritativeStage, when set, alone decides a pipeline's state.
	AuthoritativeStage string `yaml:"authoritative_stage"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// GetTimeout returns the request timeout, falling back to 30s when unparsable.
func (c *APIConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// DefaultPath returns ~/.hero-scout/config.yaml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".hero-scout", "config.yaml")
}

// Default returns a config with every default applied.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// Load reads path. A missing file yields the defaults; environment overrides apply
// either way.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		applyEnv(cfg)
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyEnv(cfg)
	return cfg, nil
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)
	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.API.URL == "" {
		cfg.API.URL = DefaultAPIURL
	}
	if cfg.API.CallsPerMinute == 0 {
		cfg.API.CallsPerMinute = DefaultCallsPerMinute
	}
	if cfg.API.Timeout == "" {
		cfg.API.Timeout = "30s"
	}
	if cfg.Poll.ResyncEvery == 0 {
		cfg.Poll.ResyncEvery = DefaultResyncEvery
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.API.Key = v
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.API.URL = v
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.API.CallsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("api.calls_per_minute must be positive, got %d", c.API.CallsPerMinute))
	}
	if _, err := time.ParseDuration(c.API.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("api.timeout: %w", err))
	}
	if s := c.Pipeline.AuthoritativeStage; s != "" {
		if _, ok := tree.ParseStage(s); !ok {
			errs = append(errs, fmt.Errorf("pipeline.authoritative_stage: unknown stage %q", s))
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return utilerrors.NewAggregate(errs)
}

// ResyncEvery returns the tick count between resyncs; zero means never.
func (c *Config) ResyncEvery() int {
	return max(c.Poll.ResyncEvery, 0)
}
