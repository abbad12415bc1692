// ABOUTME: YAML file configuration for the watchtower CLI, with built-in defaults.
// ABOUTME: An explicit -config path must load; the default path is optional and may be absent.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389-research/watchtower/runstate"
	"github.com/2389-research/watchtower/stream"
	"github.com/2389-research/watchtower/treeviz"
)

// defaultServerURL points at the local replay server, so "watchtower -demo"
// in one terminal and "watchtower <run-id>" in another work with no flags.
const defaultServerURL = "http://127.0.0.1:7173"

// FileConfig is the on-disk configuration shape. Durations accept values
// like "30s" or "10m".
type FileConfig struct {
	ServerURL    string        `yaml:"server_url"`
	Token        string        `yaml:"token"`
	GroupWindow  time.Duration `yaml:"group_window"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Backoff      BackoffConfig `yaml:"backoff"`
}

// BackoffConfig mirrors the stream reconnect policy in the config file.
type BackoffConfig struct {
	Base     time.Duration `yaml:"base"`
	Max      time.Duration `yaml:"max"`
	Attempts int           `yaml:"attempts"`
}

// defaultFileConfig returns the built-in defaults: the local replay server
// address and the standard grouping, polling, and backoff parameters.
func defaultFileConfig() FileConfig {
	policy := stream.DefaultReconnectPolicy()
	return FileConfig{
		ServerURL:    defaultServerURL,
		GroupWindow:  runstate.DefaultGroupWindow,
		PollInterval: treeviz.DefaultPollInterval,
		Backoff: BackoffConfig{
			Base:     policy.BaseDelay,
			Max:      policy.MaxDelay,
			Attempts: policy.MaxAttempts,
		},
	}
}

// loadConfig resolves the effective file config. An explicit path must
// exist and parse; the default path (~/.config/watchtower/config.yaml) is
// optional. Keys absent from the file keep their defaults.
func loadConfig(explicitPath string) (FileConfig, error) {
	cfg := defaultFileConfig()

	path := explicitPath
	if path == "" {
		dir, err := defaultConfigDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(dir, "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if explicitPath == "" && os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return normalizeFileConfig(cfg), nil
}

// normalizeFileConfig backfills defaults for zero or negative values, so a
// partial file never produces a dead poller or a zero-width group window.
func normalizeFileConfig(cfg FileConfig) FileConfig {
	def := defaultFileConfig()
	if cfg.ServerURL == "" {
		cfg.ServerURL = def.ServerURL
	}
	if cfg.GroupWindow <= 0 {
		cfg.GroupWindow = def.GroupWindow
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff.Base = def.Backoff.Base
	}
	if cfg.Backoff.Max <= 0 {
		cfg.Backoff.Max = def.Backoff.Max
	}
	if cfg.Backoff.Attempts <= 0 {
		cfg.Backoff.Attempts = def.Backoff.Attempts
	}
	return cfg
}
