// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the bridge daemon.
//
// Configuration is loaded from a single YAML file specified by:
//   - the LSLBRIDGE_CONFIG environment variable, or
//   - the --config flag passed to the daemon.
//
// There are no fallbacks or automatic discovery; a missing file is an
// error, so a running daemon's configuration is always auditable.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "LSLBRIDGE_CONFIG"

// Config is the daemon configuration.
type Config struct {
	// StateDir holds the session state file and script upload
	// scratch files. Required.
	StateDir string `yaml:"state_dir"`

	// ScriptResource is the path to the bridge LSL script template
	// containing the auth-token placeholder. Required.
	ScriptResource string `yaml:"script_resource"`

	// SettingsFile is the per-account settings store (JSONC).
	// Required.
	SettingsFile string `yaml:"settings_file"`

	// HTTPTimeout bounds each outbound bridge POST and capability
	// upload. Defaults to 30s.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`
}

// Load reads and validates the config file at path. If path is empty,
// the LSLBRIDGE_CONFIG environment variable is consulted.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file specified (set %s or pass --config)", EnvVar)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	config.applyDefaults()
	return config, nil
}

func (c *Config) validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	if c.ScriptResource == "" {
		return fmt.Errorf("script_resource is required")
	}
	if c.SettingsFile == "" {
		return fmt.Errorf("settings_file is required")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
