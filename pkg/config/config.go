// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the client configuration file.
//
// The file is YAML, conventionally at ~/.config/chatstream/config.yaml.
// Flags and environment variables override file values at the CLI layer;
// this package only handles the file itself.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the conventional config file location.
const DefaultPath = "~/.config/chatstream/config.yaml"

// configValidate is the validator instance for config files.
var configValidate = validator.New()

// =============================================================================
// Config
// =============================================================================

// Config is the client configuration.
//
// # Fields
//
//   - BaseURL: Required. Chat service root URL.
//   - Token: Static bearer credential. Mutually exclusive with TokenFile;
//     TokenFile wins when both are set.
//   - TokenFile: Path to a credential file watched for rotation.
//   - TimeoutSeconds: Per-request timeout; zero uses the client default.
//   - RequestsPerSecond: REST rate limit; zero means unlimited.
//   - PageLimit: History page size; zero uses the pager default.
//   - LogLevel: debug, info, warn, or error. Defaults to info.
//   - LogFormat: text or json. Defaults to text.
type Config struct {
	BaseURL           string  `yaml:"base_url" validate:"required,url"`
	Token             string  `yaml:"token"`
	TokenFile         string  `yaml:"token_file"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" validate:"gte=0"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	PageLimit         int     `yaml:"page_limit" validate:"gte=0,lte=100"`
	LogLevel          string  `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat         string  `yaml:"log_format" validate:"omitempty,oneof=text json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL:   "http://localhost:8080",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Timeout returns TimeoutSeconds as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate checks the configuration against its rules.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// =============================================================================
// Loading
// =============================================================================

// Load reads and validates the config file at path.
//
// # Inputs
//
//   - path: File path; "~/" expands to the home directory. An empty path
//     uses DefaultPath.
//
// # Outputs
//
//   - *Config: The merged configuration (defaults + file).
//   - error: Non-nil on read, parse, or validation failure. A missing
//     file at the default location is not an error; defaults apply.
func Load(path string) (*Config, error) {
	usingDefault := path == ""
	if usingDefault {
		path = DefaultPath
	}
	path = ExpandPath(path)

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && usingDefault {
			return &cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ExpandPath expands a leading "~/" to the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
