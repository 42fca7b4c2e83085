// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global GantryConfig
	once   sync.Once
)

// Load ensures the config is loaded into the Global variable. An
// explicit path wins over the GANTRY_CONFIG environment variable, which
// wins over ~/.gantry/gantry.yaml. The first run creates the default
// file when none exists.
func Load(path string) error {
	var err error
	once.Do(func() {
		err = loadInternal(path)
	})
	return err
}

func loadInternal(path string) error {
	configPath, err := resolvePath(path)
	if err != nil {
		return err
	}
	// create it if it doesn't exist
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf("First run detected, creating the config at %s\n", configPath)
		if err := createDefault(configPath); err != nil {
			return err
		}
	}
	// read the file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read the config file: %w", err)
	}
	// parse over the defaults so a sparse file keeps sensible values
	Global = DefaultConfig()
	if err = yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("failed to parse the config file %s: %w", configPath, err)
	}
	return Global.Validate()
}

// resolvePath picks the config file location: the explicit path, then
// GANTRY_CONFIG, then ~/.gantry/gantry.yaml.
func resolvePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if env := os.Getenv("GANTRY_CONFIG"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".gantry", "gantry.yaml"), nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	// 0600: the file may end up holding the client secret.
	return os.WriteFile(path, []byte(defaultConfigFile), 0600)
}

// defaultConfigFile is the commented template written on first run. Its
// values must stay in sync with DefaultConfig.
const defaultConfigFile = `# gantry configuration

# APS app credentials for two-legged auth. Leave blank to use the
# APS_CLIENT_ID / APS_CLIENT_SECRET / APS_ACCOUNT_ID environment
# variables instead.
credentials:
  client_id: ""
  client_secret: ""
  account_id: ""

# Vendor API endpoint and client-side request pacing.
api:
  base_url: "https://developer.api.autodesk.com"
  rate_limit: 10 # requests per second
  burst: 5

# Defaults for bulk runs; flags override these per invocation.
bulk:
  concurrency: 10 # parallel project mutations (max 50)
  max_retries: 5
  base_delay: 1s
  max_delay: 60s

# Where operation records are kept so interrupted runs can resume.
state:
  dir: ~/.gantry/operations

# OpenTelemetry exporters: otlp, stdout, or none.
telemetry:
  trace_exporter: none
  metric_exporter: none
  otlp_endpoint: localhost:4317

# Diagnostic logging (written to stderr, never stdout).
log:
  level: warn # debug, info, warn, error
  format: text # text or json
`
