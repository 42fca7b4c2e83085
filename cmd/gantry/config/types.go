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
	"time"
)

type GantryConfig struct {
	// Credentials: APS app credentials and the account to administer
	Credentials CredentialsConfig `yaml:"credentials"`

	// API: vendor endpoint and client-side request pacing
	API APIConfig `yaml:"api"`

	// Bulk: concurrency and retry defaults for bulk runs
	Bulk BulkConfig `yaml:"bulk"`

	// State: where operation records live between runs
	State StateConfig `yaml:"state"`

	// Telemetry: OpenTelemetry exporter selection
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Log: diagnostic logging level and format
	Log LogConfig `yaml:"log"`
}

// CredentialsConfig holds the two-legged OAuth app credentials. Empty
// fields fall back to the APS_CLIENT_ID / APS_CLIENT_SECRET /
// APS_ACCOUNT_ID environment variables, so CI can keep secrets out of
// the file entirely.
type CredentialsConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AccountID    string `yaml:"account_id"`
}

// ResolvedClientID returns the configured client id or the
// APS_CLIENT_ID environment variable when the file leaves it empty.
func (c CredentialsConfig) ResolvedClientID() string {
	if c.ClientID != "" {
		return c.ClientID
	}
	return os.Getenv("APS_CLIENT_ID")
}

// ResolvedClientSecret returns the configured client secret or the
// APS_CLIENT_SECRET environment variable when the file leaves it empty.
func (c CredentialsConfig) ResolvedClientSecret() string {
	if c.ClientSecret != "" {
		return c.ClientSecret
	}
	return os.Getenv("APS_CLIENT_SECRET")
}

// ResolvedAccountID returns the configured account id or the
// APS_ACCOUNT_ID environment variable when the file leaves it empty.
func (c CredentialsConfig) ResolvedAccountID() string {
	if c.AccountID != "" {
		return c.AccountID
	}
	return os.Getenv("APS_ACCOUNT_ID")
}

// Validate checks that a usable set of credentials is available from
// the file or the environment. Only commands that talk to the vendor
// API call this; local record management works without credentials.
func (c CredentialsConfig) Validate() error {
	if c.ResolvedClientID() == "" {
		return fmt.Errorf("client id is required: set credentials.client_id or APS_CLIENT_ID")
	}
	if c.ResolvedClientSecret() == "" {
		return fmt.Errorf("client secret is required: set credentials.client_secret or APS_CLIENT_SECRET")
	}
	return nil
}

type APIConfig struct {
	BaseURL   string  `yaml:"base_url"`   // e.g. https://developer.api.autodesk.com
	RateLimit float64 `yaml:"rate_limit"` // requests per second
	Burst     int     `yaml:"burst"`      // short-run burst the pacer tolerates
}

// BulkConfig carries the file defaults for bulk runs. Flags override
// these per invocation. Delays are duration strings ("1s", "500ms").
type BulkConfig struct {
	Concurrency int    `yaml:"concurrency"`
	MaxRetries  int    `yaml:"max_retries"`
	BaseDelay   string `yaml:"base_delay"`
	MaxDelay    string `yaml:"max_delay"`
}

// Delays parses the configured retry delays.
func (b BulkConfig) Delays() (base, max time.Duration, err error) {
	base, err = time.ParseDuration(b.BaseDelay)
	if err != nil {
		return 0, 0, fmt.Errorf("bulk.base_delay %q: %w", b.BaseDelay, err)
	}
	max, err = time.ParseDuration(b.MaxDelay)
	if err != nil {
		return 0, 0, fmt.Errorf("bulk.max_delay %q: %w", b.MaxDelay, err)
	}
	return base, max, nil
}

type StateConfig struct {
	Dir string `yaml:"dir"` // e.g. ~/.gantry/operations
}

type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter"`  // otlp, stdout, or none
	MetricExporter string `yaml:"metric_exporter"` // stdout or none
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() GantryConfig {
	return GantryConfig{
		API: APIConfig{
			BaseURL:   "https://developer.api.autodesk.com",
			RateLimit: 10,
			Burst:     5,
		},
		Bulk: BulkConfig{
			Concurrency: 10,
			MaxRetries:  5,
			BaseDelay:   "1s",
			MaxDelay:    "60s",
		},
		State: StateConfig{
			Dir: "~/.gantry/operations",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
			OTLPEndpoint:   "localhost:4317",
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Validate checks the structural settings every command depends on.
// Credentials are validated separately, at the point of use.
func (c GantryConfig) Validate() error {
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative, got %v", c.API.RateLimit)
	}
	if c.API.Burst < 0 {
		return fmt.Errorf("api.burst must not be negative, got %d", c.API.Burst)
	}
	if c.Bulk.Concurrency <= 0 {
		return fmt.Errorf("bulk.concurrency must be positive, got %d", c.Bulk.Concurrency)
	}
	if c.Bulk.MaxRetries < 0 {
		return fmt.Errorf("bulk.max_retries must not be negative, got %d", c.Bulk.MaxRetries)
	}
	base, max, err := c.Bulk.Delays()
	if err != nil {
		return err
	}
	if base <= 0 {
		return fmt.Errorf("bulk.base_delay must be positive, got %v", base)
	}
	if max < base {
		return fmt.Errorf("bulk.max_delay %v is below bulk.base_delay %v", max, base)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
