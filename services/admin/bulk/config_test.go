// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bulk

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Concurrency != 10 {
		t.Errorf("Concurrency = %d, want 10", cfg.Concurrency)
	}
	if cfg.DryRun {
		t.Error("DryRun should default to false")
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %v, want 1s", cfg.BaseDelay)
	}
	if cfg.MaxDelay != 60*time.Second {
		t.Errorf("MaxDelay = %v, want 60s", cfg.MaxDelay)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"single worker", func(c *Config) { c.Concurrency = 1 }, false},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, true},
		{"negative concurrency", func(c *Config) { c.Concurrency = -4 }, true},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, false},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, true},
		{"zero base delay", func(c *Config) { c.BaseDelay = 0 }, true},
		{"max delay below base", func(c *Config) { c.BaseDelay = time.Minute; c.MaxDelay = time.Second }, true},
		{"max delay equals base", func(c *Config) { c.BaseDelay = time.Second; c.MaxDelay = time.Second }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error should wrap ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestConfig_RetryPolicy(t *testing.T) {
	cfg := Config{
		Concurrency: 4,
		MaxRetries:  7,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
	}
	p := cfg.RetryPolicy()
	if p.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want 7", p.MaxRetries)
	}
	if p.BaseDelay != 2*time.Second {
		t.Errorf("BaseDelay = %v, want 2s", p.BaseDelay)
	}
	if p.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want 30s", p.MaxDelay)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("derived policy should validate, got %v", err)
	}
}
