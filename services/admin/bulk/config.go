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
	"fmt"
	"time"
)

// Config controls one bulk run. Immutable for the duration of the run.
type Config struct {
	// Concurrency caps the number of in-flight item actions.
	// Must be positive.
	// Default: 10
	Concurrency int

	// DryRun reports intended actions without invoking them; every
	// item resolves as skipped.
	// Default: false
	DryRun bool

	// MaxRetries is the number of retries after the initial attempt
	// for transient failures inside an item action.
	// Default: 5
	MaxRetries int

	// BaseDelay is the backoff delay for the first retry; subsequent
	// retries double it.
	// Default: 1s
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff delay.
	// Default: 60s
	MaxDelay time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 10,
		DryRun:      false,
		MaxRetries:  5,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
	}
}

// Validate checks the configuration for values the Executor cannot
// run with. A Config that fails validation is a setup error, reported
// before any item is dispatched.
func (c Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalidConfig, c.Concurrency)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be non-negative, got %d", ErrInvalidConfig, c.MaxRetries)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("%w: base delay must be positive, got %v", ErrInvalidConfig, c.BaseDelay)
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("%w: max delay %v is below base delay %v", ErrInvalidConfig, c.MaxDelay, c.BaseDelay)
	}
	return nil
}

// RetryPolicy derives the per-item retry policy from the run
// configuration.
func (c Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: c.MaxRetries,
		BaseDelay:  c.BaseDelay,
		MaxDelay:   c.MaxDelay,
	}
}
