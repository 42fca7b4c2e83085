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
	"context"
	"fmt"
	"net/http"
	"time"
)

// ExponentialBackoff computes the delay before retry number attempt.
//
// Description:
//
//	Returns min(base * 2^attempt, max) with attempt 0-based. The
//	computation saturates: once doubling would exceed max or overflow
//	the duration range, the result clamps to max. It never wraps to a
//	small or negative value, so arbitrarily large attempt counts are
//	safe.
//
// Inputs:
//
//	attempt - Zero-based retry attempt number.
//	base - Delay before the first retry. Non-positive base yields zero.
//	max - Upper bound on the returned delay.
//
// Outputs:
//
//	time.Duration - The clamped delay.
//
// Thread Safety: Pure function, safe for concurrent use.
func ExponentialBackoff(attempt uint, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if base >= max {
		return max
	}
	d := base
	for i := uint(0); i < attempt; i++ {
		d *= 2
		// A wrapped (negative) value means the doubling overflowed.
		if d >= max || d <= 0 {
			return max
		}
	}
	return d
}

// IsRetryableStatus reports whether an HTTP status code is transient
// and eligible for backoff-and-retry.
//
// Exactly 408, 429, 500, 502, 503, and 504 are retryable. All other
// codes, including the remaining 4xx client errors, are terminal.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// RetryPolicy configures WithRetry. The policy is pure configuration;
// the combinator owns the loop and the sleeping.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Zero disables retrying.
	// Default: 5
	MaxRetries int

	// BaseDelay is the backoff delay before the first retry.
	// Default: 1s
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff delay.
	// Default: 60s
	MaxDelay time.Duration

	// Classify decides whether an error is worth retrying. When nil,
	// IsRetryableError is used (errors advertise transience through
	// the Transient interface).
	Classify func(error) bool
}

// DefaultRetryPolicy returns the production retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
	}
}

// Validate checks the policy for values WithRetry cannot run with.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be non-negative, got %d", ErrInvalidConfig, p.MaxRetries)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("%w: base delay must be positive, got %v", ErrInvalidConfig, p.BaseDelay)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("%w: max delay %v is below base delay %v", ErrInvalidConfig, p.MaxDelay, p.BaseDelay)
	}
	return nil
}

// WithRetry invokes op, retrying transient failures under the policy.
//
// Description:
//
//	Runs op up to 1+MaxRetries times. Terminal errors (per
//	policy.Classify) return immediately. Transient errors sleep for
//	ExponentialBackoff(retry, BaseDelay, MaxDelay) — or for the
//	server-supplied Retry-After hint when the error carries one — and
//	try again. When the budget is exhausted the final error is wrapped
//	in a RetriesExhaustedError so callers can mark the failure as
//	transient-but-exhausted.
//
//	Context cancellation is respected both between attempts and during
//	backoff sleeps; the context error is returned unwrapped.
//
// Inputs:
//
//	ctx - Context for cancellation. Passed through to op.
//	policy - Retry policy. Zero MaxRetries means a single attempt.
//	op - The operation to run. Must be safe to invoke repeatedly.
//
// Outputs:
//
//	int - Number of invocations performed (0 if ctx was already done).
//	error - nil on success; the terminal, exhausted, or context error.
//
// Thread Safety: Safe for concurrent use with distinct op closures.
func WithRetry(ctx context.Context, policy RetryPolicy, op func(context.Context) error) (int, error) {
	classify := policy.Classify
	if classify == nil {
		classify = IsRetryableError
	}

	attempts := 0
	for retry := 0; ; retry++ {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}

		attempts++
		err := op(ctx)
		if err == nil {
			return attempts, nil
		}
		if !classify(err) {
			return attempts, err
		}
		if retry >= policy.MaxRetries {
			return attempts, &RetriesExhaustedError{Attempts: attempts, Err: err}
		}

		delay := ExponentialBackoff(uint(retry), policy.BaseDelay, policy.MaxDelay)
		if hint, ok := retryAfterHint(err); ok && hint > 0 {
			delay = hint
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, ctx.Err()
		case <-timer.C:
		}
	}
}
