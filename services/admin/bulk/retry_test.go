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
	"errors"
	"fmt"
	"testing"
	"time"
)

// transientErr is a test error that advertises its transience.
type transientErr struct {
	retryable bool
}

func (e *transientErr) Error() string   { return "transient test error" }
func (e *transientErr) Retryable() bool { return e.retryable }

// hintedErr carries a server-supplied retry delay.
type hintedErr struct {
	after time.Duration
}

func (e *hintedErr) Error() string   { return "rate limited test error" }
func (e *hintedErr) Retryable() bool { return true }
func (e *hintedErr) RetryAfterHint() (time.Duration, bool) {
	return e.after, true
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		name    string
		attempt uint
		base    time.Duration
		max     time.Duration
		want    time.Duration
	}{
		{"attempt 0", 0, time.Second, 60 * time.Second, time.Second},
		{"attempt 1", 1, time.Second, 60 * time.Second, 2 * time.Second},
		{"attempt 2", 2, time.Second, 60 * time.Second, 4 * time.Second},
		{"attempt 3", 3, time.Second, 60 * time.Second, 8 * time.Second},
		{"attempt 5", 5, time.Second, 60 * time.Second, 32 * time.Second},
		{"attempt 6 capped", 6, time.Second, 60 * time.Second, 60 * time.Second},
		{"attempt 10 capped", 10, time.Second, 60 * time.Second, 60 * time.Second},
		{"attempt 64 saturates", 64, time.Second, 60 * time.Second, 60 * time.Second},
		{"attempt 1000 saturates", 1000, time.Second, 60 * time.Second, 60 * time.Second},
		{"millisecond base", 4, 100 * time.Millisecond, 5 * time.Second, 1600 * time.Millisecond},
		{"base above max", 0, 90 * time.Second, 60 * time.Second, 60 * time.Second},
		{"base equals max", 3, time.Minute, time.Minute, time.Minute},
		{"zero base", 5, 0, time.Minute, 0},
		{"huge max no overflow", 1000, time.Nanosecond, time.Duration(1<<62 - 1), time.Duration(1<<62 - 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExponentialBackoff(tt.attempt, tt.base, tt.max)
			if got != tt.want {
				t.Errorf("ExponentialBackoff(%d, %v, %v) = %v, want %v",
					tt.attempt, tt.base, tt.max, got, tt.want)
			}
		})
	}
}

func TestExponentialBackoff_MonotoneAndBounded(t *testing.T) {
	base := 250 * time.Millisecond
	max := 30 * time.Second

	prev := time.Duration(-1)
	for attempt := uint(0); attempt < 200; attempt++ {
		d := ExponentialBackoff(attempt, base, max)
		if d < prev {
			t.Fatalf("backoff decreased at attempt %d: %v -> %v", attempt, prev, d)
		}
		if d > max {
			t.Fatalf("backoff exceeded max at attempt %d: %v", attempt, d)
		}
		if d < 0 {
			t.Fatalf("backoff wrapped negative at attempt %d: %v", attempt, d)
		}
		prev = d
	}
	if prev != max {
		t.Errorf("backoff never reached max, last = %v", prev)
	}
}

func TestIsRetryableStatus(t *testing.T) {
	retryable := []int{408, 429, 500, 502, 503, 504}
	for _, code := range retryable {
		if !IsRetryableStatus(code) {
			t.Errorf("IsRetryableStatus(%d) = false, want true", code)
		}
	}

	terminal := []int{200, 201, 204, 301, 302, 400, 401, 403, 404, 409, 410, 418, 422, 501, 505}
	for _, code := range terminal {
		if IsRetryableStatus(code) {
			t.Errorf("IsRetryableStatus(%d) = true, want false", code)
		}
	}
}

func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"default valid", DefaultRetryPolicy(), false},
		{"zero retries valid", RetryPolicy{MaxRetries: 0, BaseDelay: time.Second, MaxDelay: time.Minute}, false},
		{"negative retries", RetryPolicy{MaxRetries: -1, BaseDelay: time.Second, MaxDelay: time.Minute}, true},
		{"zero base delay", RetryPolicy{MaxRetries: 3, BaseDelay: 0, MaxDelay: time.Minute}, true},
		{"max below base", RetryPolicy{MaxRetries: 3, BaseDelay: time.Minute, MaxDelay: time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error should wrap ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", p.MaxRetries)
	}
	if p.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %v, want 1s", p.BaseDelay)
	}
	if p.MaxDelay != 60*time.Second {
		t.Errorf("MaxDelay = %v, want 60s", p.MaxDelay)
	}
}

func TestWithRetry_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	attempts, err := WithRetry(context.Background(), testPolicy(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry() error = %v, want nil", err)
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1 and 1", attempts, calls)
	}
}

func TestWithRetry_TransientThenSuccess(t *testing.T) {
	calls := 0
	attempts, err := WithRetry(context.Background(), testPolicy(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &transientErr{retryable: true}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry() error = %v, want nil", err)
	}
	if attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3 and 3", attempts, calls)
	}
}

func TestWithRetry_TerminalErrorReturnsImmediately(t *testing.T) {
	terminal := errors.New("bad request")
	calls := 0
	attempts, err := WithRetry(context.Background(), testPolicy(5), func(ctx context.Context) error {
		calls++
		return terminal
	})
	if !errors.Is(err, terminal) {
		t.Fatalf("WithRetry() error = %v, want %v", err, terminal)
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1 and 1 for terminal error", attempts, calls)
	}

	var exhausted *RetriesExhaustedError
	if errors.As(err, &exhausted) {
		t.Error("terminal error should not be wrapped in RetriesExhaustedError")
	}
}

func TestWithRetry_ExhaustsBudget(t *testing.T) {
	underlying := &transientErr{retryable: true}
	calls := 0
	attempts, err := WithRetry(context.Background(), testPolicy(2), func(ctx context.Context) error {
		calls++
		return underlying
	})
	if err == nil {
		t.Fatal("WithRetry() error = nil, want exhaustion error")
	}
	// 1 initial + 2 retries
	if attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3 and 3", attempts, calls)
	}

	var exhausted *RetriesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error %v should be a RetriesExhaustedError", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("exhausted.Attempts = %d, want 3", exhausted.Attempts)
	}
	if !errors.Is(err, underlying) {
		t.Error("exhaustion error should wrap the final attempt's error")
	}
}

func TestWithRetry_ZeroRetriesSingleAttempt(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Second}
	attempts, err := WithRetry(context.Background(), policy, func(ctx context.Context) error {
		calls++
		return &transientErr{retryable: true}
	})
	if attempts != 1 || calls != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1 and 1", attempts, calls)
	}
	var exhausted *RetriesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error %v should be a RetriesExhaustedError", err)
	}
}

func TestWithRetry_ContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	attempts, err := WithRetry(ctx, testPolicy(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WithRetry() error = %v, want context.Canceled", err)
	}
	if attempts != 0 || calls != 0 {
		t.Errorf("attempts = %d, calls = %d, want 0 and 0", attempts, calls)
	}
}

func TestWithRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	policy := RetryPolicy{MaxRetries: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: time.Second}
	calls := 0
	start := time.Now()
	attempts, err := WithRetry(ctx, policy, func(ctx context.Context) error {
		calls++
		return &transientErr{retryable: true}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WithRetry() error = %v, want context.DeadlineExceeded", err)
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1 and 1", attempts, calls)
	}
	if elapsed := time.Since(start); elapsed >= 400*time.Millisecond {
		t.Errorf("backoff sleep was not interrupted by cancellation, took %v", elapsed)
	}
}

func TestWithRetry_HonorsRetryAfterHint(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 1, BaseDelay: 500 * time.Millisecond, MaxDelay: time.Second}
	calls := 0
	start := time.Now()
	_, err := WithRetry(context.Background(), policy, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			// Hint far below the computed 500ms backoff.
			return &hintedErr{after: 5 * time.Millisecond}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry() error = %v, want nil", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if elapsed := time.Since(start); elapsed >= 400*time.Millisecond {
		t.Errorf("Retry-After hint not honored, slept %v", elapsed)
	}
}

func TestWithRetry_CustomClassifier(t *testing.T) {
	marker := errors.New("retry me")
	policy := RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Classify:   func(err error) bool { return errors.Is(err, marker) },
	}

	calls := 0
	_, err := WithRetry(context.Background(), policy, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("wrapped: %w", marker)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry() error = %v, want nil", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil chain plain error", errors.New("plain"), false},
		{"retryable transient", &transientErr{retryable: true}, true},
		{"non-retryable transient", &transientErr{retryable: false}, false},
		{"wrapped retryable", fmt.Errorf("call failed: %w", &transientErr{retryable: true}), true},
		{"hinted error", &hintedErr{after: time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError() = %v, want %v", got, tt.want)
			}
		})
	}
}

// testPolicy returns a fast policy for retry loop tests.
func testPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	}
}
