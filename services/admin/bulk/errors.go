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
	"fmt"
	"time"
)

// ErrInvalidConfig indicates a bulk configuration the Executor cannot
// run with. Returned before any item is dispatched.
var ErrInvalidConfig = errors.New("invalid bulk configuration")

// ErrNilAction indicates Execute was called without an item action
// outside dry-run mode.
var ErrNilAction = errors.New("nil item action")

// Transient describes errors that know whether they are worth
// retrying. Error types from the API layer implement this; WithRetry
// consults it through the error chain.
type Transient interface {
	Retryable() bool
}

// RetryHinter describes errors that carry a server-supplied retry
// delay (a 429 Retry-After header). When present and positive, the
// hint takes precedence over the computed backoff.
type RetryHinter interface {
	RetryAfterHint() (time.Duration, bool)
}

// RetriesExhaustedError wraps the final error of an operation that was
// retried up to its budget and still failed. Callers use errors.As to
// distinguish "failed after retries" from an immediately terminal
// failure.
type RetriesExhaustedError struct {
	// Attempts is the total number of invocations, including the
	// first.
	Attempts int

	// Err is the error from the final attempt.
	Err error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}

// IsRetryableError reports whether err is classified transient.
//
// Classification walks the error chain looking for a Transient
// implementation and defers to it. Errors that carry no classification
// are treated as terminal; the caller that knows better can supply its
// own Classify func on the RetryPolicy.
func IsRetryableError(err error) bool {
	var t Transient
	if errors.As(err, &t) {
		return t.Retryable()
	}
	return false
}

// retryAfterHint extracts a server-supplied retry delay from the error
// chain, if any.
func retryAfterHint(err error) (time.Duration, bool) {
	var h RetryHinter
	if errors.As(err, &h) {
		return h.RetryAfterHint()
	}
	return 0, false
}
