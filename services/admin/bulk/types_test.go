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
)

func TestItemResultConstructors(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		r := SuccessResult()
		if r.Kind != ResultSuccess {
			t.Errorf("Kind = %q, want %q", r.Kind, ResultSuccess)
		}
		if r.Err != nil || r.Reason != "" || r.Retryable {
			t.Errorf("success result carries extra state: %+v", r)
		}
	})

	t.Run("skipped", func(t *testing.T) {
		r := SkippedResult("already a member")
		if r.Kind != ResultSkipped {
			t.Errorf("Kind = %q, want %q", r.Kind, ResultSkipped)
		}
		if r.Reason != "already a member" {
			t.Errorf("Reason = %q", r.Reason)
		}
	})

	t.Run("failed", func(t *testing.T) {
		cause := errors.New("user not found")
		r := FailedResult(cause)
		if r.Kind != ResultFailed {
			t.Errorf("Kind = %q, want %q", r.Kind, ResultFailed)
		}
		if !errors.Is(r.Err, cause) {
			t.Errorf("Err = %v, want %v", r.Err, cause)
		}
		if r.Retryable {
			t.Error("plain failure should not be retryable")
		}
	})

	t.Run("retryable failure", func(t *testing.T) {
		r := RetryableFailure(errors.New("throttled"))
		if r.Kind != ResultFailed {
			t.Errorf("Kind = %q, want %q", r.Kind, ResultFailed)
		}
		if !r.Retryable {
			t.Error("RetryableFailure should mark the result retryable")
		}
	})
}

func TestProgressUpdate_Resolved(t *testing.T) {
	u := ProgressUpdate{Total: 50, Completed: 12, Skipped: 3, Failed: 5}
	if got := u.Resolved(); got != 20 {
		t.Errorf("Resolved() = %d, want 20", got)
	}

	var zero ProgressUpdate
	if got := zero.Resolved(); got != 0 {
		t.Errorf("Resolved() on zero value = %d, want 0", got)
	}
}
