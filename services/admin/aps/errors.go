// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aps

import (
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/gantry/services/admin/bulk"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidConfig indicates a client configuration NewClient cannot
	// run with.
	ErrInvalidConfig = errors.New("invalid aps client configuration")

	// ErrInvalidInput indicates a request argument the vendor API would
	// reject outright, caught before any round trip.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAuthentication indicates the token source could not produce a
	// usable access token. Always terminal; retrying with the same
	// credentials cannot succeed.
	ErrAuthentication = errors.New("aps authentication failed")

	// ErrUserNotFound indicates no account member matches the given
	// email address.
	ErrUserNotFound = errors.New("user not found in account")

	// ErrFolderNotFound indicates a project has no top-level folder
	// matching the requested name.
	ErrFolderNotFound = errors.New("folder not found in project")
)

// APIError is a non-2xx response from the vendor API.
//
// Whether the error is worth retrying is decided purely by status
// code: the transient server statuses are retryable, everything else
// (including all remaining 4xx) is terminal.
type APIError struct {
	// Status is the HTTP status code of the response.
	Status int

	// Message is the response body, truncated for log hygiene.
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("aps request failed with status %d", e.Status)
	}
	return fmt.Sprintf("aps request failed with status %d: %s", e.Status, e.Message)
}

// Retryable reports whether the status code is transient.
func (e *APIError) Retryable() bool {
	return bulk.IsRetryableStatus(e.Status)
}

// RateLimitError is a 429 response. It is always retryable and carries
// the server-supplied Retry-After delay when the header was present.
type RateLimitError struct {
	// RetryAfter is the parsed Retry-After value; zero when the server
	// sent none.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("aps rate limit exceeded, retry after %v", e.RetryAfter)
	}
	return "aps rate limit exceeded"
}

// Retryable always reports true; rate limiting is transient by
// definition.
func (e *RateLimitError) Retryable() bool { return true }

// RetryAfterHint returns the server-supplied delay, if any.
func (e *RateLimitError) RetryAfterHint() (time.Duration, bool) {
	return e.RetryAfter, e.RetryAfter > 0
}

// transportError marks network-level failures (DNS, dial, TLS, reset)
// as transient. Context cancellation is surfaced as the context error
// before this wrapper is ever constructed.
type transportError struct {
	err error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("aps transport error: %v", e.err)
}

func (e *transportError) Unwrap() error { return e.err }

func (e *transportError) Retryable() bool { return true }

// IsNotFound reports whether err is a vendor 404 response.
//
// The project membership endpoints answer 404 both for "no such
// project" and "user is not a member"; callers that treat absence as a
// normal outcome test with this instead of matching on APIError
// directly.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 404
}
