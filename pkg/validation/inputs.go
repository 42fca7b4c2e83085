// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// file paths or API requests. Using these validators prevents path traversal
// (a crafted operation id escaping the state directory) and malformed
// requests built from bad identifiers.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// operationIDPattern matches operation identifiers as the engine issues
// them (UUID strings) while leaving room for externally-supplied ids.
// No dots or path separators: ids become file names under the state
// directory.
var operationIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-]{0,63}$`)

// ValidateOperationID validates an operation identifier before it is
// used to build a state file path.
//
// Valid ids:
//   - 1-64 characters
//   - Letters A-Z a-z, digits 0-9
//   - Hyphens (-) between them
//
// Returns an error if the id is invalid.
//
// Example:
//
//	if err := validation.ValidateOperationID(id); err != nil {
//	    return nil, fmt.Errorf("invalid operation id: %w", err)
//	}
//	// Safe to join into a file path
func ValidateOperationID(id string) error {
	if id == "" {
		return fmt.Errorf("operation id cannot be empty")
	}

	if !operationIDPattern.MatchString(id) {
		return fmt.Errorf("invalid operation id format: %q (must be 1-64 alphanumeric chars or hyphens)", id)
	}

	return nil
}

// emailPattern is a shape check, not an RFC 5322 parser. The vendor API
// is the authority on whether an address exists; this only rejects
// inputs that cannot be an address at all.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateEmail validates a user email address before it is used in an
// account-wide user lookup.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	if len(email) > 254 {
		return fmt.Errorf("email too long: %d characters (max 254)", len(email))
	}

	if !emailPattern.MatchString(email) {
		return fmt.Errorf("invalid email format: %q", email)
	}

	return nil
}

// SanitizeEmail normalizes and validates an email address.
// Returns the lowercase address if valid, or an error if invalid.
//
// Use this when the address will be compared against API results,
// which report emails in lowercase:
//
//	safeEmail, err := validation.SanitizeEmail(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeEmail is lowercase and validated
func SanitizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if err := ValidateEmail(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
