// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"
)

func TestValidateOperationID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid ids
		{"uuid", "3f1f0f4e-8a2b-4c6d-9e0f-1a2b3c4d5e6f", false},
		{"single char", "a", false},
		{"digits", "12345", false},
		{"mixed case", "Op-42", false},
		{"max length", strings.Repeat("a", 64), false},

		// Invalid ids - traversal and injection attempts
		{"empty", "", true},
		{"parent dir", "..", true},
		{"traversal", "../../etc/passwd", true},
		{"absolute path", "/etc/passwd", true},
		{"backslash", `..\secrets`, true},
		{"embedded slash", "abc/def", true},
		{"dot prefix", ".hidden", true},
		{"embedded dot", "a.b", true},
		{"hyphen prefix", "-abc", true},
		{"whitespace", "op 42", true},
		{"newline", "op\n42", true},
		{"too long", strings.Repeat("a", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOperationID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOperationID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		// Valid addresses
		{"simple", "jane@example.com", false},
		{"subdomain", "jane@mail.example.co.uk", false},
		{"plus tag", "jane+site@example.com", false},
		{"dots in local", "jane.doe@example.com", false},

		// Invalid addresses
		{"empty", "", true},
		{"no at", "janeexample.com", true},
		{"no domain dot", "jane@example", true},
		{"two ats", "jane@@example.com", true},
		{"whitespace", "jane doe@example.com", true},
		{"trailing space", "jane@example.com ", true},
		{"too long", strings.Repeat("a", 250) + "@x.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		want    string
		wantErr bool
	}{
		{"already clean", "jane@example.com", "jane@example.com", false},
		{"uppercase", "Jane@Example.COM", "jane@example.com", false},
		{"surrounding space", "  jane@example.com  ", "jane@example.com", false},
		{"invalid after trim", "  not-an-email  ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SanitizeEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SanitizeEmail(%q) = %q, want %q", tt.email, got, tt.want)
			}
		})
	}
}
