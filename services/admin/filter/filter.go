// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package filter selects target projects for a bulk run.
//
// Filters are parsed from compact CLI expressions of the form
// `key:value[,key:value...]` and applied client-side to the account's
// project listing. An empty filter matches every project.
package filter

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/AleutianAI/gantry/services/admin/aps"
)

// ErrInvalidFilter indicates a filter expression that cannot be
// parsed. The wrap always names the offending token.
var ErrInvalidFilter = errors.New("invalid filter expression")

// Project statuses a filter can select on.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusArchived = "archived"
)

// Platforms a filter can select on.
const (
	PlatformACC    = "acc"
	PlatformBIM360 = "bim360"
)

// Filter is the set of criteria a project must satisfy to be included
// in a bulk run. Zero-valued criteria match everything.
type Filter struct {
	// NamePattern is a glob matched case-insensitively against the
	// project name ("*" and "?" wildcards).
	NamePattern string

	// Status selects by project status. Projects the API returns
	// without a status count as active.
	Status string

	// Platform selects by hosting platform, PlatformACC or
	// PlatformBIM360.
	Platform string

	// Type selects by project classification, compared exactly but
	// case-insensitively.
	Type string

	// CreatedAfter keeps projects created on or after this instant.
	// Projects without a creation date always pass.
	CreatedAfter time.Time

	// CreatedBefore keeps projects created on or before this instant.
	CreatedBefore time.Time

	// IncludeIDs, when non-empty, restricts the run to exactly these
	// project ids. Fed by --project-ids files rather than the
	// expression syntax.
	IncludeIDs []string

	// ExcludeIDs removes projects from the run regardless of the
	// other criteria.
	ExcludeIDs []string
}

// Parse builds a Filter from a CLI expression.
//
// Description:
//
//	Splits the expression on commas into key:value pairs. Supported
//	keys:
//
//	  name     - glob pattern ("name:*Hospital*")
//	  status   - active, inactive, or archived
//	  platform - acc or bim360
//	  type     - project classification, matched exactly
//	  created  - ">YYYY-MM-DD" or "<YYYY-MM-DD", inclusive
//
//	Empty parts are skipped, so trailing commas are harmless. A
//	repeated key overwrites the earlier value.
//
// Outputs:
//
//	*Filter - The parsed filter; empty expression yields a
//	          match-everything filter.
//	error - ErrInvalidFilter (wrapped with the offending token) on an
//	        unknown key, empty value, malformed pattern, or bad date.
func Parse(expr string) (*Filter, error) {
	f := &Filter{}

	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q: expected key:value", ErrInvalidFilter, part)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if value == "" {
			return nil, fmt.Errorf("%w: %q: empty value", ErrInvalidFilter, part)
		}

		switch key {
		case "name":
			if _, err := path.Match(strings.ToLower(value), ""); err != nil {
				return nil, fmt.Errorf("%w: malformed name pattern %q", ErrInvalidFilter, value)
			}
			f.NamePattern = value
		case "status":
			status := strings.ToLower(value)
			switch status {
			case StatusActive, StatusInactive, StatusArchived:
				f.Status = status
			default:
				return nil, fmt.Errorf("%w: status %q (expected active, inactive, or archived)", ErrInvalidFilter, value)
			}
		case "platform":
			platform := strings.ToLower(value)
			switch platform {
			case PlatformACC, PlatformBIM360:
				f.Platform = platform
			default:
				return nil, fmt.Errorf("%w: platform %q (expected acc or bim360)", ErrInvalidFilter, value)
			}
		case "type":
			f.Type = value
		case "created":
			switch {
			case strings.HasPrefix(value, ">"):
				date, err := parseDate(strings.TrimSpace(value[1:]))
				if err != nil {
					return nil, err
				}
				f.CreatedAfter = date
			case strings.HasPrefix(value, "<"):
				date, err := parseDate(strings.TrimSpace(value[1:]))
				if err != nil {
					return nil, err
				}
				f.CreatedBefore = date
			default:
				return nil, fmt.Errorf("%w: created %q (use >YYYY-MM-DD or <YYYY-MM-DD)", ErrInvalidFilter, value)
			}
		default:
			return nil, fmt.Errorf("%w: unknown key %q (valid: name, status, platform, type, created)", ErrInvalidFilter, key)
		}
	}

	return f, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q (expected YYYY-MM-DD)", ErrInvalidFilter, s)
	}
	return t, nil
}

// Matches reports whether the project satisfies every criterion.
func (f *Filter) Matches(p aps.Project) bool {
	if !f.matchesName(p.Name) {
		return false
	}

	if f.Status != "" {
		status := strings.ToLower(p.Status)
		if status == "" {
			status = StatusActive
		}
		if status != f.Status {
			return false
		}
	}

	switch f.Platform {
	case PlatformACC:
		if !p.IsACC() {
			return false
		}
	case PlatformBIM360:
		if !p.IsBIM360() {
			return false
		}
	}

	if f.Type != "" && !strings.EqualFold(f.Type, p.Type) {
		return false
	}

	if !f.CreatedAfter.IsZero() && !p.CreatedAt.IsZero() && p.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	if !f.CreatedBefore.IsZero() && !p.CreatedAt.IsZero() && p.CreatedAt.After(f.CreatedBefore) {
		return false
	}

	if len(f.IncludeIDs) > 0 && !slices.Contains(f.IncludeIDs, p.ID) {
		return false
	}
	if slices.Contains(f.ExcludeIDs, p.ID) {
		return false
	}

	return true
}

// matchesName applies the glob pattern, case-insensitively. A pattern
// set outside Parse that turns out malformed matches nothing.
func (f *Filter) matchesName(name string) bool {
	if f.NamePattern == "" {
		return true
	}
	ok, err := path.Match(strings.ToLower(f.NamePattern), strings.ToLower(name))
	return err == nil && ok
}

// Apply returns the projects that match, preserving input order.
func (f *Filter) Apply(projects []aps.Project) []aps.Project {
	matched := make([]aps.Project, 0, len(projects))
	for _, p := range projects {
		if f.Matches(p) {
			matched = append(matched, p)
		}
	}
	return matched
}
