// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package filter

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/gantry/services/admin/aps"
)

func TestParse_Empty(t *testing.T) {
	f, err := Parse("")
	if err != nil {
		t.Fatalf("Parse(\"\") returned error: %v", err)
	}
	if !f.Matches(aps.Project{ID: "p-1", Name: "Anything"}) {
		t.Fatal("an empty filter must match every project")
	}
}

func TestParse_SingleKey(t *testing.T) {
	f, err := Parse("name:*Hospital*")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if f.NamePattern != "*Hospital*" {
		t.Fatalf("NamePattern = %q, want *Hospital*", f.NamePattern)
	}
}

func TestParse_MultipleKeys(t *testing.T) {
	f, err := Parse("name:*Building*,status:active,platform:acc,type:Commercial")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if f.NamePattern != "*Building*" {
		t.Errorf("NamePattern = %q", f.NamePattern)
	}
	if f.Status != StatusActive {
		t.Errorf("Status = %q, want active", f.Status)
	}
	if f.Platform != PlatformACC {
		t.Errorf("Platform = %q, want acc", f.Platform)
	}
	if f.Type != "Commercial" {
		t.Errorf("Type = %q, want Commercial", f.Type)
	}
}

func TestParse_CreatedBounds(t *testing.T) {
	f, err := Parse("created:>2024-01-01")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !f.CreatedAfter.Equal(want) {
		t.Fatalf("CreatedAfter = %v, want %v", f.CreatedAfter, want)
	}

	f, err = Parse("created:<2024-06-30")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	if !f.CreatedBefore.Equal(want) {
		t.Fatalf("CreatedBefore = %v, want %v", f.CreatedBefore, want)
	}
}

func TestParse_WhitespaceAndTrailingComma(t *testing.T) {
	f, err := Parse(" name:*A* , status:active ,")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if f.NamePattern != "*A*" || f.Status != StatusActive {
		t.Fatalf("unexpected filter: %+v", f)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		token string
	}{
		{name: "missing colon", expr: "invalid", token: "invalid"},
		{name: "empty value", expr: "name:", token: "name:"},
		{name: "unknown key", expr: "color:blue", token: "color"},
		{name: "bad status", expr: "status:paused", token: "paused"},
		{name: "bad platform", expr: "platform:vr", token: "vr"},
		{name: "created without operator", expr: "created:2024-01-01", token: "2024-01-01"},
		{name: "bad date", expr: "created:>01/02/2024", token: "01/02/2024"},
		{name: "malformed pattern", expr: "name:[abc", token: "[abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expr)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", tt.expr)
			}
			if !errors.Is(err, ErrInvalidFilter) {
				t.Fatalf("error %v does not wrap ErrInvalidFilter", err)
			}
			if !strings.Contains(err.Error(), tt.token) {
				t.Fatalf("error %q does not name the offending token %q", err, tt.token)
			}
		})
	}
}

func TestFilter_MatchesName(t *testing.T) {
	f := &Filter{NamePattern: "*Hospital*"}

	tests := []struct {
		projectName string
		want        bool
	}{
		{projectName: "City Hospital Phase 2", want: true},
		{projectName: "Hospital", want: true},
		{projectName: "city hospital annex", want: true},
		{projectName: "Office Building", want: false},
	}

	for _, tt := range tests {
		if got := f.Matches(aps.Project{Name: tt.projectName}); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.projectName, got, tt.want)
		}
	}
}

func TestFilter_MatchesStatus(t *testing.T) {
	active := &Filter{Status: StatusActive}

	// Projects the API returns without a status count as active.
	if !active.Matches(aps.Project{Name: "P"}) {
		t.Error("missing status must count as active")
	}
	if !active.Matches(aps.Project{Name: "P", Status: "Active"}) {
		t.Error("status comparison must ignore case")
	}
	if active.Matches(aps.Project{Name: "P", Status: "archived"}) {
		t.Error("archived project matched an active filter")
	}

	archived := &Filter{Status: StatusArchived}
	if archived.Matches(aps.Project{Name: "P"}) {
		t.Error("missing status must not count as archived")
	}
}

func TestFilter_MatchesPlatform(t *testing.T) {
	acc := &Filter{Platform: PlatformACC}
	bim := &Filter{Platform: PlatformBIM360}

	accProject := aps.Project{Name: "P", Platform: "ACC"}
	bimProject := aps.Project{Name: "P", Platform: "BIM 360"}
	typedProject := aps.Project{Name: "P", Type: "BIM Collaboration"}

	if !acc.Matches(accProject) || acc.Matches(bimProject) {
		t.Error("acc filter misclassified by platform field")
	}
	if !bim.Matches(bimProject) || bim.Matches(accProject) {
		t.Error("bim360 filter misclassified by platform field")
	}
	if !bim.Matches(typedProject) {
		t.Error("platform must also be recognized from the type field")
	}
}

func TestFilter_MatchesType(t *testing.T) {
	f := &Filter{Type: "commercial"}
	if !f.Matches(aps.Project{Name: "P", Type: "Commercial"}) {
		t.Error("type comparison must ignore case")
	}
	if f.Matches(aps.Project{Name: "P", Type: "Residential"}) {
		t.Error("different type matched")
	}
}

func TestFilter_MatchesCreated(t *testing.T) {
	after := &Filter{CreatedAfter: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	before := &Filter{CreatedBefore: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	older := aps.Project{Name: "P", CreatedAt: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)}
	boundary := aps.Project{Name: "P", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := aps.Project{Name: "P", CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	undated := aps.Project{Name: "P"}

	if after.Matches(older) {
		t.Error("older project passed a created-after bound")
	}
	if !after.Matches(boundary) {
		t.Error("created-after bound must be inclusive")
	}
	if !after.Matches(newer) || !after.Matches(undated) {
		t.Error("newer and undated projects must pass a created-after bound")
	}

	if before.Matches(newer) {
		t.Error("newer project passed a created-before bound")
	}
	if !before.Matches(boundary) {
		t.Error("created-before bound must be inclusive")
	}
	if !before.Matches(older) || !before.Matches(undated) {
		t.Error("older and undated projects must pass a created-before bound")
	}
}

func TestFilter_IncludeExcludeIDs(t *testing.T) {
	include := &Filter{IncludeIDs: []string{"p-1", "p-2"}}
	if !include.Matches(aps.Project{ID: "p-1", Name: "One"}) {
		t.Error("listed project excluded")
	}
	if include.Matches(aps.Project{ID: "p-9", Name: "Nine"}) {
		t.Error("unlisted project included despite an include list")
	}

	exclude := &Filter{ExcludeIDs: []string{"p-9"}}
	if exclude.Matches(aps.Project{ID: "p-9", Name: "Nine"}) {
		t.Error("excluded project matched")
	}
	if !exclude.Matches(aps.Project{ID: "p-1", Name: "One"}) {
		t.Error("non-excluded project rejected")
	}
}

func TestFilter_Apply(t *testing.T) {
	projects := []aps.Project{
		{ID: "p-1", Name: "City Hospital", Status: "active"},
		{ID: "p-2", Name: "Office Tower", Status: "active"},
		{ID: "p-3", Name: "Hospital Annex", Status: "archived"},
	}

	f, err := Parse("name:*Hospital*,status:active")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	matched := f.Apply(projects)
	if len(matched) != 1 || matched[0].ID != "p-1" {
		t.Fatalf("Apply returned %+v, want only p-1", matched)
	}

	all := (&Filter{}).Apply(projects)
	if len(all) != 3 {
		t.Fatalf("an empty filter must keep all projects, got %d", len(all))
	}
}
