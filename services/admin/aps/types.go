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
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Account Types
// -----------------------------------------------------------------------------

// User is a member of the Autodesk account.
type User struct {
	// ID is the Autodesk user identifier the project endpoints key on.
	ID string `json:"id"`

	// Email is the user's email address.
	Email string `json:"email"`

	// Name is the display name; may be empty.
	Name string `json:"name,omitempty"`

	// Status is the user's standing in the account (e.g. "active").
	Status string `json:"status,omitempty"`
}

// DisplayName returns the user's name, falling back to the email
// address.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Project is a construction project within the account.
type Project struct {
	// ID is the project identifier, as returned by the admin API
	// (without the "b." prefix).
	ID string `json:"id"`

	// Name is the project's display name.
	Name string `json:"name"`

	// Status is "active", "inactive", or "archived".
	Status string `json:"status,omitempty"`

	// Platform is the hosting platform, "acc" or "bim360".
	Platform string `json:"platform,omitempty"`

	// Type is the project classification (e.g. "Office", "Bridge").
	Type string `json:"type,omitempty"`

	// CreatedAt is when the project was created; zero when the API
	// omitted it.
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// IsACC reports whether the project is hosted on Autodesk Construction
// Cloud. Older records carry the platform only in the type field.
func (p Project) IsACC() bool {
	return strings.EqualFold(p.Platform, "acc") ||
		strings.Contains(strings.ToLower(p.Type), "acc")
}

// IsBIM360 reports whether the project lives on legacy BIM 360.
func (p Project) IsBIM360() bool {
	platform := strings.ToLower(p.Platform)
	return strings.Contains(platform, "bim360") ||
		strings.Contains(platform, "bim 360") ||
		strings.Contains(strings.ToLower(p.Type), "bim")
}

// -----------------------------------------------------------------------------
// Project Membership Types
// -----------------------------------------------------------------------------

// ProjectUser is a user's membership in a single project.
type ProjectUser struct {
	ID       string          `json:"id"`
	Email    string          `json:"email,omitempty"`
	Name     string          `json:"name,omitempty"`
	RoleID   string          `json:"roleId,omitempty"`
	RoleName string          `json:"roleName,omitempty"`
	Products []ProductAccess `json:"products,omitempty"`
}

// ProductAccess grants a member a level of access to one product.
type ProductAccess struct {
	// Key names the product (e.g. "docs", "projectAdministration").
	Key string `json:"key"`

	// Access is the level granted (e.g. "administrator", "member").
	Access string `json:"access"`
}

// AddUserRequest is the body for adding a member to a project.
type AddUserRequest struct {
	// UserID is the account-level user id, not an email.
	UserID string `json:"userId"`

	// RoleID assigns a project role; empty leaves the vendor default.
	RoleID string `json:"roleId,omitempty"`

	// Products grants product access; empty leaves the vendor default.
	Products []ProductAccess `json:"products,omitempty"`
}

// UpdateUserRequest patches a member's role or product access. Empty
// fields are left untouched.
type UpdateUserRequest struct {
	RoleID   string          `json:"roleId,omitempty"`
	Products []ProductAccess `json:"products,omitempty"`
}

// -----------------------------------------------------------------------------
// Folder Types
// -----------------------------------------------------------------------------

// Subject types accepted by the folder permission endpoints.
const (
	SubjectTypeUser    = "USER"
	SubjectTypeCompany = "COMPANY"
)

// Folder is a top-level folder of a project's Files module.
type Folder struct {
	// ID is the folder URN.
	ID string `json:"id"`

	// Name is the folder's display name.
	Name string `json:"name"`
}

// FolderPermission grants a subject a set of actions on a folder.
type FolderPermission struct {
	// SubjectID is the user or company the grant applies to.
	SubjectID string `json:"subjectId"`

	// SubjectType is SubjectTypeUser or SubjectTypeCompany.
	SubjectType string `json:"subjectType"`

	// Actions is the exact set of granted actions (e.g. VIEW,
	// DOWNLOAD, PUBLISH).
	Actions []string `json:"actions"`
}

// -----------------------------------------------------------------------------
// Pagination
// -----------------------------------------------------------------------------

// maxPageSize is the largest page the admin API serves.
const maxPageSize = 200

// page is the envelope the admin API wraps list responses in.
type page[T any] struct {
	Results    []T      `json:"results"`
	Pagination pageInfo `json:"pagination"`
}

type pageInfo struct {
	Limit        int `json:"limit"`
	Offset       int `json:"offset"`
	TotalResults int `json:"totalResults"`
}

// hasMore reports whether pages remain after this one.
func (p page[T]) hasMore() bool {
	return p.Pagination.Offset+len(p.Results) < p.Pagination.TotalResults
}

// nextOffset returns the offset of the following page.
func (p page[T]) nextOffset() int {
	return p.Pagination.Offset + p.Pagination.Limit
}
