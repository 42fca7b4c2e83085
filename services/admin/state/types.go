// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"fmt"
	"time"

	"github.com/AleutianAI/gantry/services/admin/bulk"
)

// SchemaVersion is the persisted state file format version. Decoding
// rejects any other value so a newer format is never silently
// misinterpreted.
const SchemaVersion = 1

// OperationType identifies which bulk operation a record belongs to.
type OperationType string

// Supported operation types. The values are the persisted form.
const (
	OpAddUser            OperationType = "add_user"
	OpRemoveUser         OperationType = "remove_user"
	OpUpdateRole         OperationType = "update_role"
	OpUpdateFolderRights OperationType = "update_folder_rights"
)

// ParseOperationType converts a stored or user-supplied string into an
// OperationType, returning ErrUnknownOperationType for anything outside
// the supported set.
func ParseOperationType(s string) (OperationType, error) {
	switch t := OperationType(s); t {
	case OpAddUser, OpRemoveUser, OpUpdateRole, OpUpdateFolderRights:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperationType, s)
	}
}

// OperationStatus is the lifecycle state of a persisted operation.
//
// Lifecycle: Pending -> InProgress -> Completed | Failed | Cancelled.
// Failed and InProgress records can be resumed; Completed and Cancelled
// are final.
type OperationStatus string

// Operation statuses. The values are the persisted form.
const (
	StatusPending    OperationStatus = "pending"
	StatusInProgress OperationStatus = "in_progress"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
	StatusCancelled  OperationStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s OperationStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ItemStatus is the recorded outcome of a single project within an
// operation. Items start pending and move straight to a terminal
// outcome when their resolution is recorded.
type ItemStatus string

// Item statuses. The values are the persisted form.
const (
	ItemPending ItemStatus = "pending"
	ItemSuccess ItemStatus = "success"
	ItemSkipped ItemStatus = "skipped"
	ItemFailed  ItemStatus = "failed"
)

// Params is the operation-specific parameter block persisted alongside
// the item list, so a resume can rebuild the per-item action from the
// record alone. Fields not used by an operation stay empty.
type Params struct {
	// Email of the target user.
	Email string `json:"email,omitempty"`
	// Role to grant or set (add-user, update-role).
	Role string `json:"role,omitempty"`
	// FromRole optionally restricts update-role to users currently
	// holding this role.
	FromRole string `json:"from_role,omitempty"`
	// Level is the folder permission level (folder-rights).
	Level string `json:"level,omitempty"`
	// Folder is the folder name to update (folder-rights).
	Folder string `json:"folder,omitempty"`
}

// ItemState is the persisted outcome of one project.
type ItemState struct {
	ProjectID   string     `json:"project_id"`
	ProjectName string     `json:"project_name"`
	Status      ItemStatus `json:"status"`
	// Reason explains a skip.
	Reason string `json:"reason,omitempty"`
	// Error holds the failure message for failed items.
	Error string `json:"error,omitempty"`
	// Attempts is how many times the action ran for this item.
	Attempts int `json:"attempts,omitempty"`
}

// OperationState is the persisted record of a bulk operation: one JSON
// file per operation under the state directory.
type OperationState struct {
	Version       int             `json:"version"`
	OperationID   string          `json:"operation_id"`
	OperationType OperationType   `json:"operation_type"`
	Status        OperationStatus `json:"status"`
	Params        Params          `json:"params"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []ItemState     `json:"items"`
}

// OperationSummary is the condensed view used for listings.
type OperationSummary struct {
	OperationID   string          `json:"operation_id"`
	OperationType OperationType   `json:"operation_type"`
	Status        OperationStatus `json:"status"`
	Total         int             `json:"total"`
	Completed     int             `json:"completed"`
	Skipped       int             `json:"skipped"`
	Failed        int             `json:"failed"`
	Pending       int             `json:"pending"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Counts tallies item outcomes.
func (s *OperationState) Counts() (completed, skipped, failed, pending int) {
	for _, it := range s.Items {
		switch it.Status {
		case ItemSuccess:
			completed++
		case ItemSkipped:
			skipped++
		case ItemFailed:
			failed++
		default:
			pending++
		}
	}
	return completed, skipped, failed, pending
}

// Summary condenses the record for listings.
func (s *OperationState) Summary() OperationSummary {
	completed, skipped, failed, pending := s.Counts()
	return OperationSummary{
		OperationID:   s.OperationID,
		OperationType: s.OperationType,
		Status:        s.Status,
		Total:         len(s.Items),
		Completed:     completed,
		Skipped:       skipped,
		Failed:        failed,
		Pending:       pending,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// CanResume reports whether the operation may be resumed. Completed and
// cancelled records are rejected with a CannotResumeError; everything
// else, including failed and crashed in-progress runs, is eligible.
func (s *OperationState) CanResume() error {
	switch s.Status {
	case StatusCompleted, StatusCancelled:
		return &CannotResumeError{Status: s.Status}
	default:
		return nil
	}
}

// ResumeItems selects the items a resume should re-run: everything
// whose last outcome is not success. Failed, skipped, and
// never-attempted items are all re-eligible.
func (s *OperationState) ResumeItems() []bulk.ProcessItem {
	var items []bulk.ProcessItem
	for _, it := range s.Items {
		if it.Status != ItemSuccess {
			items = append(items, bulk.ProcessItem{
				ProjectID:   it.ProjectID,
				ProjectName: it.ProjectName,
			})
		}
	}
	return items
}
