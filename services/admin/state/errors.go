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
	"errors"
	"fmt"
)

// Sentinel errors for state store operations.
var (
	// ErrOperationNotFound indicates no state file exists for the id.
	// A corrupted file is ErrStateDecode, never this.
	ErrOperationNotFound = errors.New("operation not found")

	// ErrStateIO indicates a filesystem failure reading or writing a
	// state file.
	ErrStateIO = errors.New("state file i/o error")

	// ErrStateDecode indicates a state file exists but cannot be
	// decoded: malformed JSON or an unsupported schema version.
	ErrStateDecode = errors.New("state file corrupted")

	// ErrInvalidTransition indicates a status change the lifecycle does
	// not allow, such as cancelling a completed operation.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrOperationLocked indicates another process is currently running
	// the operation.
	ErrOperationLocked = errors.New("operation is locked by another process")

	// ErrFileLocked indicates the underlying lock file is held by
	// another process. Store methods wrap this into ErrOperationLocked.
	ErrFileLocked = errors.New("file is locked by another process")

	// ErrUnknownOperationType indicates a stored or supplied operation
	// type outside the supported set.
	ErrUnknownOperationType = errors.New("unknown operation type")
)

// CannotResumeError indicates a resume attempt on an operation whose
// status rules it out. Completed runs have nothing left to do and
// cancelled runs were abandoned deliberately; both are rejected before
// any action runs or state mutates.
type CannotResumeError struct {
	Status OperationStatus
}

// Error returns a human-readable error message.
func (e *CannotResumeError) Error() string {
	return fmt.Sprintf("cannot resume operation with status %s", e.Status)
}
