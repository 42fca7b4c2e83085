// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package operations

import "errors"

var (
	// ErrInvalidConfig indicates the runner configuration is unusable.
	ErrInvalidConfig = errors.New("invalid operations configuration")

	// ErrInvalidParams indicates operation parameters that fail
	// validation before any project is touched.
	ErrInvalidParams = errors.New("invalid operation parameters")

	// ErrNotProjectMember indicates the target user is not a member of
	// the project, so a membership-dependent mutation cannot converge.
	ErrNotProjectMember = errors.New("user is not a member of the project")

	// ErrUnknownPermissionLevel indicates a folder permission level
	// outside the supported set.
	ErrUnknownPermissionLevel = errors.New("unknown permission level")

	// ErrInvalidFolderSpec indicates a folder selector that cannot be
	// parsed.
	ErrInvalidFolderSpec = errors.New("invalid folder selector")
)
