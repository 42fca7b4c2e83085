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

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/gantry/services/admin/aps"
	"github.com/AleutianAI/gantry/services/admin/bulk"
	"github.com/AleutianAI/gantry/services/admin/filter"
	"github.com/AleutianAI/gantry/services/admin/state"
)

// ----------------------------------------------------------------------------
// Permission levels
// ----------------------------------------------------------------------------

// PermissionLevel names a folder access tier. The value is the
// persisted form.
type PermissionLevel string

// Supported permission levels.
const (
	LevelViewOnly               PermissionLevel = "view_only"
	LevelViewDownload           PermissionLevel = "view_download"
	LevelUploadOnly             PermissionLevel = "upload_only"
	LevelViewDownloadUpload     PermissionLevel = "view_download_upload"
	LevelViewDownloadUploadEdit PermissionLevel = "view_download_upload_edit"
	LevelFolderControl          PermissionLevel = "folder_control"
)

// ParsePermissionLevel converts user or persisted input into a
// PermissionLevel. Hyphenated and underscored spellings are both
// accepted; case is ignored.
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch l := PermissionLevel(normalized); l {
	case LevelViewOnly, LevelViewDownload, LevelUploadOnly,
		LevelViewDownloadUpload, LevelViewDownloadUploadEdit, LevelFolderControl:
		return l, nil
	default:
		return "", fmt.Errorf("%w: %q (valid: view_only, view_download, upload_only, view_download_upload, view_download_upload_edit, folder_control)",
			ErrUnknownPermissionLevel, s)
	}
}

// Actions maps the level to the vendor's folder action set. The sets
// are part of the vendor's authorization contract and must be sent
// exactly as listed.
func (l PermissionLevel) Actions() []string {
	switch l {
	case LevelViewOnly:
		return []string{"VIEW", "COLLABORATE"}
	case LevelViewDownload:
		return []string{"VIEW", "DOWNLOAD", "COLLABORATE"}
	case LevelUploadOnly:
		return []string{"PUBLISH"}
	case LevelViewDownloadUpload:
		return []string{"PUBLISH", "VIEW", "DOWNLOAD", "COLLABORATE"}
	case LevelViewDownloadUploadEdit:
		return []string{"PUBLISH", "VIEW", "DOWNLOAD", "COLLABORATE", "EDIT"}
	case LevelFolderControl:
		return []string{"PUBLISH", "VIEW", "DOWNLOAD", "COLLABORATE", "EDIT", "CONTROL"}
	default:
		return nil
	}
}

// ----------------------------------------------------------------------------
// Folder selection
// ----------------------------------------------------------------------------

// Folder spec kinds.
const (
	FolderProjectFiles = "project_files"
	FolderPlans        = "plans"
	FolderCustom       = "custom"
)

const folderCustomPrefix = "custom:"

// FolderSpec selects which folder of each project a folder-rights run
// targets. The well-known kinds are resolved per project by searching
// its top folders; a custom spec carries an explicit folder id used
// as-is.
type FolderSpec struct {
	// Kind is FolderProjectFiles, FolderPlans, or FolderCustom.
	Kind string

	// FolderID is the explicit folder id when Kind is FolderCustom.
	FolderID string
}

// ParseFolderSpec converts user or persisted input into a FolderSpec.
//
// "project-files" (in a few spellings) and "plans" select the
// well-known folders; "custom:<id>" is the persisted custom form; any
// other value is taken to be a folder id.
func ParseFolderSpec(s string) (FolderSpec, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return FolderSpec{}, fmt.Errorf("%w: empty folder selector", ErrInvalidFolderSpec)
	}

	switch strings.ToLower(trimmed) {
	case "project_files", "project-files", "projectfiles", "project files":
		return FolderSpec{Kind: FolderProjectFiles}, nil
	case "plans":
		return FolderSpec{Kind: FolderPlans}, nil
	}

	if rest, ok := strings.CutPrefix(trimmed, folderCustomPrefix); ok {
		id := strings.TrimSpace(rest)
		if id == "" {
			return FolderSpec{}, fmt.Errorf("%w: %q has no folder id", ErrInvalidFolderSpec, s)
		}
		return FolderSpec{Kind: FolderCustom, FolderID: id}, nil
	}
	return FolderSpec{Kind: FolderCustom, FolderID: trimmed}, nil
}

// String returns the persisted form of the spec.
func (f FolderSpec) String() string {
	if f.Kind == FolderCustom {
		return folderCustomPrefix + f.FolderID
	}
	return f.Kind
}

// Validate checks the spec is one of the known kinds.
func (f FolderSpec) Validate() error {
	switch f.Kind {
	case FolderProjectFiles, FolderPlans:
		return nil
	case FolderCustom:
		if f.FolderID == "" {
			return fmt.Errorf("%w: custom folder needs an id", ErrInvalidFolderSpec)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFolderSpec, f.Kind)
	}
}

// searchName is the top-folder search term for the well-known kinds.
func (f FolderSpec) searchName() string {
	switch f.Kind {
	case FolderProjectFiles:
		return "project files"
	case FolderPlans:
		return "plans"
	default:
		return ""
	}
}

// ----------------------------------------------------------------------------
// Operation
// ----------------------------------------------------------------------------

// UpdateFolderRightsParams configures a bulk folder-rights run.
type UpdateFolderRightsParams struct {
	// Email of the user whose folder access changes. Required.
	Email string

	// Level is the access tier to grant. Required.
	Level PermissionLevel

	// Folder selects the target folder in each project. Required.
	Folder FolderSpec

	// Filter narrows the target projects. Nil selects every project in
	// the account.
	Filter *filter.Filter
}

// Validate checks the parameters before any remote call is made.
func (p UpdateFolderRightsParams) Validate() error {
	if p.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidParams)
	}
	if len(p.Level.Actions()) == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownPermissionLevel, string(p.Level))
	}
	return p.Folder.Validate()
}

// UpdateFolderRights grants a user a permission level on one folder of
// every project matching the filter.
//
// Description:
//
//	For the well-known folder kinds each project's top folders are
//	searched by name; a project without a matching folder fails with
//	aps.ErrFolderNotFound, since the grant has no target there. Custom
//	folder ids skip the search and are sent as-is.
func (r *Runner) UpdateFolderRights(ctx context.Context, p UpdateFolderRightsParams, reporter bulk.Reporter) (*bulk.BulkOperationResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	user, err := r.client.FindUserByEmail(ctx, p.Email)
	if err != nil {
		return nil, err
	}

	params := state.Params{
		Email:  p.Email,
		Level:  string(p.Level),
		Folder: p.Folder.String(),
	}
	return r.run(ctx, state.OpUpdateFolderRights, params, p.Filter, r.folderRightsAction(user.ID, p.Level, p.Folder), reporter)
}

// folderRightsAction returns the per-project action for folder-rights.
func (r *Runner) folderRightsAction(userID string, level PermissionLevel, folder FolderSpec) bulk.Action {
	actions := level.Actions()
	return bulk.ActionFunc(func(ctx context.Context, item bulk.ProcessItem) bulk.ItemResult {
		attempts := 0

		folderID := folder.FolderID
		if folder.Kind != FolderCustom {
			name := folder.searchName()
			n, err := bulk.WithRetry(ctx, r.cfg.RetryPolicy(), func(ctx context.Context) error {
				f, err := r.client.FindTopFolder(ctx, item.ProjectID, name)
				if err != nil {
					return err
				}
				folderID = f.ID
				return nil
			})
			attempts += n
			if err != nil {
				return itemFailure(err, attempts)
			}
		}

		if res, ok := r.retry(ctx, &attempts, func(ctx context.Context) error {
			return r.client.UpdateFolderPermissions(ctx, item.ProjectID, folderID, []aps.FolderPermission{{
				SubjectID:   userID,
				SubjectType: aps.SubjectTypeUser,
				Actions:     actions,
			}})
		}); !ok {
			return res
		}
		return itemSuccess(attempts)
	})
}
