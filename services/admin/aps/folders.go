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
	"context"
	"fmt"
	"net/http"
	"strings"
)

// The folder endpoints live on the Data Management API, which wraps
// everything in a JSON:API envelope.

type topFoldersResponse struct {
	Data []folderData `json:"data"`
}

type folderData struct {
	ID         string           `json:"id"`
	Attributes folderAttributes `json:"attributes"`
}

type folderAttributes struct {
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
}

// batchPermissionsRequest is the body for the permission batch-update
// endpoint.
type batchPermissionsRequest struct {
	Permissions []FolderPermission `json:"permissions"`
}

// ListTopFolders fetches the top-level folders of a project's Files
// module.
func (c *Client) ListTopFolders(ctx context.Context, projectID string) ([]Folder, error) {
	var resp topFoldersResponse
	url := c.dataProjectURL(projectID) + "/topFolders"
	if err := c.doJSON(ctx, "list_top_folders", http.MethodGet, url, nil, &resp); err != nil {
		return nil, err
	}

	folders := make([]Folder, 0, len(resp.Data))
	for _, d := range resp.Data {
		name := d.Attributes.DisplayName
		if name == "" {
			name = d.Attributes.Name
		}
		folders = append(folders, Folder{ID: d.ID, Name: name})
	}
	return folders, nil
}

// FindTopFolder locates a top-level folder by display name.
//
// Matching is case-insensitive on substring, so "project files"
// matches the vendor's localized "Project Files" variants. A miss
// returns ErrFolderNotFound wrapped with the name and project.
func (c *Client) FindTopFolder(ctx context.Context, projectID, name string) (*Folder, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: folder name is empty", ErrInvalidInput)
	}

	folders, err := c.ListTopFolders(ctx, projectID)
	if err != nil {
		return nil, err
	}

	want := strings.ToLower(name)
	for _, f := range folders {
		if strings.Contains(strings.ToLower(f.Name), want) {
			return &f, nil
		}
	}
	return nil, fmt.Errorf("%w: %q in project %s", ErrFolderNotFound, name, projectID)
}

// UpdateFolderPermissions replaces a set of subjects' grants on one
// folder in a single batch call.
func (c *Client) UpdateFolderPermissions(ctx context.Context, projectID, folderID string, perms []FolderPermission) error {
	if len(perms) == 0 {
		return fmt.Errorf("%w: no permissions given", ErrInvalidInput)
	}

	url := fmt.Sprintf("%s/folders/%s/permissions:batch-update", c.dataProjectURL(projectID), folderID)
	return c.doJSON(ctx, "update_folder_permissions", http.MethodPost, url, batchPermissionsRequest{Permissions: perms}, nil)
}
