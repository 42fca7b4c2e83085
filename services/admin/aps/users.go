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
)

// searchUserRequest is the body for the account user search endpoint.
type searchUserRequest struct {
	Email string `json:"email"`
}

// FindUserByEmail looks up an account member by email address.
//
// Outputs:
//
//	*User - The matching account member.
//	error - ErrUserNotFound (wrapped with the email) when no member
//	        matches; otherwise the classified request error.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email is empty", ErrInvalidInput)
	}

	var user User
	url := c.accountAdminURL() + "/users/search"
	if err := c.doJSON(ctx, "find_user", http.MethodPost, url, searchUserRequest{Email: email}, &user); err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
		}
		return nil, err
	}
	return &user, nil
}

// GetProjectUser fetches a user's membership record in one project.
//
// A 404 means the user is not a member of the project; callers that
// only need existence use ProjectUserExists instead of matching the
// status themselves.
func (c *Client) GetProjectUser(ctx context.Context, projectID, userID string) (*ProjectUser, error) {
	var user ProjectUser
	url := fmt.Sprintf("%s/users/%s", c.projectAdminURL(projectID), userID)
	if err := c.doJSON(ctx, "get_project_user", http.MethodGet, url, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ProjectUserExists reports whether the user is a member of the
// project.
func (c *Client) ProjectUserExists(ctx context.Context, projectID, userID string) (bool, error) {
	_, err := c.GetProjectUser(ctx, projectID, userID)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AddProjectUser adds an account member to a project.
func (c *Client) AddProjectUser(ctx context.Context, projectID string, req AddUserRequest) (*ProjectUser, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id is empty", ErrInvalidInput)
	}

	var user ProjectUser
	url := c.projectAdminURL(projectID) + "/users"
	if err := c.doJSON(ctx, "add_project_user", http.MethodPost, url, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProjectUser patches a member's role or product access.
func (c *Client) UpdateProjectUser(ctx context.Context, projectID, userID string, req UpdateUserRequest) (*ProjectUser, error) {
	var user ProjectUser
	url := fmt.Sprintf("%s/users/%s", c.projectAdminURL(projectID), userID)
	if err := c.doJSON(ctx, "update_project_user", http.MethodPatch, url, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RemoveProjectUser removes a member from a project. Removing a user
// who is not a member answers 404, which surfaces as an APIError;
// operations that treat absence as converged handle that with
// IsNotFound.
func (c *Client) RemoveProjectUser(ctx context.Context, projectID, userID string) error {
	url := fmt.Sprintf("%s/users/%s", c.projectAdminURL(projectID), userID)
	return c.doJSON(ctx, "remove_project_user", http.MethodDelete, url, nil, nil)
}
