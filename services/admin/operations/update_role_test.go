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
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/gantry/services/admin/aps"
	"github.com/AleutianAI/gantry/services/admin/state"
)

func TestUpdateRole_ChangesRole(t *testing.T) {
	client := newFakeClient()
	r, store := newTestRunner(t, client, nil)

	result, err := r.UpdateRole(context.Background(), UpdateRoleParams{
		Email: "dev@example.com",
		Role:  "role-new",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Completed)
	require.Len(t, client.updateCalls, 3)
	for _, call := range client.updateCalls {
		assert.Equal(t, "u-1", call.userID)
		assert.Equal(t, "role-new", call.req.RoleID)
	}

	st, err := store.Load(context.Background(), result.OperationID)
	require.NoError(t, err)
	assert.Equal(t, state.OpUpdateRole, st.OperationType)
	assert.Equal(t, "role-new", st.Params.Role)
}

func TestUpdateRole_AlreadyHasRoleConverges(t *testing.T) {
	client := newFakeClient()
	client.getUser = func(projectID string) (*aps.ProjectUser, error) {
		if projectID == "p-1" {
			return &aps.ProjectUser{ID: "u-1", RoleID: "role-new"}, nil
		}
		return &aps.ProjectUser{ID: "u-1", RoleID: "role-old"}, nil
	}
	r, _ := newTestRunner(t, client, nil)

	result, err := r.UpdateRole(context.Background(), UpdateRoleParams{
		Email: "dev@example.com",
		Role:  "role-new",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Completed)
	require.Len(t, client.updateCalls, 2)
	for _, call := range client.updateCalls {
		assert.NotEqual(t, "p-1", call.projectID)
	}
}

func TestUpdateRole_FromRoleRestricts(t *testing.T) {
	client := newFakeClient()
	client.getUser = func(projectID string) (*aps.ProjectUser, error) {
		switch projectID {
		case "p-1":
			return &aps.ProjectUser{ID: "u-1", RoleID: "reviewer"}, nil
		default:
			return &aps.ProjectUser{ID: "u-1", RoleID: "viewer"}, nil
		}
	}
	r, _ := newTestRunner(t, client, nil)

	result, err := r.UpdateRole(context.Background(), UpdateRoleParams{
		Email:    "dev@example.com",
		Role:     "editor",
		FromRole: "reviewer",
	}, nil)
	require.NoError(t, err)

	// Only the project where the user holds the from-role is updated;
	// the rest are untouched successes.
	assert.Equal(t, 3, result.Completed)
	require.Len(t, client.updateCalls, 1)
	assert.Equal(t, "p-1", client.updateCalls[0].projectID)
}

func TestUpdateRole_MissingMemberFails(t *testing.T) {
	client := newFakeClient()
	client.getUser = func(projectID string) (*aps.ProjectUser, error) {
		if projectID == "p-2" {
			return nil, apiErr(http.StatusNotFound)
		}
		return &aps.ProjectUser{ID: "u-1", RoleID: "role-old"}, nil
	}
	r, store := newTestRunner(t, client, nil)

	result, err := r.UpdateRole(context.Background(), UpdateRoleParams{
		Email: "dev@example.com",
		Role:  "role-new",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Completed)
	assert.Equal(t, 1, result.Failed)

	failed := detailFor(t, result, "p-2")
	require.ErrorIs(t, failed.Result.Err, ErrNotProjectMember)
	assert.False(t, failed.Result.Retryable)

	st, err := store.Load(context.Background(), result.OperationID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, st.Status)
}

func TestUpdateRole_Validation(t *testing.T) {
	r, _ := newTestRunner(t, newFakeClient(), nil)

	_, err := r.UpdateRole(context.Background(), UpdateRoleParams{Role: "role-new"}, nil)
	require.ErrorIs(t, err, ErrInvalidParams)

	_, err = r.UpdateRole(context.Background(), UpdateRoleParams{Email: "dev@example.com"}, nil)
	require.ErrorIs(t, err, ErrInvalidParams)
}
