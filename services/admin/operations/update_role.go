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

	"github.com/AleutianAI/gantry/services/admin/aps"
	"github.com/AleutianAI/gantry/services/admin/bulk"
	"github.com/AleutianAI/gantry/services/admin/filter"
	"github.com/AleutianAI/gantry/services/admin/state"
)

// UpdateRoleParams configures a bulk update-role run.
type UpdateRoleParams struct {
	// Email of the user whose role changes. Required.
	Email string

	// Role is the role id to assign. Required.
	Role string

	// FromRole optionally restricts the change to projects where the
	// user currently holds this role id. Projects where they hold a
	// different role are left untouched and count as success.
	FromRole string

	// Filter narrows the target projects. Nil selects every project in
	// the account.
	Filter *filter.Filter
}

// Validate checks the parameters before any remote call is made.
func (p UpdateRoleParams) Validate() error {
	if p.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidParams)
	}
	if p.Role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidParams)
	}
	return nil
}

// UpdateRole changes a user's role in every project matching the
// filter.
//
// Description:
//
//	The current membership is fetched per project first. A user who
//	already holds the target role converges as success without a
//	write; with FromRole set, a user holding any other role is left
//	alone and also counts as success. A project where the user is not
//	a member at all fails with ErrNotProjectMember, because the
//	requested end state cannot be reached there.
func (r *Runner) UpdateRole(ctx context.Context, p UpdateRoleParams, reporter bulk.Reporter) (*bulk.BulkOperationResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	user, err := r.client.FindUserByEmail(ctx, p.Email)
	if err != nil {
		return nil, err
	}

	params := state.Params{Email: p.Email, Role: p.Role, FromRole: p.FromRole}
	return r.run(ctx, state.OpUpdateRole, params, p.Filter, r.updateRoleAction(user.ID, p.Role, p.FromRole), reporter)
}

// updateRoleAction returns the per-project action for update-role.
// Role ids are compared exactly; the vendor treats them as opaque.
func (r *Runner) updateRoleAction(userID, roleID, fromRoleID string) bulk.Action {
	return bulk.ActionFunc(func(ctx context.Context, item bulk.ProcessItem) bulk.ItemResult {
		attempts := 0

		var current *aps.ProjectUser
		n, err := bulk.WithRetry(ctx, r.cfg.RetryPolicy(), func(ctx context.Context) error {
			u, err := r.client.GetProjectUser(ctx, item.ProjectID, userID)
			if err != nil {
				return err
			}
			current = u
			return nil
		})
		attempts += n
		if err != nil {
			if aps.IsNotFound(err) {
				return itemFailure(fmt.Errorf("%w: project %s", ErrNotProjectMember, item.ProjectID), attempts)
			}
			return itemFailure(fmt.Errorf("fetching membership: %w", err), attempts)
		}

		if fromRoleID != "" && current.RoleID != fromRoleID {
			return itemSuccess(attempts)
		}
		if current.RoleID == roleID {
			return itemSuccess(attempts)
		}

		if res, ok := r.retry(ctx, &attempts, func(ctx context.Context) error {
			_, err := r.client.UpdateProjectUser(ctx, item.ProjectID, userID, aps.UpdateUserRequest{
				RoleID: roleID,
			})
			return err
		}); !ok {
			return res
		}
		return itemSuccess(attempts)
	})
}
