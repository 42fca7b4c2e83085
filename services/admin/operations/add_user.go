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
	"log/slog"

	"github.com/AleutianAI/gantry/services/admin/aps"
	"github.com/AleutianAI/gantry/services/admin/bulk"
	"github.com/AleutianAI/gantry/services/admin/filter"
	"github.com/AleutianAI/gantry/services/admin/state"
)

// AddUserParams configures a bulk add-user run.
type AddUserParams struct {
	// Email of the user to add. Required; the user must exist in the
	// account.
	Email string

	// Role is the role id to assign in each project. Optional; empty
	// grants the vendor's default membership.
	Role string

	// Filter narrows the target projects. Nil selects every project in
	// the account.
	Filter *filter.Filter
}

// Validate checks the parameters before any remote call is made.
func (p AddUserParams) Validate() error {
	if p.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidParams)
	}
	return nil
}

// AddUser adds a user to every project matching the filter.
//
// Description:
//
//	Resolves the user from their email, then adds them to each target
//	project under the concurrency cap. A project where the user is
//	already a member counts as success without a mutation, so re-runs
//	and resumes converge instead of erroring on their own prior work.
//
// Outputs:
//
//	*bulk.BulkOperationResult - Per-project outcomes; nil when the run
//	                            could not start.
//	error - ErrInvalidParams, aps.ErrUserNotFound, a project listing
//	        or state error, or ctx.Err() after cancellation.
func (r *Runner) AddUser(ctx context.Context, p AddUserParams, reporter bulk.Reporter) (*bulk.BulkOperationResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	user, err := r.client.FindUserByEmail(ctx, p.Email)
	if err != nil {
		return nil, err
	}
	r.log.Debug("resolved target user",
		slog.String("email", p.Email),
		slog.String("user_id", user.ID))

	params := state.Params{Email: p.Email, Role: p.Role}
	return r.run(ctx, state.OpAddUser, params, p.Filter, r.addUserAction(user.ID, p.Role), reporter)
}

// addUserAction returns the per-project action for add-user. The
// membership check runs first so an existing member converges without
// a write.
func (r *Runner) addUserAction(userID, roleID string) bulk.Action {
	return bulk.ActionFunc(func(ctx context.Context, item bulk.ProcessItem) bulk.ItemResult {
		attempts := 0

		var member bool
		if res, ok := r.retry(ctx, &attempts, func(ctx context.Context) error {
			exists, err := r.client.ProjectUserExists(ctx, item.ProjectID, userID)
			if err != nil {
				return fmt.Errorf("checking membership: %w", err)
			}
			member = exists
			return nil
		}); !ok {
			return res
		}
		if member {
			return itemSuccess(attempts)
		}

		if res, ok := r.retry(ctx, &attempts, func(ctx context.Context) error {
			_, err := r.client.AddProjectUser(ctx, item.ProjectID, aps.AddUserRequest{
				UserID: userID,
				RoleID: roleID,
			})
			return err
		}); !ok {
			return res
		}
		return itemSuccess(attempts)
	})
}
