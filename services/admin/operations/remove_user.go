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

// RemoveUserParams configures a bulk remove-user run.
type RemoveUserParams struct {
	// Email of the user to remove. Required.
	Email string

	// Filter narrows the target projects. Nil selects every project in
	// the account.
	Filter *filter.Filter
}

// Validate checks the parameters before any remote call is made.
func (p RemoveUserParams) Validate() error {
	if p.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidParams)
	}
	return nil
}

// RemoveUser removes a user from every project matching the filter.
// A project where the user is already absent counts as success, which
// also absorbs the race where someone else removes them between the
// membership check and the delete.
func (r *Runner) RemoveUser(ctx context.Context, p RemoveUserParams, reporter bulk.Reporter) (*bulk.BulkOperationResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	user, err := r.client.FindUserByEmail(ctx, p.Email)
	if err != nil {
		return nil, err
	}

	params := state.Params{Email: p.Email}
	return r.run(ctx, state.OpRemoveUser, params, p.Filter, r.removeUserAction(user.ID), reporter)
}

// removeUserAction returns the per-project action for remove-user.
func (r *Runner) removeUserAction(userID string) bulk.Action {
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
		if !member {
			return itemSuccess(attempts)
		}

		n, err := bulk.WithRetry(ctx, r.cfg.RetryPolicy(), func(ctx context.Context) error {
			return r.client.RemoveProjectUser(ctx, item.ProjectID, userID)
		})
		attempts += n
		if err != nil {
			// Deleted out from under us between check and delete; the
			// desired end state holds.
			if aps.IsNotFound(err) {
				return itemSuccess(attempts)
			}
			return itemFailure(err, attempts)
		}
		return itemSuccess(attempts)
	})
}
