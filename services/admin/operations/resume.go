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
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/gantry/services/admin/bulk"
	"github.com/AleutianAI/gantry/services/admin/state"
)

// Resume continues an interrupted or partially failed operation.
//
// Description:
//
//	Loads the persisted record and re-runs every item whose last
//	outcome is not success, rebuilding the per-item action from the
//	stored parameters; the target user is resolved from their email
//	again, so the record never needs to carry internal ids. Items that
//	already succeeded are left untouched and are not re-invoked.
//
//	A completed or cancelled record is rejected with CannotResumeError
//	before anything runs or mutates. A record whose items all
//	succeeded (a crash between the last item and settlement) is
//	settled now and reported from state without executing anything.
//
//	In dry-run mode the remaining items are previewed through the
//	executor and the record is left entirely untouched.
//
// Outputs:
//
//	*bulk.BulkOperationResult - Outcomes for this resume's items (or
//	                            the recorded outcomes when nothing was
//	                            left to run).
//	error - state.ErrOperationNotFound, *state.CannotResumeError,
//	        state.ErrOperationLocked, ErrInvalidParams for a record
//	        missing its parameters, or ctx.Err() after cancellation.
func (r *Runner) Resume(ctx context.Context, operationID string, reporter bulk.Reporter) (*bulk.BulkOperationResult, error) {
	ctx, span := tracer.Start(ctx, "operations.resume", trace.WithAttributes(
		attribute.String("operation_id", operationID),
		attribute.Bool("dry_run", r.cfg.DryRun),
	))
	defer span.End()

	st, err := r.store.Load(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if err := st.CanResume(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation not resumable")
		return nil, err
	}

	items := st.ResumeItems()
	span.SetAttributes(
		attribute.String("operation_type", string(st.OperationType)),
		attribute.Int("items", len(items)),
	)
	if len(items) == 0 {
		// Every item already succeeded; the run crashed before the
		// record was settled. Settle it now and report from state.
		if _, err := r.store.Finalize(ctx, operationID); err != nil {
			return nil, err
		}
		r.log.Info("operation already complete",
			slog.String("operation_id", operationID))
		return resultFromState(st), nil
	}

	if r.cfg.DryRun {
		action, err := r.actionFromRecord(ctx, st)
		if err != nil {
			return nil, err
		}
		return r.exec.Execute(ctx, operationID, items, action, reporter)
	}

	if err := r.store.Acquire(operationID); err != nil {
		return nil, err
	}
	defer r.store.Release(operationID)

	action, err := r.actionFromRecord(ctx, st)
	if err != nil {
		return nil, err
	}
	if err := r.store.MarkInProgress(ctx, operationID); err != nil {
		return nil, err
	}

	r.log.Info("resuming operation",
		slog.String("operation_id", operationID),
		slog.String("operation_type", string(st.OperationType)),
		slog.Int("remaining", len(items)))
	return r.finish(ctx, operationID, items, action, reporter)
}

// actionFromRecord rebuilds the per-item action from a persisted
// record's type and parameters.
func (r *Runner) actionFromRecord(ctx context.Context, st *state.OperationState) (bulk.Action, error) {
	p := st.Params
	if p.Email == "" {
		return nil, fmt.Errorf("%w: operation %s has no user email", ErrInvalidParams, st.OperationID)
	}
	user, err := r.client.FindUserByEmail(ctx, p.Email)
	if err != nil {
		return nil, err
	}

	switch st.OperationType {
	case state.OpAddUser:
		return r.addUserAction(user.ID, p.Role), nil

	case state.OpRemoveUser:
		return r.removeUserAction(user.ID), nil

	case state.OpUpdateRole:
		if p.Role == "" {
			return nil, fmt.Errorf("%w: operation %s has no target role", ErrInvalidParams, st.OperationID)
		}
		return r.updateRoleAction(user.ID, p.Role, p.FromRole), nil

	case state.OpUpdateFolderRights:
		level, err := ParsePermissionLevel(p.Level)
		if err != nil {
			return nil, fmt.Errorf("operation %s: %w", st.OperationID, err)
		}
		folder, err := ParseFolderSpec(p.Folder)
		if err != nil {
			return nil, fmt.Errorf("operation %s: %w", st.OperationID, err)
		}
		return r.folderRightsAction(user.ID, level, folder), nil

	default:
		return nil, fmt.Errorf("%w: %q", state.ErrUnknownOperationType, string(st.OperationType))
	}
}

// resultFromState reconstructs an aggregate result from recorded item
// outcomes, for resumes that find nothing left to run.
func resultFromState(st *state.OperationState) *bulk.BulkOperationResult {
	res := &bulk.BulkOperationResult{OperationID: st.OperationID}
	for _, it := range st.Items {
		var ir bulk.ItemResult
		switch it.Status {
		case state.ItemSuccess:
			ir = bulk.SuccessResult()
			res.Completed++
		case state.ItemSkipped:
			ir = bulk.SkippedResult(it.Reason)
			res.Skipped++
		case state.ItemFailed:
			ir = bulk.FailedResult(errors.New(it.Error))
			res.Failed++
		default:
			continue
		}
		ir.Attempts = it.Attempts
		res.Total++
		res.Details = append(res.Details, bulk.ItemDetail{
			ProcessItem: bulk.ProcessItem{ProjectID: it.ProjectID, ProjectName: it.ProjectName},
			Result:      ir,
		})
	}
	return res
}
