// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package operations implements the concrete bulk administrative
// operations: adding a user to projects, removing them, changing their
// role, and updating their folder permissions.
//
// Every operation follows the same pipeline. The target user is
// resolved from their email, the account's projects are listed and
// narrowed by an optional filter, a durable operation record is
// created, and the per-project action runs through the bulk executor
// with each item's outcome persisted as it resolves. The record is
// settled to completed or failed at the end, which is what makes an
// interrupted or partially failed run resumable with Resume.
//
// Per-item actions resolve every project to success or failure. A
// project already in the desired end state (user already a member,
// already absent, already holding the role) counts as success; only
// dry-run produces skipped outcomes, and those come from the executor.
package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/gantry/services/admin/aps"
	"github.com/AleutianAI/gantry/services/admin/bulk"
	"github.com/AleutianAI/gantry/services/admin/filter"
	"github.com/AleutianAI/gantry/services/admin/state"
)

var tracer = otel.Tracer("gantry.admin.operations")

// Client is the slice of the vendor API the bulk operations consume.
// *aps.Client satisfies it; tests substitute fakes.
type Client interface {
	FindUserByEmail(ctx context.Context, email string) (*aps.User, error)
	ListProjects(ctx context.Context) ([]aps.Project, error)
	GetProjectUser(ctx context.Context, projectID, userID string) (*aps.ProjectUser, error)
	ProjectUserExists(ctx context.Context, projectID, userID string) (bool, error)
	AddProjectUser(ctx context.Context, projectID string, req aps.AddUserRequest) (*aps.ProjectUser, error)
	UpdateProjectUser(ctx context.Context, projectID, userID string, req aps.UpdateUserRequest) (*aps.ProjectUser, error)
	RemoveProjectUser(ctx context.Context, projectID, userID string) error
	FindTopFolder(ctx context.Context, projectID, name string) (*aps.Folder, error)
	UpdateFolderPermissions(ctx context.Context, projectID, folderID string, permissions []aps.FolderPermission) error
}

// Config assembles a Runner.
type Config struct {
	// Client performs the remote calls. Required.
	Client Client

	// Store persists operation records for resume. Required.
	Store *state.Store

	// Bulk configures concurrency, dry-run, and retries for every run.
	// The zero value is replaced with bulk.DefaultConfig().
	Bulk bulk.Config

	// Logger receives run-level events.
	// Default: slog.Default()
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Bulk == (bulk.Config{}) {
		c.Bulk = bulk.DefaultConfig()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate checks the configuration for missing collaborators. The
// bulk sub-configuration is validated by the executor it builds.
func (c Config) Validate() error {
	if c.Client == nil {
		return fmt.Errorf("%w: client is required", ErrInvalidConfig)
	}
	if c.Store == nil {
		return fmt.Errorf("%w: state store is required", ErrInvalidConfig)
	}
	return nil
}

// Runner executes bulk operations against the vendor API, recording
// progress in the state store.
//
// # Thread Safety
//
// A Runner is immutable after construction. Concurrent runs are safe
// but share the store's per-operation locking; two runs of the same
// operation id exclude each other.
type Runner struct {
	client Client
	store  *state.Store
	exec   *bulk.Executor
	cfg    bulk.Config
	log    *slog.Logger
}

// NewRunner builds a Runner from the configuration.
func NewRunner(cfg Config) (*Runner, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	exec, err := bulk.NewExecutor(cfg.Bulk)
	if err != nil {
		return nil, err
	}
	return &Runner{
		client: cfg.Client,
		store:  cfg.Store,
		exec:   exec,
		cfg:    cfg.Bulk,
		log:    cfg.Logger.With(slog.String("component", "admin_operations")),
	}, nil
}

// DryRun reports whether this runner previews instead of mutating.
func (r *Runner) DryRun() bool {
	return r.cfg.DryRun
}

// run is the shared pipeline behind the four operation entry points.
//
// Description:
//
//	Lists the account's projects, narrows them with the filter, and
//	executes the action over the remainder. A run that matches no
//	projects returns an empty result and records nothing. Dry runs
//	also leave no record behind; there is nothing to resume because
//	nothing was attempted.
//
//	For a real run the record is created first and is durable before
//	the first action fires. Outcomes are persisted item by item, so a
//	crash at any point leaves a resumable record. Cancellation marks
//	the record cancelled and returns the partial result together with
//	the context error.
func (r *Runner) run(ctx context.Context, opType state.OperationType, params state.Params, flt *filter.Filter, action bulk.Action, reporter bulk.Reporter) (*bulk.BulkOperationResult, error) {
	ctx, span := tracer.Start(ctx, "operations.run", trace.WithAttributes(
		attribute.String("operation_type", string(opType)),
		attribute.Bool("dry_run", r.cfg.DryRun),
	))
	defer span.End()

	items, err := r.selectItems(ctx, flt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "project selection failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("items", len(items)))

	if len(items) == 0 {
		r.log.Info("no projects matched",
			slog.String("operation_type", string(opType)))
		return &bulk.BulkOperationResult{}, nil
	}

	if r.cfg.DryRun {
		return r.exec.Execute(ctx, uuid.NewString(), items, action, reporter)
	}

	st, err := r.store.Create(ctx, opType, params, items)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "state creation failed")
		return nil, err
	}
	if err := r.store.Acquire(st.OperationID); err != nil {
		return nil, err
	}
	defer r.store.Release(st.OperationID)

	if err := r.store.MarkInProgress(ctx, st.OperationID); err != nil {
		return nil, err
	}
	return r.finish(ctx, st.OperationID, items, action, reporter)
}

// finish executes the items and settles the record. Shared between
// fresh runs and resumes; the caller holds the operation lock and has
// already marked the record in progress.
func (r *Runner) finish(ctx context.Context, operationID string, items []bulk.ProcessItem, action bulk.Action, reporter bulk.Reporter) (*bulk.BulkOperationResult, error) {
	result, execErr := r.exec.Execute(ctx, operationID, items, r.recording(operationID, action), reporter)
	if execErr != nil {
		if result != nil {
			// A cancelled record makes a later resume fail fast
			// instead of silently reprocessing aborted work.
			if err := r.store.MarkCancelled(ctx, operationID); err != nil {
				r.log.Warn("failed to mark operation cancelled",
					slog.String("operation_id", operationID),
					slog.Any("error", err))
			}
		}
		return result, execErr
	}

	if _, err := r.store.Finalize(ctx, operationID); err != nil {
		// The run itself finished; the caller still gets the result
		// alongside the settlement failure.
		return result, fmt.Errorf("finalizing operation %s: %w", operationID, err)
	}
	return result, nil
}

// recording wraps an action so each item's outcome is persisted the
// moment it resolves. The store serializes writes, satisfying the
// single-writer discipline on the shared record.
func (r *Runner) recording(operationID string, action bulk.Action) bulk.Action {
	return bulk.ActionFunc(func(ctx context.Context, item bulk.ProcessItem) bulk.ItemResult {
		res := action.Run(ctx, item)
		if err := r.store.Record(ctx, operationID, item.ProjectID, res); err != nil {
			r.log.Warn("failed to record item outcome",
				slog.String("operation_id", operationID),
				slog.String("project_id", item.ProjectID),
				slog.Any("error", err))
		}
		return res
	})
}

// selectItems lists the account's projects and applies the filter.
// A nil filter selects every project.
func (r *Runner) selectItems(ctx context.Context, flt *filter.Filter) ([]bulk.ProcessItem, error) {
	projects, err := r.client.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	if flt != nil {
		projects = flt.Apply(projects)
	}
	items := make([]bulk.ProcessItem, len(projects))
	for i, p := range projects {
		items[i] = bulk.ProcessItem{ProjectID: p.ID, ProjectName: p.Name}
	}
	return items, nil
}

// retry runs op under the runner's retry policy and folds the error
// into an item outcome when it fails. The boolean reports success.
func (r *Runner) retry(ctx context.Context, attempts *int, op func(context.Context) error) (bulk.ItemResult, bool) {
	n, err := bulk.WithRetry(ctx, r.cfg.RetryPolicy(), op)
	*attempts += n
	if err != nil {
		return itemFailure(err, *attempts), false
	}
	return bulk.ItemResult{}, true
}

// itemFailure converts a per-item error into a failed outcome.
// Exhausted transient errors and context interruptions stay marked
// retryable so a resume re-runs them.
func itemFailure(err error, attempts int) bulk.ItemResult {
	res := bulk.FailedResult(err)
	var exhausted *bulk.RetriesExhaustedError
	switch {
	case errors.As(err, &exhausted):
		res.Retryable = true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		res.Retryable = true
	}
	res.Attempts = attempts
	return res
}

// itemSuccess returns a success outcome carrying the attempt count.
func itemSuccess(attempts int) bulk.ItemResult {
	res := bulk.SuccessResult()
	res.Attempts = attempts
	return res
}
