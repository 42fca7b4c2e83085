// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/gantry/pkg/ux"
	"github.com/AleutianAI/gantry/pkg/validation"
	"github.com/AleutianAI/gantry/services/admin/bulk"
	"github.com/AleutianAI/gantry/services/admin/state"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	opsStatusFilter string
	opsLimit        int
	opsConcurrency  int
	opsYes          bool
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// opsCmd is the parent operation management command.
var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "Inspect and manage recorded bulk operations",
	Long: `Commands for the operation records gantry keeps under the state
directory: list past runs, inspect one, resume an interrupted run,
cancel an in-flight one, or delete a record.

Examples:
  gantry ops list --status failed
  gantry ops status
  gantry ops resume 1b7a9c64-33e0-4d5a-9a69-0f2f62c1a001
  gantry ops cancel --yes
  gantry ops delete 1b7a9c64-33e0-4d5a-9a69-0f2f62c1a001`,
}

// opsListCmd lists stored operations.
var opsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded operations, most recent first",
	Run:   runOpsList,
}

// opsStatusCmd shows one operation in detail.
var opsStatusCmd = &cobra.Command{
	Use:   "status [operation-id]",
	Short: "Show one operation's progress and failures",
	Long: `Show the stored record for an operation: its status, progress
counts, and any failed projects. Without an id the most recently
updated operation is shown.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runOpsStatus,
}

// opsResumeCmd resumes an interrupted operation.
var opsResumeCmd = &cobra.Command{
	Use:   "resume [operation-id]",
	Short: "Resume an interrupted or partially failed operation",
	Long: `Re-run every project in the record whose last outcome is not
success. Projects that already succeeded are left untouched. Without an
id the most recently updated resumable operation is picked.

Completed and cancelled operations cannot be resumed.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runOpsResume,
}

// opsCancelCmd cancels an in-progress operation.
var opsCancelCmd = &cobra.Command{
	Use:   "cancel [operation-id]",
	Short: "Cancel a pending or in-progress operation",
	Long: `Mark a pending or in-progress operation cancelled. A cancelled
record cannot be resumed; use this to retire a run you do not intend to
finish. Without an id the most recent active operation is picked.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runOpsCancel,
}

// opsDeleteCmd deletes an operation record.
var opsDeleteCmd = &cobra.Command{
	Use:   "delete <operation-id>",
	Short: "Delete an operation record from the state directory",
	Args:  cobra.ExactArgs(1),
	Run:   runOpsDelete,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	opsListCmd.Flags().StringVar(&opsStatusFilter, "status", "",
		"Filter by status: pending, in-progress, completed, failed, cancelled")
	opsListCmd.Flags().IntVar(&opsLimit, "limit", 10,
		"Maximum operations to show")

	opsResumeCmd.Flags().IntVar(&opsConcurrency, "concurrency", 0,
		"Override the concurrency for the resumed run (default from config)")
	opsResumeCmd.Flags().BoolVarP(&opsYes, "yes", "y", false,
		"Skip the confirmation prompt")
	opsCancelCmd.Flags().BoolVarP(&opsYes, "yes", "y", false,
		"Skip the confirmation prompt")
	opsDeleteCmd.Flags().BoolVarP(&opsYes, "yes", "y", false,
		"Skip the confirmation prompt")

	opsCmd.AddCommand(opsListCmd)
	opsCmd.AddCommand(opsStatusCmd)
	opsCmd.AddCommand(opsResumeCmd)
	opsCmd.AddCommand(opsCancelCmd)
	opsCmd.AddCommand(opsDeleteCmd)

	rootCmd.AddCommand(opsCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runOpsList(cmd *cobra.Command, args []string) {
	start := time.Now()
	store, err := newStore()
	if err != nil {
		failSetup("state store unavailable", err)
	}
	ctx := context.Background()

	sums, err := store.List(ctx)
	if err != nil {
		failSetup("failed to list operations", err)
	}
	if opsStatusFilter != "" {
		want, err := parseStatusFilter(opsStatusFilter)
		if err != nil {
			failSetup("invalid status filter", err)
		}
		kept := sums[:0]
		for _, s := range sums {
			if s.Status == want {
				kept = append(kept, s)
			}
		}
		sums = kept
	}
	if opsLimit > 0 && len(sums) > opsLimit {
		sums = sums[:opsLimit]
	}

	if flagJSON {
		if err := OutputResult("ops list", start, sums, nil); err != nil {
			failSetup("failed to encode JSON", err)
		}
		exit(ExitSuccess)
	}
	if len(sums) == 0 {
		printer.Warning("No operations found")
		exit(ExitSuccess)
	}
	displayOperationList(printer, sums)
	exit(ExitSuccess)
}

func runOpsStatus(cmd *cobra.Command, args []string) {
	start := time.Now()
	store, err := newStore()
	if err != nil {
		failSetup("state store unavailable", err)
	}
	ctx := context.Background()

	id, err := resolveOperationID(ctx, store, args, nil)
	if err != nil {
		failSetup("no operation found", err)
	}
	st, err := store.Load(ctx, id)
	if err != nil {
		failSetup("failed to load the operation", err)
	}

	if flagJSON {
		if err := OutputResult("ops status", start, st, nil); err != nil {
			failSetup("failed to encode JSON", err)
		}
		exit(ExitSuccess)
	}
	displayOperationStatus(printer, st)
	exit(ExitSuccess)
}

func runOpsResume(cmd *cobra.Command, args []string) {
	start := time.Now()
	deps, err := buildRuntime(opsConcurrency, false)
	if err != nil {
		failSetup("setup failed", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	id, err := resolveOperationID(ctx, deps.store, args, func(s state.OperationSummary) bool {
		return s.Status != state.StatusCompleted && s.Status != state.StatusCancelled
	})
	if err != nil {
		failSetup("no operation to resume", err)
	}
	st, err := deps.store.Load(ctx, id)
	if err != nil {
		failSetup("failed to load the operation", err)
	}
	if err := st.CanResume(); err != nil {
		failSetup("cannot resume", err)
	}

	remaining := len(st.ResumeItems())
	printer.Info(fmt.Sprintf("Resuming %s: %d project(s) remaining", id, remaining))
	if remaining > 0 && !opsYes && printer.Mode() != ux.ModeMachine {
		if !promptYesNo(fmt.Sprintf("Resume %s across %d project(s)?", st.OperationType, remaining)) {
			printer.Muted("Aborted")
			exit(ExitFailure)
		}
	}

	line := printer.NewProgressLine("resume " + string(st.OperationType))
	reporter := bulk.ReporterFunc(func(u bulk.ProgressUpdate) {
		line.Update(u.Total, u.Completed, u.Skipped, u.Failed)
	})

	res, runErr := deps.runner.Resume(ctx, id, reporter)
	line.Finish()

	exit(renderRunOutcome("ops resume", start, res, runErr))
}

func runOpsCancel(cmd *cobra.Command, args []string) {
	start := time.Now()
	store, err := newStore()
	if err != nil {
		failSetup("state store unavailable", err)
	}
	ctx := context.Background()

	id, err := resolveOperationID(ctx, store, args, func(s state.OperationSummary) bool {
		return s.Status == state.StatusPending || s.Status == state.StatusInProgress
	})
	if err != nil {
		failSetup("no active operation to cancel", err)
	}
	st, err := store.Load(ctx, id)
	if err != nil {
		failSetup("failed to load the operation", err)
	}

	printer.Info(fmt.Sprintf("Cancelling %s (%s, %s)", id, st.OperationType, st.Status))
	if !opsYes && printer.Mode() != ux.ModeMachine {
		if !promptYesNo("Cancel this operation? It cannot be resumed afterwards") {
			printer.Muted("Aborted")
			exit(ExitFailure)
		}
	}

	if err := store.MarkCancelled(ctx, id); err != nil {
		failSetup("failed to cancel the operation", err)
	}

	completed, skipped, failed, _ := st.Counts()
	if flagJSON {
		updated, err := store.Load(ctx, id)
		if err != nil {
			failSetup("failed to reload the operation", err)
		}
		if err := OutputResult("ops cancel", start, updated.Summary(), nil); err != nil {
			failSetup("failed to encode JSON", err)
		}
		exit(ExitSuccess)
	}
	printer.Success("Operation cancelled")
	printer.Info(fmt.Sprintf("Processed %d/%d before cancellation",
		completed+skipped+failed, len(st.Items)))
	exit(ExitSuccess)
}

func runOpsDelete(cmd *cobra.Command, args []string) {
	start := time.Now()
	store, err := newStore()
	if err != nil {
		failSetup("state store unavailable", err)
	}
	ctx := context.Background()
	id := args[0]
	if err := validation.ValidateOperationID(id); err != nil {
		failSetup("invalid operation id", err)
	}

	// Confirm against the loaded record so a typo'd id fails here, not
	// after the prompt.
	st, err := store.Load(ctx, id)
	if err != nil {
		failSetup("failed to load the operation", err)
	}
	if !opsYes && printer.Mode() != ux.ModeMachine {
		if !promptYesNo(fmt.Sprintf("Delete the record for %s (%s)?", id, st.OperationType)) {
			printer.Muted("Aborted")
			exit(ExitFailure)
		}
	}

	if err := store.Delete(ctx, id); err != nil {
		failSetup("failed to delete the operation", err)
	}

	if flagJSON {
		data := struct {
			OperationID string `json:"operation_id"`
		}{id}
		if err := OutputResult("ops delete", start, data, nil); err != nil {
			failSetup("failed to encode JSON", err)
		}
		exit(ExitSuccess)
	}
	printer.Success("Operation record deleted")
	exit(ExitSuccess)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// resolveOperationID returns the explicit id from args, or the most
// recently updated operation passing the eligibility check. A nil
// check accepts any operation.
func resolveOperationID(ctx context.Context, store *state.Store, args []string,
	eligible func(state.OperationSummary) bool) (string, error) {
	if len(args) > 0 {
		if err := validation.ValidateOperationID(args[0]); err != nil {
			return "", err
		}
		return args[0], nil
	}
	sums, err := store.List(ctx)
	if err != nil {
		return "", err
	}
	for _, s := range sums {
		if eligible == nil || eligible(s) {
			return s.OperationID, nil
		}
	}
	return "", fmt.Errorf("no matching operation in %s", store.Dir())
}

// parseStatusFilter converts a user-supplied status name, tolerating
// hyphens for underscores.
func parseStatusFilter(s string) (state.OperationStatus, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch st := state.OperationStatus(normalized); st {
	case state.StatusPending, state.StatusInProgress, state.StatusCompleted,
		state.StatusFailed, state.StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}
