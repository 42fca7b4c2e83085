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
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/gantry/pkg/ux"
	"github.com/AleutianAI/gantry/pkg/validation"
	"github.com/AleutianAI/gantry/services/admin/aps"
	"github.com/AleutianAI/gantry/services/admin/bulk"
	"github.com/AleutianAI/gantry/services/admin/filter"
	"github.com/AleutianAI/gantry/services/admin/operations"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	// Shared flags
	bulkEmail       string
	bulkFilter      string
	bulkProjectIDs  string
	bulkConcurrency int
	bulkDryRun      bool
	bulkYes         bool

	// add-user / update-role
	bulkRole     string
	bulkFromRole string

	// folder-rights
	bulkLevel  string
	bulkFolder string
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// bulkCmd is the parent bulk command.
var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Run an administrative action across many projects",
	Long: `Commands that apply one administrative change to every project
matching a filter, with bounded concurrency and automatic retries.

Each run is recorded under the state directory, so an interrupted run
can be resumed with 'gantry ops resume'.

Target selection:
  --filter       expression such as "name:*Hospital*,status:active"
  --project-ids  file with one project id per line (# comments allowed)

Examples:
  gantry bulk add-user --email jane@example.com --filter "status:active"
  gantry bulk remove-user --email jane@example.com --project-ids ids.txt
  gantry bulk update-role --email jane@example.com --role admin --dry-run
  gantry bulk folder-rights --email jane@example.com --level view-download`,
}

// bulkAddUserCmd adds a user to every matching project.
var bulkAddUserCmd = &cobra.Command{
	Use:   "add-user",
	Short: "Add a user to every matching project",
	Long: `Add a user to every project matching the filter.

The user is looked up in the account by email. Projects where they are
already a member count as success, so re-running is safe.

Examples:
  gantry bulk add-user --email jane@example.com --filter "name:*Hospital*"
  gantry bulk add-user --email jane@example.com --role project_admin --yes
  gantry bulk add-user --email jane@example.com --project-ids ids.txt --dry-run`,
	Run: runBulkAddUser,
}

// bulkRemoveUserCmd removes a user from every matching project.
var bulkRemoveUserCmd = &cobra.Command{
	Use:   "remove-user",
	Short: "Remove a user from every matching project",
	Long: `Remove a user from every project matching the filter.

Projects where the user is not a member count as success, so re-running
is safe.

Examples:
  gantry bulk remove-user --email jane@example.com --filter "status:archived"
  gantry bulk remove-user --email jane@example.com --project-ids ids.txt --yes`,
	Run: runBulkRemoveUser,
}

// bulkUpdateRoleCmd changes a user's role in every matching project.
var bulkUpdateRoleCmd = &cobra.Command{
	Use:   "update-role",
	Short: "Change a user's role in every matching project",
	Long: `Change a user's role in every project matching the filter.

With --from-role the change only applies to projects where the user
currently holds that role; other projects are left untouched and count
as success.

Examples:
  gantry bulk update-role --email jane@example.com --role project_admin
  gantry bulk update-role --email jane@example.com --role viewer --from-role editor
  gantry bulk update-role --email jane@example.com --role admin --dry-run`,
	Run: runBulkUpdateRole,
}

// bulkFolderRightsCmd updates folder permissions in every matching project.
var bulkFolderRightsCmd = &cobra.Command{
	Use:   "folder-rights",
	Short: "Update a user's folder permissions in every matching project",
	Long: `Update a user's permission level on a top folder in every project
matching the filter.

Levels: view-only, view-download, upload-only, view-download-upload,
view-download-upload-edit, folder-control.

The folder is "project-files", "plans", or "custom:<folder-id>" for an
explicit folder id.

Examples:
  gantry bulk folder-rights --email jane@example.com --level view-download
  gantry bulk folder-rights --email jane@example.com --level folder-control --folder plans
  gantry bulk folder-rights --email jane@example.com --level view-only --folder custom:urn:adsk.wipprod:fs.folder:co.abc123`,
	Run: runBulkFolderRights,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	// Shared flags (inherited by subcommands)
	bulkCmd.PersistentFlags().StringVarP(&bulkEmail, "email", "e", "",
		"Email address of the target user (required)")
	bulkCmd.PersistentFlags().StringVarP(&bulkFilter, "filter", "f", "",
		"Project filter expression (e.g. \"name:*Hospital*,status:active\")")
	bulkCmd.PersistentFlags().StringVar(&bulkProjectIDs, "project-ids", "",
		"File containing project ids, one per line")
	bulkCmd.PersistentFlags().IntVar(&bulkConcurrency, "concurrency", 10,
		"Parallel project mutations (default from config, max 50)")
	bulkCmd.PersistentFlags().BoolVar(&bulkDryRun, "dry-run", false,
		"Preview the changes without executing them")
	bulkCmd.PersistentFlags().BoolVarP(&bulkYes, "yes", "y", false,
		"Skip the confirmation prompt")
	bulkCmd.MarkPersistentFlagRequired("email")

	// add-user flags
	bulkAddUserCmd.Flags().StringVarP(&bulkRole, "role", "r", "",
		"Role to assign (empty grants default membership)")

	// update-role flags
	bulkUpdateRoleCmd.Flags().StringVarP(&bulkRole, "role", "r", "",
		"New role to assign (required)")
	bulkUpdateRoleCmd.Flags().StringVar(&bulkFromRole, "from-role", "",
		"Only update users currently holding this role")
	bulkUpdateRoleCmd.MarkFlagRequired("role")

	// folder-rights flags
	bulkFolderRightsCmd.Flags().StringVarP(&bulkLevel, "level", "l", "",
		"Permission level (required; e.g. view-download, folder-control)")
	bulkFolderRightsCmd.Flags().StringVar(&bulkFolder, "folder", "project-files",
		"Folder to update: project-files, plans, or custom:<folder-id>")
	bulkFolderRightsCmd.MarkFlagRequired("level")

	// Add subcommands
	bulkCmd.AddCommand(bulkAddUserCmd)
	bulkCmd.AddCommand(bulkRemoveUserCmd)
	bulkCmd.AddCommand(bulkUpdateRoleCmd)
	bulkCmd.AddCommand(bulkFolderRightsCmd)

	rootCmd.AddCommand(bulkCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runBulkAddUser(cmd *cobra.Command, args []string) {
	email := bulkTargetEmail()
	flt, err := targetFilter(bulkFilter, bulkProjectIDs)
	if err != nil {
		failSetup("invalid project selection", err)
	}
	params := operations.AddUserParams{Email: email, Role: bulkRole, Filter: flt}
	exit(runBulkOperation(cmd, "bulk add-user", flt,
		func(ctx context.Context, r *operations.Runner, rep bulk.Reporter) (*bulk.BulkOperationResult, error) {
			return r.AddUser(ctx, params, rep)
		}))
}

func runBulkRemoveUser(cmd *cobra.Command, args []string) {
	email := bulkTargetEmail()
	flt, err := targetFilter(bulkFilter, bulkProjectIDs)
	if err != nil {
		failSetup("invalid project selection", err)
	}
	params := operations.RemoveUserParams{Email: email, Filter: flt}
	exit(runBulkOperation(cmd, "bulk remove-user", flt,
		func(ctx context.Context, r *operations.Runner, rep bulk.Reporter) (*bulk.BulkOperationResult, error) {
			return r.RemoveUser(ctx, params, rep)
		}))
}

func runBulkUpdateRole(cmd *cobra.Command, args []string) {
	email := bulkTargetEmail()
	flt, err := targetFilter(bulkFilter, bulkProjectIDs)
	if err != nil {
		failSetup("invalid project selection", err)
	}
	params := operations.UpdateRoleParams{
		Email:    email,
		Role:     bulkRole,
		FromRole: bulkFromRole,
		Filter:   flt,
	}
	exit(runBulkOperation(cmd, "bulk update-role", flt,
		func(ctx context.Context, r *operations.Runner, rep bulk.Reporter) (*bulk.BulkOperationResult, error) {
			return r.UpdateRole(ctx, params, rep)
		}))
}

func runBulkFolderRights(cmd *cobra.Command, args []string) {
	email := bulkTargetEmail()
	level, err := operations.ParsePermissionLevel(bulkLevel)
	if err != nil {
		failSetup("invalid permission level", err)
	}
	folder, err := operations.ParseFolderSpec(bulkFolder)
	if err != nil {
		failSetup("invalid folder", err)
	}
	flt, err := targetFilter(bulkFilter, bulkProjectIDs)
	if err != nil {
		failSetup("invalid project selection", err)
	}
	params := operations.UpdateFolderRightsParams{
		Email:  email,
		Level:  level,
		Folder: folder,
		Filter: flt,
	}
	exit(runBulkOperation(cmd, "bulk folder-rights", flt,
		func(ctx context.Context, r *operations.Runner, rep bulk.Reporter) (*bulk.BulkOperationResult, error) {
			return r.UpdateFolderRights(ctx, params, rep)
		}))
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// runBulkOperation is the shared flow for every bulk command: build the
// runtime, preview the target set, confirm, run with live progress, and
// render the outcome.
func runBulkOperation(cmd *cobra.Command, name string, flt *filter.Filter,
	invoke func(context.Context, *operations.Runner, bulk.Reporter) (*bulk.BulkOperationResult, error)) int {
	start := time.Now()

	// Only an explicit --concurrency overrides the config value.
	concurrency := 0
	if cmd.Flags().Changed("concurrency") {
		concurrency = bulkConcurrency
	}

	deps, err := buildRuntime(concurrency, bulkDryRun)
	if err != nil {
		OutputError(flagJSON, "setup failed", err)
		return ExitFailure
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Preview the target set so the confirmation can name a count. The
	// runner lists again when it starts; one extra paged GET is the
	// price of an honest prompt.
	var projects []aps.Project
	err = ux.Spin(printer, "Fetching projects", func() error {
		var listErr error
		projects, listErr = deps.client.ListProjects(ctx)
		return listErr
	})
	if err != nil {
		OutputError(flagJSON, "failed to list projects", err)
		return ExitFailure
	}
	targets := projects
	if flt != nil {
		targets = flt.Apply(projects)
	}
	if len(targets) == 0 {
		printer.Warning("No projects matched; nothing to do")
		if flagJSON {
			_ = OutputResult(name, start, BulkResultOutput{Details: []BulkResultDetail{}}, nil)
		}
		return ExitSuccess
	}

	if !confirmRun(name, len(targets)) {
		printer.Muted("Aborted")
		return ExitFailure
	}

	line := printer.NewProgressLine(name)
	reporter := bulk.ReporterFunc(func(u bulk.ProgressUpdate) {
		line.Update(u.Total, u.Completed, u.Skipped, u.Failed)
	})

	res, runErr := invoke(ctx, deps.runner, reporter)
	line.Finish()

	return renderRunOutcome(name, start, res, runErr)
}

// bulkTargetEmail normalizes --email before it reaches the account
// user search. The API reports addresses in lowercase.
func bulkTargetEmail() string {
	email, err := validation.SanitizeEmail(bulkEmail)
	if err != nil {
		failSetup("invalid --email", err)
	}
	return email
}

// confirmRun asks before mutating. Machine mode and dry runs never
// prompt; --yes skips the prompt for scripts driving a terminal.
func confirmRun(name string, n int) bool {
	printer.Info(fmt.Sprintf("%d project(s) targeted", n))
	if bulkYes || bulkDryRun || printer.Mode() == ux.ModeMachine {
		return true
	}
	return promptYesNo(fmt.Sprintf("Proceed with %s across %d project(s)?", name, n))
}

// renderRunOutcome maps the run result onto output and an exit code.
func renderRunOutcome(name string, start time.Time, res *bulk.BulkOperationResult, err error) int {
	code := exitCodeFor(res, err)

	if flagJSON {
		var data interface{}
		if res != nil {
			data = buildBulkResultOutput(res)
		}
		if encErr := OutputResult(name, start, data, err); encErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", encErr)
			return ExitFailure
		}
		return code
	}

	switch {
	case code == ExitCancelled:
		printer.Warning("Operation cancelled")
		if res != nil {
			printer.Info(fmt.Sprintf("Processed %d/%d before cancellation",
				res.Completed+res.Skipped+res.Failed, res.Total))
			if !bulkDryRun {
				printer.Muted(fmt.Sprintf("Run 'gantry ops resume %s' to pick it back up", res.OperationID))
			}
		}
	case err != nil:
		printer.Error(fmt.Sprintf("%s failed: %v", name, err))
	default:
		displayBulkResult(printer, res)
	}
	return code
}
