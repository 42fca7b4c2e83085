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
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/gantry/pkg/ux"
	"github.com/AleutianAI/gantry/services/admin/aps"
	"github.com/AleutianAI/gantry/services/admin/filter"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	projectsFilter   string
	projectsStatus   string
	projectsPlatform string
	projectsLimit    int
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// projectsCmd is the parent projects command.
var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Inspect the account's projects",
}

// projectsListCmd lists projects with filtering.
var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects, optionally filtered",
	Long: `List every project in the account, filtered by the same expression
syntax the bulk commands accept. Useful for checking what a filter
matches before running a mutation against it.

Examples:
  gantry projects list
  gantry projects list --filter "name:*Hospital*"
  gantry projects list --status active --platform acc
  gantry projects list --filter "created:>2024-01-01" --limit 20`,
	Run: runProjectsList,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	projectsListCmd.Flags().StringVarP(&projectsFilter, "filter", "f", "",
		"Project filter expression (e.g. \"name:*Hospital*,status:active\")")
	projectsListCmd.Flags().StringVar(&projectsStatus, "status", "",
		"Project status: active, inactive, archived")
	projectsListCmd.Flags().StringVar(&projectsPlatform, "platform", "all",
		"Platform: acc, bim360, all")
	projectsListCmd.Flags().IntVar(&projectsLimit, "limit", 0,
		"Maximum projects to return (0 = all)")

	projectsCmd.AddCommand(projectsListCmd)

	rootCmd.AddCommand(projectsCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runProjectsList(cmd *cobra.Command, args []string) {
	start := time.Now()

	// Fold the convenience flags into the filter expression so every
	// selector goes through one parser.
	var parts []string
	if projectsFilter != "" {
		parts = append(parts, projectsFilter)
	}
	if projectsStatus != "" {
		parts = append(parts, "status:"+projectsStatus)
	}
	if projectsPlatform != "" && projectsPlatform != "all" {
		parts = append(parts, "platform:"+projectsPlatform)
	}

	var flt *filter.Filter
	if len(parts) > 0 {
		f, err := filter.Parse(strings.Join(parts, ","))
		if err != nil {
			failSetup("invalid filter", err)
		}
		flt = f
	}

	client, err := buildClient()
	if err != nil {
		failSetup("setup failed", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var projects []aps.Project
	err = ux.Spin(printer, "Fetching projects", func() error {
		var listErr error
		projects, listErr = client.ListProjects(ctx)
		return listErr
	})
	if err != nil {
		OutputError(flagJSON, "failed to list projects", err)
		exit(ExitFailure)
	}
	if flt != nil {
		projects = flt.Apply(projects)
	}
	if projectsLimit > 0 && len(projects) > projectsLimit {
		projects = projects[:projectsLimit]
	}

	if flagJSON {
		if err := OutputResult("projects list", start, projects, nil); err != nil {
			failSetup("failed to encode JSON", err)
		}
		exit(ExitSuccess)
	}
	if len(projects) == 0 {
		printer.Warning("No projects matched the filter")
		exit(ExitSuccess)
	}
	displayProjectList(printer, projects)
	exit(ExitSuccess)
}
