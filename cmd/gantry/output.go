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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/AleutianAI/gantry/pkg/ux"
	"github.com/AleutianAI/gantry/services/admin/aps"
	"github.com/AleutianAI/gantry/services/admin/bulk"
	"github.com/AleutianAI/gantry/services/admin/filter"
	"github.com/AleutianAI/gantry/services/admin/state"
)

// Exit codes for CLI commands.
const (
	ExitSuccess   = 0 // Run completed, nothing failed
	ExitPartial   = 1 // Run completed, but some projects failed
	ExitFailure   = 2 // Run could not start or failed outright
	ExitCancelled = 3 // Run aborted mid-flight (SIGINT)
)

// CommandResult wraps command output with metadata.
type CommandResult struct {
	APIVersion string      `json:"api_version"`
	Command    string      `json:"command"`
	Timestamp  time.Time   `json:"timestamp"`
	DurationMs int64       `json:"duration_ms"`
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// OutputJSON writes structured data as JSON to stdout.
func OutputJSON(data interface{}, compact bool) error {
	encoder := json.NewEncoder(os.Stdout)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// OutputError writes an error in the appropriate format.
//
// # Inputs
//
//   - jsonMode: If true, output as JSON to stdout.
//   - msg: Human-readable error message.
//   - err: The underlying error.
func OutputError(jsonMode bool, msg string, err error) {
	if jsonMode {
		result := CommandResult{
			APIVersion: "1.0",
			Timestamp:  time.Now(),
			Success:    false,
			Error:      fmt.Sprintf("%s: %v", msg, err),
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		encoder.Encode(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	}
}

// OutputResult wraps data in the standard envelope and writes it as
// JSON to stdout. Used by every command when --json is set.
func OutputResult(cmd string, start time.Time, data interface{}, runErr error) error {
	result := CommandResult{
		APIVersion: "1.0",
		Command:    cmd,
		Timestamp:  time.Now(),
		DurationMs: time.Since(start).Milliseconds(),
		Success:    runErr == nil,
		Data:       data,
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	return OutputJSON(result, flagCompact)
}

// exitCodeFor maps a finished bulk run to its process exit code.
func exitCodeFor(res *bulk.BulkOperationResult, err error) int {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return ExitCancelled
		}
		return ExitFailure
	}
	if res != nil && res.Failed > 0 {
		return ExitPartial
	}
	return ExitSuccess
}

// exit flushes telemetry before terminating the process. Deferred
// functions do not run past os.Exit, so every command path funnels
// through here.
func exit(code int) {
	if telemetryShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = telemetryShutdown(ctx)
		cancel()
	}
	os.Exit(code)
}

// failSetup reports an error that prevented the command from starting
// and terminates with ExitFailure.
func failSetup(msg string, err error) {
	OutputError(flagJSON, msg, err)
	exit(ExitFailure)
}

// BulkResultOutput is the serialized form of a finished bulk run.
type BulkResultOutput struct {
	OperationID  string             `json:"operation_id"`
	Total        int                `json:"total"`
	Completed    int                `json:"completed"`
	Skipped      int                `json:"skipped"`
	Failed       int                `json:"failed"`
	DurationSecs float64            `json:"duration_secs"`
	Details      []BulkResultDetail `json:"details"`
}

// BulkResultDetail is one project's outcome in serialized form.
type BulkResultDetail struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name,omitempty"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Attempts    int    `json:"attempts"`
}

// buildBulkResultOutput flattens a run result for JSON output. The
// message carries the skip reason or the failure error, whichever the
// outcome produced.
func buildBulkResultOutput(res *bulk.BulkOperationResult) BulkResultOutput {
	details := make([]BulkResultDetail, 0, len(res.Details))
	for _, d := range res.Details {
		detail := BulkResultDetail{
			ProjectID:   d.ProjectID,
			ProjectName: d.ProjectName,
			Status:      string(d.Result.Kind),
			Attempts:    d.Result.Attempts,
		}
		switch d.Result.Kind {
		case bulk.ResultSkipped:
			detail.Message = d.Result.Reason
		case bulk.ResultFailed:
			if d.Result.Err != nil {
				detail.Message = d.Result.Err.Error()
			}
		}
		details = append(details, detail)
	}
	return BulkResultOutput{
		OperationID:  res.OperationID,
		Total:        res.Total,
		Completed:    res.Completed,
		Skipped:      res.Skipped,
		Failed:       res.Failed,
		DurationSecs: res.Duration.Seconds(),
		Details:      details,
	}
}

// displayBulkResult renders a finished run for a human (or, in machine
// mode, as stable summary lines).
func displayBulkResult(p *ux.Printer, res *bulk.BulkOperationResult) {
	out := buildBulkResultOutput(res)

	if p.Mode() == ux.ModeMachine {
		p.Summary(res.Completed, res.Skipped, res.Failed, res.Total)
		for _, d := range out.Details {
			if d.Status != string(bulk.ResultFailed) {
				continue
			}
			p.ItemStatus(projectLabel(d), ux.IconError, failureMessage(d))
		}
		return
	}

	p.Title("Bulk Operation Results")
	p.Divider(60)
	p.KeyValue("Operation:", out.OperationID)
	p.KeyValue("Total:", strconv.Itoa(out.Total))
	p.KeyValue("Completed:", strconv.Itoa(out.Completed))
	p.KeyValue("Skipped:", strconv.Itoa(out.Skipped))
	p.KeyValue("Failed:", strconv.Itoa(out.Failed))
	p.KeyValue("Duration:", fmt.Sprintf("%.2fs", out.DurationSecs))
	p.Divider(60)

	if res.Failed > 0 {
		p.Title("Failed Projects")
		for _, d := range out.Details {
			if d.Status != string(bulk.ResultFailed) {
				continue
			}
			p.ItemStatus(projectLabel(d), ux.IconError, failureMessage(d))
		}
	}

	if res.Failed == 0 && res.Total > 0 {
		p.Success("Operation completed successfully")
	} else if res.Failed > 0 {
		p.Warning(fmt.Sprintf("Operation completed with %d failure(s)", res.Failed))
		p.Muted(fmt.Sprintf("Run 'gantry ops resume %s' to retry the failed projects", res.OperationID))
	}
}

func projectLabel(d BulkResultDetail) string {
	if d.ProjectName != "" {
		return d.ProjectName
	}
	return d.ProjectID
}

func failureMessage(d BulkResultDetail) string {
	if d.Message != "" {
		return d.Message
	}
	return "unknown error"
}

// displayOperationList renders stored operation summaries: a table for
// humans, tab-separated lines for machines.
func displayOperationList(p *ux.Printer, sums []state.OperationSummary) {
	if p.Mode() == ux.ModeMachine {
		for _, s := range sums {
			fmt.Fprintf(p.Out(), "%s\t%s\t%s\t%d/%d\t%s\n",
				s.OperationID, s.OperationType, s.Status,
				s.Completed+s.Skipped+s.Failed, s.Total,
				s.UpdatedAt.Format(time.RFC3339))
		}
		return
	}

	p.Title("Operations")
	p.Divider(100)
	fmt.Fprintf(p.Out(), "%-38s %-22s %-14s %-10s %s\n", "ID", "Type", "Status", "Progress", "Updated")
	p.Divider(100)
	for _, s := range sums {
		progress := fmt.Sprintf("%d/%d", s.Completed+s.Skipped+s.Failed, s.Total)
		fmt.Fprintf(p.Out(), "%-38s %-22s %s %-10s %s\n",
			s.OperationID, string(s.OperationType),
			statusCell(p.Mode(), s.Status, 14), progress,
			s.UpdatedAt.Format(time.RFC3339))
	}
	p.Divider(100)
	p.Info(fmt.Sprintf("%d operation(s) found", len(sums)))
}

// displayOperationStatus renders one stored operation in detail,
// including the projects that failed.
func displayOperationStatus(p *ux.Printer, st *state.OperationState) {
	sum := st.Summary()
	resolved := sum.Completed + sum.Skipped + sum.Failed
	progress := fmt.Sprintf("%d/%d", resolved, sum.Total)
	if sum.Total > 0 {
		progress = fmt.Sprintf("%s (%.0f%%)", progress, float64(resolved)/float64(sum.Total)*100)
	}

	p.Title("Operation Status")
	p.Divider(60)
	p.KeyValue("Operation:", sum.OperationID)
	p.KeyValue("Type:", string(sum.OperationType))
	p.KeyValue("Status:", statusCell(p.Mode(), sum.Status, 0))
	p.KeyValue("Progress:", progress)
	p.KeyValue("Completed:", strconv.Itoa(sum.Completed))
	p.KeyValue("Skipped:", strconv.Itoa(sum.Skipped))
	p.KeyValue("Failed:", strconv.Itoa(sum.Failed))
	p.KeyValue("Created:", sum.CreatedAt.Format(time.RFC3339))
	p.KeyValue("Updated:", sum.UpdatedAt.Format(time.RFC3339))
	p.Divider(60)

	if sum.Failed > 0 {
		p.Title("Failed Projects")
		for _, it := range st.Items {
			if it.Status != state.ItemFailed {
				continue
			}
			name := it.ProjectName
			if name == "" {
				name = it.ProjectID
			}
			msg := it.Error
			if msg == "" {
				msg = "unknown error"
			}
			p.ItemStatus(name, ux.IconError, msg)
		}
	}
}

// displayProjectList renders projects: a table for humans,
// tab-separated lines for machines.
func displayProjectList(p *ux.Printer, projects []aps.Project) {
	if p.Mode() == ux.ModeMachine {
		for _, pr := range projects {
			fmt.Fprintf(p.Out(), "%s\t%s\t%s\t%s\t%s\n",
				pr.ID, pr.Name, pr.Status, pr.Platform, formatCreated(pr.CreatedAt))
		}
		return
	}

	p.Title("Projects")
	p.Divider(100)
	fmt.Fprintf(p.Out(), "%-38s %-30s %-10s %-10s %s\n", "ID", "Name", "Status", "Platform", "Created")
	p.Divider(100)
	for _, pr := range projects {
		fmt.Fprintf(p.Out(), "%-38s %-30s %s %-10s %s\n",
			pr.ID, truncateName(pr.Name, 28),
			projectStatusCell(p.Mode(), pr.Status, 10),
			pr.Platform, formatCreated(pr.CreatedAt))
	}
	p.Divider(100)
	p.Info(fmt.Sprintf("%d project(s) found", len(projects)))
}

func formatCreated(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

// truncateName keeps table rows on one line. Counts runes, not bytes,
// so multi-byte names do not get split mid-character.
func truncateName(name string, max int) string {
	r := []rune(name)
	if len(r) <= max {
		return name
	}
	return string(r[:max-3]) + "..."
}

func projectStatusCell(mode ux.Mode, status string, width int) string {
	if status == "" {
		status = "unknown"
	}
	cell := status
	if width > 0 {
		cell = fmt.Sprintf("%-*s", width, cell)
	}
	if mode != ux.ModePretty {
		return cell
	}
	switch status {
	case filter.StatusActive:
		return ux.Styles.Success.Render(cell)
	case filter.StatusInactive:
		return ux.Styles.Warning.Render(cell)
	case filter.StatusArchived:
		return ux.Styles.Muted.Render(cell)
	default:
		return cell
	}
}

// statusCell pads the status to the column width, then colors it in
// pretty mode. Padding happens before styling so the ANSI escapes do
// not throw off the column alignment.
func statusCell(mode ux.Mode, s state.OperationStatus, width int) string {
	cell := string(s)
	if width > 0 {
		cell = fmt.Sprintf("%-*s", width, cell)
	}
	if mode != ux.ModePretty {
		return cell
	}
	switch s {
	case state.StatusCompleted:
		return ux.Styles.Success.Render(cell)
	case state.StatusFailed:
		return ux.Styles.Error.Render(cell)
	case state.StatusInProgress, state.StatusPending:
		return ux.Styles.Warning.Render(cell)
	case state.StatusCancelled:
		return ux.Styles.Muted.Render(cell)
	default:
		return cell
	}
}
