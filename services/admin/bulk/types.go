// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bulk executes one administrative action across many projects
// under a concurrency cap, with retry-on-transient-failure, progress
// reporting, and per-item outcome aggregation.
//
// The package is deliberately split into two halves:
//
//   - A pure policy half (ExponentialBackoff, IsRetryableStatus,
//     RetryPolicy) that computes delays and classifies failures without
//     performing any I/O or sleeping.
//   - An execution half (Executor, WithRetry) that owns the worker pool
//     and the retry loop and consumes the policy half.
//
// Callers supply the per-item work as an Action and observe progress
// through a Reporter; both are single-method interfaces with function
// adapters, so closures, structs, and channels all fit.
package bulk

import (
	"time"
)

// ProcessItem identifies one project-scoped unit of work within a bulk
// operation. Items are immutable once a run starts.
type ProcessItem struct {
	// ProjectID is the vendor project identifier. Required.
	ProjectID string `json:"project_id"`

	// ProjectName is the human-readable project name, carried through
	// to details and progress output. May be empty.
	ProjectName string `json:"project_name,omitempty"`
}

// ItemResultKind discriminates the outcome of a single item.
type ItemResultKind string

const (
	// ResultSuccess means the remote mutation was applied (or was
	// already in the desired state).
	ResultSuccess ItemResultKind = "success"

	// ResultSkipped means the item was intentionally not executed.
	// Only the Executor produces skipped outcomes, and only in
	// dry-run mode.
	ResultSkipped ItemResultKind = "skipped"

	// ResultFailed means the item's action failed terminally, after
	// exhausting any retries it was entitled to.
	ResultFailed ItemResultKind = "failed"
)

// ItemResult is the outcome of processing one item. Exactly one is
// produced per item per run.
type ItemResult struct {
	// Kind discriminates the variant.
	Kind ItemResultKind

	// Reason explains a skipped outcome ("dry-run mode").
	Reason string

	// Err is the terminal error for a failed outcome.
	Err error

	// Retryable marks a failure whose underlying cause was transient
	// but which exhausted its retry budget.
	Retryable bool

	// Attempts counts remote invocations behind this outcome. Actions
	// that retry internally set it; the Executor defaults it to 1 for
	// executed items and leaves it 0 for items it never ran (dry-run).
	Attempts int
}

// SuccessResult returns a success outcome.
func SuccessResult() ItemResult {
	return ItemResult{Kind: ResultSuccess}
}

// SkippedResult returns a skipped outcome with the given reason.
func SkippedResult(reason string) ItemResult {
	return ItemResult{Kind: ResultSkipped, Reason: reason}
}

// FailedResult returns a terminal failure outcome.
func FailedResult(err error) ItemResult {
	return ItemResult{Kind: ResultFailed, Err: err}
}

// RetryableFailure returns a failure outcome whose cause was transient
// but exhausted the retry budget.
func RetryableFailure(err error) ItemResult {
	return ItemResult{Kind: ResultFailed, Err: err, Retryable: true}
}

// ItemDetail pairs an item with its outcome in a finished run.
// Details are appended in completion order; callers must not rely on
// any particular ordering, only on the identity/outcome pairs.
type ItemDetail struct {
	ProcessItem

	// Result is the item's terminal outcome.
	Result ItemResult
}

// BulkOperationResult aggregates a finished (or cancelled) run.
//
// Invariants, for every run including the empty-item case:
//
//	Total == len(Details)
//	Completed + Skipped + Failed == Total
type BulkOperationResult struct {
	// OperationID is the persisted operation identifier for this run.
	OperationID string

	// Total is the number of items that resolved in this run.
	Total int

	// Completed counts successful items.
	Completed int

	// Skipped counts items skipped by the Executor (dry-run).
	Skipped int

	// Failed counts terminally failed items.
	Failed int

	// Details holds one entry per resolved item, in completion order.
	Details []ItemDetail

	// Duration is wall-clock time from first dispatch to last
	// resolution.
	Duration time.Duration
}

// ProgressUpdate is a point-in-time snapshot of the run counters,
// emitted after each item resolves. Counters are monotonically
// non-decreasing across updates within a run. Total is the planned
// item count for the run, so consumers can render "resolved/planned".
type ProgressUpdate struct {
	Total     int
	Completed int
	Skipped   int
	Failed    int
}

// Resolved returns the number of items that have reached a terminal
// outcome.
func (p ProgressUpdate) Resolved() int {
	return p.Completed + p.Skipped + p.Failed
}
