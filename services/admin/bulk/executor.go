// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("gantry.admin.bulk")

// DryRunReason is the skip reason recorded for every item of a
// dry-run.
const DryRunReason = "dry-run mode"

// ----------------------------------------------------------------------------
// Metrics
// ----------------------------------------------------------------------------

var (
	bulkMetricsOnce sync.Once
	itemsProcessed  metric.Int64Counter
	itemDuration    metric.Float64Histogram
)

func initBulkMetrics() {
	bulkMetricsOnce.Do(func() {
		meter := otel.Meter("gantry.admin.bulk")
		var err error
		itemsProcessed, err = meter.Int64Counter(
			"gantry.bulk.items_processed",
			metric.WithDescription("Items resolved by the bulk executor, by outcome"),
		)
		if err != nil {
			slog.Warn("failed to create items_processed counter", "error", err)
		}
		itemDuration, err = meter.Float64Histogram(
			"gantry.bulk.item_duration_seconds",
			metric.WithDescription("Wall-clock duration of individual item actions"),
			metric.WithUnit("s"),
		)
		if err != nil {
			slog.Warn("failed to create item_duration histogram", "error", err)
		}
	})
}

// ----------------------------------------------------------------------------
// Capabilities
// ----------------------------------------------------------------------------

// Action performs the administrative mutation for a single project.
//
// Implementations map an item to a success or failed outcome; they
// never return a skipped outcome (only the Executor skips, for
// dry-run). Actions own their retry loop — wrap remote calls in
// WithRetry — and must honor ctx cancellation.
type Action interface {
	Run(ctx context.Context, item ProcessItem) ItemResult
}

// ActionFunc adapts a function to the Action interface.
type ActionFunc func(ctx context.Context, item ProcessItem) ItemResult

// Run invokes the function.
func (f ActionFunc) Run(ctx context.Context, item ProcessItem) ItemResult {
	return f(ctx, item)
}

// Reporter receives a progress snapshot after each item resolves.
//
// Reports are serialized and counters are non-decreasing across
// calls. The Reporter is a best-effort side channel: a panic inside
// Report is recovered and never corrupts aggregation or aborts the
// run.
type Reporter interface {
	Report(update ProgressUpdate)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(update ProgressUpdate)

// Report invokes the function.
func (f ReporterFunc) Report(update ProgressUpdate) {
	f(update)
}

// ----------------------------------------------------------------------------
// Executor
// ----------------------------------------------------------------------------

// Executor runs a per-item action over a list of items with bounded
// concurrency, aggregating outcomes and reporting progress. A failed
// item never halts the remaining items.
//
// # Thread Safety
//
// An Executor is immutable after construction and safe for concurrent
// use; each Execute call maintains its own aggregation state.
type Executor struct {
	cfg Config
	log *slog.Logger
}

// NewExecutor builds an Executor for the given configuration.
//
// Inputs:
//
//	cfg - Run configuration. Validated here; an invalid configuration
//	      is a setup error, reported before any item can be dispatched.
//
// Outputs:
//
//	*Executor - Ready to execute runs.
//	error - ErrInvalidConfig (wrapped) when cfg fails validation.
func NewExecutor(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Executor{
		cfg: cfg,
		log: slog.Default(),
	}, nil
}

// Execute runs action over items under the concurrency cap.
//
// Description:
//
//	Dispatches items to a worker pool holding at most cfg.Concurrency
//	in-flight actions; slots are reused as items finish, so completion
//	order is non-deterministic. Each resolution updates the aggregate
//	counters and notifies the reporter with a consistent snapshot.
//
//	An empty item list is valid and yields an all-zero result. In
//	dry-run mode the action is never invoked and every item resolves
//	as skipped with reason "dry-run mode", through the same
//	aggregation and progress path.
//
//	When ctx is cancelled mid-run, no further items are dispatched;
//	in-flight actions observe the cancellation through ctx. The
//	partial result is returned together with the context error so the
//	caller can mark the persisted run cancelled.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	operationID - Persisted operation identifier, echoed on the result.
//	items - Items to process; empty is valid.
//	action - Per-item capability. May be nil only in dry-run mode.
//	reporter - Progress sink. May be nil.
//
// Outputs:
//
//	*BulkOperationResult - Aggregated outcome; non-nil whenever the
//	                       run started, including cancelled runs.
//	error - Setup error (nil action), or ctx.Err() after cancellation.
//
// Thread Safety: Safe for concurrent calls with distinct arguments.
func (e *Executor) Execute(ctx context.Context, operationID string, items []ProcessItem, action Action, reporter Reporter) (*BulkOperationResult, error) {
	if action == nil && !e.cfg.DryRun {
		return nil, ErrNilAction
	}

	ctx, span := tracer.Start(ctx, "bulk.execute", trace.WithAttributes(
		attribute.String("operation_id", operationID),
		attribute.Int("items", len(items)),
		attribute.Bool("dry_run", e.cfg.DryRun),
		attribute.Int("concurrency", e.cfg.Concurrency),
	))
	defer span.End()

	initBulkMetrics()
	start := time.Now()
	agg := newAggregator(operationID, len(items), reporter, e.log)

	switch {
	case len(items) == 0:
		// Nothing to do; the all-zero result is still well-formed.

	case e.cfg.DryRun:
		for _, item := range items {
			agg.resolve(item, SkippedResult(DryRunReason))
		}

	default:
		var g errgroup.Group
		g.SetLimit(e.cfg.Concurrency)
		for _, item := range items {
			if ctx.Err() != nil {
				// Remaining items are never dispatched; they stay
				// pending in the persisted state for a later resume.
				break
			}
			item := item // per-iteration copy; go directive < 1.22
			g.Go(func() error {
				agg.resolve(item, e.runItem(ctx, item, action))
				return nil
			})
		}
		// Item failures are captured in the aggregate, never returned
		// through the group.
		_ = g.Wait()
	}

	result := agg.result(time.Since(start))
	span.SetAttributes(
		attribute.Int("completed", result.Completed),
		attribute.Int("skipped", result.Skipped),
		attribute.Int("failed", result.Failed),
	)

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		e.log.Warn("bulk run cancelled",
			slog.String("operation_id", operationID),
			slog.Int("resolved", result.Total),
			slog.Int("planned", len(items)))
		return result, err
	}

	e.log.Info("bulk run finished",
		slog.String("operation_id", operationID),
		slog.Int("total", result.Total),
		slog.Int("completed", result.Completed),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// runItem executes the action for one item with its own span and
// timing. A panicking action is recorded as a failed item rather than
// tearing down the pool.
func (e *Executor) runItem(ctx context.Context, item ProcessItem, action Action) (res ItemResult) {
	ctx, span := tracer.Start(ctx, "bulk.item", trace.WithAttributes(
		attribute.String("project_id", item.ProjectID),
	))
	itemStart := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res = FailedResult(fmt.Errorf("item action panicked: %v", r))
			e.log.Error("item action panicked",
				slog.String("project_id", item.ProjectID),
				slog.Any("panic", r))
		}
		if res.Attempts == 0 {
			res.Attempts = 1
		}
		span.SetAttributes(attribute.String("outcome", string(res.Kind)))
		if res.Err != nil {
			span.RecordError(res.Err)
		}
		span.End()

		if itemDuration != nil {
			itemDuration.Record(ctx, time.Since(itemStart).Seconds(),
				metric.WithAttributes(attribute.String("outcome", string(res.Kind))))
		}
	}()

	return action.Run(ctx, item)
}

// ----------------------------------------------------------------------------
// Aggregation
// ----------------------------------------------------------------------------

// aggregator collects item outcomes under a single mutex so the
// counters, the detail list, and the reporter all observe one
// consistent, ever-increasing view.
type aggregator struct {
	mu       sync.Mutex
	acc      BulkOperationResult
	planned  int
	reporter Reporter
	log      *slog.Logger
}

func newAggregator(operationID string, planned int, reporter Reporter, log *slog.Logger) *aggregator {
	return &aggregator{
		acc: BulkOperationResult{
			OperationID: operationID,
			Details:     make([]ItemDetail, 0, planned),
		},
		planned:  planned,
		reporter: reporter,
		log:      log,
	}
}

// resolve records one item's terminal outcome and notifies the
// reporter. Exactly one resolve per item per run.
func (a *aggregator) resolve(item ProcessItem, res ItemResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.acc.Total++
	switch res.Kind {
	case ResultSuccess:
		a.acc.Completed++
	case ResultSkipped:
		a.acc.Skipped++
	default:
		a.acc.Failed++
	}
	a.acc.Details = append(a.acc.Details, ItemDetail{
		ProcessItem: item,
		Result:      res,
	})

	if itemsProcessed != nil {
		itemsProcessed.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("outcome", string(res.Kind))))
	}

	if a.reporter == nil {
		return
	}
	// Progress carries the planned total so a consumer can render
	// "resolved/planned"; the result's Total counts resolutions.
	update := ProgressUpdate{
		Total:     a.planned,
		Completed: a.acc.Completed,
		Skipped:   a.acc.Skipped,
		Failed:    a.acc.Failed,
	}
	// The reporter is a best-effort side channel; a panic inside it
	// must not corrupt aggregation or abort the run.
	func() {
		defer func() {
			if r := recover(); r != nil {
				a.log.Warn("progress reporter panicked", slog.Any("panic", r))
			}
		}()
		a.reporter.Report(update)
	}()
}

// result returns the aggregate with the run duration filled in.
func (a *aggregator) result(elapsed time.Duration) *BulkOperationResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	res := a.acc
	res.Details = append([]ItemDetail(nil), a.acc.Details...)
	res.Duration = elapsed
	return &res
}
