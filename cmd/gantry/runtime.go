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
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/AleutianAI/gantry/cmd/gantry/config"
	"github.com/AleutianAI/gantry/services/admin/aps"
	"github.com/AleutianAI/gantry/services/admin/bulk"
	"github.com/AleutianAI/gantry/services/admin/filter"
	"github.com/AleutianAI/gantry/services/admin/operations"
	"github.com/AleutianAI/gantry/services/admin/state"
)

// maxConcurrency caps parallel project mutations regardless of flags or
// config, so a misconfigured run cannot hammer the vendor API.
const maxConcurrency = 50

// runtimeDeps bundles the wired-up dependencies a bulk command needs.
type runtimeDeps struct {
	client *aps.Client
	store  *state.Store
	runner *operations.Runner
}

// buildRuntime assembles the client, store, and runner from the loaded
// config plus the per-invocation concurrency and dry-run settings.
// concurrency <= 0 means "use the config value".
func buildRuntime(concurrency int, dryRun bool) (*runtimeDeps, error) {
	client, err := buildClient()
	if err != nil {
		return nil, err
	}
	store, err := newStore()
	if err != nil {
		return nil, err
	}
	bulkCfg, err := bulkRunConfig(concurrency, dryRun)
	if err != nil {
		return nil, err
	}
	runner, err := operations.NewRunner(operations.Config{
		Client: client,
		Store:  store,
		Bulk:   bulkCfg,
		Logger: slog.Default(),
	})
	if err != nil {
		return nil, err
	}
	return &runtimeDeps{client: client, store: store, runner: runner}, nil
}

// buildClient authenticates against the vendor API using the resolved
// credentials. Commands that only touch local state skip this.
func buildClient() (*aps.Client, error) {
	creds := config.Global.Credentials
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	account := flagAccount
	if account == "" {
		account = creds.ResolvedAccountID()
	}
	if account == "" {
		return nil, fmt.Errorf("account id is required: pass --account, set credentials.account_id, or APS_ACCOUNT_ID")
	}
	tokenSource := aps.NewClientCredentialsTokenSource(
		creds.ResolvedClientID(), creds.ResolvedClientSecret(),
		config.Global.API.BaseURL, nil)
	return aps.NewClient(aps.ClientConfig{
		BaseURL:           config.Global.API.BaseURL,
		AccountID:         account,
		TokenSource:       tokenSource,
		RequestsPerSecond: config.Global.API.RateLimit,
		Burst:             config.Global.API.Burst,
		Logger:            slog.Default(),
	})
}

func newStore() (*state.Store, error) {
	return state.NewStore(config.Global.State.Dir)
}

// bulkRunConfig folds the config file's bulk defaults with the
// per-invocation flags. concurrency <= 0 falls back to the config
// value; anything above maxConcurrency is clamped.
func bulkRunConfig(concurrency int, dryRun bool) (bulk.Config, error) {
	base, max, err := config.Global.Bulk.Delays()
	if err != nil {
		return bulk.Config{}, err
	}
	cfg := bulk.DefaultConfig()
	cfg.MaxRetries = config.Global.Bulk.MaxRetries
	cfg.BaseDelay = base
	cfg.MaxDelay = max
	cfg.DryRun = dryRun

	if concurrency <= 0 {
		concurrency = config.Global.Bulk.Concurrency
	}
	if concurrency > maxConcurrency {
		concurrency = maxConcurrency
	}
	cfg.Concurrency = concurrency
	return cfg, nil
}

// targetFilter combines the --filter expression and the --project-ids
// file into a single project filter. Returns nil when neither is given,
// which targets every project in the account.
func targetFilter(expr, idsPath string) (*filter.Filter, error) {
	var flt *filter.Filter
	if expr != "" {
		f, err := filter.Parse(expr)
		if err != nil {
			return nil, err
		}
		flt = f
	}
	if idsPath != "" {
		ids, err := readProjectIDs(idsPath)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("no project ids found in %s", idsPath)
		}
		if flt == nil {
			flt = &filter.Filter{}
		}
		flt.IncludeIDs = append(flt.IncludeIDs, ids...)
	}
	return flt, nil
}

// readProjectIDs loads one project id per line, skipping blank lines
// and # comments.
func readProjectIDs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the project ids file: %w", err)
	}
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, so an
// interrupted run can mark its state record cancelled before exiting.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

// promptYesNo asks the user a yes/no question and returns their answer.
func promptYesNo(message string) bool {
	fmt.Printf("%s (yes/no): ", message)
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "yes" || input == "y"
}
