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
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/gantry/cmd/gantry/config"
	"github.com/AleutianAI/gantry/pkg/logging"
	"github.com/AleutianAI/gantry/pkg/telemetry"
	"github.com/AleutianAI/gantry/pkg/ux"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// --- Global Command Variables ---
var (
	flagConfig  string
	flagVerbose bool
	flagJSON    bool
	flagCompact bool
	flagNoColor bool
	flagAccount string

	// printer renders user-facing output in the mode chosen at startup.
	printer *ux.Printer

	// telemetryShutdown flushes exporters before the process exits.
	telemetryShutdown func(context.Context) error

	rootCmd = &cobra.Command{
		Use:   "gantry",
		Short: "Bulk administration for construction cloud accounts",
		Long: `Gantry runs administrative operations across every project in a
construction cloud account: add or remove a user, change their role, or
update their folder permissions, with bounded concurrency, retries, and
resumable progress tracking.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cmd.Name() == "version" {
				printer = newPrinter()
				return
			}
			initRuntime()
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the gantry version",
		Run:   runVersion,
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "",
		"Path to the config file (default ~/.gantry/gantry.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false,
		"Output results as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagCompact, "compact", false,
		"Compact JSON output (no indentation)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false,
		"Disable colored output")
	rootCmd.PersistentFlags().StringVar(&flagAccount, "account", "",
		"Account id to administer (overrides the config)")

	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("gantry %s\n", version)
}

// initRuntime loads the config and wires up logging, output, and
// telemetry. Runs once per invocation, before any command body.
func initRuntime() {
	if err := config.Load(flagConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load the config: %v\n", err)
		os.Exit(ExitFailure)
	}

	level := logging.ParseLevel(config.Global.Log.Level)
	if flagVerbose {
		level = logging.LevelDebug
	}
	logging.New(logging.Config{
		Level:   level,
		Service: "gantry",
		JSON:    config.Global.Log.Format == "json",
	}).SetDefault()

	printer = newPrinter()

	shutdown, err := telemetry.Init(context.Background(), telemetryConfig())
	if err != nil {
		slog.Warn("telemetry init failed, continuing without it", "error", err)
		return
	}
	telemetryShutdown = shutdown
}

// newPrinter picks the output mode for this run: machine when stdout is
// not a terminal or --json is set, minimal when color is off.
func newPrinter() *ux.Printer {
	isTTY := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	mode := ux.DetectMode(isTTY, flagNoColor)
	if flagJSON {
		mode = ux.ModeMachine
	}
	return ux.NewPrinter(os.Stdout, os.Stderr, mode)
}

func telemetryConfig() telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceName = "gantry"
	cfg.ServiceVersion = version
	if v := config.Global.Telemetry.TraceExporter; v != "" {
		cfg.TraceExporter = v
	}
	if v := config.Global.Telemetry.MetricExporter; v != "" {
		cfg.MetricExporter = v
	}
	if v := config.Global.Telemetry.OTLPEndpoint; v != "" {
		cfg.OTLPEndpoint = v
	}
	return cfg
}
