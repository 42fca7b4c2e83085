// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides styled terminal output for the gantry CLI.
//
// All output flows through a Printer, which carries the output mode chosen
// at startup (from TTY detection and flags) instead of consulting globals.
// Machine mode emits stable, line-oriented text for scripting; minimal mode
// drops color; pretty mode uses the full palette.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ----------------------------------------------------------------------------
// Output mode
// ----------------------------------------------------------------------------

// Mode controls how much styling output receives.
type Mode string

const (
	// ModePretty enables colors, icons, and live progress rendering.
	ModePretty Mode = "pretty"

	// ModeMinimal uses icons and plain text only.
	ModeMinimal Mode = "minimal"

	// ModeMachine outputs stable plain text suitable for scripting and parsing.
	ModeMachine Mode = "machine"
)

// ParseMode converts a string to a Mode.
func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "pretty", "full", "p":
		return ModePretty
	case "minimal", "min", "m":
		return ModeMinimal
	case "machine", "quiet", "q":
		return ModeMachine
	default:
		return ModePretty
	}
}

// DetectMode picks the output mode for a run: machine when stdout is not a
// terminal, minimal when color is disabled, pretty otherwise.
func DetectMode(isTTY, noColor bool) Mode {
	if !isTTY {
		return ModeMachine
	}
	if noColor {
		return ModeMinimal
	}
	return ModePretty
}

// ----------------------------------------------------------------------------
// Palette and styles
// ----------------------------------------------------------------------------

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders

	// Semantic colors (keeping standard conventions for clarity)
	ColorSuccess = lipgloss.Color("#2CD7C7") // Bright teal for success
	ColorWarning = lipgloss.Color("#F4D03F") // Gold/amber for warnings
	ColorError   = lipgloss.Color("#E74C3C") // Red for errors
	ColorMuted   = lipgloss.Color("#2C4A54") // Slate for muted text
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// ----------------------------------------------------------------------------
// Printer
// ----------------------------------------------------------------------------

// Printer writes user-facing output in a fixed mode.
//
// Commands build one Printer at startup and pass it down; nothing in this
// package reads process-global state.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
}

// NewPrinter returns a Printer writing to the given streams. Nil writers
// default to os.Stdout and os.Stderr.
func NewPrinter(out, errOut io.Writer, mode Mode) *Printer {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Printer{out: out, errOut: errOut, mode: mode}
}

// Mode returns the printer's output mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

// Out returns the printer's primary output stream, for callers that
// render their own layouts (tables) in the printer's mode.
func (p *Printer) Out() io.Writer {
	return p.out
}

// Title prints a styled title
func (p *Printer) Title(text string) {
	if p.mode == ModeMachine {
		return
	}
	fmt.Fprintln(p.out, Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.out, "OK: %s\n", text)
	case ModeMinimal:
		fmt.Fprintf(p.out, "%s %s\n", IconSuccess, text)
	default:
		fmt.Fprintf(p.out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.errOut, "WARN: %s\n", text)
	case ModeMinimal:
		fmt.Fprintf(p.out, "%s %s\n", IconWarning, text)
	default:
		fmt.Fprintf(p.out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func (p *Printer) Error(text string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.errOut, "ERROR: %s\n", text)
	case ModeMinimal:
		fmt.Fprintf(p.out, "%s %s\n", IconError, text)
	default:
		fmt.Fprintf(p.out, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func (p *Printer) Info(text string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintln(p.out, text)
	default:
		fmt.Fprintf(p.out, "%s %s\n", Styles.Muted.Render("│"), text)
	}
}

// Muted prints muted/secondary text
func (p *Printer) Muted(text string) {
	if p.mode == ModeMachine {
		return
	}
	fmt.Fprintln(p.out, Styles.Muted.Render(text))
}

// Divider prints a horizontal rule. No-op in machine mode.
func (p *Printer) Divider(width int) {
	if p.mode == ModeMachine {
		return
	}
	fmt.Fprintln(p.out, Styles.Muted.Render(strings.Repeat("─", width)))
}

// KeyValue prints an aligned label/value pair. The label is padded
// before styling so ANSI escapes do not break the alignment.
func (p *Printer) KeyValue(key, value string) {
	if p.mode == ModeMachine {
		fmt.Fprintf(p.out, "%s\t%s\n", key, value)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", Styles.Bold.Render(fmt.Sprintf("%-12s", key)), value)
}

// ItemStatus prints one work item with its outcome icon and optional reason.
func (p *Printer) ItemStatus(name string, status Icon, reason string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.out, "%s\t%s\t%s\n", status, name, reason)
	case ModeMinimal:
		fmt.Fprintf(p.out, "%s %s\n", status, name)
	default:
		if reason != "" {
			fmt.Fprintf(p.out, "%s %s %s\n", status.Render(), name, Styles.Muted.Render("("+reason+")"))
		} else {
			fmt.Fprintf(p.out, "%s %s\n", status.Render(), name)
		}
	}
}

// Summary prints a summary line with result counts
func (p *Printer) Summary(completed, skipped, failed, total int) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.out, "SUMMARY: completed=%d skipped=%d failed=%d total=%d\n", completed, skipped, failed, total)
	default:
		fmt.Fprintf(p.out, "\n%s %s  %s %s  %s %s  %s %s\n",
			Styles.Success.Render(fmt.Sprintf("%d", completed)), Styles.Muted.Render("completed"),
			Styles.Warning.Render(fmt.Sprintf("%d", skipped)), Styles.Muted.Render("skipped"),
			Styles.Error.Render(fmt.Sprintf("%d", failed)), Styles.Muted.Render("failed"),
			Styles.Bold.Render(fmt.Sprintf("%d", total)), Styles.Muted.Render("total"),
		)
	}
}

// ProgressBar renders a simple progress bar
func (p *Printer) ProgressBar(current, total int, width int) string {
	if p.mode == ModeMachine {
		return fmt.Sprintf("%d/%d", current, total)
	}
	pct := 1.0
	if total > 0 {
		pct = float64(current) / float64(total)
	}
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	empty := width - filled

	bar := Styles.Success.Render(repeatChar('█', filled)) +
		Styles.Muted.Render(repeatChar('░', empty))

	return fmt.Sprintf("%s %3.0f%%", bar, pct*100)
}

func repeatChar(c rune, n int) string {
	if n <= 0 {
		return ""
	}
	result := make([]rune, n)
	for i := range result {
		result[i] = c
	}
	return string(result)
}
