// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"sync"
)

// ProgressLine renders live progress for a batch of work items.
//
// In pretty and minimal modes it redraws a single terminal line in place;
// in machine mode it emits one PROGRESS: line per update on the error
// stream, keeping stdout parseable. Safe for concurrent Update calls.
type ProgressLine struct {
	p     *Printer
	label string

	mu    sync.Mutex
	dirty bool
}

// NewProgressLine creates a progress line labeled with the work being done.
func (p *Printer) NewProgressLine(label string) *ProgressLine {
	return &ProgressLine{p: p, label: label}
}

// Update redraws the line with the current counters.
func (l *ProgressLine) Update(total, completed, skipped, failed int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	resolved := completed + skipped + failed

	switch l.p.mode {
	case ModeMachine:
		fmt.Fprintf(l.p.errOut, "PROGRESS: completed=%d skipped=%d failed=%d total=%d\n",
			completed, skipped, failed, total)

	case ModeMinimal:
		fmt.Fprintf(l.p.out, "\r%s [%d/%d] ok:%d skip:%d fail:%d",
			l.label, resolved, total, completed, skipped, failed)
		l.dirty = true

	default:
		bar := l.p.ProgressBar(resolved, total, 24)
		fmt.Fprintf(l.p.out, "\r%s %s %d/%d  %s %d  %s %d  %s %d",
			Styles.Subtitle.Render(l.label), bar, resolved, total,
			IconSuccess.Render(), completed,
			IconWarning.Render(), skipped,
			IconError.Render(), failed)
		l.dirty = true
	}
}

// Finish clears the in-place line so subsequent output starts clean.
// No-op in machine mode.
func (l *ProgressLine) Finish() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.dirty {
		return
	}
	fmt.Fprint(l.p.out, "\r\033[K")
	l.dirty = false
}
