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
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner provides an animated indicator for waits with no known total,
// like fetching a project list. In machine mode it prints the message
// once on the error stream instead of animating.
type Spinner struct {
	p       *Printer
	message string
	stop    chan struct{}
	done    chan struct{}

	mu        sync.Mutex
	isRunning bool
}

// NewSpinner creates a spinner labeled with the work being waited on.
func (p *Printer) NewSpinner(message string) *Spinner {
	return &Spinner{
		p:       p,
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	if s.p.mode == ModeMachine {
		fmt.Fprintf(s.p.errOut, "PROGRESS: %s\n", s.message)
		return
	}

	go func() {
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		frameIndex := 0
		for {
			select {
			case <-s.stop:
				// Clear the spinner line
				fmt.Fprint(s.p.out, "\r\033[K")
				close(s.done)
				return
			case <-ticker.C:
				frame := Styles.Highlight.Render(spinnerFrames[frameIndex])
				fmt.Fprintf(s.p.out, "\r%s %s", frame, s.message)
				frameIndex = (frameIndex + 1) % len(spinnerFrames)
			}
		}
	}()
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.p.mode == ModeMachine {
		return
	}

	close(s.stop)
	<-s.done
}

// Spin runs fn behind a spinner, clearing it before fn's result is
// acted on. Error reporting stays with the caller.
func Spin(p *Printer, message string, fn func() error) error {
	spin := p.NewSpinner(message)
	spin.Start()

	err := fn()
	spin.Stop()
	return err
}
