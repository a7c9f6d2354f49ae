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
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner provides an animated stage indicator on stderr.
//
// Stderr keeps the animation away from streamed answer content on
// stdout. On non-TTY stderr the spinner degrades to printing each stage
// message once.
type Spinner struct {
	w     io.Writer
	tty   bool
	stop  chan struct{}
	done  chan struct{}
	mu    sync.Mutex
	msg   string
	live  bool
	index int
}

// NewSpinner creates a spinner with the given initial message.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		w:    os.Stderr,
		tty:  isatty.IsTerminal(os.Stderr.Fd()),
		stop: make(chan struct{}),
		done: make(chan struct{}),
		msg:  message,
	}
}

// Start begins the animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.live {
		s.mu.Unlock()
		return
	}
	s.live = true
	s.mu.Unlock()

	if !s.tty {
		fmt.Fprintf(s.w, "%s\n", s.msg)
		return
	}

	go func() {
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				fmt.Fprint(s.w, "\r\033[K")
				close(s.done)
				return
			case <-ticker.C:
				s.mu.Lock()
				msg := s.msg
				s.mu.Unlock()
				fmt.Fprintf(s.w, "\r%s %s", spinnerFrames[s.index], msg)
				s.index = (s.index + 1) % len(spinnerFrames)
			}
		}
	}()
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.live {
		s.mu.Unlock()
		return
	}
	s.live = false
	s.mu.Unlock()

	if !s.tty {
		return
	}
	close(s.stop)
	<-s.done
}

// UpdateMessage changes the message while running.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	changed := message != s.msg
	s.msg = message
	live := s.live
	s.mu.Unlock()

	if !s.tty && live && changed {
		fmt.Fprintf(s.w, "%s\n", message)
	}
}
