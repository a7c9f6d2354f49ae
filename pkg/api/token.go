// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api is the HTTP client for the chat service.
//
// This file contains bearer token sources. The client never acquires or
// refreshes credentials itself; it only attaches whatever the configured
// source currently holds. A credential that goes invalid mid-stream
// surfaces as a connection error and requires a rebind.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrNoToken is returned when a source has no credential available.
var ErrNoToken = errors.New("no bearer token available")

// =============================================================================
// Token Source Interface
// =============================================================================

// TokenSource supplies the bearer credential attached to every request.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use; the client calls
//	Token from REST goroutines and the stream opener concurrently.
type TokenSource interface {
	// Token returns the current bearer credential.
	Token() (string, error)
}

// =============================================================================
// Static Token Source
// =============================================================================

// staticTokenSource holds a fixed credential.
type staticTokenSource struct {
	token string
}

// NewStaticTokenSource creates a source that always returns the given
// credential.
func NewStaticTokenSource(token string) TokenSource {
	return &staticTokenSource{token: token}
}

func (s *staticTokenSource) Token() (string, error) {
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

// =============================================================================
// File Token Source
// =============================================================================

// FileTokenSource reads the credential from a file and refreshes it when
// the file changes.
//
// # Description
//
// External tooling (login helpers, secret managers) rotates the file;
// this source picks the new value up via fsnotify so long-running
// sessions keep authorizing without a restart. The file content is
// trimmed of surrounding whitespace.
//
// # Limitations
//
//   - Atomic-rename rotation is handled by re-watching on Remove/Rename;
//     a watch gap of one rotation is possible on some platforms, in which
//     case the next Token call still returns the last good value.
type FileTokenSource struct {
	path    string
	watcher *fsnotify.Watcher

	mu    sync.RWMutex
	token string
}

// NewFileTokenSource creates a file-backed source and starts watching.
//
// # Inputs
//
//   - path: Credential file. Must exist and be readable at creation.
//
// # Outputs
//
//   - *FileTokenSource: The source; callers should Close it when done.
//   - error: Non-nil if the initial read or watch setup failed.
func NewFileTokenSource(path string) (*FileTokenSource, error) {
	s := &FileTokenSource{path: path}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating token file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching token file: %w", err)
	}
	s.watcher = watcher

	go s.watch()
	return s, nil
}

// Token returns the most recently read credential.
func (s *FileTokenSource) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

// Reload re-reads the credential file immediately.
func (s *FileTokenSource) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading token file: %w", err)
	}

	s.mu.Lock()
	s.token = strings.TrimSpace(string(data))
	s.mu.Unlock()
	return nil
}

// Close stops the file watcher.
func (s *FileTokenSource) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

// watch reacts to credential file changes until the watcher closes.
func (s *FileTokenSource) watch() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
				if err := s.Reload(); err != nil {
					slog.Warn("failed to reload token file", "path", s.path, "error", err)
					continue
				}
				slog.Debug("reloaded bearer token from file", "path", s.path)
			}
			if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
				// Atomic rotation replaces the inode; re-arm the watch.
				if err := s.watcher.Add(s.path); err != nil {
					slog.Warn("failed to re-watch token file", "path", s.path, "error", err)
					continue
				}
				if err := s.Reload(); err != nil {
					slog.Warn("failed to reload token file", "path", s.path, "error", err)
				}
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("token file watcher error", "path", s.path, "error", err)
		}
	}
}

// =============================================================================
// Compile-time Interface Checks
// =============================================================================

var (
	_ TokenSource = (*staticTokenSource)(nil)
	_ TokenSource = (*FileTokenSource)(nil)
)
