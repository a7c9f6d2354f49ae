// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chat folds decoded stream events into an in-memory conversation
// model.
//
// This file contains the pagination cursor manager for backward history
// loading.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/chatstream/pkg/metrics"
)

var pagerTracer = otel.Tracer("chatstream.chat.pager")

// DefaultPageLimit is the page size used when none is configured.
const DefaultPageLimit = 20

// =============================================================================
// Cursor and Page Types
// =============================================================================

// Cursor is the backward pagination boundary: the ordinal index and
// creation timestamp of the oldest message already loaded.
//
// The pair travels together: both fields are always meaningful, and the
// absence of a Cursor (nil) signals that no earlier history exists. The
// client treats the values as opaque request parameters.
type Cursor struct {
	BeforeMessageIndex int
	BeforeCreatedAt    int64
}

// MessagePage is one history page as returned by the message listing
// endpoint.
//
// NextBeforeIndex and NextBeforeCreatedAt form the next older boundary;
// both present means more history exists, both absent means the page
// reached the beginning.
type MessagePage struct {
	Messages            []Message `json:"messages"`
	NextBeforeIndex     *int      `json:"next_before_index,omitempty"`
	NextBeforeCreatedAt *int64    `json:"next_before_created_at,omitempty"`
}

// NextCursor derives the cursor for the next older page.
//
// Enforces the both-or-neither contract: a page carrying only one half of
// the boundary is treated as end-of-history and logged.
func (p *MessagePage) NextCursor() *Cursor {
	if p.NextBeforeIndex == nil && p.NextBeforeCreatedAt == nil {
		return nil
	}
	if p.NextBeforeIndex == nil || p.NextBeforeCreatedAt == nil {
		slog.Warn("history page carried a partial cursor pair, treating as end of history")
		return nil
	}
	return &Cursor{
		BeforeMessageIndex: *p.NextBeforeIndex,
		BeforeCreatedAt:    *p.NextBeforeCreatedAt,
	}
}

// HistoryLister fetches message pages. Implemented by the API client;
// a nil cursor requests the newest page.
type HistoryLister interface {
	ListMessages(ctx context.Context, conversationID string, cursor *Cursor, limit int) (*MessagePage, error)
}

// =============================================================================
// Pager
// =============================================================================

// Pager manages backward pagination for one transcript.
//
// # Description
//
// LoadLatest initializes the transcript from the newest page and primes
// the cursor; LoadOlder prepends the next older page. A fetch failure
// leaves both the cursor and the transcript untouched, so there is never
// a partial merge. Concurrent LoadOlder calls collapse into a single
// in-flight fetch.
//
// # Assumptions
//
//   - The server returns each page in chronological order (oldest first)
//     and a stable total order across pages.
type Pager struct {
	lister     HistoryLister
	transcript *Transcript
	limit      int

	mu     sync.Mutex
	cursor *Cursor

	group singleflight.Group
}

// NewPager creates a pager for the given transcript.
//
// A non-positive limit falls back to DefaultPageLimit.
func NewPager(lister HistoryLister, transcript *Transcript, limit int) *Pager {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	return &Pager{
		lister:     lister,
		transcript: transcript,
		limit:      limit,
	}
}

// Cursor returns a copy of the current boundary, or nil when no earlier
// history exists.
func (p *Pager) Cursor() *Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor == nil {
		return nil
	}
	c := *p.cursor
	return &c
}

// LoadLatest fetches the newest page and resets the transcript from it.
//
// # Outputs
//
//   - error: The fetch error; on failure the transcript and cursor are
//     left unchanged.
func (p *Pager) LoadLatest(ctx context.Context) error {
	ctx, span := pagerTracer.Start(ctx, "Pager.LoadLatest")
	defer span.End()

	conversationID := p.transcript.ConversationID()

	page, err := p.lister.ListMessages(ctx, conversationID, nil, p.limit)
	if err != nil {
		metrics.ObservePaginationFetch("error")
		slog.Error("failed to load latest history page",
			"conversation_id", conversationID, "error", err)
		return fmt.Errorf("loading latest page: %w", err)
	}
	metrics.ObservePaginationFetch("success")

	p.transcript.Reset(page.Messages)

	p.mu.Lock()
	p.cursor = page.NextCursor()
	p.mu.Unlock()

	slog.Debug("loaded latest history page",
		"conversation_id", conversationID,
		"messages", len(page.Messages),
		"has_older", p.Cursor() != nil)
	return nil
}

// LoadOlder prepends the next older page to the transcript.
//
// # Outputs
//
//   - int: Number of messages merged after deduplication by id; zero when
//     no earlier history exists.
//   - error: The fetch error; on failure the transcript and cursor are
//     left unchanged.
//
// Repeated calls are idempotent with respect to final transcript order:
// duplicate ids never merge twice, and the merged page always lands
// before the existing messages. Suppressing scroll-to-bottom for the
// resulting render is the caller's concern.
func (p *Pager) LoadOlder(ctx context.Context) (int, error) {
	ctx, span := pagerTracer.Start(ctx, "Pager.LoadOlder")
	defer span.End()

	type result struct {
		added int
	}

	v, err, _ := p.group.Do("load-older", func() (any, error) {
		p.mu.Lock()
		cursor := p.cursor
		p.mu.Unlock()

		if cursor == nil {
			return result{}, nil
		}

		conversationID := p.transcript.ConversationID()
		boundary := *cursor

		page, err := p.lister.ListMessages(ctx, conversationID, &boundary, p.limit)
		if err != nil {
			metrics.ObservePaginationFetch("error")
			slog.Error("failed to load older history page",
				"conversation_id", conversationID,
				"before_message_index", boundary.BeforeMessageIndex,
				"error", err)
			return result{}, fmt.Errorf("loading older page: %w", err)
		}
		metrics.ObservePaginationFetch("success")

		added := p.transcript.PrependPage(page.Messages)

		p.mu.Lock()
		p.cursor = page.NextCursor()
		p.mu.Unlock()

		slog.Debug("loaded older history page",
			"conversation_id", conversationID,
			"messages", added,
			"has_older", p.Cursor() != nil)
		return result{added: added}, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(result).added, nil
}
