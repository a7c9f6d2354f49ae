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
// This file contains the transcript store: the single owner of the
// ordered message list for one conversation. All mutation goes through
// its methods; the dispatcher and the pager never touch the list
// directly.
package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/chatstream/pkg/stream"
)

// =============================================================================
// Transcript
// =============================================================================

// Transcript is the ordered, mutable message list for one conversation.
//
// # Description
//
// The transcript enforces the correlation invariant: within one
// conversation at most one assistant message holds a given correlation id
// in non-terminal status. Event effects (append, delta accumulation,
// terminal transitions, citation replacement) are expressed as methods so
// concurrent callers never observe a half-applied mutation.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Snapshot methods return copies;
// callers never receive pointers into the internal list.
type Transcript struct {
	mu             sync.Mutex
	conversationID string
	messages       []*Message
}

// NewTranscript creates an empty transcript bound to one conversation.
func NewTranscript(conversationID string) *Transcript {
	return &Transcript{
		conversationID: conversationID,
	}
}

// ConversationID returns the conversation this transcript belongs to.
func (t *Transcript) ConversationID() string {
	return t.conversationID
}

// Len returns the current message count.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Messages returns a copy of the transcript in chronological order.
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Message, 0, len(t.messages))
	for _, m := range t.messages {
		out = append(out, m.clone())
	}
	return out
}

// MessageByRequestID returns a copy of the assistant message holding the
// given correlation id, or false when none exists.
func (t *Transcript) MessageByRequestID(requestID string) (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m := t.assistantLocked(requestID); m != nil {
		return m.clone(), true
	}
	return Message{}, false
}

// =============================================================================
// Turn Lifecycle
// =============================================================================

// BeginTurn appends the optimistic pair for a user send: the user message
// (already complete) and the assistant placeholder (pending).
//
// Must be called before the stream for requestID is bound, so a delta can
// never arrive ahead of its placeholder.
func (t *Transcript) BeginTurn(content, requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UnixMilli()
	t.messages = append(t.messages,
		&Message{
			Id:             uuid.New().String(),
			ConversationID: t.conversationID,
			Role:           RoleUser,
			Content:        content,
			RequestID:      requestID,
			Status:         StatusComplete,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		&Message{
			Id:             uuid.New().String(),
			ConversationID: t.conversationID,
			Role:           RoleAssistant,
			RequestID:      requestID,
			Status:         StatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	)
}

// SetStage records the progress stage on the in-flight assistant message.
//
// Returns false when no non-terminal message holds the correlation id;
// terminal messages are left untouched.
func (t *Transcript) SetStage(requestID, stage string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.assistantLocked(requestID)
	if m == nil || m.Status.IsTerminal() {
		return false
	}
	m.Stage = stage
	if m.Status == StatusPending {
		m.Status = StatusStreaming
	}
	m.UpdatedAt = time.Now().UnixMilli()
	return true
}

// AppendDelta appends a content chunk to the in-flight assistant message.
//
// # Outputs
//
//   - applied: false when the correlation id is already terminal.
//   - created: true when no message existed and a defensive one was
//     appended (a delta arrived ahead of its placeholder).
func (t *Transcript) AppendDelta(requestID, content string) (applied, created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UnixMilli()

	m := t.assistantLocked(requestID)
	if m == nil {
		t.messages = append(t.messages, &Message{
			Id:             uuid.New().String(),
			ConversationID: t.conversationID,
			Role:           RoleAssistant,
			Content:        content,
			RequestID:      requestID,
			Status:         StatusStreaming,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		return true, true
	}
	if m.Status.IsTerminal() {
		return false, false
	}

	m.Content += content
	m.Status = StatusStreaming
	m.UpdatedAt = now
	return true, false
}

// Complete marks the turn finished and returns the finalized content.
//
// Clears the stage indicator. Returns false when the correlation id is
// unknown or already terminal.
func (t *Transcript) Complete(requestID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.assistantLocked(requestID)
	if m == nil || m.Status.IsTerminal() {
		return "", false
	}
	m.Status = StatusComplete
	m.Stage = ""
	m.UpdatedAt = time.Now().UnixMilli()
	return m.Content, true
}

// Fail marks the turn failed.
//
// When no content has accumulated the fallback text replaces the empty
// body; otherwise the partial content is preserved and only the status
// flips. Returns false when the correlation id is unknown or already
// terminal.
func (t *Transcript) Fail(requestID, fallback string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.assistantLocked(requestID)
	if m == nil || m.Status.IsTerminal() {
		return false
	}
	if m.Content == "" {
		m.Content = fallback
	}
	m.Status = StatusError
	m.Stage = ""
	m.UpdatedAt = time.Now().UnixMilli()
	return true
}

// AttachCitations replaces the citation set of the assistant message
// holding the correlation id.
//
// The batch replaces any prior set; it is never merged. Unlike every
// other mutation this is honored on terminal messages too, so a late
// citations event still lands. No-op when the correlation id is unknown.
func (t *Transcript) AttachCitations(requestID string, items []stream.Citation) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.assistantLocked(requestID)
	if m == nil {
		return false
	}
	m.Citations = append([]stream.Citation(nil), items...)
	m.UpdatedAt = time.Now().UnixMilli()
	return true
}

// =============================================================================
// Pagination Support
// =============================================================================

// Reset replaces the transcript contents with the given page.
//
// Used by LoadLatest when (re)entering a conversation.
func (t *Transcript) Reset(msgs []Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.messages = make([]*Message, 0, len(msgs))
	for i := range msgs {
		m := msgs[i].clone()
		t.messages = append(t.messages, &m)
	}
}

// PrependPage merges an older page at the head of the transcript.
//
// # Inputs
//
//   - older: Page messages in chronological order (oldest first).
//
// # Outputs
//
//   - int: Number of messages actually merged after deduplication by id.
//
// Messages whose id is already present are dropped, so replaying the same
// page is idempotent. Existing messages keep their order; the merged page
// goes before them.
func (t *Transcript) PrependPage(older []Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]struct{}, len(t.messages))
	for _, m := range t.messages {
		seen[m.Id] = struct{}{}
	}

	merged := make([]*Message, 0, len(older))
	for i := range older {
		if _, dup := seen[older[i].Id]; dup {
			continue
		}
		m := older[i].clone()
		merged = append(merged, &m)
	}

	if len(merged) > 0 {
		t.messages = append(merged, t.messages...)
	}
	return len(merged)
}

// =============================================================================
// Internal
// =============================================================================

// assistantLocked finds the newest assistant message with the given
// correlation id. Caller must hold t.mu.
func (t *Transcript) assistantLocked(requestID string) *Message {
	if requestID == "" {
		return nil
	}
	for i := len(t.messages) - 1; i >= 0; i-- {
		m := t.messages[i]
		if m.Role == RoleAssistant && m.RequestID == requestID {
			return m
		}
	}
	return nil
}
