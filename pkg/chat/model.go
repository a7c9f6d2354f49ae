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
// model: transcript store, event dispatcher, citation correlation,
// backward pagination, and stream lifecycle control.
//
// This file defines the conversation data model.
package chat

import (
	"time"

	"github.com/AleutianAI/chatstream/pkg/stream"
)

// =============================================================================
// Roles and Statuses
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus tracks a message through its streaming lifecycle.
type MessageStatus string

const (
	// StatusPending marks an optimistic assistant placeholder that has
	// received no events yet.
	StatusPending MessageStatus = "pending"

	// StatusStreaming marks an assistant message receiving deltas.
	StatusStreaming MessageStatus = "streaming"

	// StatusComplete marks a finished turn.
	StatusComplete MessageStatus = "complete"

	// StatusError marks a turn the server failed to complete.
	StatusError MessageStatus = "error"
)

// String returns the wire representation of the status.
func (s MessageStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status permits no further content
// mutation. Late citation attachment is the single exception and is
// handled by the transcript, not here.
func (s MessageStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// =============================================================================
// Conversation
// =============================================================================

// Conversation is the denormalized list entry for one chat thread.
//
// The streaming core never deletes conversations; it only refreshes
// UpdatedAt and LastMessagePreview when a streamed turn completes.
type Conversation struct {
	Id                 string `json:"id"`
	Title              string `json:"title"`
	UpdatedAt          int64  `json:"updated_at"`
	LastMessagePreview string `json:"last_message_preview"`
}

// previewMaxRunes caps LastMessagePreview derived from a finished turn.
const previewMaxRunes = 80

// ApplyCompletion refreshes the denormalized list fields from a finished
// turn: UpdatedAt moves to now and LastMessagePreview takes a truncated
// copy of the answer. No-op when the completion belongs to another
// conversation.
func (c *Conversation) ApplyCompletion(tc TurnCompletion) bool {
	if tc.ConversationID != c.Id {
		return false
	}
	c.UpdatedAt = time.Now().UnixMilli()
	c.LastMessagePreview = previewText(tc.Content)
	return true
}

// previewText truncates content to the preview cap.
func previewText(content string) string {
	runes := []rune(content)
	if len(runes) <= previewMaxRunes {
		return content
	}
	return string(runes[:previewMaxRunes]) + "..."
}

// =============================================================================
// Message
// =============================================================================

// Message is one transcript entry.
//
// # Fields
//
//   - Id: Persisted identifier once durably stored; a client-generated
//     UUID for optimistic entries.
//   - MessageIndex: Ordinal within the conversation; nil until the server
//     has assigned one.
//   - RequestID: Correlation id pairing a user send with its event stream.
//   - Content: Append-only while Status is streaming.
//   - Stage: Last progress stage label; cleared on terminal transition.
//   - Citations: Ordered citation batch; replaced atomically, never merged.
type Message struct {
	Id             string            `json:"id"`
	MessageIndex   *int              `json:"message_index,omitempty"`
	ConversationID string            `json:"conversation_id"`
	Role           Role              `json:"role"`
	Content        string            `json:"content"`
	RequestID      string            `json:"request_id,omitempty"`
	Status         MessageStatus     `json:"status"`
	Stage          string            `json:"-"`
	CreatedAt      int64             `json:"created_at"`
	UpdatedAt      int64             `json:"updated_at"`
	Citations      []stream.Citation `json:"citations,omitempty"`
}

// CitationByKey returns the citation with the given inline key.
//
// Pure read used by inline reference rendering; the second return is
// false when the key is not attached to this message.
func (m *Message) CitationByKey(key string) (stream.Citation, bool) {
	for _, c := range m.Citations {
		if c.Key == key {
			return c, true
		}
	}
	return stream.Citation{}, false
}

// clone returns a copy safe to hand outside the transcript lock.
func (m *Message) clone() Message {
	out := *m
	if m.MessageIndex != nil {
		idx := *m.MessageIndex
		out.MessageIndex = &idx
	}
	if m.Citations != nil {
		out.Citations = append([]stream.Citation(nil), m.Citations...)
	}
	return out
}
