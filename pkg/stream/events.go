// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stream implements the wire protocol for server-pushed chat event
// streams: frame scanning, event decoding, and the read loop.
//
// This file defines the event model. Events are a closed tagged union keyed
// by the "type" field; every event carries the conversation it belongs to
// and the correlation id of the originating request.
package stream

import "encoding/json"

// =============================================================================
// Event Types
// =============================================================================

// EventType identifies the kind of a stream event.
type EventType string

const (
	// EventProgress reports a pipeline stage label for the in-flight turn.
	EventProgress EventType = "progress"

	// EventCitations carries the citation batch for the in-flight turn.
	EventCitations EventType = "citations"

	// EventDelta carries an incremental chunk of assistant content.
	EventDelta EventType = "delta"

	// EventDone marks successful completion of the turn.
	EventDone EventType = "done"

	// EventError marks a server-side failure for the turn.
	EventError EventType = "error"
)

// String returns the wire representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// IsTerminal reports whether the event type ends the turn.
//
// Terminal events (done, error) stop the read loop; no further content
// mutation happens for the correlation id after one arrives, with the
// single exception of late citation attachment.
func (t EventType) IsTerminal() bool {
	return t == EventDone || t == EventError
}

// =============================================================================
// Citation
// =============================================================================

// Citation is one retrieval-backed reference attached to an assistant
// message.
//
// # Fields
//
//   - Key: Inline back-reference key (e.g. "[1]"), unique within the
//     owning message.
//   - ChunkID, DocumentID, ChunkIndex: Optional retrieval identifiers.
//   - Title, SourceRef: Optional display metadata.
//   - Similarity: Optional retrieval similarity score.
//   - Content: Cited body text.
type Citation struct {
	Key        string  `json:"key"`
	ChunkID    string  `json:"chunk_id,omitempty"`
	DocumentID string  `json:"document_id,omitempty"`
	ChunkIndex *int    `json:"chunk_index,omitempty"`
	Title      string  `json:"title,omitempty"`
	SourceRef  string  `json:"source_ref,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
	Content    string  `json:"content,omitempty"`
}

// =============================================================================
// Event
// =============================================================================

// Event is one decoded wire event.
//
// # Description
//
// Fields present vary by Type: progress events carry Stage, citations
// events carry Citations, delta events carry Content, and error events
// carry Detail and/or Message. ConversationID and RequestID are present on
// all server-emitted events.
//
// Id, CreatedAt, and Index are populated client-side at decode time; they
// are not part of the wire format.
type Event struct {
	// Id is a client-generated UUID for ordering and deduplication.
	Id string `json:"-"`

	// CreatedAt is the client decode timestamp in Unix milliseconds.
	CreatedAt int64 `json:"-"`

	// Index is the zero-based position of the event within its stream.
	Index int `json:"-"`

	Type           EventType  `json:"type"`
	ConversationID string     `json:"conversation_id"`
	RequestID      string     `json:"request_id"`
	Stage          string     `json:"stage,omitempty"`
	Citations      []Citation `json:"citations,omitempty"`
	Content        string     `json:"content,omitempty"`
	Detail         string     `json:"detail,omitempty"`
	Message        string     `json:"message,omitempty"`
}

// IsTerminal reports whether this event ends the turn.
func (e *Event) IsTerminal() bool {
	return e.Type.IsTerminal()
}

// ErrorText returns the human-readable failure text of an error event.
//
// Servers populate either "detail" or "message"; Detail wins when both are
// present. Empty for non-error events.
func (e *Event) ErrorText() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Message
}

// MarshalPayload serializes the wire-visible fields of the event.
//
// Used by test fixtures and debugging tools; the client never writes
// events to the stream.
func (e *Event) MarshalPayload() ([]byte, error) {
	return json.Marshal(e)
}
