// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"testing"
)

// =============================================================================
// Frame Decoder Tests
// =============================================================================

func TestNewFrameDecoder(t *testing.T) {
	decoder := NewFrameDecoder()
	if decoder == nil {
		t.Fatal("NewFrameDecoder() returned nil")
	}
}

// -----------------------------------------------------------------------------
// Decode Tests - Data Lines
// -----------------------------------------------------------------------------

func TestFrameDecoder_Decode_DeltaEvent(t *testing.T) {
	decoder := NewFrameDecoder()

	event, err := decoder.Decode([]string{`data: {"type":"delta","conversation_id":"conv-1","request_id":"req-1","content":"Hello"}`})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event == nil {
		t.Fatal("expected event, got nil")
	}
	if event.Id == "" {
		t.Error("expected Id to be set")
	}
	if event.CreatedAt == 0 {
		t.Error("expected CreatedAt to be set")
	}
	if event.Type != EventDelta {
		t.Errorf("expected Type %v, got %v", EventDelta, event.Type)
	}
	if event.Content != "Hello" {
		t.Errorf("expected Content 'Hello', got %q", event.Content)
	}
	if event.ConversationID != "conv-1" {
		t.Errorf("expected ConversationID 'conv-1', got %q", event.ConversationID)
	}
	if event.RequestID != "req-1" {
		t.Errorf("expected RequestID 'req-1', got %q", event.RequestID)
	}
}

func TestFrameDecoder_Decode_MarkerWithoutSpace(t *testing.T) {
	decoder := NewFrameDecoder()

	event, err := decoder.Decode([]string{`data:{"type":"delta","content":"Hi"}`})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Content != "Hi" {
		t.Errorf("expected Content 'Hi', got %q", event.Content)
	}
}

func TestFrameDecoder_Decode_ExtraSpaceBelongsToPayload(t *testing.T) {
	decoder := NewFrameDecoder()

	// Only one space after the marker is stripped; JSON parsing tolerates
	// the leftover whitespace.
	event, err := decoder.Decode([]string{`data:  {"type":"delta","content":"Hi"}`})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Content != "Hi" {
		t.Errorf("expected Content 'Hi', got %q", event.Content)
	}
}

func TestFrameDecoder_Decode_MultiLinePayload(t *testing.T) {
	decoder := NewFrameDecoder()

	// A payload split across data lines rejoins with \n before parsing.
	event, err := decoder.Decode([]string{
		`data: {"type":"delta",`,
		`data: "content":"Hello"}`,
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Type != EventDelta {
		t.Errorf("expected Type %v, got %v", EventDelta, event.Type)
	}
	if event.Content != "Hello" {
		t.Errorf("expected Content 'Hello', got %q", event.Content)
	}
}

func TestFrameDecoder_Decode_IgnoresNonDataLines(t *testing.T) {
	decoder := NewFrameDecoder()

	event, err := decoder.Decode([]string{
		": heartbeat comment",
		"event: message",
		`data: {"type":"done","conversation_id":"conv-1","request_id":"req-1"}`,
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event == nil {
		t.Fatal("expected event, got nil")
	}
	if event.Type != EventDone {
		t.Errorf("expected Type %v, got %v", EventDone, event.Type)
	}
}

func TestFrameDecoder_Decode_NoDataLines(t *testing.T) {
	decoder := NewFrameDecoder()

	event, err := decoder.Decode([]string{": heartbeat", "event: ping"})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event != nil {
		t.Errorf("expected nil event for frame without data lines, got %v", event)
	}
}

func TestFrameDecoder_Decode_MalformedJSON(t *testing.T) {
	decoder := NewFrameDecoder()

	_, err := decoder.Decode([]string{"data: {not json}"})

	if err == nil {
		t.Error("expected error for malformed JSON")
	}
}

// -----------------------------------------------------------------------------
// Decode Tests - Event Fields
// -----------------------------------------------------------------------------

func TestFrameDecoder_Decode_CitationsEvent(t *testing.T) {
	decoder := NewFrameDecoder()

	event, err := decoder.Decode([]string{`data: {"type":"citations","conversation_id":"conv-1","request_id":"req-1","citations":[{"key":"[1]","title":"Doc","similarity":0.91,"content":"cited text"},{"key":"[2]","chunk_id":"ch-9","chunk_index":3}]}`})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Type != EventCitations {
		t.Errorf("expected Type %v, got %v", EventCitations, event.Type)
	}
	if len(event.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(event.Citations))
	}
	if event.Citations[0].Key != "[1]" {
		t.Errorf("expected key '[1]', got %q", event.Citations[0].Key)
	}
	if event.Citations[0].Similarity != 0.91 {
		t.Errorf("expected similarity 0.91, got %f", event.Citations[0].Similarity)
	}
	if event.Citations[1].ChunkIndex == nil || *event.Citations[1].ChunkIndex != 3 {
		t.Errorf("expected chunk_index 3, got %v", event.Citations[1].ChunkIndex)
	}
}

func TestFrameDecoder_Decode_ProgressEvent(t *testing.T) {
	decoder := NewFrameDecoder()

	event, err := decoder.Decode([]string{`data: {"type":"progress","conversation_id":"conv-1","request_id":"req-1","stage":"retrieval"}`})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Type != EventProgress {
		t.Errorf("expected Type %v, got %v", EventProgress, event.Type)
	}
	if event.Stage != "retrieval" {
		t.Errorf("expected Stage 'retrieval', got %q", event.Stage)
	}
	if event.IsTerminal() {
		t.Error("expected progress event to be non-terminal")
	}
}

func TestFrameDecoder_Decode_ErrorEvent(t *testing.T) {
	decoder := NewFrameDecoder()

	event, err := decoder.Decode([]string{`data: {"type":"error","conversation_id":"conv-1","request_id":"req-1","detail":"llm timeout"}`})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Type != EventError {
		t.Errorf("expected Type %v, got %v", EventError, event.Type)
	}
	if !event.IsTerminal() {
		t.Error("expected error event to be terminal")
	}
	if event.ErrorText() != "llm timeout" {
		t.Errorf("expected error text 'llm timeout', got %q", event.ErrorText())
	}
}

func TestEvent_ErrorText_DetailWinsOverMessage(t *testing.T) {
	event := &Event{Type: EventError, Detail: "detail text", Message: "message text"}

	if event.ErrorText() != "detail text" {
		t.Errorf("expected 'detail text', got %q", event.ErrorText())
	}

	event.Detail = ""
	if event.ErrorText() != "message text" {
		t.Errorf("expected 'message text', got %q", event.ErrorText())
	}
}

// -----------------------------------------------------------------------------
// Concurrent Safety
// -----------------------------------------------------------------------------

func TestFrameDecoder_ConcurrentUse(t *testing.T) {
	decoder := NewFrameDecoder()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				event, err := decoder.Decode([]string{`data: {"type":"delta","content":"x"}`})
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if event == nil {
					t.Error("expected event, got nil")
				}
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestFrameDecoder_GeneratesUniqueIDs(t *testing.T) {
	decoder := NewFrameDecoder()
	ids := make(map[string]bool)

	for i := 0; i < 100; i++ {
		event, _ := decoder.Decode([]string{`data: {"type":"delta","content":"x"}`})
		if ids[event.Id] {
			t.Errorf("duplicate Id found: %s", event.Id)
		}
		ids[event.Id] = true
	}
}
