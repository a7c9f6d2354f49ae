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
// streams.
//
// This file contains the frame decoder. Decoders are responsible for
// converting a raw frame into an Event struct.
//
// Single Responsibility:
//
//	Decoders ONLY decode. They do not perform I/O, dispatching, or state
//	management. This separation enables easy testing and format
//	extensibility.
package stream

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// dataMarker is the SSE field prefix carrying event payloads.
const dataMarker = "data:"

// =============================================================================
// Frame Decoder Interface
// =============================================================================

// FrameDecoder decodes one frame into an Event.
//
// Wire Format Reference (https://developer.mozilla.org/en-US/docs/Web/API/Server-sent_events):
//
//	data: {"type":"delta","content":"Hello"}\n
//	\n
//
// A frame may split its payload across several "data:" lines; the decoder
// rejoins them with "\n" before JSON parsing. After the marker, at most one
// space is consumed ("data:x" and "data: x" both yield "x"). Lines without
// the marker (comments, other fields) are ignored.
//
// Thread Safety:
//
//	FrameDecoder implementations must be safe for concurrent use.
//	The default implementation is stateless and inherently thread-safe.
type FrameDecoder interface {
	// Decode decodes the payload of one frame.
	//
	// # Inputs
	//
	//   - frame: The frame's lines with line endings already stripped.
	//
	// # Outputs
	//
	//   - *Event: The decoded event with Id and CreatedAt populated, or
	//     nil when the frame carries no data lines (not an error).
	//   - error: Non-nil if the rejoined payload failed JSON parsing.
	Decode(frame []string) (*Event, error)

	// DecodePayload decodes a raw JSON payload without frame handling.
	//
	// Use this when the "data:" extraction has already happened.
	// Automatically generates Id and sets CreatedAt.
	DecodePayload(payload []byte) (*Event, error)
}

// =============================================================================
// Frame Decoder Implementation
// =============================================================================

// frameDecoder implements FrameDecoder.
//
// This implementation is stateless and safe for concurrent use.
// All decoded events are assigned fresh Id and CreatedAt values.
type frameDecoder struct{}

// NewFrameDecoder creates a new frame decoder.
//
// The returned decoder is stateless and can be safely shared across
// goroutines.
func NewFrameDecoder() FrameDecoder {
	return &frameDecoder{}
}

// Decode extracts and parses the data payload of one frame.
func (d *frameDecoder) Decode(frame []string) (*Event, error) {
	var payload []string

	for _, line := range frame {
		if !strings.HasPrefix(line, dataMarker) {
			continue
		}
		value := line[len(dataMarker):]
		// The marker may be followed by at most one space.
		value = strings.TrimPrefix(value, " ")
		payload = append(payload, value)
	}

	// A frame with no data lines yields no event.
	if len(payload) == 0 {
		return nil, nil
	}

	return d.DecodePayload([]byte(strings.Join(payload, "\n")))
}

// DecodePayload parses a JSON payload into an Event.
//
// Missing fields are handled gracefully with zero values; the dispatcher
// is responsible for rejecting events it cannot route.
func (d *frameDecoder) DecodePayload(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()

	return &event, nil
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ FrameDecoder = (*frameDecoder)(nil)
