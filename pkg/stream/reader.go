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
// This file contains the stream reader: the loop that pulls frames from a
// transport body, decodes them, and emits events via a callback.
//
// Context Support:
//
//	The reader checks the context before each frame. Cancellation is
//	cooperative: it is observed at the next frame boundary, never
//	preemptively.
package stream

import (
	"context"
	"io"
	"log/slog"

	"github.com/AleutianAI/chatstream/pkg/metrics"
)

// =============================================================================
// Stream Reader Interface
// =============================================================================

// EventCallback is invoked for each decoded event. Returning a non-nil
// error stops the read loop and propagates the error to the caller.
type EventCallback func(event Event) error

// Reader consumes a stream body and emits decoded events.
//
// # Description
//
// Reader ties the frame scanner and decoder together into the read loop.
// Malformed payloads are logged and skipped; they never abort the loop or
// surface to the callback. The loop ends on EOF, on a terminal event, on
// context cancellation, or on a callback error.
//
// Thread Safety:
//
//	A Reader may be shared, but a single Read call must not be invoked
//	concurrently on the same body.
type Reader interface {
	// Read processes a stream, invoking callback for each event.
	//
	// # Inputs
	//
	//   - ctx: Cancellation context, checked once per frame.
	//   - r: The stream body. Caller is responsible for closing.
	//   - callback: Invoked for each decoded event, in arrival order.
	//
	// # Outputs
	//
	//   - error: nil when the stream completed (EOF or terminal event);
	//     otherwise the context or transport error that stopped reading.
	Read(ctx context.Context, r io.Reader, callback EventCallback) error
}

// =============================================================================
// Reader Implementation
// =============================================================================

// frameReader implements Reader over blank-line-delimited frames.
type frameReader struct {
	decoder FrameDecoder
}

// NewReader creates a stream reader using the given decoder.
func NewReader(decoder FrameDecoder) Reader {
	return &frameReader{
		decoder: decoder,
	}
}

// Read pulls frames until the stream ends or a terminal event arrives.
func (fr *frameReader) Read(ctx context.Context, r io.Reader, callback EventCallback) error {
	scanner := NewFrameScanner(r)
	eventIndex := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, err := scanner.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		event, err := fr.decoder.Decode(frame)
		if err != nil {
			// Malformed payloads are skipped; the loop continues.
			slog.Warn("skipping malformed stream payload", "error", err)
			metrics.ObserveMalformedPayload()
			continue
		}
		if event == nil {
			continue
		}

		event.Index = eventIndex
		eventIndex++
		metrics.ObserveFrame(event.Type.String())

		if err := callback(*event); err != nil {
			return err
		}

		if event.IsTerminal() {
			return nil
		}
	}
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ Reader = (*frameReader)(nil)
