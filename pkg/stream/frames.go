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
// This file contains the frame scanner. It splits a byte stream into
// blank-line-delimited frames without assuming any alignment between
// transport chunks and frame boundaries.
package stream

import (
	"bufio"
	"bytes"
	"io"
)

// =============================================================================
// Frame Scanner
// =============================================================================

// FrameScanner splits a stream into blank-line-delimited frames.
//
// # Description
//
// FrameScanner reads raw bytes from an io.Reader and yields one frame at a
// time. A frame is the sequence of non-blank lines preceding a blank line;
// both LF and CRLF line endings are accepted, and the two styles may be
// mixed within one stream. Because scanning operates on bytes and only
// splits at newline characters, multi-byte UTF-8 sequences that straddle
// transport chunk boundaries are reassembled transparently.
//
// On end-of-stream, any pending non-blank lines are flushed as a final
// frame even when no trailing delimiter was received.
//
// # Limitations
//
//   - No frame size limit is imposed; a pathological frame is bounded only
//     by available memory.
//
// # Assumptions
//
//   - The reader delivers bytes in order (in-order transport).
type FrameScanner struct {
	r       *bufio.Reader
	pending []string
	done    bool
}

// NewFrameScanner creates a scanner over the given reader.
//
// The caller retains ownership of the reader and is responsible for
// closing it.
func NewFrameScanner(r io.Reader) *FrameScanner {
	return &FrameScanner{
		r: bufio.NewReader(r),
	}
}

// Next returns the lines of the next frame.
//
// # Outputs
//
//   - []string: The frame's lines with line endings stripped. Never empty
//     on a nil error.
//   - error: io.EOF once the stream is exhausted and all pending lines
//     have been flushed; any other read error is returned as-is.
//
// Runs of consecutive blank lines produce no empty frames; Next skips
// ahead to the next frame with content.
func (s *FrameScanner) Next() ([]string, error) {
	if s.done {
		return nil, io.EOF
	}

	for {
		line, err := s.r.ReadBytes('\n')

		if len(line) > 0 {
			trimmed := string(bytes.TrimRight(line, "\r\n"))
			if trimmed == "" && err == nil {
				// Blank line: frame boundary.
				if len(s.pending) > 0 {
					frame := s.pending
					s.pending = nil
					return frame, nil
				}
				continue
			}
			if trimmed != "" {
				s.pending = append(s.pending, trimmed)
			}
		}

		if err != nil {
			s.done = true
			if err == io.EOF {
				// Flush an unterminated trailing frame.
				if len(s.pending) > 0 {
					frame := s.pending
					s.pending = nil
					return frame, nil
				}
				return nil, io.EOF
			}
			return nil, err
		}
	}
}
