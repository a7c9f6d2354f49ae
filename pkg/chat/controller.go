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
// This file contains the stream lifecycle controller: connection
// open/close, cooperative cancellation on conversation switch or
// teardown, and the separation of transport-level failures from
// application-level error events.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/chatstream/pkg/metrics"
	"github.com/AleutianAI/chatstream/pkg/stream"
)

var controllerTracer = otel.Tracer("chatstream.chat.controller")

// ErrNotBound is returned by Wait when no stream is bound.
var ErrNotBound = errors.New("no stream bound")

// =============================================================================
// Stream Opener
// =============================================================================

// StreamOpener opens the long-lived event stream for a conversation.
// Implemented by the API client; the returned body is owned by the
// controller and closed when the binding ends.
type StreamOpener interface {
	OpenStream(ctx context.Context, conversationID string) (io.ReadCloser, error)
}

// =============================================================================
// Controller
// =============================================================================

// Controller owns the single active stream binding.
//
// # Description
//
// Exactly one stream is bound at a time. Bind aborts any previous stream
// before opening the new one; Unbind cancels without transcript side
// effects. Cancellation is cooperative: the read loop observes it at the
// next frame boundary, and no transcript mutation happens after the
// cancel is issued.
//
// Transport-level failures (non-success status, missing body, read
// errors) surface through ConnectionErr and the optional connection
// warning sink; they are never folded into message status. Application
// error events take the opposite path: they mutate message status via the
// dispatcher and never appear in ConnectionErr. Recovery from a
// connection error requires an explicit rebind.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Controller struct {
	opener StreamOpener
	reader stream.Reader

	// onConnectionError receives transport-level failures. Optional;
	// distinct from the dispatcher's application warning sink.
	onConnectionError func(err error)

	mu         sync.Mutex
	bound      string
	dispatcher *Dispatcher
	cancel     context.CancelFunc
	done       chan struct{}
	connErr    error
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithConnectionErrorFunc installs the connection failure sink.
func WithConnectionErrorFunc(fn func(err error)) ControllerOption {
	return func(c *Controller) { c.onConnectionError = fn }
}

// NewController creates a controller with no active binding.
func NewController(opener StreamOpener, reader stream.Reader, opts ...ControllerOption) *Controller {
	c := &Controller{
		opener: opener,
		reader: reader,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bind aborts any previous stream and opens one for the conversation the
// dispatcher is bound to.
//
// # Inputs
//
//   - ctx: Parent context; the stream inherits its deadline and values.
//   - dispatcher: Receives every decoded event. Its transcript determines
//     the bound conversation id.
//
// # Outputs
//
//   - error: Non-nil when the stream could not be opened; the failure is
//     also recorded as a connection error.
//
// Any optimistic transcript append for the expected correlation id must
// happen before Bind so the placeholder exists when the first delta
// arrives.
func (c *Controller) Bind(ctx context.Context, dispatcher *Dispatcher) error {
	ctx, span := controllerTracer.Start(ctx, "Controller.Bind")
	defer span.End()

	conversationID := dispatcher.transcript.ConversationID()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortLocked()

	streamCtx, cancel := context.WithCancel(ctx)

	body, err := c.opener.OpenStream(streamCtx, conversationID)
	if err != nil {
		cancel()
		err = fmt.Errorf("opening stream: %w", err)
		c.recordConnErrLocked(err)
		return err
	}
	if body == nil {
		cancel()
		err = errors.New("opening stream: response had no readable body")
		c.recordConnErrLocked(err)
		return err
	}

	done := make(chan struct{})
	c.bound = conversationID
	c.dispatcher = dispatcher
	c.cancel = cancel
	c.done = done
	c.connErr = nil
	metrics.StreamBound(1)

	slog.Debug("stream bound", "conversation_id", conversationID)

	go c.run(streamCtx, conversationID, body, dispatcher, done)
	return nil
}

// run is the read loop goroutine for one binding.
func (c *Controller) run(ctx context.Context, conversationID string, body io.ReadCloser, dispatcher *Dispatcher, done chan struct{}) {
	defer close(done)
	defer metrics.StreamBound(-1)
	defer body.Close()

	err := c.reader.Read(ctx, body, func(event stream.Event) error {
		// The loop may drain briefly after cancellation but must not
		// mutate state once the cancel has been observed.
		if err := ctx.Err(); err != nil {
			return err
		}
		dispatcher.Apply(event)
		return nil
	})

	if err == nil || errors.Is(err, context.Canceled) {
		slog.Debug("stream ended", "conversation_id", conversationID)
		return
	}

	err = fmt.Errorf("reading stream: %w", err)
	c.mu.Lock()
	if c.done == done {
		c.recordConnErrLocked(err)
	} else {
		// This loop served a binding that was already aborted; its
		// transport failure must not surface against the current one.
		slog.Debug("ignoring transport failure from aborted stream",
			"conversation_id", conversationID, "error", err)
	}
	c.mu.Unlock()
}

// Unbind aborts the active stream, if any, without touching the
// transcript.
//
// Returns immediately; the read loop may drain briefly in the background
// but applies no further events.
func (c *Controller) Unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortLocked()
}

// Wait blocks until the active binding's read loop finishes.
//
// Returns ErrNotBound when nothing is bound. Used by callers that want a
// turn's terminal event before proceeding (the CLI does).
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return ErrNotBound
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// BoundConversation returns the conversation id of the active binding,
// or "" when none is bound.
func (c *Controller) BoundConversation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bound
}

// ConnectionErr returns the transport-level failure of the current or
// most recent binding, or nil. Application error events never appear
// here.
func (c *Controller) ConnectionErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connErr
}

// =============================================================================
// Internal
// =============================================================================

// abortLocked cancels the active binding. Caller must hold c.mu.
func (c *Controller) abortLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.bound != "" {
		slog.Debug("stream unbound", "conversation_id", c.bound)
	}
	c.bound = ""
	c.dispatcher = nil
	c.done = nil
}

// recordConnErrLocked stores a transport failure and notifies the sink.
// Caller must hold c.mu.
func (c *Controller) recordConnErrLocked(err error) {
	c.connErr = err
	metrics.ObserveConnectionError()
	slog.Error("stream connection error", "error", err)
	if c.onConnectionError != nil {
		c.onConnectionError(err)
	}
}
