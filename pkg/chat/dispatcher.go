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
// This file contains the event dispatcher: the state machine that routes
// decoded events by type into transcript mutations.
//
// Per correlation id the lifecycle is:
//
//	queued -> streaming -> terminal(complete|error)
//
// Terminal states are not re-enterable; the single exception is a late
// citations event, which may still attach.
package chat

import (
	"fmt"
	"log/slog"

	"github.com/AleutianAI/chatstream/pkg/metrics"
	"github.com/AleutianAI/chatstream/pkg/stream"
)

// errorFallbackText replaces an empty assistant body when the server
// signals failure before any content arrived.
const errorFallbackText = "The assistant could not complete this response. Please try again."

// Dispatch outcomes recorded in metrics.
const (
	outcomeApplied = "applied"
	outcomeDropped = "dropped"
	outcomeIgnored = "ignored"
)

// =============================================================================
// Turn Completion
// =============================================================================

// TurnCompletion describes a successfully finished turn. Consumers use it
// to refresh the conversation list entry (preview, ordering).
type TurnCompletion struct {
	ConversationID string
	RequestID      string
	Content        string
}

// =============================================================================
// Dispatcher
// =============================================================================

// Dispatcher routes decoded events into transcript mutations.
//
// # Description
//
// The dispatcher is bound to exactly one conversation via its transcript.
// Events carrying a different conversation id are dropped without any
// mutation, which prevents cross-talk when a previous conversation's
// stream is still draining after a switch.
//
// Events for one correlation id are applied strictly in call order; the
// dispatcher never reorders or batches. Interleaved correlation ids do
// not affect each other.
//
// # Thread Safety
//
// Apply is safe for concurrent use; all state lives in the transcript,
// which serializes mutations internally.
type Dispatcher struct {
	transcript *Transcript

	// onWarning receives page-level transient warnings (application
	// error events). Optional.
	onWarning func(text string)

	// onComplete receives finished turns for conversation list refresh.
	// Optional.
	onComplete func(TurnCompletion)

	// observer sees every event applied to the bound conversation,
	// after its transcript effect. Renderers hang off this. Optional.
	observer func(stream.Event)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWarningFunc installs the transient warning sink.
func WithWarningFunc(fn func(text string)) DispatcherOption {
	return func(d *Dispatcher) { d.onWarning = fn }
}

// WithCompletionFunc installs the turn completion sink.
func WithCompletionFunc(fn func(TurnCompletion)) DispatcherOption {
	return func(d *Dispatcher) { d.onComplete = fn }
}

// WithObserver installs the per-event observer. Dropped cross-conversation
// events are not observed.
func WithObserver(fn func(stream.Event)) DispatcherOption {
	return func(d *Dispatcher) { d.observer = fn }
}

// NewDispatcher creates a dispatcher bound to the given transcript.
func NewDispatcher(transcript *Transcript, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		transcript: transcript,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Apply folds one event into the transcript.
//
// # Inputs
//
//   - event: A decoded stream event. Events for another conversation are
//     dropped; events for terminal correlation ids are ignored except
//     citations.
//
// Apply never returns an error: malformed or unroutable events are logged
// and counted, and the read loop continues regardless.
func (d *Dispatcher) Apply(event stream.Event) {
	if event.ConversationID != d.transcript.ConversationID() {
		slog.Debug("dropping event for unbound conversation",
			"event_conversation", event.ConversationID,
			"bound_conversation", d.transcript.ConversationID(),
			"request_id", event.RequestID)
		metrics.ObserveEvent(event.Type.String(), outcomeDropped)
		return
	}

	switch event.Type {
	case stream.EventProgress:
		d.applyProgress(event)

	case stream.EventCitations:
		d.applyCitations(event)

	case stream.EventDelta:
		d.applyDelta(event)

	case stream.EventDone:
		d.applyDone(event)

	case stream.EventError:
		d.applyError(event)

	default:
		slog.Warn("unknown stream event type",
			"type", event.Type.String(),
			"request_id", event.RequestID)
		metrics.ObserveEvent(event.Type.String(), outcomeIgnored)
	}

	if d.observer != nil {
		d.observer(event)
	}
}

// =============================================================================
// Per-type Handlers
// =============================================================================

func (d *Dispatcher) applyProgress(event stream.Event) {
	if d.transcript.SetStage(event.RequestID, event.Stage) {
		metrics.ObserveEvent(event.Type.String(), outcomeApplied)
		return
	}
	metrics.ObserveEvent(event.Type.String(), outcomeIgnored)
}

func (d *Dispatcher) applyCitations(event stream.Event) {
	// Citations are honored even after a terminal transition.
	if d.transcript.AttachCitations(event.RequestID, event.Citations) {
		metrics.ObserveEvent(event.Type.String(), outcomeApplied)
		return
	}
	metrics.ObserveEvent(event.Type.String(), outcomeIgnored)
}

func (d *Dispatcher) applyDelta(event stream.Event) {
	applied, created := d.transcript.AppendDelta(event.RequestID, event.Content)
	if created {
		// A delta arrived ahead of its placeholder; a defensive
		// message was appended.
		slog.Debug("created assistant message for unmatched delta",
			"request_id", event.RequestID)
	}
	if applied {
		metrics.ObserveEvent(event.Type.String(), outcomeApplied)
		return
	}
	metrics.ObserveEvent(event.Type.String(), outcomeIgnored)
}

func (d *Dispatcher) applyDone(event stream.Event) {
	content, ok := d.transcript.Complete(event.RequestID)
	if !ok {
		metrics.ObserveEvent(event.Type.String(), outcomeIgnored)
		return
	}
	metrics.ObserveEvent(event.Type.String(), outcomeApplied)

	if d.onComplete != nil {
		d.onComplete(TurnCompletion{
			ConversationID: event.ConversationID,
			RequestID:      event.RequestID,
			Content:        content,
		})
	}
}

func (d *Dispatcher) applyError(event stream.Event) {
	fallback := errorFallbackText
	if detail := event.ErrorText(); detail != "" {
		fallback = fmt.Sprintf("%s (%s)", errorFallbackText, detail)
	}

	if !d.transcript.Fail(event.RequestID, fallback) {
		metrics.ObserveEvent(event.Type.String(), outcomeIgnored)
		return
	}
	metrics.ObserveEvent(event.Type.String(), outcomeApplied)

	slog.Warn("server signaled turn failure",
		"request_id", event.RequestID,
		"detail", event.ErrorText())
	if d.onWarning != nil {
		d.onWarning(fallback)
	}
}

// =============================================================================
// Stage Helpers
// =============================================================================

// StageSuppressesTyping reports whether a progress stage indicates a
// recovered or replayed answer, for which renderers should not show a
// typing indicator.
func StageSuppressesTyping(stage string) bool {
	return stage == "replayed" || stage == "recovered"
}
