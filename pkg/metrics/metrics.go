// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics provides Prometheus instrumentation for the streaming
// chat client.
//
// # Description
//
// Metrics cover the stream read loop (frames decoded, malformed payloads
// skipped), event dispatch outcomes, connection failures, and pagination
// fetches. Instrumentation is optional: until Init is called every
// recording helper is a no-op, so library consumers that do not run a
// Prometheus registry pay nothing.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace for all metrics.
const metricsNamespace = "chatstream"

// Subsystem for client-side streaming metrics.
const clientSubsystem = "client"

// =============================================================================
// Metric Definitions
// =============================================================================

// ClientMetrics holds all Prometheus metrics for the streaming client.
//
// # Fields
//
//   - FramesTotal: Counter of decoded frames by event type
//   - MalformedPayloadsTotal: Counter of skipped malformed payloads
//   - EventsTotal: Counter of dispatch outcomes by event type
//   - ConnectionErrorsTotal: Counter of transport-level stream failures
//   - ActiveStreams: Gauge of currently bound streams
//   - PaginationFetchesTotal: Counter of history page fetches by outcome
type ClientMetrics struct {
	// FramesTotal counts decoded frames.
	// Labels: event_type (progress, citations, delta, done, error)
	FramesTotal *prometheus.CounterVec

	// MalformedPayloadsTotal counts payloads skipped by the read loop.
	MalformedPayloadsTotal prometheus.Counter

	// EventsTotal counts dispatch outcomes.
	// Labels: event_type, outcome (applied, dropped, ignored)
	EventsTotal *prometheus.CounterVec

	// ConnectionErrorsTotal counts transport-level stream failures.
	ConnectionErrorsTotal prometheus.Counter

	// ActiveStreams tracks currently bound streams.
	ActiveStreams prometheus.Gauge

	// PaginationFetchesTotal counts history page fetches.
	// Labels: outcome (success, error)
	PaginationFetchesTotal *prometheus.CounterVec
}

// Default is the singleton instance of ClientMetrics.
// Nil until Init is called; recording helpers tolerate nil.
var Default *ClientMetrics

// Init creates the default metrics instance and registers it with the
// given registerer.
//
// # Inputs
//
//   - reg: Target registry. Pass prometheus.DefaultRegisterer for the
//     process-wide registry.
//
// # Outputs
//
//   - *ClientMetrics: The initialized instance (also stored in Default).
//   - error: Non-nil if a collector was already registered.
func Init(reg prometheus.Registerer) (*ClientMetrics, error) {
	m := &ClientMetrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: clientSubsystem,
			Name:      "frames_total",
			Help:      "Decoded stream frames by event type.",
		}, []string{"event_type"}),
		MalformedPayloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: clientSubsystem,
			Name:      "malformed_payloads_total",
			Help:      "Stream payloads skipped due to JSON parse failures.",
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: clientSubsystem,
			Name:      "events_total",
			Help:      "Event dispatch outcomes by type.",
		}, []string{"event_type", "outcome"}),
		ConnectionErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: clientSubsystem,
			Name:      "connection_errors_total",
			Help:      "Transport-level stream failures.",
		}),
		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: clientSubsystem,
			Name:      "active_streams",
			Help:      "Currently bound event streams.",
		}),
		PaginationFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: clientSubsystem,
			Name:      "pagination_fetches_total",
			Help:      "History page fetches by outcome.",
		}, []string{"outcome"}),
	}

	collectors := []prometheus.Collector{
		m.FramesTotal,
		m.MalformedPayloadsTotal,
		m.EventsTotal,
		m.ConnectionErrorsTotal,
		m.ActiveStreams,
		m.PaginationFetchesTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	Default = m
	return m, nil
}

// =============================================================================
// Recording Helpers
// =============================================================================

// ObserveFrame records one decoded frame. No-op when Init was not called.
func ObserveFrame(eventType string) {
	if Default == nil {
		return
	}
	Default.FramesTotal.WithLabelValues(eventType).Inc()
}

// ObserveMalformedPayload records one skipped payload.
func ObserveMalformedPayload() {
	if Default == nil {
		return
	}
	Default.MalformedPayloadsTotal.Inc()
}

// ObserveEvent records one dispatch outcome.
func ObserveEvent(eventType, outcome string) {
	if Default == nil {
		return
	}
	Default.EventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// ObserveConnectionError records one transport-level stream failure.
func ObserveConnectionError() {
	if Default == nil {
		return
	}
	Default.ConnectionErrorsTotal.Inc()
}

// StreamBound adjusts the active stream gauge by delta (+1 on bind,
// -1 on unbind).
func StreamBound(delta float64) {
	if Default == nil {
		return
	}
	Default.ActiveStreams.Add(delta)
}

// ObservePaginationFetch records one history page fetch.
func ObservePaginationFetch(outcome string) {
	if Default == nil {
		return
	}
	Default.PaginationFetchesTotal.WithLabelValues(outcome).Inc()
}
