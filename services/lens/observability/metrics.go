// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the lens server.
//
// # Description
//
// Metrics cover the session controller and the panel server:
//   - Stop events by outcome (applied, stale, failed)
//   - Panel commands published and panel messages received
//   - Connected panel clients
//   - Exports and recorded frames
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint of the lens server.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every method is a no-op on a nil *Metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "objectlens"
	sessionSubsystem = "session"
	serverSubsystem  = "server"
)

// StopOutcome labels what happened to a stop event's build.
type StopOutcome string

const (
	// StopApplied means the build was appended to history and published.
	StopApplied StopOutcome = "applied"

	// StopStale means a newer stop superseded the build.
	StopStale StopOutcome = "stale"

	// StopFailed means the stack trace or the build failed.
	StopFailed StopOutcome = "failed"
)

// Metrics holds all Prometheus collectors of the lens server.
//
// # Fields
//
//   - StopsTotal: Stop events by outcome.
//   - BuildSeconds: Duration of a full stop build, all frames.
//   - PublishedTotal: Panel commands published by command name.
//   - PanelMessagesTotal: Panel messages received by command and status.
//   - ConnectedClients: Currently connected panel clients.
//   - ExportsTotal: Diagram exports by format and status.
//   - RecordedFramesTotal: Frames captured by the recorder.
type Metrics struct {
	StopsTotal          *prometheus.CounterVec
	BuildSeconds        prometheus.Histogram
	PublishedTotal      *prometheus.CounterVec
	PanelMessagesTotal  *prometheus.CounterVec
	ConnectedClients    prometheus.Gauge
	ExportsTotal        *prometheus.CounterVec
	RecordedFramesTotal prometheus.Counter
}

// NewMetrics creates and registers all collectors with reg.
//
// # Inputs
//
//   - reg: Registry to register with. Nil uses the default registerer.
//
// # Limitations
//
//   - Panics if called twice with the same registry (duplicate registration).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		StopsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionSubsystem,
				Name:      "stops_total",
				Help:      "Total stop events by outcome",
			},
			[]string{"outcome"},
		),

		BuildSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionSubsystem,
				Name:      "build_seconds",
				Help:      "Time to inspect all frames of a stop in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),

		PublishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionSubsystem,
				Name:      "published_total",
				Help:      "Total panel commands published by command",
			},
			[]string{"command"},
		),

		PanelMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: serverSubsystem,
				Name:      "panel_messages_total",
				Help:      "Total panel messages received by command and status",
			},
			[]string{"command", "status"},
		),

		ConnectedClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: serverSubsystem,
				Name:      "connected_clients",
				Help:      "Number of connected panel clients",
			},
		),

		ExportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: serverSubsystem,
				Name:      "exports_total",
				Help:      "Total diagram exports by format and status",
			},
			[]string{"format", "status"},
		),

		RecordedFramesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionSubsystem,
				Name:      "recorded_frames_total",
				Help:      "Total frames captured by the recorder",
			},
		),
	}
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordStop records the outcome of a stop event.
func (m *Metrics) RecordStop(outcome StopOutcome) {
	if m == nil {
		return
	}
	m.StopsTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordBuild records the duration of a stop build.
func (m *Metrics) RecordBuild(seconds float64) {
	if m == nil {
		return
	}
	m.BuildSeconds.Observe(seconds)
}

// RecordPublished records a published panel command.
func (m *Metrics) RecordPublished(command string) {
	if m == nil {
		return
	}
	m.PublishedTotal.WithLabelValues(command).Inc()
}

// RecordPanelMessage records a received panel message.
//
// # Inputs
//
//   - command: The message's command name.
//   - success: Whether the controller handled it without error.
func (m *Metrics) RecordPanelMessage(command string, success bool) {
	if m == nil {
		return
	}
	m.PanelMessagesTotal.WithLabelValues(command, status(success)).Inc()
}

// ClientConnected increments the connected clients gauge.
func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.ConnectedClients.Inc()
}

// ClientDisconnected decrements the connected clients gauge.
func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.ConnectedClients.Dec()
}

// RecordExport records a diagram export.
func (m *Metrics) RecordExport(format string, success bool) {
	if m == nil {
		return
	}
	m.ExportsTotal.WithLabelValues(format, status(success)).Inc()
}

// RecordFrame records a captured recording frame.
func (m *Metrics) RecordFrame() {
	if m == nil {
		return
	}
	m.RecordedFramesTotal.Inc()
}
