// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the orchestrator.
//
// # Description
//
// AgentMetrics implements agent.Observer, so every interaction, error,
// retry, plan, and capability call of the agent is counted. Metrics
// include:
//   - Interaction counters and latency (by action and outcome)
//   - Error and retry counters (by error kind)
//   - Capability latency histograms (language, retrieval, simulation)
//   - Active session and websocket gauges
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/pvagent/services/agent"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for agent metrics
const agentSubsystem = "agent"

// AgentMetrics holds all Prometheus metrics for the power-systems agent.
//
// # Fields
//
//   - InteractionsTotal: Interactions by action and outcome
//   - InteractionDurationSeconds: End-to-end latency per interaction
//   - ErrorsTotal: Agent errors by kind
//   - RetriesTotal: Step retries by kind
//   - PlanSteps: Size of compound plans
//   - CapabilityDurationSeconds: Capability call latency by capability and status
//   - ActiveSessions: Sessions held in memory
//   - WebSocketConnections: Open websocket chats
type AgentMetrics struct {
	InteractionsTotal          *prometheus.CounterVec
	InteractionDurationSeconds *prometheus.HistogramVec
	ErrorsTotal                *prometheus.CounterVec
	RetriesTotal               *prometheus.CounterVec
	PlanSteps                  prometheus.Histogram
	CapabilityDurationSeconds  *prometheus.HistogramVec
	ActiveSessions             prometheus.Gauge
	WebSocketConnections       prometheus.Gauge
}

// NewAgentMetrics creates and registers the metrics on reg.
//
// # Description
//
// Production passes prometheus.DefaultRegisterer; tests pass a fresh
// prometheus.NewRegistry() so registrations never collide.
//
// # Limitations
//
//   - Panics if called twice with the same registerer.
func NewAgentMetrics(reg prometheus.Registerer) *AgentMetrics {
	factory := promauto.With(reg)
	return &AgentMetrics{
		InteractionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "interactions_total",
				Help:      "Total agent interactions by action and outcome",
			},
			[]string{"action", "outcome"},
		),

		InteractionDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "interaction_duration_seconds",
				Help:      "End-to-end interaction duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"action"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "errors_total",
				Help:      "Total agent errors by kind",
			},
			[]string{"kind"},
		),

		RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "retries_total",
				Help:      "Total step retries by error kind",
			},
			[]string{"kind"},
		),

		PlanSteps: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "plan_steps",
				Help:      "Number of steps in compound plans",
				Buckets:   []float64{1, 2, 3, 4, 5, 6, 8},
			},
		),

		CapabilityDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "capability_duration_seconds",
				Help:      "Capability call duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"capability", "status"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "active_sessions",
				Help:      "Number of sessions held in memory",
			},
		),

		WebSocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "websocket_connections",
				Help:      "Number of open websocket chat connections",
			},
		),
	}
}

// =============================================================================
// agent.Observer
// =============================================================================

// ObserveInteraction records a completed interaction.
func (m *AgentMetrics) ObserveInteraction(action string, outcome string, duration time.Duration) {
	m.InteractionsTotal.WithLabelValues(action, outcome).Inc()
	m.InteractionDurationSeconds.WithLabelValues(action).Observe(duration.Seconds())
}

// ObserveError records an agent error.
func (m *AgentMetrics) ObserveError(kind agent.ErrorKind) {
	m.ErrorsTotal.WithLabelValues(string(kind)).Inc()
}

// ObserveRetry records a step retry.
func (m *AgentMetrics) ObserveRetry(kind agent.ErrorKind) {
	m.RetriesTotal.WithLabelValues(string(kind)).Inc()
}

// ObservePlanSteps records the size of a compound plan.
func (m *AgentMetrics) ObservePlanSteps(steps int) {
	m.PlanSteps.Observe(float64(steps))
}

// ObserveCapability records one capability call.
func (m *AgentMetrics) ObserveCapability(capability string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.CapabilityDurationSeconds.WithLabelValues(capability, status).Observe(duration.Seconds())
}

// =============================================================================
// Gauges
// =============================================================================

// SetActiveSessions sets the in-memory session gauge.
func (m *AgentMetrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// WebSocketOpened increments the websocket gauge.
func (m *AgentMetrics) WebSocketOpened() {
	m.WebSocketConnections.Inc()
}

// WebSocketClosed decrements the websocket gauge.
func (m *AgentMetrics) WebSocketClosed() {
	m.WebSocketConnections.Dec()
}

var _ agent.Observer = (*AgentMetrics)(nil)
