// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/pvagent/services/llm"
)

var tracer = otel.Tracer("pvagent.agent")

// DefaultCapabilityTimeout bounds each capability call when Config leaves
// it unset.
const DefaultCapabilityTimeout = 2 * time.Minute

// Config holds the orchestrator settings.
type Config struct {
	// HistoryAwareDefault routes every dispatch to the history-aware
	// handler variant instead of consulting NeedsContext.
	HistoryAwareDefault bool `yaml:"history_aware_default" json:"history_aware_default"`

	// MaxRetriesPerStep caps re-dispatches of a failing step. Zero selects
	// DefaultMaxRetriesPerStep; a negative value disables retry.
	MaxRetriesPerStep int `yaml:"max_retries_per_step" json:"max_retries_per_step"`

	// MaxPlanSteps caps the length of a compound plan.
	MaxPlanSteps int `yaml:"max_plan_steps" json:"max_plan_steps"`

	// CapabilityTimeout bounds each language, retrieval, or simulation call.
	CapabilityTimeout time.Duration `yaml:"capability_timeout" json:"capability_timeout"`

	// AnalyzeAfterGeneration follows every successful simulation with an
	// analysis of its result, in the same reply. DefaultConfig enables it.
	AnalyzeAfterGeneration bool `yaml:"analyze_after_generation" json:"analyze_after_generation"`
}

// DefaultConfig returns the default orchestrator settings.
func DefaultConfig() Config {
	return Config{
		MaxRetriesPerStep:      DefaultMaxRetriesPerStep,
		MaxPlanSteps:           DefaultMaxPlanSteps,
		CapabilityTimeout:      DefaultCapabilityTimeout,
		AnalyzeAfterGeneration: true,
	}
}

func applyConfigDefaults(cfg *Config) {
	if cfg.MaxRetriesPerStep == 0 {
		cfg.MaxRetriesPerStep = DefaultMaxRetriesPerStep
	}
	if cfg.MaxPlanSteps <= 0 {
		cfg.MaxPlanSteps = DefaultMaxPlanSteps
	}
	if cfg.CapabilityTimeout <= 0 {
		cfg.CapabilityTimeout = DefaultCapabilityTimeout
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver reports orchestration events to obs.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.obs = obs
		}
	}
}

// Response is the outcome of one Process call.
type Response struct {
	SessionID string `json:"session_id"`
	Text      string `json:"response"`
	// Action is the single action taken; zero for compound requests and
	// for failures before dispatch.
	Action     ActionType    `json:"action,omitempty"`
	IsCompound bool          `json:"is_compound"`
	Steps      []StepOutcome `json:"steps,omitempty"`
	Error      *AgentError   `json:"error,omitempty"`
	Fatal      bool          `json:"fatal,omitempty"`
}

// Orchestrator is the top-level state machine.
//
// # Description
//
// Process runs one message to completion: classification, then either a
// direct dispatch or planning and step-by-step execution, then error
// handling if anything failed, and finally one history record for the
// whole interaction.
//
// # Thread Safety
//
// An Orchestrator may serve many sessions concurrently. A single
// SessionState must not be processed concurrently.
type Orchestrator struct {
	cfg        Config
	caps       Capabilities
	classifier *Classifier
	planner    *Planner
	errors     *ErrorHandler
	handlers   map[HandlerID]handlerFunc
	obs        Observer
}

// New creates an orchestrator.
//
// # Inputs
//
//   - cfg: settings; zero fields take their defaults.
//   - caps: Language, Retriever, and Simulator are required.
//   - opts: optional settings.
//
// # Outputs
//
//   - *Orchestrator: ready to process messages.
//   - error: when a required capability is missing.
func New(cfg Config, caps Capabilities, opts ...Option) (*Orchestrator, error) {
	if err := caps.validate(); err != nil {
		return nil, fmt.Errorf("invalid capabilities: %w", err)
	}
	applyConfigDefaults(&cfg)

	o := &Orchestrator{cfg: cfg, obs: nopObserver{}}
	for _, opt := range opts {
		opt(o)
	}

	o.caps = Capabilities{
		Language:  observedLanguage{next: caps.Language, obs: o.obs},
		Retriever: observedRetriever{next: caps.Retriever, obs: o.obs},
		Simulator: observedSimulator{next: caps.Simulator, obs: o.obs},
		Recorder:  caps.Recorder,
	}
	o.classifier = NewClassifier(o.caps.Language, cfg.CapabilityTimeout)
	o.planner = NewPlanner(o.caps.Language, cfg.MaxPlanSteps, cfg.CapabilityTimeout)
	o.errors = NewErrorHandler(o.caps.Language, cfg.MaxRetriesPerStep, cfg.CapabilityTimeout)
	h := &handlers{
		lang:    o.caps.Language,
		ret:     o.caps.Retriever,
		sim:     o.caps.Simulator,
		timeout: cfg.CapabilityTimeout,
	}
	o.handlers = h.table()
	return o, nil
}

// Config returns the effective settings.
func (o *Orchestrator) Config() Config { return o.cfg }

// Process handles one user message against s.
//
// # Description
//
// Handler failures never escape: they are stored in s.Error, explained to
// the user, and reflected in Response.Error. When the explanation itself
// fails the response is a generic message and Response.Fatal is set.
//
// # Inputs
//
//   - ctx: cancellation reaches every capability call. A cancelled call is
//     handled like any other capability failure.
//   - s: the session. Must not be shared with a concurrent Process call.
//   - message: the user's text.
//
// # Outputs
//
//   - Response: the assistant's reply and what happened.
//   - error: only ErrEmptyMessage.
func (o *Orchestrator) Process(ctx context.Context, s *SessionState, message string) (Response, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Response{}, ErrEmptyMessage
	}

	ctx, span := tracer.Start(ctx, "agent.Orchestrator.Process",
		trace.WithAttributes(attribute.String("agent.session_id", s.SessionID)),
	)
	defer span.End()
	start := time.Now()

	s.resetTurn()
	userMsg := s.AppendMessage(llm.RoleUser, message)
	o.recordMessage(ctx, s, userMsg)

	resp := Response{SessionID: s.SessionID}
	var aerr *AgentError

	cls, err := o.classifier.Classify(ctx, message, s.Parameters)
	if err != nil {
		aerr = asAgentError(err)
		aerr.Input = message
		s.Error = aerr
		o.obs.ObserveError(aerr.Kind)
	} else if cls.IsCompound {
		resp.IsCompound = true
		resp.Text, resp.Steps, aerr = o.processCompound(ctx, s, message, cls.PlanHint)
	} else {
		resp.Action = cls.Action
		var out outcome
		out, aerr = o.dispatchWithRetry(ctx, s, cls.Action, turn{message: message, input: message}, 0)
		resp.Text = out.response
	}

	outcomeLabel := "success"
	if aerr != nil {
		span.RecordError(aerr)
		span.SetStatus(codes.Error, string(aerr.Kind))
		resp.Error = aerr
		resp.Text, resp.Fatal = o.explain(ctx, s, aerr, resp.Steps)
		outcomeLabel = string(aerr.Kind)
	}

	entry := ConversationEntry{
		Timestamp:         time.Now().UTC(),
		UserInput:         message,
		AssistantResponse: resp.Text,
		ParametersUsed:    s.Parameters,
		Action:            resp.Action,
		IsCompound:        resp.IsCompound,
	}
	s.RecordInteraction(entry)
	o.recordInteraction(ctx, s, entry)

	actionLabel := "compound"
	if !resp.IsCompound {
		actionLabel = resp.Action.String()
		if resp.Action == 0 {
			actionLabel = "unclassified"
		}
	}
	o.obs.ObserveInteraction(actionLabel, outcomeLabel, time.Since(start))
	slog.Info("Interaction completed",
		"session_id", s.SessionID,
		"action", actionLabel,
		"outcome", outcomeLabel,
		"duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}

// processCompound plans and executes a compound request.
func (o *Orchestrator) processCompound(ctx context.Context, s *SessionState, message, hint string) (string, []StepOutcome, *AgentError) {
	steps, err := o.planner.Plan(ctx, message, hint)
	if err != nil {
		aerr := asAgentError(err)
		aerr.Input = message
		s.Error = aerr
		o.obs.ObserveError(aerr.Kind)
		return "", nil, aerr
	}
	s.Plan = steps
	s.PlanCursor = 0

	summary, done, aerr := o.runPlan(ctx, s, message)
	if aerr != nil {
		return "", done, aerr
	}
	msg := s.AppendMessage(llm.RoleAssistant, summary)
	o.recordMessage(ctx, s, msg)
	return summary, done, nil
}

// explain produces the terminal response for a failed interaction and
// appends it to the transcript. fatal is true when the explanation call
// itself failed.
func (o *Orchestrator) explain(ctx context.Context, s *SessionState, aerr *AgentError, done []StepOutcome) (text string, fatal bool) {
	text, err := o.errors.Explain(ctx, aerr)
	if err != nil {
		slog.Error("Could not explain failure",
			"session_id", s.SessionID,
			"kind", string(aerr.Kind),
			"error", err)
		text = GenericFailureResponse(aerr)
		fatal = true
	}
	if s.InPlan() {
		text = fmt.Sprintf("Completed %d of %d steps before stopping at step %d.\n\n%s",
			len(done), len(s.Plan), s.PlanCursor+1, text)
	}
	msg := s.AppendMessage(llm.RoleAssistant, text)
	o.recordMessage(ctx, s, msg)
	return text, fatal
}

// =============================================================================
// Persistence hooks
// =============================================================================

func (o *Orchestrator) recordMessage(ctx context.Context, s *SessionState, msg Message) {
	if o.caps.Recorder == nil {
		return
	}
	if err := o.caps.Recorder.RecordMessage(ctx, s.SessionID, msg); err != nil {
		slog.Warn("Failed to archive message", "session_id", s.SessionID, "error", err)
	}
}

func (o *Orchestrator) recordInteraction(ctx context.Context, s *SessionState, entry ConversationEntry) {
	if o.caps.Recorder == nil {
		return
	}
	if err := o.caps.Recorder.RecordInteraction(ctx, s.SessionID, entry); err != nil {
		slog.Warn("Failed to archive interaction", "session_id", s.SessionID, "error", err)
	}
}

func (o *Orchestrator) recordResult(ctx context.Context, s *SessionState, entry CachedResult) {
	if o.caps.Recorder == nil {
		return
	}
	if err := o.caps.Recorder.RecordResult(ctx, s.SessionID, entry); err != nil {
		slog.Warn("Failed to archive simulation result", "session_id", s.SessionID, "error", err)
	}
}
