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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/pvagent/services/llm"
)

// StepOutcome is the response of one completed plan step.
type StepOutcome struct {
	Action   ActionType `json:"action"`
	Content  string     `json:"content"`
	Response string     `json:"response"`
}

// =============================================================================
// Dispatch
// =============================================================================

// dispatch routes one action to its handler variant and runs it. On success
// the response is appended to the transcript and the session error cleared.
func (o *Orchestrator) dispatch(ctx context.Context, s *SessionState, action ActionType, t turn) (outcome, error) {
	needsContext := o.cfg.HistoryAwareDefault || NeedsContext(t.message)
	id, ok := SelectVariant(action, needsContext)
	if !ok {
		return outcome{}, newAgentError(KindClassificationFailure, fmt.Sprintf("no handler for action %v", action), nil)
	}
	handle := o.handlers[id]

	ctx, span := tracer.Start(ctx, "agent.Orchestrator.dispatch",
		trace.WithAttributes(
			attribute.String("agent.action", action.String()),
			attribute.String("agent.handler", string(id)),
		),
	)
	defer span.End()

	s.setClassification(action)
	out, err := handle(ctx, s, t)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcome{}, err
	}
	if action == ActionGeneration && o.cfg.AnalyzeAfterGeneration && !t.analysisNext {
		out.response = o.followWithAnalysis(ctx, s, t, needsContext, out.response)
	}

	s.Error = nil
	msg := s.AppendMessage(llm.RoleAssistant, out.response)
	o.recordMessage(ctx, s, msg)
	if out.result != nil {
		o.recordResult(ctx, s, s.CachedResults[len(s.CachedResults)-1])
	}
	return out, nil
}

// autoAnalysisRequest is the input of the analysis that follows a
// simulation.
const autoAnalysisRequest = "Analyze the PV curve that was just generated."

// followWithAnalysis appends an analysis of the fresh result to the
// simulation summary. The simulation already succeeded, so an analysis
// failure is reported in the text and does not fail the step.
func (o *Orchestrator) followWithAnalysis(ctx context.Context, s *SessionState, t turn, needsContext bool, summary string) string {
	id, _ := SelectVariant(ActionAnalysis, needsContext)
	out, err := o.handlers[id](ctx, s, turn{message: t.message, input: autoAnalysisRequest})
	if err != nil {
		aerr := asAgentError(err)
		o.obs.ObserveError(aerr.Kind)
		slog.Warn("Analysis after simulation failed",
			"session_id", s.SessionID,
			"kind", string(aerr.Kind),
			"error", aerr.Error())
		return summary + "\n\nThe automatic analysis could not be completed: " + aerr.Message + "."
	}
	return summary + "\n\n" + out.response
}

// dispatchWithRetry dispatches and, on failure, consults the error handler
// about re-entering the same step.
//
// # Outputs
//
//   - outcome: the successful outcome.
//   - *AgentError: the final failure, already stored in s.Error.
func (o *Orchestrator) dispatchWithRetry(ctx context.Context, s *SessionState, action ActionType, t turn, step int) (outcome, *AgentError) {
	for attempts := 0; ; attempts++ {
		out, err := o.dispatch(ctx, s, action, t)
		if err == nil {
			s.RetryTarget = nil
			return out, nil
		}

		aerr := asAgentError(err)
		aerr.Step = step
		aerr.Input = t.input
		s.Error = aerr
		o.obs.ObserveError(aerr.Kind)

		if !o.errors.ShouldRetry(ctx, aerr, attempts) {
			s.RetryTarget = nil
			return outcome{}, aerr
		}
		target := step
		s.RetryTarget = &target
		o.obs.ObserveRetry(aerr.Kind)
		slog.Warn("Retrying failed step",
			"session_id", s.SessionID,
			"step", step,
			"action", action.String(),
			"kind", string(aerr.Kind),
			"error", aerr.Error())
	}
}

// =============================================================================
// Plan execution
// =============================================================================

// runPlan executes s.Plan from s.PlanCursor.
//
// # Description
//
// Dispatch: the step at the cursor is routed and run. Advance: on success
// the cursor moves forward by one. Summary: once the cursor reaches the
// plan length the per-step outcomes are aggregated into one response.
// Error: a step that fails after its retries stops the plan with the cursor
// left on that step; later steps are never dispatched and no step is ever
// skipped.
func (o *Orchestrator) runPlan(ctx context.Context, s *SessionState, message string) (string, []StepOutcome, *AgentError) {
	o.obs.ObservePlanSteps(len(s.Plan))
	var done []StepOutcome
	for s.PlanCursor < len(s.Plan) {
		step := s.Plan[s.PlanCursor]
		slog.Debug("Dispatching plan step",
			"session_id", s.SessionID,
			"cursor", s.PlanCursor,
			"total", len(s.Plan),
			"action", step.Action.String())

		next := s.PlanCursor + 1
		t := turn{
			message:      message,
			input:        step.Content,
			edits:        step.Edits,
			analysisNext: next < len(s.Plan) && s.Plan[next].Action == ActionAnalysis,
		}
		out, aerr := o.dispatchWithRetry(ctx, s, step.Action, t, s.PlanCursor)
		if aerr != nil {
			return "", done, aerr
		}
		done = append(done, StepOutcome{Action: step.Action, Content: step.Content, Response: out.response})
		s.PlanCursor++
	}
	return planSummary(done), done, nil
}

func planSummary(steps []StepOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Completed all %d steps of your request.", len(steps))
	for i, st := range steps {
		fmt.Fprintf(&b, "\n\nStep %d (%s): %s\n%s", i+1, st.Action, st.Content, st.Response)
	}
	return b.String()
}
