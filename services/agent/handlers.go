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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/AleutianAI/pvagent/services/llm"
	"github.com/AleutianAI/pvagent/services/pvcurve"
)

// turn is the input of one dispatch.
type turn struct {
	// message is the user's top-level message; routing looks at it.
	message string
	// input is the text the handler works on: the message itself, or a
	// plan step's content.
	input string
	// edits are pre-extracted parameter edits from the plan, if any.
	edits []ParameterEdit
	// analysisNext is set when the plan's next step is an analysis, so a
	// generation does not analyze twice.
	analysisNext bool
}

// outcome is the successful output of one dispatch.
type outcome struct {
	response string
	result   *pvcurve.Result
}

type handlerFunc func(ctx context.Context, s *SessionState, t turn) (outcome, error)

// handlers holds the injected capabilities shared by every handler.
type handlers struct {
	lang    Language
	ret     Retriever
	sim     Simulator
	timeout time.Duration
}

// table returns the handler for every HandlerID in variantTable.
func (h *handlers) table() map[HandlerID]handlerFunc {
	return map[HandlerID]handlerFunc{
		HandlerQuestionGeneral:          h.questionGeneral,
		HandlerQuestionParameter:        h.questionParameter,
		HandlerParameter:                h.parameter,
		HandlerGeneration:               h.generation,
		HandlerAnalysis:                 h.analysis,
		HandlerHistoryQuestionGeneral:   h.historyQuestionGeneral,
		HandlerHistoryQuestionParameter: h.historyQuestionParameter,
		HandlerHistoryParameter:         h.historyParameter,
		HandlerHistoryGeneration:        h.historyGeneration,
		HandlerHistoryAnalysis:          h.historyAnalysis,
	}
}

func (h *handlers) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return boundCall(ctx, h.timeout)
}

// boundCall derives the context of one capability call. timeout <= 0 only
// adds cancellation.
func boundCall(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// =============================================================================
// Capability calls
// =============================================================================

func (h *handlers) retrieve(ctx context.Context, query string) (string, error) {
	ctx, cancel := h.bounded(ctx)
	defer cancel()
	passages, err := h.ret.Retrieve(ctx, query)
	if err != nil {
		return "", capabilityError("retrieval", "", err)
	}
	if len(passages) == 0 {
		return "(no reference material found)", nil
	}
	return strings.Join(passages, "\n\n"), nil
}

func (h *handlers) generate(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := h.bounded(ctx)
	defer cancel()
	text, err := h.lang.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	})
	if err != nil {
		return "", capabilityError("language", "", err)
	}
	return text, nil
}

// =============================================================================
// Standard handlers
// =============================================================================

func (h *handlers) questionGeneral(ctx context.Context, s *SessionState, t turn) (outcome, error) {
	return h.answerGeneral(ctx, t, "")
}

func (h *handlers) answerGeneral(ctx context.Context, t turn, suffix string) (outcome, error) {
	passages, err := h.retrieve(ctx, t.input)
	if err != nil {
		return outcome{}, err
	}
	system, err := render("question_general", questionGeneralPrompt, map[string]any{"context": passages})
	if err != nil {
		return outcome{}, err
	}
	text, err := h.generate(ctx, system+suffix, t.input)
	if err != nil {
		return outcome{}, err
	}
	return outcome{response: text}, nil
}

func (h *handlers) questionParameter(ctx context.Context, s *SessionState, t turn) (outcome, error) {
	return h.answerParameter(ctx, s, t, "")
}

func (h *handlers) answerParameter(ctx context.Context, s *SessionState, t turn, suffix string) (outcome, error) {
	system, err := render("question_parameter", questionParameterPrompt, map[string]any{
		"docs":       parameterDocs,
		"parameters": FormatParams(s.Parameters),
	})
	if err != nil {
		return outcome{}, err
	}
	text, err := h.generate(ctx, system+suffix, t.input)
	if err != nil {
		return outcome{}, err
	}
	return outcome{response: text}, nil
}

var parameterEditsSchema = llm.Schema{
	Name:        "parameter_edits",
	Description: "Parameter changes requested by the user",
	Definition: jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"edits": {Type: jsonschema.Array, Items: &editDefinition},
		},
		Required:             []string{"edits"},
		AdditionalProperties: false,
	},
}

type parameterEditsOutput struct {
	Edits []ParameterEdit `json:"edits"`
}

// parameter applies the requested edits as one atomic batch.
func (h *handlers) parameter(ctx context.Context, s *SessionState, t turn) (outcome, error) {
	edits := t.edits
	if edits == nil {
		system, err := render("parameter_extraction", parameterExtractionPrompt, map[string]any{
			"parameter_names": strings.Join(ParameterNames(), ", "),
			"parameters":      FormatParams(s.Parameters),
		})
		if err != nil {
			return outcome{}, newAgentError(KindParameterExtraction, "could not build the extraction prompt", err)
		}
		var out parameterEditsOutput
		bctx, cancel := h.bounded(ctx)
		err = h.lang.GenerateTyped(bctx, []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: t.input},
		}, parameterEditsSchema, &out)
		cancel()
		if err != nil {
			return outcome{}, capabilityError("language", KindParameterExtraction, err)
		}
		edits = out.Edits
	}

	next, changes, err := ApplyEdits(s.Parameters, edits)
	if err != nil {
		aerr := newAgentError(KindParameterValidation, "the parameter update was rejected", err)
		aerr.Context = map[string]any{"parameters": s.Parameters}
		var verr *pvcurve.ValidationError
		if errors.As(err, &verr) {
			aerr.Context["failed_fields"] = verr.FieldNames()
		}
		return outcome{}, aerr
	}
	s.Parameters = next
	slog.Info("Parameters updated", "session_id", s.SessionID, "edits", len(changes))
	return outcome{response: summarizeChanges(changes, next)}, nil
}

// generation runs the simulation with the current parameters and caches
// the result.
func (h *handlers) generation(ctx context.Context, s *SessionState, t turn) (outcome, error) {
	params := s.Parameters
	bctx, cancel := h.bounded(ctx)
	res, err := h.sim.Run(bctx, params)
	cancel()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return outcome{}, capabilityError("simulation", "", err)
		}
		aerr := newAgentError(KindSimulationFailure, "the simulation failed", err)
		if errors.Is(err, pvcurve.ErrNotConverged) {
			aerr.Message = "the power flow did not converge"
		}
		aerr.Context = map[string]any{"parameters": params}
		return outcome{}, aerr
	}

	s.LastResult = res
	s.RecordResult(CachedResult{ParametersUsed: params, Result: res})
	slog.Info("PV curve generated",
		"session_id", s.SessionID,
		"grid", params.Grid,
		"bus", params.BusID,
		"converged_steps", res.ConvergedSteps)
	return outcome{response: generationResponse(params, res), result: res}, nil
}

func generationResponse(p pvcurve.Params, res *pvcurve.Result) string {
	return fmt.Sprintf("PV curve generated for %s system (Bus %d)\nLoad type: %s, Power factor: %g\n%s",
		strings.ToUpper(p.Grid), p.BusID, strings.ToLower(loadTypeLabel(p.Capacitive)), p.PowerFactor, res.Summary())
}

// noResultResponse is returned by analysis when nothing has been simulated.
const noResultResponse = "There is no simulation result to analyze yet. Run a simulation first " +
	"(for example \"run the simulation\") and then ask for an analysis."

func (h *handlers) analysis(ctx context.Context, s *SessionState, t turn) (outcome, error) {
	return h.analyze(ctx, s, t, "")
}

func (h *handlers) analyze(ctx context.Context, s *SessionState, t turn, suffix string) (outcome, error) {
	if s.LastResult == nil {
		return outcome{response: noResultResponse}, nil
	}
	passages, err := h.retrieve(ctx, analysisQuery(s.Parameters, s.LastResult))
	if err != nil {
		return outcome{}, err
	}
	system, err := render("analysis", analysisPrompt, map[string]any{
		"parameters": FormatParams(s.Parameters),
		"result":     s.LastResult.Summary(),
		"context":    passages,
	})
	if err != nil {
		return outcome{}, err
	}
	text, err := h.generate(ctx, system+suffix, t.input)
	if err != nil {
		return outcome{}, err
	}
	return outcome{response: text}, nil
}

// analysisQuery builds the retrieval query for an analysis from the
// parameters and the headline numbers of the result.
func analysisQuery(p pvcurve.Params, res *pvcurve.Result) string {
	q := fmt.Sprintf("PV curve voltage stability analysis %s bus %d power factor %g %s load nose point %.3f pu load margin %.1f%%",
		p.Grid, p.BusID, p.PowerFactor, strings.ToLower(loadTypeLabel(p.Capacitive)),
		res.NosePoint.VoltagePU, res.LoadMarginPercent)
	if res.NosePoint.VoltagePU < 0.7 {
		q += " low voltage collapse margin"
	}
	return q
}
