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
	"strings"
)

// History-aware variants return the same outcome shape as the standard
// handlers. The question and analysis variants extend the system prompt
// with the session's history; the parameter and generation variants append
// a history block to the standard response. The history context is always
// captured before the handler runs, so it never describes the current turn.

func historySuffix(hc HistoryContext) (string, error) {
	return render("history_aware", historyAwareSuffix, map[string]any{"history": hc.String()})
}

func (h *handlers) historyQuestionGeneral(ctx context.Context, s *SessionState, t turn) (outcome, error) {
	suffix, err := historySuffix(BuildHistoryContext(s))
	if err != nil {
		return outcome{}, err
	}
	return h.answerGeneral(ctx, t, suffix)
}

func (h *handlers) historyQuestionParameter(ctx context.Context, s *SessionState, t turn) (outcome, error) {
	hc := BuildHistoryContext(s)
	// Parameter questions only care about how the parameters moved and
	// what they produced.
	hc.Conversations = ""
	suffix, err := historySuffix(hc)
	if err != nil {
		return outcome{}, err
	}
	return h.answerParameter(ctx, s, t, suffix)
}

func (h *handlers) historyParameter(ctx context.Context, s *SessionState, t turn) (outcome, error) {
	hc := BuildHistoryContext(s)
	out, err := h.parameter(ctx, s, t)
	if err != nil || (hc.ParameterEvolution == "" && hc.Simulations == "") {
		return out, err
	}

	var b strings.Builder
	b.WriteString(out.response)
	if hc.ParameterEvolution != "" {
		b.WriteString("\n\nHistorical Context:\n")
		b.WriteString(hc.ParameterEvolution)
	}
	if hc.Simulations != "" {
		b.WriteString("\n\nRecent Simulation Results:\n")
		b.WriteString(hc.Simulations)
	}
	b.WriteString("\n\nBased on your parameter history, consider these insights for your next simulation.")
	out.response = b.String()
	return out, nil
}

func (h *handlers) historyGeneration(ctx context.Context, s *SessionState, t turn) (outcome, error) {
	hc := BuildHistoryContext(s)
	out, err := h.generation(ctx, s, t)
	if err != nil || hc.Simulations == "" {
		return out, err
	}
	out.response += "\n\nHistorical Context:\n" + hc.Simulations +
		"\n\nThis simulation can be compared with the previous results above to see the effect of the parameter changes."
	return out, nil
}

func (h *handlers) historyAnalysis(ctx context.Context, s *SessionState, t turn) (outcome, error) {
	hc := BuildHistoryContext(s)
	hc.ParameterEvolution = ""
	suffix, err := historySuffix(hc)
	if err != nil {
		return outcome{}, err
	}
	return h.analyze(ctx, s, t, suffix)
}
