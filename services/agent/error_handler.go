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
	"encoding/json"
	"fmt"
	"time"

	"github.com/AleutianAI/pvagent/services/llm"
)

// DefaultMaxRetriesPerStep is the retry ceiling when Config leaves it unset.
const DefaultMaxRetriesPerStep = 1

// ErrorHandler turns a captured failure into a user-facing explanation and
// decides whether the failing step gets another dispatch.
//
// # Description
//
// The handler never touches Parameters or LastResult. Retry decisions are
// bounded per step: a step is dispatched at most 1 + maxRetries times in
// one interaction.
type ErrorHandler struct {
	lang       Language
	maxRetries int
	timeout    time.Duration
}

// NewErrorHandler creates an error handler. maxRetries < 0 disables retry.
func NewErrorHandler(lang Language, maxRetries int, timeout time.Duration) *ErrorHandler {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ErrorHandler{lang: lang, maxRetries: maxRetries, timeout: timeout}
}

// ShouldRetry reports whether a step that failed with aerr after attempts
// previous retries is dispatched again. Cancelled interactions never retry.
func (h *ErrorHandler) ShouldRetry(ctx context.Context, aerr *AgentError, attempts int) bool {
	if ctx.Err() != nil {
		return false
	}
	return aerr.Retryable() && attempts < h.maxRetries
}

// Explain asks the language capability for an explanation of aerr.
//
// # Outputs
//
//   - string: the explanation.
//   - error: the capability error when no explanation could be produced.
//     Callers fall back to GenericFailureResponse.
func (h *ErrorHandler) Explain(ctx context.Context, aerr *AgentError) (string, error) {
	message := aerr.Message
	if aerr.Cause != nil {
		message += ": " + aerr.Cause.Error()
	}
	contextText := "none"
	if len(aerr.Context) > 0 {
		if raw, err := json.Marshal(aerr.Context); err == nil {
			contextText = string(raw)
		}
	}
	system, err := render("error_explanation", errorExplanationPrompt, map[string]any{
		"kind":    string(aerr.Kind),
		"message": message,
		"step":    aerr.Step + 1,
		"input":   aerr.Input,
		"context": contextText,
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := boundCall(ctx, h.timeout)
	defer cancel()
	text, err := h.lang.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: "Please explain what went wrong with my request."},
	})
	if err != nil {
		return "", fmt.Errorf("explain %s: %w", aerr.Kind, err)
	}
	return text, nil
}

// GenericFailureResponse is the terminal response used when the
// explanation itself could not be produced.
func GenericFailureResponse(aerr *AgentError) string {
	return fmt.Sprintf("Sorry, something went wrong while handling your request (%s) and I could not "+
		"produce a detailed explanation. Please try again in a moment or rephrase your request.", aerr.Kind)
}
