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
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/AleutianAI/pvagent/services/llm"
	"github.com/AleutianAI/pvagent/services/pvcurve"
)

// Classification is the outcome of classifying one message.
type Classification struct {
	IsCompound bool
	// Action is set only when IsCompound is false.
	Action   ActionType
	PlanHint string
}

type classificationOutput struct {
	IsCompound bool   `json:"is_compound"`
	Action     string `json:"action"`
	PlanHint   string `json:"plan_hint"`
}

var classificationSchema = llm.Schema{
	Name:        "classification",
	Description: "Routing decision for one user message",
	Definition: jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"is_compound": {
				Type:        jsonschema.Boolean,
				Description: "True when the message asks for two or more distinct actions",
			},
			"action": {
				Type:        jsonschema.String,
				Enum:        ActionNames(),
				Description: "The single action to take when is_compound is false",
			},
			"plan_hint": {
				Type:        jsonschema.String,
				Description: "One-sentence outline of the steps when is_compound is true",
			},
		},
		Required:             []string{"is_compound", "action", "plan_hint"},
		AdditionalProperties: false,
	},
}

// Classifier decides whether a message is compound and, if not, which
// action it asks for.
//
// # Description
//
// The decision is delegated entirely to the language capability's typed
// mode; ambiguous messages are not second-guessed. The classifier has no
// side effects.
type Classifier struct {
	lang    Language
	timeout time.Duration
}

// NewClassifier creates a classifier backed by lang. Each call to lang is
// bounded by timeout; timeout <= 0 leaves it unbounded.
func NewClassifier(lang Language, timeout time.Duration) *Classifier {
	return &Classifier{lang: lang, timeout: timeout}
}

// Classify classifies message given the parameters currently in scope.
//
// # Outputs
//
//   - Classification: the decision.
//   - error: an *AgentError of kind classification_failure when the model's
//     answer is malformed or names an unknown action, or
//     capability_unavailable when the model could not be reached.
func (c *Classifier) Classify(ctx context.Context, message string, params pvcurve.Params) (Classification, error) {
	system, err := render("classifier", classifierPrompt, map[string]any{
		"parameters": FormatParams(params),
	})
	if err != nil {
		return Classification{}, newAgentError(KindClassificationFailure, "could not build the classification prompt", err)
	}

	var out classificationOutput
	cctx, cancel := boundCall(ctx, c.timeout)
	err = c.lang.GenerateTyped(cctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: message},
	}, classificationSchema, &out)
	cancel()
	if err != nil {
		return Classification{}, capabilityError("language", KindClassificationFailure, err)
	}

	if out.IsCompound {
		slog.Debug("Message classified as compound", "plan_hint", out.PlanHint)
		return Classification{IsCompound: true, PlanHint: out.PlanHint}, nil
	}
	action, err := ParseActionType(out.Action)
	if err != nil {
		return Classification{}, newAgentError(KindClassificationFailure, "the classifier chose an unknown action", err)
	}
	slog.Debug("Message classified", "action", action.String())
	return Classification{Action: action}, nil
}
