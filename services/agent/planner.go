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

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/AleutianAI/pvagent/services/llm"
)

// DefaultMaxPlanSteps bounds the plan length when Config leaves it unset.
const DefaultMaxPlanSteps = 8

type planOutput struct {
	Description string           `json:"description"`
	Steps       []planStepOutput `json:"steps"`
}

type planStepOutput struct {
	Action  string          `json:"action"`
	Content string          `json:"content"`
	Edits   []ParameterEdit `json:"edits"`
}

// editDefinition is shared by the plan and parameter extraction schemas.
// Values are requested as text; coercion happens in ApplyEdits.
var editDefinition = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"parameter": {Type: jsonschema.String, Description: "Parameter name"},
		"value":     {Type: jsonschema.String, Description: "New value as stated by the user"},
	},
	Required:             []string{"parameter", "value"},
	AdditionalProperties: false,
}

var planSchema = llm.Schema{
	Name:        "plan",
	Description: "Ordered steps for a compound request",
	Definition: jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"description": {Type: jsonschema.String, Description: "Brief description of the overall plan"},
			"steps": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"action":  {Type: jsonschema.String, Enum: ActionNames()},
						"content": {Type: jsonschema.String},
						"edits":   {Type: jsonschema.Array, Items: &editDefinition},
					},
					Required:             []string{"action", "content", "edits"},
					AdditionalProperties: false,
				},
			},
		},
		Required:             []string{"description", "steps"},
		AdditionalProperties: false,
	},
}

// Planner decomposes a compound message into ordered steps. It never
// executes anything.
type Planner struct {
	lang     Language
	maxSteps int
	timeout  time.Duration
}

// NewPlanner creates a planner. maxSteps <= 0 selects DefaultMaxPlanSteps.
// The planning call is bounded by timeout when it is positive.
func NewPlanner(lang Language, maxSteps int, timeout time.Duration) *Planner {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxPlanSteps
	}
	return &Planner{lang: lang, maxSteps: maxSteps, timeout: timeout}
}

// Plan returns the steps for message.
//
// # Outputs
//
//   - []PlanStep: at least one step, at most the configured maximum.
//   - error: an *AgentError of kind planning_failure for an empty, oversized
//     or malformed plan, or capability_unavailable.
func (p *Planner) Plan(ctx context.Context, message, hint string) ([]PlanStep, error) {
	system, err := render("planner", plannerPrompt, map[string]any{
		"actions":         strings.Join(ActionNames(), ", "),
		"parameter_names": strings.Join(ParameterNames(), ", "),
		"max_steps":       p.maxSteps,
		"hint":            hint,
	})
	if err != nil {
		return nil, newAgentError(KindPlanningFailure, "could not build the planning prompt", err)
	}

	var out planOutput
	pctx, cancel := boundCall(ctx, p.timeout)
	err = p.lang.GenerateTyped(pctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: message},
	}, planSchema, &out)
	cancel()
	if err != nil {
		return nil, capabilityError("language", KindPlanningFailure, err)
	}

	if len(out.Steps) == 0 {
		return nil, newAgentError(KindPlanningFailure, "the plan has no steps", nil)
	}
	if len(out.Steps) > p.maxSteps {
		return nil, newAgentError(KindPlanningFailure,
			fmt.Sprintf("the plan has %d steps, at most %d are allowed", len(out.Steps), p.maxSteps), nil)
	}

	steps := make([]PlanStep, 0, len(out.Steps))
	for i, s := range out.Steps {
		action, err := ParseActionType(s.Action)
		if err != nil {
			return nil, newAgentError(KindPlanningFailure, fmt.Sprintf("step %d has an unknown action", i+1), err)
		}
		content := strings.TrimSpace(s.Content)
		if content == "" {
			content = message
		}
		step := PlanStep{Action: action, Content: content}
		if action == ActionParameter && len(s.Edits) > 0 {
			step.Edits = s.Edits
		}
		steps = append(steps, step)
	}
	slog.Info("Compound request planned", "steps", len(steps), "description", out.Description)
	return steps, nil
}
