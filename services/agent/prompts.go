// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"fmt"

	"github.com/tmc/langchaingo/prompts"
)

// parameterDocs is the static documentation the parameter-question handler
// answers from.
const parameterDocs = `Simulation parameters:
- grid: IEEE test case to simulate. One of ieee14, ieee24, ieee30, ieee39, ieee57, ieee118, ieee300. Default ieee39.
- bus_id: index of the bus whose voltage is monitored, 0 to 300 and within the chosen case. Default 5.
- step_size: load scaling increment per step, greater than 0 and at most 0.1. Smaller steps give a smoother curve and take longer. Default 0.01.
- max_scale: largest load multiplier to try, greater than 1 and at most 10. Default 3.0.
- power_factor: load power factor, greater than 0 and at most 1. Lower values mean more reactive load and an earlier nose point. Default 0.95.
- voltage_limit: the sweep stops once the monitored voltage falls under this value in per unit, 0 to below 1. Default 0.4.
- capacitive: true for leading (capacitive) loads, false for lagging (inductive) loads. Default false.
- continuation: true to trace the lower branch past the nose point, false for the upper branch only. Default true.`

var (
	classifierPrompt = prompts.NewPromptTemplate(`You route messages for a power system voltage stability assistant.

Decide whether the message asks for ONE action or for SEVERAL actions in sequence.
Set is_compound to true only when the message clearly asks for two or more distinct actions
(for example "set the bus to 10 and then run the simulation").

For a single action, set action to exactly one of:
- question_general: a conceptual question about voltage stability, PV curves, or power systems.
- question_parameter: a question about what a simulation parameter means or does.
- parameter: a request to change one or more simulation parameters, even several at once.
- generation: a request to run or generate a PV curve.
- analysis: a request to analyze, interpret, or explain the latest simulation result.

When is_compound is true, put a one-sentence outline of the steps in plan_hint.

Current parameters: {{.parameters}}`, []string{"parameters"})

	plannerPrompt = prompts.NewPromptTemplate(`You break a compound request into an ordered list of steps for a voltage stability assistant.

Each step has:
- action: one of {{.actions}}.
- content: the part of the user's request this step handles, phrased as a standalone instruction.
- edits: for parameter steps only, the parameter changes as {"parameter": name, "value": value}. Leave empty otherwise.

Valid parameter names: {{.parameter_names}}.
Use at most {{.max_steps}} steps and keep the order the user asked for.
{{if .hint}}Outline from the router: {{.hint}}{{end}}`, []string{"actions", "parameter_names", "max_steps", "hint"})

	questionGeneralPrompt = prompts.NewPromptTemplate(`You are an expert in power system voltage stability and PV curve analysis.
Answer the user's question clearly and accurately. Use the reference material when it is relevant
and say so when it does not cover the question.

Reference material:
{{.context}}`, []string{"context"})

	questionParameterPrompt = prompts.NewPromptTemplate(`You explain the parameters of a PV curve simulation tool.
Answer only from the documentation below and the current values.

{{.docs}}

Current values: {{.parameters}}`, []string{"docs", "parameters"})

	parameterExtractionPrompt = prompts.NewPromptTemplate(`Extract every simulation parameter change the user asks for.

Valid parameter names: {{.parameter_names}}.
Return one edit per parameter with the value exactly as the user stated it.
Booleans may be given as true/false, yes/no, on/off.
Return an empty list if the message asks for no change.

Current values: {{.parameters}}`, []string{"parameter_names", "parameters"})

	analysisPrompt = prompts.NewPromptTemplate(`You are a power system engineer analyzing a PV curve result.
Explain what the nose point, load margin, and voltage drop mean for voltage stability at this bus,
and point out anything notable about the operating margin.

Parameters: {{.parameters}}

Result:
{{.result}}

Reference material:
{{.context}}`, []string{"parameters", "result", "context"})

	errorExplanationPrompt = prompts.NewPromptTemplate(`You are helping a user of a PV curve simulation assistant after something went wrong.
Explain the problem in plain language in two to four sentences and suggest how they can fix or rephrase their request.
Do not invent details that are not in the error report.

Error report:
- kind: {{.kind}}
- message: {{.message}}
- step: {{.step}}
- user input: {{.input}}
- context: {{.context}}`, []string{"kind", "message", "step", "input", "context"})

	historyAwareSuffix = prompts.NewPromptTemplate(`

IMPORTANT: You have access to the conversation history and previous simulation results of this session. Use this context to:
1. Reference previous interactions when relevant
2. Compare the current request with previous simulations
3. Give answers that take the user's history into account
4. Suggest improvements or variations based on previous results
5. Keep the conversation continuous

Historical Context:
{{.history}}`, []string{"history"})
)

// render formats t, wrapping template errors with the template's purpose.
func render(name string, t prompts.PromptTemplate, values map[string]any) (string, error) {
	out, err := t.Format(values)
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return out, nil
}
