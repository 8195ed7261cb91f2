// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent is the conversational state machine behind PVAgent.
//
// A message is classified as a single action or a compound request. Single
// actions are dispatched straight to a handler; compound requests are
// decomposed into a plan and executed one step at a time. Before each
// dispatch the context router picks the standard or the history-aware
// variant of the handler. Failures are captured on the session, explained
// to the user, and retried at most once per step.
//
// The package owns no process-wide state. Language, retrieval, simulation,
// and persistence are injected through Capabilities when the Orchestrator
// is built.
package agent

import (
	"fmt"
	"strings"
)

// ActionType is the closed set of actions a message can resolve to.
type ActionType int

const (
	// ActionQuestionGeneral answers a domain question using retrieval.
	ActionQuestionGeneral ActionType = iota + 1

	// ActionQuestionParameter explains the simulation parameters.
	ActionQuestionParameter

	// ActionParameter modifies the simulation parameters.
	ActionParameter

	// ActionGeneration runs a PV-curve simulation.
	ActionGeneration

	// ActionAnalysis analyzes the most recent simulation result.
	ActionAnalysis
)

var actionNames = map[ActionType]string{
	ActionQuestionGeneral:   "question_general",
	ActionQuestionParameter: "question_parameter",
	ActionParameter:         "parameter",
	ActionGeneration:        "generation",
	ActionAnalysis:          "analysis",
}

// AllActionTypes returns every action type in declaration order.
func AllActionTypes() []ActionType {
	return []ActionType{
		ActionQuestionGeneral,
		ActionQuestionParameter,
		ActionParameter,
		ActionGeneration,
		ActionAnalysis,
	}
}

// ActionNames returns the wire names of every action type, in declaration
// order. Used for the enum of the classification and plan schemas.
func ActionNames() []string {
	all := AllActionTypes()
	names := make([]string, len(all))
	for i, a := range all {
		names[i] = a.String()
	}
	return names
}

func (a ActionType) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("ActionType(%d)", int(a))
}

// Valid reports whether a is one of the five declared actions.
func (a ActionType) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// ParseActionType maps a wire name to its ActionType. Matching ignores
// case and surrounding whitespace.
func ParseActionType(s string) (ActionType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action type %q", s)
}

// MarshalText implements encoding.TextMarshaler. The zero value encodes
// as the empty string.
func (a ActionType) MarshalText() ([]byte, error) {
	if a == 0 {
		return []byte{}, nil
	}
	if !a.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid action type %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *ActionType) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = 0
		return nil
	}
	parsed, err := ParseActionType(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
