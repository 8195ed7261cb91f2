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

	"github.com/AleutianAI/pvagent/services/llm"
)

// ErrorKind classifies a failure captured on the session.
type ErrorKind string

const (
	KindClassificationFailure ErrorKind = "classification_failure"
	KindPlanningFailure       ErrorKind = "planning_failure"
	KindParameterExtraction   ErrorKind = "parameter_extraction_failure"
	KindParameterValidation   ErrorKind = "parameter_validation_failure"
	KindSimulationFailure     ErrorKind = "simulation_failure"
	KindCapabilityUnavailable ErrorKind = "capability_unavailable"
)

// ErrEmptyMessage is returned by Process for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// retryableKinds are the kinds a repeated dispatch can plausibly fix.
// Validation failures are deterministic and classification or planning
// failures have no step to re-enter.
var retryableKinds = map[ErrorKind]bool{
	KindCapabilityUnavailable: true,
	KindSimulationFailure:     true,
	KindParameterExtraction:   true,
}

// AgentError is the structured failure record stored in SessionState.Error.
// Step is the plan cursor at the time of failure, 0 for single actions.
type AgentError struct {
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	Step    int            `json:"step"`
	Input   string         `json:"input"`
	Context map[string]any `json:"context,omitempty"`
	Cause   error          `json:"-"`
}

func (e *AgentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AgentError) Unwrap() error { return e.Cause }

// Retryable reports whether the failing step may be dispatched again.
func (e *AgentError) Retryable() bool {
	return retryableKinds[e.Kind]
}

func newAgentError(kind ErrorKind, message string, cause error) *AgentError {
	return &AgentError{Kind: kind, Message: message, Cause: cause}
}

// capabilityError maps an error returned by an injected capability onto an
// AgentError. Malformed typed output becomes malformedKind; everything else,
// cancellation and deadlines included, is capability_unavailable.
func capabilityError(capability string, malformedKind ErrorKind, err error) *AgentError {
	var aerr *AgentError
	if errors.As(err, &aerr) {
		return aerr
	}
	switch {
	case malformedKind != "" && errors.Is(err, llm.ErrMalformedOutput):
		return newAgentError(malformedKind, capability+" returned malformed output", err)
	case errors.Is(err, context.Canceled):
		return newAgentError(KindCapabilityUnavailable, capability+" call was cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newAgentError(KindCapabilityUnavailable, capability+" call timed out", err)
	default:
		return newAgentError(KindCapabilityUnavailable, capability+" is unavailable", err)
	}
}

// asAgentError converts any handler error into an AgentError.
func asAgentError(err error) *AgentError {
	var aerr *AgentError
	if errors.As(err, &aerr) {
		return aerr
	}
	return newAgentError(KindCapabilityUnavailable, "unexpected failure", err)
}
