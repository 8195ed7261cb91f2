// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/pvagent/services/llm"
)

func TestErrorHandler_ShouldRetry(t *testing.T) {
	h := NewErrorHandler(nil, 1, 0)
	ctx := context.Background()

	tests := []struct {
		kind     ErrorKind
		attempts int
		want     bool
	}{
		{KindCapabilityUnavailable, 0, true},
		{KindSimulationFailure, 0, true},
		{KindParameterExtraction, 0, true},
		{KindSimulationFailure, 1, false},
		{KindParameterValidation, 0, false},
		{KindClassificationFailure, 0, false},
		{KindPlanningFailure, 0, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%d", tt.kind, tt.attempts), func(t *testing.T) {
			assert.Equal(t, tt.want, h.ShouldRetry(ctx, &AgentError{Kind: tt.kind}, tt.attempts))
		})
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, h.ShouldRetry(cancelled, &AgentError{Kind: KindCapabilityUnavailable}, 0))
}

func TestErrorHandler_ExplainSendsStructuredReport(t *testing.T) {
	mock := llm.NewMockClient().QueueText("  The bus does not exist.  ")
	h := NewErrorHandler(llm.NewLanguage(mock, llm.GenerationParams{}), 1, time.Second)

	aerr := &AgentError{
		Kind:    KindSimulationFailure,
		Message: "the simulation failed",
		Step:    2,
		Input:   "run it on bus 99",
		Context: map[string]any{"bus_id": 99},
		Cause:   errors.New("target bus out of range"),
	}
	text, err := h.Explain(context.Background(), aerr)
	require.NoError(t, err)
	assert.Equal(t, "The bus does not exist.", text)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	system := calls[0].Messages[0].Content
	assert.Contains(t, system, "- kind: simulation_failure")
	assert.Contains(t, system, "- message: the simulation failed: target bus out of range")
	assert.Contains(t, system, "- step: 3")
	assert.Contains(t, system, "- user input: run it on bus 99")
	assert.Contains(t, system, `"bus_id":99`)
}

func TestErrorHandler_ExplainFailure(t *testing.T) {
	mock := llm.NewMockClient().WithError(errors.New("offline"))
	h := NewErrorHandler(llm.NewLanguage(mock, llm.GenerationParams{}), 1, 0)

	_, err := h.Explain(context.Background(), &AgentError{Kind: KindPlanningFailure})
	require.Error(t, err)
	assert.Contains(t, GenericFailureResponse(&AgentError{Kind: KindPlanningFailure}), "planning_failure")
}

func TestCapabilityError_Mapping(t *testing.T) {
	malformed := fmt.Errorf("%w: bad", llm.ErrMalformedOutput)
	assert.Equal(t, KindParameterExtraction, capabilityError("language", KindParameterExtraction, malformed).Kind)
	assert.Equal(t, KindCapabilityUnavailable, capabilityError("retrieval", "", malformed).Kind)
	assert.Equal(t, KindCapabilityUnavailable, capabilityError("language", KindClassificationFailure, context.DeadlineExceeded).Kind)

	inner := &AgentError{Kind: KindPlanningFailure}
	assert.Same(t, inner, capabilityError("language", "", fmt.Errorf("wrapped: %w", inner)))
}
