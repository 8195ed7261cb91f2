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
	"github.com/AleutianAI/pvagent/services/pvcurve"
)

// =============================================================================
// Construction
// =============================================================================

func TestNew_RequiresCapabilities(t *testing.T) {
	_, err := New(Config{}, Capabilities{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "language capability is required")
	assert.Contains(t, err.Error(), "simulation capability is required")
}

func TestNew_AppliesDefaults(t *testing.T) {
	rig := newTestRig(t, Config{})
	cfg := rig.orch.Config()
	assert.Equal(t, DefaultMaxRetriesPerStep, cfg.MaxRetriesPerStep)
	assert.Equal(t, DefaultMaxPlanSteps, cfg.MaxPlanSteps)
	assert.Equal(t, DefaultCapabilityTimeout, cfg.CapabilityTimeout)
	assert.False(t, cfg.HistoryAwareDefault)
}

func TestProcess_EmptyMessage(t *testing.T) {
	rig := newTestRig(t, Config{})
	_, err := rig.orch.Process(context.Background(), NewSessionState(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

// =============================================================================
// Single actions
// =============================================================================

func TestProcess_BatchParameterEdit(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.classifyAs(ActionParameter)
	rig.mock.QueueJSON("parameter_edits", map[string]any{
		"edits": []map[string]any{edit("bus_id", "10"), edit("power_factor", "0.9")},
	})
	s := NewSessionState()

	resp, err := rig.orch.Process(context.Background(), s, "set bus_id to 10 and power_factor to 0.9")
	require.NoError(t, err)

	assert.Nil(t, resp.Error)
	assert.False(t, resp.IsCompound)
	assert.Equal(t, ActionParameter, resp.Action)
	assert.Equal(t, 10, s.Parameters.BusID)
	assert.Equal(t, 0.9, s.Parameters.PowerFactor)
	assert.Contains(t, resp.Text, "bus_id: 5 -> 10")
	assert.Contains(t, resp.Text, "power_factor: 0.95 -> 0.9")

	assert.Equal(t, 1, rig.mock.CallCount("parameter_edits"), "both edits arrive in one batch")
	require.Len(t, s.ConversationHistory, 1)
	assert.Equal(t, s.Parameters, s.ConversationHistory[0].ParametersUsed)
	assert.Len(t, s.Messages, 2)
	assert.Len(t, rig.rec.interactions, 1)
	assert.Equal(t, 2, rig.rec.messages)
}

func TestProcess_RunSimulationWithDefaults(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.classifyAs(ActionGeneration)
	s := NewSessionState()

	resp, err := rig.orch.Process(context.Background(), s, "run the simulation")
	require.NoError(t, err)

	assert.Nil(t, resp.Error)
	require.Equal(t, 1, rig.sim.callCount())
	assert.Equal(t, pvcurve.DefaultParams(), rig.sim.calls[0])
	require.NotNil(t, s.LastResult)
	require.Len(t, s.CachedResults, 1)
	assert.Equal(t, pvcurve.DefaultParams(), s.CachedResults[0].ParametersUsed)
	assert.Same(t, s.LastResult, s.CachedResults[0].Result)
	assert.Contains(t, resp.Text, "PV curve generated for IEEE39 system (Bus 5)")
	assert.Len(t, rig.rec.results, 1)
}

func TestProcess_InvalidBatchLeavesParametersUntouched(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.classifyAs(ActionParameter)
	rig.mock.QueueJSON("parameter_edits", map[string]any{
		"edits": []map[string]any{edit("bus_id", "12"), edit("step_size", "0.5")},
	})
	rig.mock.QueueText("Step size must be at most 0.1.")
	s := NewSessionState()
	before := s.Parameters

	resp, err := rig.orch.Process(context.Background(), s, "set bus 12 and step size 0.5")
	require.NoError(t, err)

	require.NotNil(t, resp.Error)
	assert.Equal(t, KindParameterValidation, resp.Error.Kind)
	assert.Equal(t, before, s.Parameters)
	assert.Equal(t, []string{"step_size"}, resp.Error.Context["failed_fields"])
	assert.Equal(t, 1, rig.mock.CallCount("parameter_edits"), "validation failures are not retried")
	assert.Equal(t, "Step size must be at most 0.1.", resp.Text)
	assert.Same(t, resp.Error, s.Error)
	assert.Len(t, s.ConversationHistory, 1)
}

func TestProcess_AnalysisWithoutResultIsInformational(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.classifyAs(ActionAnalysis)
	s := NewSessionState()

	resp, err := rig.orch.Process(context.Background(), s, "analyze the curve")
	require.NoError(t, err)

	assert.Nil(t, resp.Error)
	assert.Nil(t, s.Error)
	assert.Equal(t, noResultResponse, resp.Text)
	assert.Zero(t, rig.ret.callCount())
}

func TestProcess_AnalysisUsesResultAndRetrieval(t *testing.T) {
	rig := newTestRig(t, Config{})
	s := NewSessionState()
	rig.classifyAs(ActionGeneration)
	_, err := rig.orch.Process(context.Background(), s, "run the simulation")
	require.NoError(t, err)

	rig.classifyAs(ActionAnalysis)
	rig.mock.QueueText("The margin is comfortable.")
	resp, err := rig.orch.Process(context.Background(), s, "analyze the curve")
	require.NoError(t, err)

	assert.Equal(t, "The margin is comfortable.", resp.Text)
	require.Equal(t, 1, rig.ret.callCount())
	assert.Contains(t, rig.ret.queries[0], "ieee39 bus 5")
}

func TestProcess_QuestionGeneralRetrievesWithRawMessage(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.classifyAs(ActionQuestionGeneral)
	rig.mock.QueueText("A PV curve shows voltage versus load.")

	resp, err := rig.orch.Process(context.Background(), NewSessionState(), "What is a PV curve?")
	require.NoError(t, err)

	assert.Equal(t, "A PV curve shows voltage versus load.", resp.Text)
	require.Equal(t, []string{"What is a PV curve?"}, rig.ret.queries)

	calls := rig.mock.Calls()
	last := calls[len(calls)-1]
	assert.Contains(t, last.Messages[0].Content, "PV curves plot bus voltage against system load.")
	assert.NotContains(t, last.Messages[0].Content, "Historical Context")
}

func TestProcess_QuestionParameterSkipsRetrieval(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.classifyAs(ActionQuestionParameter)

	_, err := rig.orch.Process(context.Background(), NewSessionState(), "what does step_size do?")
	require.NoError(t, err)
	assert.Zero(t, rig.ret.callCount())
}

// =============================================================================
// Routing
// =============================================================================

func TestProcess_ContextWordSelectsHistoryVariant(t *testing.T) {
	rig := newTestRig(t, Config{})
	s := NewSessionState()
	rig.classifyAs(ActionGeneration)
	_, err := rig.orch.Process(context.Background(), s, "run the simulation")
	require.NoError(t, err)

	rig.classifyAs(ActionGeneration)
	resp, err := rig.orch.Process(context.Background(), s, "run it again and compare")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "Historical Context:")
	assert.Contains(t, resp.Text, "Previous simulation results for reference:")
}

func TestProcess_HistoryAwareDefaultAlwaysUsesHistoryVariant(t *testing.T) {
	rig := newTestRig(t, Config{HistoryAwareDefault: true})
	s := NewSessionState()
	rig.classifyAs(ActionGeneration)
	first, err := rig.orch.Process(context.Background(), s, "run the simulation")
	require.NoError(t, err)
	assert.NotContains(t, first.Text, "Historical Context:", "nothing to weave in yet")

	rig.classifyAs(ActionGeneration)
	second, err := rig.orch.Process(context.Background(), s, "run the simulation")
	require.NoError(t, err)
	assert.Contains(t, second.Text, "Historical Context:")
}

// =============================================================================
// Compound plans
// =============================================================================

func TestProcess_CompoundPlanRunsEveryStep(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.classifyCompound()
	rig.queuePlan(
		step(ActionParameter, "set bus to 10", edit("bus_id", "10")),
		step(ActionGeneration, "run the simulation"),
		step(ActionAnalysis, "analyze the result"),
	)
	rig.mock.QueueText("Analysis done.")
	s := NewSessionState()

	resp, err := rig.orch.Process(context.Background(), s, "set bus to 10, run it, and analyze")
	require.NoError(t, err)

	assert.Nil(t, resp.Error)
	assert.True(t, resp.IsCompound)
	require.Len(t, resp.Steps, 3)
	assert.Equal(t, 3, s.PlanCursor)
	assert.True(t, s.PlanComplete())
	assert.Equal(t, 10, rig.sim.calls[0].BusID, "step 2 sees the edit from step 1")
	assert.Zero(t, rig.mock.CallCount("parameter_edits"), "plan edits skip extraction")
	assert.Contains(t, resp.Text, "Completed all 3 steps")

	// user + 3 step responses + summary
	assert.Len(t, s.Messages, 5)
	assert.Len(t, s.ConversationHistory, 1, "one record per top-level interaction")
	assert.Len(t, s.CachedResults, 1)
}

func TestProcess_CompoundPlanHaltsAtFailingStep(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.sim.failAll = fmt.Errorf("%w: diverged", pvcurve.ErrNotConverged)
	rig.classifyCompound()
	rig.queuePlan(
		step(ActionQuestionParameter, "explain step size"),
		step(ActionGeneration, "run the simulation"),
		step(ActionAnalysis, "analyze the result"),
	)
	rig.mock.QueueText("Step size is the load increment.")
	rig.mock.QueueText("The power flow did not converge; try a smaller max scale.")
	s := NewSessionState()

	resp, err := rig.orch.Process(context.Background(), s, "explain step size, run the simulation, then analyze it")
	require.NoError(t, err)

	require.NotNil(t, resp.Error)
	assert.Equal(t, KindSimulationFailure, resp.Error.Kind)
	assert.Equal(t, 1, resp.Error.Step)
	assert.Equal(t, pvcurve.DefaultParams(), resp.Error.Context["parameters"])
	assert.ErrorIs(t, resp.Error, pvcurve.ErrNotConverged)

	assert.Equal(t, 1, s.PlanCursor, "cursor stays on the failed step")
	assert.Equal(t, 2, rig.sim.callCount(), "one dispatch plus one retry")
	assert.Zero(t, rig.ret.callCount(), "step 3 is never dispatched")
	assert.Nil(t, s.LastResult)
	assert.Len(t, resp.Steps, 1)
	assert.Contains(t, resp.Text, "Completed 1 of 3 steps before stopping at step 2.")
	assert.Contains(t, resp.Text, "try a smaller max scale")
	assert.Len(t, s.ConversationHistory, 1)
}

func TestProcess_RetrySucceeds(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.sim.errs = []error{errors.New("worker restarted")}
	rig.classifyAs(ActionGeneration)
	s := NewSessionState()

	resp, err := rig.orch.Process(context.Background(), s, "run the simulation")
	require.NoError(t, err)

	assert.Nil(t, resp.Error)
	assert.Nil(t, s.Error)
	assert.Nil(t, s.RetryTarget)
	assert.Equal(t, 2, rig.sim.callCount())
	assert.Len(t, s.CachedResults, 1)
}

func TestProcess_RetriesDisabled(t *testing.T) {
	rig := newTestRig(t, Config{MaxRetriesPerStep: -1})
	rig.sim.failAll = errors.New("boom")
	rig.classifyAs(ActionGeneration)

	resp, err := rig.orch.Process(context.Background(), NewSessionState(), "run the simulation")
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, 1, rig.sim.callCount())
}

func TestProcess_EmptyPlanIsPlanningFailure(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.classifyCompound()
	rig.queuePlan()
	s := NewSessionState()

	resp, err := rig.orch.Process(context.Background(), s, "do two things")
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, KindPlanningFailure, resp.Error.Kind)
	assert.False(t, s.InPlan())
	assert.Zero(t, rig.sim.callCount())
}

func TestProcess_OversizedPlanIsPlanningFailure(t *testing.T) {
	rig := newTestRig(t, Config{MaxPlanSteps: 2})
	rig.classifyCompound()
	rig.queuePlan(
		step(ActionGeneration, "a"),
		step(ActionGeneration, "b"),
		step(ActionGeneration, "c"),
	)

	resp, err := rig.orch.Process(context.Background(), NewSessionState(), "do three things")
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, KindPlanningFailure, resp.Error.Kind)
	assert.Zero(t, rig.sim.callCount())
}

// =============================================================================
// Failures
// =============================================================================

func TestProcess_MalformedClassification(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.mock.QueueJSONRaw("classification", "I think this is a question")
	rig.mock.QueueText("I could not understand the request.")
	s := NewSessionState()

	resp, err := rig.orch.Process(context.Background(), s, "hello")
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, KindClassificationFailure, resp.Error.Kind)
	assert.ErrorIs(t, resp.Error, llm.ErrMalformedOutput)
	assert.False(t, resp.Fatal)
	assert.Nil(t, s.Classification)
}

func TestProcess_UnknownActionIsClassificationFailure(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.mock.QueueJSON("classification", map[string]any{"is_compound": false, "action": "dance", "plan_hint": ""})

	resp, err := rig.orch.Process(context.Background(), NewSessionState(), "hello")
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, KindClassificationFailure, resp.Error.Kind)
}

func TestProcess_ExplanationFailureIsFatalButAnswered(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.mock.QueueJSONError("classification", errors.New("connection refused"))
	rig.mock.QueueTextError(errors.New("connection refused"))
	s := NewSessionState()

	resp, err := rig.orch.Process(context.Background(), s, "hello")
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, KindCapabilityUnavailable, resp.Error.Kind)
	assert.True(t, resp.Fatal)
	assert.Equal(t, GenericFailureResponse(resp.Error), resp.Text)
	assert.Equal(t, resp.Text, s.Messages[len(s.Messages)-1].Content)
}

func TestProcess_CancelledContextIsCapabilityUnavailable(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.classifyAs(ActionGeneration)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := rig.orch.Process(ctx, NewSessionState(), "run the simulation")
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, KindCapabilityUnavailable, resp.Error.Kind)
	assert.ErrorIs(t, resp.Error, context.Canceled)
	assert.True(t, resp.Fatal)
	assert.Zero(t, rig.sim.callCount())
}

// =============================================================================
// Bounded history across interactions
// =============================================================================

func TestProcess_HistoryStaysBounded(t *testing.T) {
	rig := newTestRig(t, Config{})
	s := NewSessionState()
	for i := 0; i < 14; i++ {
		if i%2 == 0 {
			rig.classifyAs(ActionGeneration)
		} else {
			rig.classifyCompound()
			rig.queuePlan(
				step(ActionParameter, "move the bus", edit("bus_id", fmt.Sprint(2+i%5))),
				step(ActionGeneration, "run the simulation"),
			)
		}
		resp, err := rig.orch.Process(context.Background(), s, "run the simulation")
		require.NoError(t, err)
		require.Nil(t, resp.Error)
		assert.Equal(t, i%2 == 1, resp.IsCompound)
		assert.LessOrEqual(t, len(s.ConversationHistory), MaxConversationHistory)
		assert.LessOrEqual(t, len(s.CachedResults), MaxCachedResults)
	}
	assert.Len(t, s.ConversationHistory, MaxConversationHistory)
	assert.Len(t, s.CachedResults, MaxCachedResults)
	assert.True(t, s.ConversationHistory[len(s.ConversationHistory)-1].IsCompound)
	// 7 simple turns of 2 messages, 7 compound turns of user + 2 steps + summary
	assert.Len(t, s.Messages, 42, "the transcript is never truncated")
	assert.Len(t, rig.rec.results, 14)
	assert.Len(t, rig.rec.interactions, 14)
}

func TestProcess_ParametersAlwaysValid(t *testing.T) {
	rig := newTestRig(t, Config{})
	s := NewSessionState()
	batches := [][]map[string]any{
		{edit("bus_id", "300")},
		{edit("step_size", "0.2")},
		{edit("grid", "IEEE 118"), edit("capacitive", "Yes")},
		{edit("voltage_limit", "1.0"), edit("max_scale", "4")},
		{edit("power_factor", "-1")},
		{edit("max_scale", "10")},
		{edit("continuation", "off")},
	}
	for _, b := range batches {
		rig.classifyAs(ActionParameter)
		rig.mock.QueueJSON("parameter_edits", map[string]any{"edits": b})
		_, err := rig.orch.Process(context.Background(), s, "change parameters")
		require.NoError(t, err)
		require.NoError(t, s.Parameters.Validate())
	}
	assert.Equal(t, "ieee118", s.Parameters.Grid)
	assert.True(t, s.Parameters.Capacitive)
	assert.False(t, s.Parameters.Continuation)
	assert.Equal(t, 10.0, s.Parameters.MaxScale)
}

// =============================================================================
// Capability timeouts
// =============================================================================

// stallingLanguage blocks typed calls for one schema until their context
// ends. Everything else goes to next.
type stallingLanguage struct {
	next  Language
	stall string
}

func (l stallingLanguage) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	return l.next.Generate(ctx, messages)
}

func (l stallingLanguage) GenerateTyped(ctx context.Context, messages []llm.Message, schema llm.Schema, out any) error {
	if schema.Name != l.stall {
		return l.next.GenerateTyped(ctx, messages, schema, out)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
		return errors.New("call outlived its deadline")
	}
}

func newStallingRig(t *testing.T, stall string) *testRig {
	t.Helper()
	rig := newTestRig(t, Config{})
	orch, err := New(Config{CapabilityTimeout: 50 * time.Millisecond}, Capabilities{
		Language:  stallingLanguage{next: llm.NewLanguage(rig.mock, llm.GenerationParams{}), stall: stall},
		Retriever: rig.ret,
		Simulator: rig.sim,
		Recorder:  rig.rec,
	})
	require.NoError(t, err)
	rig.orch = orch
	return rig
}

func TestProcess_ClassificationIsBoundedByCapabilityTimeout(t *testing.T) {
	rig := newStallingRig(t, "classification")
	s := NewSessionState()

	start := time.Now()
	resp, err := rig.orch.Process(context.Background(), s, "run the simulation")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	require.NotNil(t, resp.Error)
	assert.Equal(t, KindCapabilityUnavailable, resp.Error.Kind)
	assert.ErrorIs(t, resp.Error, context.DeadlineExceeded)
	assert.Equal(t, 0, rig.sim.callCount())
	assert.Len(t, s.ConversationHistory, 1)
}

func TestProcess_PlanningIsBoundedByCapabilityTimeout(t *testing.T) {
	rig := newStallingRig(t, "plan")
	rig.classifyCompound()
	s := NewSessionState()

	start := time.Now()
	resp, err := rig.orch.Process(context.Background(), s, "set bus 10 then run it")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, resp.IsCompound)
	require.NotNil(t, resp.Error)
	assert.Equal(t, KindCapabilityUnavailable, resp.Error.Kind)
	assert.ErrorIs(t, resp.Error, context.DeadlineExceeded)
	assert.Empty(t, s.Plan)
	assert.Equal(t, 0, rig.sim.callCount())
}

// =============================================================================
// Analysis after generation
// =============================================================================

func TestDefaultConfig_AnalyzesAfterGeneration(t *testing.T) {
	assert.True(t, DefaultConfig().AnalyzeAfterGeneration)
}

func TestProcess_GenerationFollowedByAnalysis(t *testing.T) {
	rig := newTestRig(t, Config{AnalyzeAfterGeneration: true})
	rig.classifyAs(ActionGeneration)
	rig.mock.QueueText("The nose point leaves a comfortable margin.")
	s := NewSessionState()

	resp, err := rig.orch.Process(context.Background(), s, "run the simulation")
	require.NoError(t, err)

	assert.Nil(t, resp.Error)
	assert.Equal(t, ActionGeneration, resp.Action)
	assert.Contains(t, resp.Text, "PV curve generated for IEEE39 system (Bus 5)")
	assert.Contains(t, resp.Text, "The nose point leaves a comfortable margin.")
	assert.Equal(t, 1, rig.sim.callCount())
	assert.Equal(t, 1, rig.ret.callCount(), "the analysis retrieves once")
	assert.Equal(t, 1, rig.mock.CallCount(""))

	assert.Len(t, s.Messages, 2, "summary and analysis form one reply")
	assert.Len(t, s.ConversationHistory, 1)
	assert.Len(t, rig.rec.interactions, 1)
	assert.Len(t, rig.rec.results, 1)
}

func TestProcess_AnalysisFailureKeepsSimulation(t *testing.T) {
	rig := newTestRig(t, Config{AnalyzeAfterGeneration: true})
	rig.classifyAs(ActionGeneration)
	rig.mock.QueueTextError(errors.New("model offline"))
	s := NewSessionState()

	resp, err := rig.orch.Process(context.Background(), s, "run the simulation")
	require.NoError(t, err)

	assert.Nil(t, resp.Error)
	assert.Nil(t, s.Error)
	assert.Contains(t, resp.Text, "PV curve generated")
	assert.Contains(t, resp.Text, "The automatic analysis could not be completed")
	assert.Equal(t, 1, rig.sim.callCount(), "the simulation is not rerun")
	assert.NotNil(t, s.LastResult)
}

func TestProcess_PlannedAnalysisIsNotDuplicated(t *testing.T) {
	rig := newTestRig(t, Config{AnalyzeAfterGeneration: true})
	rig.classifyCompound()
	rig.queuePlan(
		step(ActionGeneration, "run the simulation"),
		step(ActionAnalysis, "analyze the result"),
	)
	rig.mock.QueueText("Planned analysis.")
	s := NewSessionState()

	resp, err := rig.orch.Process(context.Background(), s, "run it and analyze it")
	require.NoError(t, err)

	assert.Nil(t, resp.Error)
	require.Len(t, resp.Steps, 2)
	assert.NotContains(t, resp.Steps[0].Response, "Planned analysis.")
	assert.Equal(t, "Planned analysis.", resp.Steps[1].Response)
	assert.Equal(t, 1, rig.ret.callCount())
	assert.Equal(t, 1, rig.mock.CallCount(""))
}

func TestProcess_ChainedAnalysisUsesHistoryVariant(t *testing.T) {
	rig := newTestRig(t, Config{AnalyzeAfterGeneration: true})
	rig.classifyAs(ActionGeneration)
	rig.classifyAs(ActionGeneration)
	rig.mock.QueueText("First.")
	rig.mock.QueueText("Compared with the previous run.")
	s := NewSessionState()

	_, err := rig.orch.Process(context.Background(), s, "run the simulation")
	require.NoError(t, err)
	resp, err := rig.orch.Process(context.Background(), s, "run it again and compare with the previous result")
	require.NoError(t, err)

	assert.Contains(t, resp.Text, "Compared with the previous run.")
	calls := rig.mock.Calls()
	last := calls[len(calls)-1]
	assert.Contains(t, last.Messages[0].Content, "Previous simulation results for reference:")
}
