// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/pvagent/services/llm"
	"github.com/AleutianAI/pvagent/services/pvcurve"
)

// fakeSimulator returns a fixed three-point curve unless an error is
// scripted for the call.
type fakeSimulator struct {
	mu      sync.Mutex
	calls   []pvcurve.Params
	errs    []error
	failAll error
}

func (f *fakeSimulator) Run(ctx context.Context, p pvcurve.Params) (*pvcurve.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.failAll != nil {
		return nil, f.failAll
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return pvcurve.BuildResult(p, []float64{100, 150, 140}, []float64{1.0, 0.9, 0.7}, "generated/out.csv"), nil
}

func (f *fakeSimulator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRetriever struct {
	mu      sync.Mutex
	queries []string
	err     error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return []string{"PV curves plot bus voltage against system load."}, nil
}

func (f *fakeRetriever) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeRecorder struct {
	mu           sync.Mutex
	messages     int
	interactions []ConversationEntry
	results      []CachedResult
}

func (f *fakeRecorder) RecordMessage(context.Context, string, Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages++
	return nil
}

func (f *fakeRecorder) RecordInteraction(_ context.Context, _ string, e ConversationEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interactions = append(f.interactions, e)
	return nil
}

func (f *fakeRecorder) RecordResult(_ context.Context, _ string, e CachedResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, e)
	return nil
}

type testRig struct {
	mock *llm.MockClient
	sim  *fakeSimulator
	ret  *fakeRetriever
	rec  *fakeRecorder
	orch *Orchestrator
}

func newTestRig(t *testing.T, cfg Config) *testRig {
	t.Helper()
	rig := &testRig{
		mock: llm.NewMockClient(),
		sim:  &fakeSimulator{},
		ret:  &fakeRetriever{},
		rec:  &fakeRecorder{},
	}
	orch, err := New(cfg, Capabilities{
		Language:  llm.NewLanguage(rig.mock, llm.GenerationParams{}),
		Retriever: rig.ret,
		Simulator: rig.sim,
		Recorder:  rig.rec,
	})
	require.NoError(t, err)
	rig.orch = orch
	return rig
}

func (r *testRig) classifyAs(action ActionType) {
	r.mock.QueueJSON("classification", map[string]any{
		"is_compound": false,
		"action":      action.String(),
		"plan_hint":   "",
	})
}

func (r *testRig) classifyCompound() {
	r.mock.QueueJSON("classification", map[string]any{
		"is_compound": true,
		"action":      "parameter",
		"plan_hint":   "several steps",
	})
}

func (r *testRig) queuePlan(steps ...map[string]any) {
	r.mock.QueueJSON("plan", map[string]any{
		"description": "test plan",
		"steps":       steps,
	})
}

func step(action ActionType, content string, edits ...map[string]any) map[string]any {
	if edits == nil {
		edits = []map[string]any{}
	}
	return map[string]any{"action": action.String(), "content": content, "edits": edits}
}

func edit(name, value string) map[string]any {
	return map[string]any{"parameter": name, "value": value}
}
