// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeedsContext(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"run the simulation", false},
		{"What is voltage stability?", false},
		{"compare with my previous run", true},
		{"What did I set the bus to?", true},
		{"Show me my results", true},
		{"How has the nose point changed? Show the TREND", true},
		{"describe the change over time", true},
		{"use the same grid as before", true},
		{"what was the last result", true},
		{"set capacitive to on", false},
		{"blast it with a bigger load", false},
		{"compute the past-the-nose branch", true},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsContext(tt.message))
		})
	}
}

func TestNeedsContext_EveryVocabularyTermMatches(t *testing.T) {
	for _, term := range ContextVocabulary {
		assert.True(t, NeedsContext("please "+term+" thanks"), term)
	}
}

func TestSelectVariant_TableIsExhaustive(t *testing.T) {
	h := &handlers{}
	table := h.table()
	seen := map[HandlerID]bool{}
	for _, action := range AllActionTypes() {
		for _, needs := range []bool{false, true} {
			id, ok := SelectVariant(action, needs)
			require.True(t, ok, "action %s has no variant", action)
			_, registered := table[id]
			assert.True(t, registered, "handler %s is not registered", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, 2*len(AllActionTypes()), "standard and history variants are distinct")
	assert.Len(t, table, len(seen), "no unreachable handlers")

	_, ok := SelectVariant(ActionType(99), false)
	assert.False(t, ok)
}

func TestSelectVariant_PicksByFlag(t *testing.T) {
	id, _ := SelectVariant(ActionGeneration, false)
	assert.Equal(t, HandlerGeneration, id)
	id, _ = SelectVariant(ActionGeneration, true)
	assert.Equal(t, HandlerHistoryGeneration, id)
}

func TestActionType_TextRoundTrip(t *testing.T) {
	for _, a := range AllActionTypes() {
		parsed, err := ParseActionType(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	}
	_, err := ParseActionType("question")
	assert.Error(t, err)

	parsed, err := ParseActionType("  Generation ")
	require.NoError(t, err)
	assert.Equal(t, ActionGeneration, parsed)

	data, err := json.Marshal(ConversationEntry{Action: ActionAnalysis})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action":"analysis"`)

	data, err = json.Marshal(ConversationEntry{})
	require.NoError(t, err, "an unset action still encodes")

	var entry ConversationEntry
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, ActionType(0), entry.Action)
}
