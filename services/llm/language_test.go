// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = Schema{
	Name: "answer",
	Definition: jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"value": {Type: jsonschema.Integer},
		},
		Required: []string{"value"},
	},
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"plain object", `{"a":1}`, `{"a":1}`, true},
		{"markdown fence", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"leading prose", `Sure! {"a":{"b":2}} hope that helps`, `{"a":{"b":2}}`, true},
		{"braces inside strings", `{"a":"}{"}`, `{"a":"}{"}`, true},
		{"escaped quote", `{"a":"x\"}"}`, `{"a":"x\"}"}`, true},
		{"no object", `no json here`, "", false},
		{"unbalanced", `{"a":1`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON_MalformedIsDistinguishable(t *testing.T) {
	var out struct {
		Value int `json:"value"`
	}
	err := DecodeJSON("I cannot answer that", &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedOutput))

	err = DecodeJSON(`{"value":"not a number"}`, &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedOutput))
}

func TestLanguage_GenerateTyped(t *testing.T) {
	mock := NewMockClient().QueueJSON("answer", map[string]int{"value": 42})
	lang := NewLanguage(mock, GenerationParams{})

	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, lang.GenerateTyped(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, testSchema, &out))
	assert.Equal(t, 42, out.Value)
	assert.Equal(t, 1, mock.CallCount("answer"))
}

func TestLanguage_GenerateTyped_TransportErrorIsNotMalformed(t *testing.T) {
	boom := errors.New("connection refused")
	mock := NewMockClient().QueueJSONError("answer", boom)
	lang := NewLanguage(mock, GenerationParams{})

	var out struct{}
	err := lang.GenerateTyped(context.Background(), nil, testSchema, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrMalformedOutput))
}

func TestLanguage_GenerateTrimsWhitespace(t *testing.T) {
	mock := NewMockClient().QueueText("  hello \n")
	lang := NewLanguage(mock, GenerationParams{})

	got, err := lang.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestMockClient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockClient().Chat(ctx, nil, GenerationParams{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimitedClient_PassThroughWhenDisabled(t *testing.T) {
	mock := NewMockClient()
	assert.Same(t, Client(mock), NewRateLimitedClient(mock, 0, 1))

	limited := NewRateLimitedClient(mock, 100, 1)
	_, ok := limited.(*RateLimitedClient)
	require.True(t, ok)

	got, err := limited.Chat(context.Background(), nil, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "Mock response", got)
}

func TestNewClient_UnknownBackend(t *testing.T) {
	_, err := NewClient(BackendConfig{Type: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown LLM backend")
}
