// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Ollama
// =============================================================================

func TestOllamaClient_Chat(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: Message{Role: RoleAssistant, Content: "pong"},
			Done:    true,
		})
	}))
	defer server.Close()

	client, err := NewOllamaClient(OllamaConfig{BaseURL: server.URL + "/", Model: "test-model"})
	require.NoError(t, err)

	answer, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "ping"}}, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "pong", answer)
	assert.Equal(t, "test-model", got.Model)
	assert.False(t, got.Stream)
	assert.Nil(t, got.Format)
	assert.Len(t, got.Messages, 1)
}

func TestOllamaClient_ChatJSONSendsFormat(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: Message{Role: RoleAssistant, Content: `{"value":7}`},
		})
	}))
	defer server.Close()

	client, err := NewOllamaClient(OllamaConfig{BaseURL: server.URL, Model: "m"})
	require.NoError(t, err)

	raw, err := client.ChatJSON(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, testSchema, GenerationParams{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":7}`, raw)
	assert.Contains(t, string(got.Format), `"value"`)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
}

func TestOllamaClient_ModelNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'm' not found"}`))
	}))
	defer server.Close()

	client, err := NewOllamaClient(OllamaConfig{BaseURL: server.URL, Model: "m"})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), nil, GenerationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama pull m")
}

// =============================================================================
// Anthropic
// =============================================================================

func TestAnthropicClient_ChatJSONUsesForcedTool(t *testing.T) {
	var got anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant",
			"content":[{"type":"tool_use","name":"answer","input":{"value":3}}]}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(AnthropicConfig{APIKey: "test-key", Model: "claude-test", BaseURL: server.URL})
	require.NoError(t, err)

	msgs := []Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "x"},
	}
	raw, err := client.ChatJSON(context.Background(), msgs, testSchema, GenerationParams{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":3}`, raw)

	require.NotNil(t, got.ToolChoice)
	assert.Equal(t, "answer", got.ToolChoice.Name)
	require.Len(t, got.System, 1)
	assert.Equal(t, "be terse", got.System[0].Text)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, RoleUser, got.Messages[0].Role)
}

func TestAnthropicClient_ChatConcatenatesTextBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	answer, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "ab", answer)
}

func TestAnthropicClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), nil, GenerationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
