// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the language backends used by the agent: OpenAI
// compatible servers, Ollama, and Anthropic, plus a scripted mock.
//
// Every backend implements Client. The agent does not talk to a Client
// directly; it goes through Language, which adds typed (schema-constrained)
// generation on top of the free-text Chat call.
package llm

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Message roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrMalformedOutput is returned when a backend answered but the answer
// does not match the requested schema. It is distinct from transport
// failures so callers can tell "the model said something unusable" from
// "the model could not be reached".
var ErrMalformedOutput = errors.New("malformed model output")

// Message is one chat turn sent to a backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Schema describes the JSON object a typed generation must produce.
type Schema struct {
	// Name is a short identifier, e.g. "classification".
	Name string

	// Description tells the model what the object represents.
	Description string

	// Definition is the JSON schema of the object.
	Definition jsonschema.Definition
}

// Client defines the standard interface for any LLM backend.
//
// # Description
//
// Chat returns free text. ChatJSON asks the backend to constrain its
// output to schema and returns the raw JSON text; decoding and shape
// checks are left to Language so every backend behaves the same.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Client interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
	ChatJSON(ctx context.Context, messages []Message, schema Schema, params GenerationParams) (string, error)
	Model() string
}
