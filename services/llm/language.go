// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Language adapts a Client into the language capability consumed by the
// agent: free-text generation and typed generation into a Go value.
//
// # Thread Safety
//
// Safe for concurrent use if the wrapped Client is.
type Language struct {
	client Client
	params GenerationParams
}

// NewLanguage wraps client. params are applied to every call.
func NewLanguage(client Client, params GenerationParams) *Language {
	return &Language{client: client, params: params}
}

// Generate returns the model's free-text answer to messages.
func (l *Language) Generate(ctx context.Context, messages []Message) (string, error) {
	ctx, span := otel.Tracer("pvagent.llm").Start(ctx, "llm.Language.Generate",
		trace.WithAttributes(
			attribute.String("llm.model", l.client.Model()),
			attribute.Int("llm.num_messages", len(messages)),
		),
	)
	defer span.End()

	text, err := l.client.Chat(ctx, messages, l.params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// GenerateTyped asks the model for an object matching schema and decodes
// it into out.
//
// # Outputs
//
//   - error: wraps ErrMalformedOutput when the model answered with text that
//     is not a JSON object or does not decode into out. Any other error is
//     a backend failure.
func (l *Language) GenerateTyped(ctx context.Context, messages []Message, schema Schema, out any) error {
	ctx, span := otel.Tracer("pvagent.llm").Start(ctx, "llm.Language.GenerateTyped",
		trace.WithAttributes(
			attribute.String("llm.model", l.client.Model()),
			attribute.String("llm.schema", schema.Name),
		),
	)
	defer span.End()

	raw, err := l.client.ChatJSON(ctx, messages, schema, l.params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := DecodeJSON(raw, out); err != nil {
		slog.Warn("Model returned output that does not match schema",
			"schema", schema.Name, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed output")
		return err
	}
	return nil
}

// DecodeJSON extracts the first JSON object from raw and decodes it into
// out. Markdown fences and leading prose are tolerated since smaller local
// models add them even in JSON mode.
func DecodeJSON(raw string, out any) error {
	obj, ok := ExtractJSON(raw)
	if !ok {
		return fmt.Errorf("%w: no JSON object in %q", ErrMalformedOutput, truncate(raw, 120))
	}
	if err := json.Unmarshal([]byte(obj), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

// ExtractJSON returns the first balanced {...} object found in s.
func ExtractJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// schemaInstruction renders a system message telling the model which JSON
// shape to answer with. Used by backends without native schema support.
func schemaInstruction(schema Schema) (string, error) {
	def, err := json.Marshal(schema.Definition)
	if err != nil {
		return "", fmt.Errorf("marshal schema %s: %w", schema.Name, err)
	}
	var b strings.Builder
	b.WriteString("Respond with ONLY a JSON object (no markdown, no preamble)")
	if schema.Description != "" {
		b.WriteString(" describing ")
		b.WriteString(schema.Description)
	}
	b.WriteString(". It must match this JSON schema:\n")
	b.Write(def)
	return b.String(), nil
}
