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
	"fmt"
	"log/slog"
	"strings"
)

// BackendConfig selects and configures one backend.
type BackendConfig struct {
	// Type is one of "openai", "ollama", "claude"/"anthropic".
	Type    string `yaml:"type"`
	Model   string `yaml:"model,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	APIKey  string `yaml:"-"`

	// RequestsPerSecond throttles calls when positive.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// NewClient creates the backend named by cfg.Type.
func NewClient(cfg BackendConfig) (Client, error) {
	var (
		client Client
		err    error
	)
	switch strings.ToLower(cfg.Type) {
	case "openai":
		client, err = NewOpenAIClient(OpenAIConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
		slog.Info("Using OpenAI LLM backend")
	case "ollama", "":
		client, err = NewOllamaClient(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.Model})
		slog.Info("Using Ollama LLM backend")
	case "claude", "anthropic":
		client, err = NewAnthropicClient(AnthropicConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
		slog.Info("Using Anthropic (Claude) LLM backend")
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return NewRateLimitedClient(client, cfg.RequestsPerSecond, 2), nil
}
