// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the pvagent CLI configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/pvagent/services/agent"
	"github.com/AleutianAI/pvagent/services/history"
	"github.com/AleutianAI/pvagent/services/llm"
)

// FileName is the config file name under the pvagent home directory.
const FileName = "pvagent.yaml"

type PVAgentConfig struct {
	// LLM selects the language backend. API keys are never stored here;
	// they come from OPENAI_API_KEY or ANTHROPIC_API_KEY.
	LLM llm.BackendConfig `yaml:"llm"`

	// Agent: retry ceiling, plan length, capability timeout
	Agent agent.Config `yaml:"agent"`

	History   HistoryConfig        `yaml:"history"`
	Simulator SimulatorConfig      `yaml:"simulator"`
	Retrieval RetrievalConfig      `yaml:"retrieval"`
	Server    ServerConfig         `yaml:"server"`
	Logging   LoggingConfig        `yaml:"logging"`
	Influx    history.InfluxConfig `yaml:"influx"`
}

type HistoryConfig struct {
	Path string `yaml:"path"` // BadgerDB directory, e.g. ~/.pvagent/history
}

type SimulatorConfig struct {
	URL       string `yaml:"url,omitempty"` // external power-flow service; empty runs in process
	OutputDir string `yaml:"output_dir"`    // curve CSV files
}

type RetrievalConfig struct {
	WeaviateURL    string `yaml:"weaviate_url,omitempty"`
	EmbeddingURL   string `yaml:"embedding_url,omitempty"`
	EmbeddingModel string `yaml:"embedding_model,omitempty"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	OTelEndpoint   string        `yaml:"otel_endpoint"`
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() PVAgentConfig {
	return PVAgentConfig{
		LLM:   llm.BackendConfig{Type: "ollama", Model: "llama3"},
		Agent: agent.DefaultConfig(),
		History: HistoryConfig{
			Path: "~/.pvagent/history",
		},
		Simulator: SimulatorConfig{
			OutputDir: "generated",
		},
		Server: ServerConfig{
			Port:           12210,
			OTelEndpoint:   "none",
			SessionIdleTTL: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.pvagent/logs",
		},
	}
}

// DefaultPath returns ~/.pvagent/pvagent.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".pvagent", FileName), nil
}

// Load reads the config at path, writing DefaultConfig there first if the
// file does not exist. Keys missing from the file keep their defaults.
// created reports whether the file was written by this call.
func Load(path string) (cfg PVAgentConfig, created bool, err error) {
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if err := Save(path, DefaultConfig()); err != nil {
			return PVAgentConfig{}, false, err
		}
		created = true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return PVAgentConfig{}, created, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg = DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PVAgentConfig{}, created, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.History.Path = ExpandHome(cfg.History.Path)
	cfg.Simulator.OutputDir = ExpandHome(cfg.Simulator.OutputDir)
	return cfg, created, nil
}

// Save writes cfg to path as YAML, creating the parent directory.
func Save(path string, cfg PVAgentConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
