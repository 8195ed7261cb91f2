// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// TestLoad_CreatesDefaultOnFirstRun verifies the first-run file.
func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".pvagent", FileName)

	cfg, created, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !created {
		t.Error("created = false on first run")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file was not written: %v", err)
	}
	if cfg.LLM.Type != "ollama" {
		t.Errorf("LLM.Type = %q, want %q", cfg.LLM.Type, "ollama")
	}
	if cfg.Agent.MaxPlanSteps != 8 {
		t.Errorf("Agent.MaxPlanSteps = %d, want 8", cfg.Agent.MaxPlanSteps)
	}
	if !cfg.Agent.AnalyzeAfterGeneration {
		t.Error("Agent.AnalyzeAfterGeneration = false, want default true")
	}
	if strings.HasPrefix(cfg.History.Path, "~") {
		t.Errorf("History.Path not expanded: %q", cfg.History.Path)
	}

	_, created, err = Load(path)
	if err != nil {
		t.Fatalf("second Load() failed: %v", err)
	}
	if created {
		t.Error("created = true on second run")
	}
}

// TestLoad_PartialFileKeepsDefaults verifies unset keys fall back.
func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := `
llm:
  type: openai
  model: gpt-4o-mini
agent:
  history_aware_default: true
server:
  session_idle_ttl: 10m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, created, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if created {
		t.Error("existing file reported as created")
	}
	if cfg.LLM.Type != "openai" || cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if !cfg.Agent.HistoryAwareDefault {
		t.Error("HistoryAwareDefault not read")
	}
	if cfg.Server.SessionIdleTTL != 10*time.Minute {
		t.Errorf("SessionIdleTTL = %v, want 10m", cfg.Server.SessionIdleTTL)
	}
	if cfg.Server.Port != 12210 {
		t.Errorf("Port = %d, want default 12210", cfg.Server.Port)
	}
	if cfg.Simulator.OutputDir != "generated" {
		t.Errorf("OutputDir = %q, want default", cfg.Simulator.OutputDir)
	}
	if !cfg.Agent.AnalyzeAfterGeneration {
		t.Error("AnalyzeAfterGeneration lost its default")
	}
}

// TestLoad_AnalyzeAfterGenerationCanBeDisabled verifies the follow-up
// analysis is switched off from YAML.
func TestLoad_AnalyzeAfterGenerationCanBeDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := `
agent:
  analyze_after_generation: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Agent.AnalyzeAfterGeneration {
		t.Error("AnalyzeAfterGeneration = true, want false")
	}
	if cfg.Agent.MaxPlanSteps != 8 {
		t.Errorf("Agent.MaxPlanSteps = %d, want default 8", cfg.Agent.MaxPlanSteps)
	}
}

// TestLoad_InvalidYAML verifies parse errors name the file.
func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("llm: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Errorf("Load() error = %v, want parse error naming the file", err)
	}
}

// TestSave_NeverWritesAPIKey verifies secrets stay out of the file.
func TestSave_NeverWritesAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-secret"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-secret") {
		t.Error("API key written to config file")
	}

	var roundTrip PVAgentConfig
	if err := yaml.Unmarshal(data, &roundTrip); err != nil {
		t.Fatalf("written file does not parse: %v", err)
	}
	if roundTrip.Server.SessionIdleTTL != 30*time.Minute {
		t.Errorf("SessionIdleTTL = %v", roundTrip.Server.SessionIdleTTL)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := map[string]string{
		"~":                  home,
		"~/.pvagent/history": filepath.Join(home, ".pvagent/history"),
		"/abs/path":          "/abs/path",
		"~other/path":        "~other/path",
		"":                   "",
	}
	for in, want := range tests {
		if got := ExpandHome(in); got != want {
			t.Errorf("ExpandHome(%q) = %q, want %q", in, got, want)
		}
	}
}
