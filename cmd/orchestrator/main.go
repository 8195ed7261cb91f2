// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the PV-curve agent HTTP server.
//
// This is the entry point for the containerized service. It reads
// configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - ORCHESTRATOR_PORT: HTTP server port (default: 12210)
//   - LLM_BACKEND_TYPE: openai, ollama, claude (default: ollama)
//   - LLM_MODEL: model name passed to the backend (optional)
//   - LLM_BASE_URL: backend base URL (optional)
//   - LLM_REQUESTS_PER_SECOND: client-side rate limit (optional)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional)
//   - EMBEDDING_SERVICE_URL: batch embedding service (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: collector address, "stdout" or "none"
//     (default: localhost:4317)
//   - PVAGENT_HISTORY_PATH: BadgerDB directory (default: in memory)
//   - PVAGENT_SIMULATOR_URL: external power-flow service (optional)
//   - PVAGENT_OUTPUT_DIR: curve CSV directory (default: generated)
//   - PVAGENT_HISTORY_AWARE: "true" routes every turn through the
//     history-aware handlers
//   - PVAGENT_API_KEYS: comma-separated "label:key" bearer tokens guarding
//     /v1 (optional, open when unset)
//   - INFLUXDB_URL, INFLUXDB_TOKEN, INFLUXDB_ORG, INFLUXDB_BUCKET: optional
//     result mirror
//
// # Usage
//
//	go build -o orchestrator ./cmd/orchestrator
//	PVAGENT_HISTORY_PATH=/var/lib/pvagent ./orchestrator
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/pvagent/services/agent"
	"github.com/AleutianAI/pvagent/services/history"
	"github.com/AleutianAI/pvagent/services/llm"
	"github.com/AleutianAI/pvagent/services/orchestrator"
	"github.com/AleutianAI/pvagent/services/orchestrator/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	agentCfg := agent.DefaultConfig()
	agentCfg.HistoryAwareDefault = getEnvBool("PVAGENT_HISTORY_AWARE", false)

	cfg := orchestrator.Config{
		Port: getEnvInt("ORCHESTRATOR_PORT", 12210),
		LLMBackend: llm.BackendConfig{
			Type:              getEnvString("LLM_BACKEND_TYPE", "ollama"),
			Model:             os.Getenv("LLM_MODEL"),
			BaseURL:           os.Getenv("LLM_BASE_URL"),
			RequestsPerSecond: getEnvFloat("LLM_REQUESTS_PER_SECOND", 0),
		},
		Agent:        agentCfg,
		WeaviateURL:  os.Getenv("WEAVIATE_SERVICE_URL"),
		EmbeddingURL: os.Getenv("EMBEDDING_SERVICE_URL"),
		OTelEndpoint: getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		HistoryPath:  os.Getenv("PVAGENT_HISTORY_PATH"),
		SimulatorURL: os.Getenv("PVAGENT_SIMULATOR_URL"),
		OutputDir:    getEnvString("PVAGENT_OUTPUT_DIR", "generated"),
		APIKeys:      middleware.ParseAPIKeys(os.Getenv("PVAGENT_API_KEYS")),
		Influx: history.InfluxConfig{
			URL:    os.Getenv("INFLUXDB_URL"),
			Token:  os.Getenv("INFLUXDB_TOKEN"),
			Org:    os.Getenv("INFLUXDB_ORG"),
			Bucket: os.Getenv("INFLUXDB_BUCKET"),
		},
	}

	slog.Info("Starting orchestrator",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend.Type,
		"weaviate_url", cfg.WeaviateURL,
		"history_path", cfg.HistoryPath,
		"history_aware", agentCfg.HistoryAwareDefault,
	)

	svc, err := orchestrator.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Orchestrator error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
