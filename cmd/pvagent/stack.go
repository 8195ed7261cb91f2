// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/AleutianAI/pvagent/cmd/pvagent/config"
	"github.com/AleutianAI/pvagent/services/agent"
	"github.com/AleutianAI/pvagent/services/history"
	"github.com/AleutianAI/pvagent/services/llm"
	"github.com/AleutianAI/pvagent/services/orchestrator"
	"github.com/AleutianAI/pvagent/services/orchestrator/middleware"
	"github.com/AleutianAI/pvagent/services/pvcurve"
	"github.com/AleutianAI/pvagent/services/retrieval"
	storebadger "github.com/AleutianAI/pvagent/services/storage/badger"
)

// archive is an opened session archive. Close releases the database.
type archive struct {
	db    *storebadger.DB
	store *history.Store
}

func openArchive(cfg config.PVAgentConfig) (*archive, error) {
	if cfg.History.Path == "" {
		return nil, errors.New("history.path is not configured")
	}
	dbCfg := storebadger.DefaultConfig(cfg.History.Path)
	dbCfg.Logger = slog.Default().With("component", "badger")
	db, err := storebadger.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open session archive: %w", err)
	}
	return &archive{db: db, store: history.NewStore(db)}, nil
}

func (a *archive) Close() {
	if err := a.db.Close(); err != nil {
		slog.Warn("Session archive close error", "error", err)
	}
}

// agentStack is the agent plus everything it holds open.
type agentStack struct {
	archive *archive
	sink    history.ResultSink
	agent   *agent.Orchestrator
}

// buildAgent opens the archive and wires the agent's capabilities from
// cfg. client replaces the configured language backend when non-nil.
func buildAgent(ctx context.Context, cfg config.PVAgentConfig, client llm.Client) (*agentStack, error) {
	arch, err := openArchive(cfg)
	if err != nil {
		return nil, err
	}
	stack := &agentStack{archive: arch}

	if client == nil {
		if client, err = llm.NewClient(cfg.LLM); err != nil {
			stack.Close()
			return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
	}

	var retriever agent.Retriever = retrieval.NewStaticRetriever(nil)
	if cfg.Retrieval.WeaviateURL != "" {
		wc, embedder, err := connectWeaviate(ctx, cfg)
		if err != nil {
			slog.Warn("Weaviate unavailable, using built-in passages", "error", err)
		} else {
			retriever = retrieval.NewWeaviateRetriever(wc, embedder)
		}
	}

	if cfg.Influx.URL != "" {
		stack.sink = history.NewInfluxSink(cfg.Influx)
	}

	stack.agent, err = agent.New(cfg.Agent, agent.Capabilities{
		Language:  llm.NewLanguage(client, llm.GenerationParams{}),
		Retriever: retriever,
		Simulator: newSimulator(cfg),
		Recorder:  history.NewRecorder(arch.store, stack.sink),
	})
	if err != nil {
		stack.Close()
		return nil, fmt.Errorf("failed to initialize agent: %w", err)
	}
	return stack, nil
}

func (s *agentStack) Close() {
	if s.sink != nil {
		s.sink.Close()
	}
	s.archive.Close()
}

func newSimulator(cfg config.PVAgentConfig) pvcurve.Simulator {
	if cfg.Simulator.URL != "" {
		return pvcurve.NewRemoteSimulator(cfg.Simulator.URL, cfg.Agent.CapabilityTimeout)
	}
	return pvcurve.NewLocalSimulator(cfg.Simulator.OutputDir)
}

// connectWeaviate dials Weaviate, ensures the document class, and picks
// the embedder used for queries and ingestion.
func connectWeaviate(ctx context.Context, cfg config.PVAgentConfig) (*weaviate.Client, retrieval.Embedder, error) {
	var embedder retrieval.Embedder
	switch {
	case cfg.Retrieval.EmbeddingURL != "":
		embedder = retrieval.NewHTTPEmbedder(cfg.Retrieval.EmbeddingURL)
	case strings.EqualFold(cfg.LLM.Type, "openai"):
		embedder = retrieval.NewOpenAIEmbedder(os.Getenv("OPENAI_API_KEY"), cfg.LLM.BaseURL, cfg.Retrieval.EmbeddingModel)
	default:
		return nil, nil, errors.New("no embedding service configured")
	}

	client, err := retrieval.NewWeaviateClient(cfg.Retrieval.WeaviateURL)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := retrieval.EnsureSchema(ctx, client); err != nil {
		return nil, nil, err
	}
	return client, embedder, nil
}

// orchestratorConfig maps the CLI config onto the HTTP service config.
func orchestratorConfig(cfg config.PVAgentConfig) orchestrator.Config {
	return orchestrator.Config{
		Port:           cfg.Server.Port,
		LLMBackend:     cfg.LLM,
		Agent:          cfg.Agent,
		WeaviateURL:    cfg.Retrieval.WeaviateURL,
		EmbeddingURL:   cfg.Retrieval.EmbeddingURL,
		EmbeddingModel: cfg.Retrieval.EmbeddingModel,
		OTelEndpoint:   cfg.Server.OTelEndpoint,
		HistoryPath:    cfg.History.Path,
		SimulatorURL:   cfg.Simulator.URL,
		OutputDir:      cfg.Simulator.OutputDir,
		Influx:         cfg.Influx,
		SessionIdleTTL: cfg.Server.SessionIdleTTL,
		APIKeys:        middleware.ParseAPIKeys(os.Getenv("PVAGENT_API_KEYS")),
	}
}
