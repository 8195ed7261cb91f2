// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/pvagent/services/agent"
	"github.com/AleutianAI/pvagent/services/history"
	"github.com/AleutianAI/pvagent/services/orchestrator/middleware"
	"github.com/AleutianAI/pvagent/services/orchestrator/observability"
	"github.com/AleutianAI/pvagent/services/orchestrator/sessions"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

type stubProcessor struct{}

func (stubProcessor) Process(_ context.Context, s *agent.SessionState, _ string) (agent.Response, error) {
	return agent.Response{SessionID: s.SessionID, Text: "ok"}, nil
}

type stubArchive struct{}

func (stubArchive) Sessions(context.Context) ([]history.SessionInfo, error) { return nil, nil }
func (stubArchive) Session(_ context.Context, id string) (*history.Session, error) {
	return nil, history.ErrSessionNotFound
}
func (stubArchive) Statistics(context.Context) (history.Statistics, error) {
	return history.Statistics{}, nil
}

type stubIngester struct{}

func (stubIngester) IngestText(context.Context, string, string) (int, error) { return 1, nil }

func testDeps() Dependencies {
	return Dependencies{
		Processor: stubProcessor{},
		Registry:  sessions.NewRegistry(nil, nil),
		Archive:   stubArchive{},
	}
}

func hasRoute(router *gin.Engine, method, path string) bool {
	for _, r := range router.Routes() {
		if r.Method == method && r.Path == path {
			return true
		}
	}
	return false
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_CoreRoutes(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, testDeps())

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/chat"},
		{"GET", "/v1/chat/ws"},
		{"GET", "/v1/stats"},
		{"POST", "/v1/sessions"},
		{"GET", "/v1/sessions"},
		{"GET", "/v1/sessions/:sessionId"},
		{"GET", "/v1/sessions/:sessionId/export"},
		{"GET", "/v1/sessions/:sessionId/parameters"},
		{"POST", "/v1/sessions/:sessionId/clear"},
		{"DELETE", "/v1/sessions/:sessionId"},
	}
	for _, e := range expected {
		if !hasRoute(router, e.method, e.path) {
			t.Errorf("Expected route %s %s to be registered", e.method, e.path)
		}
	}
}

func TestSetupRoutes_DocumentsOnlyWithIngester(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, testDeps())
	if hasRoute(router, "POST", "/v1/documents") {
		t.Error("POST /v1/documents should not be registered without an ingester")
	}

	deps := testDeps()
	deps.Ingester = stubIngester{}
	router = gin.New()
	SetupRoutes(router, deps)
	if !hasRoute(router, "POST", "/v1/documents") {
		t.Error("POST /v1/documents should be registered with an ingester")
	}
}

func TestSetupRoutes_ChatEndToEnd(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, testDeps())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("chat returned %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"response":"ok"`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestSetupRoutes_APIKeysGuardV1Only(t *testing.T) {
	deps := testDeps()
	deps.APIKeys = middleware.APIKeys{"secret": "ops"}
	router := gin.New()
	SetupRoutes(router, deps)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/stats", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("GET /v1/stats without a key returned %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("GET /v1/stats with a key returned %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /health returned %d, want 200", w.Code)
	}
}

func TestSetupRoutes_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewAgentMetrics(reg)
	metrics.SetActiveSessions(3)

	deps := testDeps()
	deps.Gatherer = reg
	router := gin.New()
	SetupRoutes(router, deps)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Metrics endpoint returned %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "aleutian_agent_active_sessions 3") {
		t.Errorf("metrics body missing active sessions gauge:\n%s", w.Body.String())
	}
}

func TestSetupRoutes_MissingDependencyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected SetupRoutes to panic without a processor")
		}
	}()
	deps := testDeps()
	deps.Processor = nil
	SetupRoutes(gin.New(), deps)
}
