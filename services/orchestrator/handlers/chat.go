// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP and websocket endpoints of the
// orchestrator service.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/pvagent/services/agent"
	"github.com/AleutianAI/pvagent/services/history"
	"github.com/AleutianAI/pvagent/services/orchestrator/datatypes"
	"github.com/AleutianAI/pvagent/services/orchestrator/sessions"
)

var chatTracer = otel.Tracer("pvagent.orchestrator.handlers")

// TurnProcessor runs one user message against a session. *agent.Orchestrator
// satisfies it.
type TurnProcessor interface {
	Process(ctx context.Context, s *agent.SessionState, message string) (agent.Response, error)
}

// HandleChat processes one chat turn.
//
// # Description
//
// POST /v1/chat. When session_id is empty a new session is created and its
// ID is returned in the response. Turns on the same session are
// serialized by the registry.
//
// # Responses
//
//   - 200: datatypes.ChatResponse. Agent-level failures are reported in
//     its error field, not as an HTTP error.
//   - 400: malformed or invalid body.
//   - 404: unknown session_id.
func HandleChat(proc TurnProcessor, reg *sessions.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Error("Failed to parse the chat request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation failed",
				"details": datatypes.ValidationDetails(err),
			})
			return
		}
		req.EnsureDefaults()

		if req.SessionID == "" {
			id, err := reg.Create(ctx, "")
			if err != nil {
				span.RecordError(err)
				slog.Error("Failed to create a session", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
				return
			}
			req.SessionID = id
		}
		span.SetAttributes(attribute.String("session.id", req.SessionID))

		resp, err := runTurn(ctx, proc, reg, &req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			status, body := turnErrorStatus(err, req.SessionID)
			c.JSON(status, body)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// runTurn processes req under the session's lock.
func runTurn(ctx context.Context, proc TurnProcessor, reg *sessions.Registry, req *datatypes.ChatRequest) (*datatypes.ChatResponse, error) {
	var out *datatypes.ChatResponse
	err := reg.Do(ctx, req.SessionID, func(s *agent.SessionState) error {
		start := time.Now()
		resp, err := proc.Process(ctx, s, req.Message)
		if err != nil {
			return err
		}
		out = datatypes.NewChatResponse(req.RequestID, resp, s, time.Since(start))
		return nil
	})
	return out, err
}

func turnErrorStatus(err error, sessionID string) (int, gin.H) {
	switch {
	case errors.Is(err, history.ErrSessionNotFound):
		return http.StatusNotFound, gin.H{"error": "session not found", "session_id": sessionID}
	case errors.Is(err, agent.ErrEmptyMessage):
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	default:
		slog.Error("Chat turn failed", "session_id", sessionID, "error", err)
		return http.StatusInternalServerError, gin.H{"error": "failed to process message"}
	}
}
