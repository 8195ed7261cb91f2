// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/pvagent/services/agent"
	"github.com/AleutianAI/pvagent/services/history"
	"github.com/AleutianAI/pvagent/services/orchestrator/datatypes"
	"github.com/AleutianAI/pvagent/services/orchestrator/sessions"
	"github.com/AleutianAI/pvagent/services/pvcurve"
)

// SessionArchive is the read side of the session archive. *history.Store
// satisfies it.
type SessionArchive interface {
	Sessions(ctx context.Context) ([]history.SessionInfo, error)
	Session(ctx context.Context, id string) (*history.Session, error)
	Statistics(ctx context.Context) (history.Statistics, error)
}

// ParametersResponse is the body of GET /v1/sessions/:sessionId/parameters.
type ParametersResponse struct {
	SessionID  string          `json:"session_id"`
	Parameters pvcurve.Params  `json:"parameters"`
	HasResult  bool            `json:"has_result"`
	LastResult *pvcurve.Result `json:"last_result,omitempty"`
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	history.Statistics
	ActiveSessions int `json:"active_sessions"`
}

// CreateSession serves POST /v1/sessions. The body is optional.
func CreateSession(reg *sessions.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
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
		id, err := reg.Create(c.Request.Context(), req.Name)
		if err != nil {
			slog.Error("Failed to create a session", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"session_id": id})
	}
}

// ListSessions serves GET /v1/sessions, newest first.
func ListSessions(archive SessionArchive) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := archive.Sessions(c.Request.Context())
		if err != nil {
			slog.Error("Failed to list sessions", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
			return
		}
		if list == nil {
			list = []history.SessionInfo{}
		}
		c.JSON(http.StatusOK, gin.H{"sessions": list, "count": len(list)})
	}
}

// GetSession serves GET /v1/sessions/:sessionId with the full archived
// transcript.
func GetSession(archive SessionArchive) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := loadArchived(c, archive)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

// ExportSession serves GET /v1/sessions/:sessionId/export as a JSON
// attachment.
func ExportSession(archive SessionArchive) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := loadArchived(c, archive)
		if !ok {
			return
		}
		c.Header("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", "session_"+sess.SessionID+".json"))
		c.IndentedJSON(http.StatusOK, sess)
	}
}

func loadArchived(c *gin.Context, archive SessionArchive) (*history.Session, bool) {
	id := c.Param("sessionId")
	sess, err := archive.Session(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "session_id": id})
		} else {
			slog.Error("Failed to load session", "session_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		}
		return nil, false
	}
	return sess, true
}

// ClearSession serves POST /v1/sessions/:sessionId/clear. The session keeps
// its ID and name; messages, histories and parameters are reset.
func ClearSession(reg *sessions.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		if err := reg.Clear(c.Request.Context(), id); err != nil {
			status, body := turnErrorStatus(err, id)
			c.JSON(status, body)
			return
		}
		slog.Info("Session cleared", "session_id", id)
		c.JSON(http.StatusOK, gin.H{"session_id": id, "status": "cleared"})
	}
}

// DeleteSession serves DELETE /v1/sessions/:sessionId.
func DeleteSession(reg *sessions.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		if err := reg.Delete(c.Request.Context(), id); err != nil {
			status, body := turnErrorStatus(err, id)
			c.JSON(status, body)
			return
		}
		slog.Info("Session deleted", "session_id", id)
		c.JSON(http.StatusOK, gin.H{"session_id": id, "status": "deleted"})
	}
}

// GetParameters serves GET /v1/sessions/:sessionId/parameters.
func GetParameters(reg *sessions.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		var out ParametersResponse
		err := reg.Do(c.Request.Context(), id, func(s *agent.SessionState) error {
			out = ParametersResponse{
				SessionID:  s.SessionID,
				Parameters: s.Parameters,
				HasResult:  s.LastResult != nil,
				LastResult: s.LastResult,
			}
			return nil
		})
		if err != nil {
			status, body := turnErrorStatus(err, id)
			c.JSON(status, body)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// GetStats serves GET /v1/stats.
func GetStats(archive SessionArchive, reg *sessions.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := archive.Statistics(c.Request.Context())
		if err != nil {
			slog.Error("Failed to compute statistics", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute statistics"})
			return
		}
		c.JSON(http.StatusOK, StatsResponse{Statistics: stats, ActiveSessions: reg.Len()})
	}
}
