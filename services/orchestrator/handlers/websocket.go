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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/pvagent/services/agent"
	"github.com/AleutianAI/pvagent/services/orchestrator/datatypes"
	"github.com/AleutianAI/pvagent/services/orchestrator/sessions"
)

// ConnectionObserver is told when websocket clients come and go.
type ConnectionObserver interface {
	WebSocketOpened()
	WebSocketClosed()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleChatWebSocket serves GET /v1/chat/ws.
//
// # Description
//
// The connection is bound to one session: the one named by the session_id
// query parameter, or a new one. The first frame sent is
// {"action": "session_created"|"session_resumed", "session_id": ...}.
// Each client frame is a datatypes.ChatRequest (its session_id is
// ignored) and gets exactly one reply frame: a datatypes.ChatResponse, or
// {"error": ...} when the frame is rejected.
//
// # Inputs
//
//   - obs: may be nil.
func HandleChatWebSocket(proc TurnProcessor, reg *sessions.Registry, obs ConnectionObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		sessionID := c.Query("session_id")
		action := "session_resumed"
		if sessionID != "" {
			// Load before upgrading so an unknown session is a plain 404.
			err := reg.Do(ctx, sessionID, func(*agent.SessionState) error { return nil })
			if err != nil {
				status, body := turnErrorStatus(err, sessionID)
				c.JSON(status, body)
				return
			}
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		if obs != nil {
			obs.WebSocketOpened()
			defer obs.WebSocketClosed()
		}

		if sessionID == "" {
			sessionID, err = reg.Create(ctx, "")
			if err != nil {
				slog.Error("Failed to create a websocket session", "error", err)
				_ = sendJSON(ws, gin.H{"error": "failed to create session"})
				return
			}
			action = "session_created"
		}
		slog.Info("Websocket client connected", "session_id", sessionID, "action", action)

		if err := sendJSON(ws, gin.H{"action": action, "session_id": sessionID}); err != nil {
			return
		}

		for {
			var req datatypes.ChatRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("Websocket client disconnected", "session_id", sessionID, "error", err.Error())
				return
			}
			req.SessionID = sessionID
			if err := req.Validate(); err != nil {
				if sendJSON(ws, gin.H{"error": "validation failed", "details": datatypes.ValidationDetails(err)}) != nil {
					return
				}
				continue
			}
			req.EnsureDefaults()

			resp, err := runTurn(ctx, proc, reg, &req)
			if err != nil {
				_, body := turnErrorStatus(err, sessionID)
				if sendJSON(ws, body) != nil {
					return
				}
				continue
			}
			if sendJSON(ws, resp) != nil {
				return
			}
		}
	}
}
