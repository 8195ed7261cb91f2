// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/pvagent/services/pvcurve"
)

// Message is one transcript entry.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// PlanStep is one unit of work in a compound plan.
type PlanStep struct {
	Action  ActionType      `json:"action"`
	Content string          `json:"content"`
	Edits   []ParameterEdit `json:"edits,omitempty"`
}

// ConversationEntry records one completed top-level interaction.
type ConversationEntry struct {
	Timestamp         time.Time      `json:"timestamp"`
	UserInput         string         `json:"user_input"`
	AssistantResponse string         `json:"assistant_response"`
	ParametersUsed    pvcurve.Params `json:"parameters_used"`
	Action            ActionType     `json:"action,omitempty"`
	IsCompound        bool           `json:"is_compound,omitempty"`
}

// CachedResult records one successful simulation.
type CachedResult struct {
	Timestamp      time.Time       `json:"timestamp"`
	ParametersUsed pvcurve.Params  `json:"parameters_used"`
	Result         *pvcurve.Result `json:"result"`
}

// SessionState is the record threaded through every transition of one
// conversation.
//
// # Description
//
// Messages is the append-only transcript. ConversationHistory and
// CachedResults are the bounded caches consulted by history-aware
// handlers; they are the only source of history context. Plan and
// PlanCursor describe the compound request of the latest interaction and
// are reset when the next interaction starts.
//
// # Thread Safety
//
// Not safe for concurrent use. Callers serialize access per session.
type SessionState struct {
	SessionID           string              `json:"session_id"`
	StartedAt           time.Time           `json:"started_at"`
	Messages            []Message           `json:"messages"`
	Classification      *ActionType         `json:"classification,omitempty"`
	Parameters          pvcurve.Params      `json:"parameters"`
	LastResult          *pvcurve.Result     `json:"last_result,omitempty"`
	Error               *AgentError         `json:"error,omitempty"`
	Plan                []PlanStep          `json:"plan,omitempty"`
	PlanCursor          int                 `json:"plan_cursor"`
	ConversationHistory []ConversationEntry `json:"conversation_history"`
	CachedResults       []CachedResult      `json:"cached_results"`
	RetryTarget         *int                `json:"retry_target,omitempty"`
}

// NewSessionState creates a session with default parameters and empty
// histories.
func NewSessionState() *SessionState {
	return NewSessionStateWithID(uuid.NewString())
}

// NewSessionStateWithID is NewSessionState with a caller-chosen identifier,
// used when resuming an archived session.
func NewSessionStateWithID(id string) *SessionState {
	return &SessionState{
		SessionID:  id,
		StartedAt:  time.Now().UTC(),
		Parameters: pvcurve.DefaultParams(),
	}
}

// AppendMessage adds a transcript entry and returns it.
func (s *SessionState) AppendMessage(role, content string) Message {
	msg := Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
	s.Messages = append(s.Messages, msg)
	return msg
}

// InPlan reports whether a compound plan is attached to the session.
func (s *SessionState) InPlan() bool {
	return len(s.Plan) > 0
}

// PlanComplete reports whether every step of the attached plan succeeded.
func (s *SessionState) PlanComplete() bool {
	return s.InPlan() && s.PlanCursor == len(s.Plan)
}

// resetTurn clears the per-interaction fields before a new message.
func (s *SessionState) resetTurn() {
	s.Classification = nil
	s.Error = nil
	s.Plan = nil
	s.PlanCursor = 0
	s.RetryTarget = nil
}

func (s *SessionState) setClassification(a ActionType) {
	s.Classification = &a
}
