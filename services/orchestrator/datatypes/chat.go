// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the request and response bodies of the
// orchestrator HTTP API.
package datatypes

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AleutianAI/pvagent/services/agent"
	"github.com/AleutianAI/pvagent/services/pvcurve"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageContentBytes bounds a single chat message.
	MaxMessageContentBytes = 32 * 1024

	// MaxDocumentBytes bounds a single ingested document.
	MaxDocumentBytes = 8 * 1024 * 1024
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

var apiValidate *validator.Validate

func init() {
	apiValidate = validator.New()
	apiValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = apiValidate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = apiValidate.RegisterValidation("docbytes", validateDocBytes)
}

// validateMaxBytes checks byte length, not rune count.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

func validateDocBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxDocumentBytes
}

// ValidationDetails flattens a validation error into "field: rule" strings
// for the error body.
func ValidationDetails(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			out = append(out, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			out = append(out, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return out
}

// =============================================================================
// Chat
// =============================================================================

// ChatRequest is the body of POST /v1/chat and of each websocket frame.
//
// # Fields
//
//   - RequestID: Optional. Generated when empty. Must be a UUID v4 if set.
//   - SessionID: Optional. A new session is created when empty.
//   - Message: Required. The user's message, at most 32KB.
type ChatRequest struct {
	RequestID string `json:"request_id,omitempty" validate:"omitempty,uuid4"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128"`
	Message   string `json:"message" validate:"required,maxbytes"`
}

// Validate checks the request against its tags.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		r.Message = ""
	}
	return apiValidate.Struct(r)
}

// EnsureDefaults fills in the request identifier.
func (r *ChatRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
}

// ChatResponse is the reply to one chat turn.
type ChatResponse struct {
	ResponseID       string              `json:"response_id"`
	RequestID        string              `json:"request_id"`
	Timestamp        int64               `json:"timestamp"`
	SessionID        string              `json:"session_id"`
	Response         string              `json:"response"`
	Action           agent.ActionType    `json:"action,omitempty"`
	IsCompound       bool                `json:"is_compound"`
	Steps            []agent.StepOutcome `json:"steps,omitempty"`
	Error            *agent.AgentError   `json:"error,omitempty"`
	Fatal            bool                `json:"fatal,omitempty"`
	Parameters       pvcurve.Params      `json:"parameters"`
	HasResult        bool                `json:"has_result"`
	ProcessingTimeMs int64               `json:"processing_time_ms"`
}

// NewChatResponse assembles the reply from the orchestrator response and
// the session state after the turn.
func NewChatResponse(requestID string, resp agent.Response, state *agent.SessionState, elapsed time.Duration) *ChatResponse {
	return &ChatResponse{
		ResponseID:       uuid.NewString(),
		RequestID:        requestID,
		Timestamp:        time.Now().UnixMilli(),
		SessionID:        resp.SessionID,
		Response:         resp.Text,
		Action:           resp.Action,
		IsCompound:       resp.IsCompound,
		Steps:            resp.Steps,
		Error:            resp.Error,
		Fatal:            resp.Fatal,
		Parameters:       state.Parameters,
		HasResult:        state.LastResult != nil,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
}

// =============================================================================
// Sessions and documents
// =============================================================================

// CreateSessionRequest is the optional body of POST /v1/sessions.
type CreateSessionRequest struct {
	Name string `json:"name,omitempty" validate:"omitempty,max=128"`
}

// Validate checks the request against its tags.
func (r *CreateSessionRequest) Validate() error {
	return apiValidate.Struct(r)
}

// IngestDocumentRequest is the body of POST /v1/documents.
type IngestDocumentRequest struct {
	Source  string `json:"source" validate:"required,max=512"`
	Content string `json:"content" validate:"required,docbytes"`
}

// Validate checks the request against its tags.
func (r *IngestDocumentRequest) Validate() error {
	return apiValidate.Struct(r)
}
