// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pvcurve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RemoteSimulator calls an external power-flow service that runs the full
// AC sweep (for example a pandapower worker).
//
// Wire format: POST {BaseURL}/v1/pv-curve with Params as JSON. 200 returns
// a Result. 422 with {"error": "...", "converged": false} means the sweep
// did not converge.
type RemoteSimulator struct {
	httpClient *http.Client
	baseURL    string
}

type remoteError struct {
	Error     string `json:"error"`
	Converged *bool  `json:"converged,omitempty"`
}

// NewRemoteSimulator creates a client for the service at baseURL.
func NewRemoteSimulator(baseURL string, timeout time.Duration) *RemoteSimulator {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &RemoteSimulator{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Run implements Simulator.
func (s *RemoteSimulator) Run(ctx context.Context, p Params) (*Result, error) {
	ctx, span := otel.Tracer("pvagent.pvcurve").Start(ctx, "pvcurve.RemoteSimulator.Run")
	defer span.End()
	span.SetAttributes(attribute.String("pvcurve.grid", p.Grid), attribute.Int("pvcurve.bus", p.BusID))

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal simulation request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/pv-curve", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create simulation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("simulation service call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read simulation response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnprocessableEntity:
		var re remoteError
		_ = json.Unmarshal(respBody, &re)
		span.SetStatus(codes.Error, "not converged")
		if re.Converged != nil && !*re.Converged {
			return nil, fmt.Errorf("%w: %s", ErrNotConverged, re.Error)
		}
		return nil, fmt.Errorf("simulation rejected: %s", re.Error)
	default:
		slog.Error("Simulation service returned an error", "status_code", resp.StatusCode, "response", string(respBody))
		span.SetStatus(codes.Error, resp.Status)
		return nil, fmt.Errorf("simulation service failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("parse simulation response: %w", err)
	}
	if result.ConvergedSteps == 0 {
		return nil, fmt.Errorf("%w: service returned an empty curve", ErrNotConverged)
	}
	return &result, nil
}

var _ Simulator = (*RemoteSimulator)(nil)
