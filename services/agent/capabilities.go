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
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/pvagent/services/llm"
	"github.com/AleutianAI/pvagent/services/pvcurve"
)

// =============================================================================
// Capability interfaces
// =============================================================================

// Language generates text and schema-constrained objects.
//
// GenerateTyped must wrap llm.ErrMalformedOutput when the model answered
// with something that does not fit schema, and return any other error when
// the model could not be reached.
type Language interface {
	Generate(ctx context.Context, messages []llm.Message) (string, error)
	GenerateTyped(ctx context.Context, messages []llm.Message, schema llm.Schema, out any) error
}

// Retriever returns a small ranked list of passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]string, error)
}

// Simulator runs a PV-curve simulation.
type Simulator interface {
	Run(ctx context.Context, params pvcurve.Params) (*pvcurve.Result, error)
}

// HistoryRecorder mirrors session activity to durable storage. Every
// method is best effort; the orchestrator logs and ignores its errors.
type HistoryRecorder interface {
	RecordMessage(ctx context.Context, sessionID string, msg Message) error
	RecordInteraction(ctx context.Context, sessionID string, entry ConversationEntry) error
	RecordResult(ctx context.Context, sessionID string, entry CachedResult) error
}

// Capabilities is the bundle injected into the orchestrator. Language,
// Retriever, and Simulator are required; Recorder is optional.
type Capabilities struct {
	Language  Language
	Retriever Retriever
	Simulator Simulator
	Recorder  HistoryRecorder
}

func (c Capabilities) validate() error {
	var errs []error
	if c.Language == nil {
		errs = append(errs, errors.New("language capability is required"))
	}
	if c.Retriever == nil {
		errs = append(errs, errors.New("retrieval capability is required"))
	}
	if c.Simulator == nil {
		errs = append(errs, errors.New("simulation capability is required"))
	}
	return errors.Join(errs...)
}

// =============================================================================
// Observation
// =============================================================================

// Observer receives orchestration events, typically to export metrics.
// Implementations must be safe for concurrent use.
type Observer interface {
	ObserveInteraction(action string, outcome string, duration time.Duration)
	ObserveError(kind ErrorKind)
	ObserveRetry(kind ErrorKind)
	ObservePlanSteps(steps int)
	ObserveCapability(capability string, duration time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveInteraction(string, string, time.Duration) {}
func (nopObserver) ObserveError(ErrorKind)                           {}
func (nopObserver) ObserveRetry(ErrorKind)                           {}
func (nopObserver) ObservePlanSteps(int)                             {}
func (nopObserver) ObserveCapability(string, time.Duration, error)   {}

// observedLanguage, observedRetriever, and observedSimulator time every
// capability call.
type observedLanguage struct {
	next Language
	obs  Observer
}

func (l observedLanguage) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	start := time.Now()
	text, err := l.next.Generate(ctx, messages)
	l.obs.ObserveCapability("language", time.Since(start), err)
	return text, err
}

func (l observedLanguage) GenerateTyped(ctx context.Context, messages []llm.Message, schema llm.Schema, out any) error {
	start := time.Now()
	err := l.next.GenerateTyped(ctx, messages, schema, out)
	l.obs.ObserveCapability("language_typed", time.Since(start), err)
	return err
}

type observedRetriever struct {
	next Retriever
	obs  Observer
}

func (r observedRetriever) Retrieve(ctx context.Context, query string) ([]string, error) {
	start := time.Now()
	passages, err := r.next.Retrieve(ctx, query)
	r.obs.ObserveCapability("retrieval", time.Since(start), err)
	return passages, err
}

type observedSimulator struct {
	next Simulator
	obs  Observer
}

func (s observedSimulator) Run(ctx context.Context, params pvcurve.Params) (*pvcurve.Result, error) {
	start := time.Now()
	res, err := s.next.Run(ctx, params)
	s.obs.ObserveCapability("simulation", time.Since(start), err)
	return res, err
}

var (
	_ Language  = (*llm.Language)(nil)
	_ Simulator = (*pvcurve.LocalSimulator)(nil)
	_ Simulator = (*pvcurve.RemoteSimulator)(nil)
)
