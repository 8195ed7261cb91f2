// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/pvagent/services/agent"
)

// Recorder mirrors orchestrator activity into a Store and, optionally, a
// ResultSink.
type Recorder struct {
	store *Store
	sink  ResultSink
}

// NewRecorder creates a recorder. sink may be nil.
func NewRecorder(store *Store, sink ResultSink) *Recorder {
	return &Recorder{store: store, sink: sink}
}

// RecordMessage implements agent.HistoryRecorder.
func (r *Recorder) RecordMessage(ctx context.Context, sessionID string, msg agent.Message) error {
	return r.store.AddMessage(ctx, sessionID, msg)
}

// RecordInteraction implements agent.HistoryRecorder.
func (r *Recorder) RecordInteraction(ctx context.Context, sessionID string, entry agent.ConversationEntry) error {
	return r.store.AddConversation(ctx, sessionID, entry)
}

// RecordResult implements agent.HistoryRecorder. The sink is written even
// when the archive write fails.
func (r *Recorder) RecordResult(ctx context.Context, sessionID string, entry agent.CachedResult) error {
	err := r.store.AddCachedResult(ctx, sessionID, entry)
	if r.sink != nil {
		if serr := r.sink.WriteResult(ctx, sessionID, entry); serr != nil {
			err = errors.Join(err, fmt.Errorf("result sink: %w", serr))
		}
	}
	return err
}

var _ agent.HistoryRecorder = (*Recorder)(nil)
