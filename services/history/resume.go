// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import (
	"context"

	"github.com/AleutianAI/pvagent/services/agent"
)

// Resume rebuilds a session state from the archive.
//
// # Description
//
// The transcript is restored in full. The conversation and result caches
// keep only their newest MaxConversationHistory and MaxCachedResults
// entries. Parameters are those of the newest interaction whose
// parameters still validate, else the defaults. LastResult is the newest
// cached result.
func (s *Store) Resume(ctx context.Context, id string) (*agent.SessionState, error) {
	sess, err := s.Session(ctx, id)
	if err != nil {
		return nil, err
	}
	return stateFromSession(sess), nil
}

func stateFromSession(sess *Session) *agent.SessionState {
	state := agent.NewSessionStateWithID(sess.SessionID)
	state.StartedAt = sess.CreatedAt
	state.Messages = append([]agent.Message(nil), sess.Messages...)

	for _, entry := range sess.ConversationHistory {
		state.RecordInteraction(entry)
	}
	for _, entry := range sess.CachedResults {
		state.RecordResult(entry)
	}

	for i := len(sess.ConversationHistory) - 1; i >= 0; i-- {
		p := sess.ConversationHistory[i].ParametersUsed
		if p.Validate() == nil {
			state.Parameters = p
			break
		}
	}
	if n := len(state.CachedResults); n > 0 {
		state.LastResult = state.CachedResults[n-1].Result
	}
	return state
}
