// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Bounded caches
// =============================================================================

const (
	// MaxConversationHistory bounds SessionState.ConversationHistory.
	MaxConversationHistory = 10

	// MaxCachedResults bounds SessionState.CachedResults.
	MaxCachedResults = 5

	contextConversations      = 3
	contextResults            = 2
	contextParameterChanges   = 5
	contextResponseTruncation = 300
)

// RecordInteraction appends entry to the conversation history, evicting
// the oldest entries so at most MaxConversationHistory remain.
func (s *SessionState) RecordInteraction(entry ConversationEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.ConversationHistory = appendBounded(s.ConversationHistory, entry, MaxConversationHistory)
}

// RecordResult appends entry to the result cache, evicting the oldest
// entries so at most MaxCachedResults remain.
func (s *SessionState) RecordResult(entry CachedResult) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.CachedResults = appendBounded(s.CachedResults, entry, MaxCachedResults)
}

// appendBounded appends v and drops from the front until len <= limit.
// The result never aliases the evicted prefix.
func appendBounded[T any](list []T, v T, limit int) []T {
	list = append(list, v)
	if over := len(list) - limit; over > 0 {
		list = append(list[:0:0], list[over:]...)
	}
	return list
}

// =============================================================================
// History context
// =============================================================================

// HistoryContext is the text woven into history-aware prompts and
// responses. Empty sections are empty strings.
type HistoryContext struct {
	Conversations      string
	Simulations        string
	ParameterEvolution string
}

// BuildHistoryContext renders the bounded caches of s.
func BuildHistoryContext(s *SessionState) HistoryContext {
	return HistoryContext{
		Conversations:      conversationContext(s.ConversationHistory),
		Simulations:        simulationContext(s.CachedResults),
		ParameterEvolution: parameterEvolution(s.ConversationHistory),
	}
}

// Empty reports whether no section has content.
func (h HistoryContext) Empty() bool {
	return h.Conversations == "" && h.Simulations == "" && h.ParameterEvolution == ""
}

// String joins the non-empty sections with blank lines.
func (h HistoryContext) String() string {
	var parts []string
	for _, s := range []string{h.Conversations, h.Simulations, h.ParameterEvolution} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "No previous interactions in this session."
	}
	return strings.Join(parts, "\n\n")
}

func conversationContext(history []ConversationEntry) string {
	if len(history) == 0 {
		return ""
	}
	recent := tail(history, contextConversations)

	var b strings.Builder
	b.WriteString("Recent conversation context:")
	for i, c := range recent {
		fmt.Fprintf(&b, "\nInteraction %d:", i+1)
		fmt.Fprintf(&b, "\n  User: %s", c.UserInput)
		fmt.Fprintf(&b, "\n  Assistant: %s", truncateRunes(c.AssistantResponse, contextResponseTruncation))
	}
	return b.String()
}

func simulationContext(results []CachedResult) string {
	if len(results) == 0 {
		return ""
	}
	recent := tail(results, contextResults)

	var b strings.Builder
	b.WriteString("Previous simulation results for reference:")
	for i, r := range recent {
		p := r.ParametersUsed
		fmt.Fprintf(&b, "\nSimulation %d:", i+1)
		fmt.Fprintf(&b, "\n  Grid: %s", p.Grid)
		fmt.Fprintf(&b, "\n  Bus: %d", p.BusID)
		fmt.Fprintf(&b, "\n  Power Factor: %g", p.PowerFactor)
		fmt.Fprintf(&b, "\n  Load Type: %s", loadTypeLabel(p.Capacitive))
		fmt.Fprintf(&b, "\n  Curve Type: %s", curveTypeLabel(p.Continuation))
		if res := r.Result; res != nil {
			fmt.Fprintf(&b, "\n  Nose point: %.1f MW at %.3f pu", res.NosePoint.LoadMW, res.NosePoint.VoltagePU)
			fmt.Fprintf(&b, "\n  Load margin: %.1f MW", res.LoadMarginMW)
			if res.SavePath != "" {
				fmt.Fprintf(&b, "\n  Plot saved to: %s", res.SavePath)
			}
		}
	}
	return b.String()
}

// parameterEvolution lists the parameter sets of interactions that changed
// them, oldest first, keeping the most recent few.
func parameterEvolution(history []ConversationEntry) string {
	var lines []string
	for i, c := range history {
		if i > 0 && history[i-1].ParametersUsed == c.ParametersUsed {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s: %s", c.Timestamp.Format(time.RFC3339), FormatParams(c.ParametersUsed)))
	}
	if len(lines) == 0 {
		return ""
	}
	return "Parameter evolution over time:\n" + strings.Join(tail(lines, contextParameterChanges), "\n")
}

func tail[T any](list []T, n int) []T {
	if len(list) <= n {
		return list
	}
	return list[len(list)-n:]
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func loadTypeLabel(capacitive bool) string {
	if capacitive {
		return "Capacitive"
	}
	return "Inductive"
}

func curveTypeLabel(continuation bool) string {
	if continuation {
		return "Continuous"
	}
	return "Upper branch only"
}
