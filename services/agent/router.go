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
	"regexp"
	"strings"
)

// ContextVocabulary lists the terms that mark a message as referring to
// earlier interactions. Single words match on word boundaries; phrases
// match anywhere in the lowercased message.
var ContextVocabulary = []string{
	"previous", "before", "last", "earlier", "compare", "comparison",
	"history", "trend", "pattern", "evolution", "change over time",
	"what did i", "what parameters", "show me my", "my previous",
	"earlier simulation", "last result", "past", "earlier result",
}

var (
	contextWords   *regexp.Regexp
	contextPhrases []string
)

func init() {
	var words []string
	for _, term := range ContextVocabulary {
		if strings.Contains(term, " ") {
			contextPhrases = append(contextPhrases, term)
		} else {
			words = append(words, regexp.QuoteMeta(term))
		}
	}
	contextWords = regexp.MustCompile(`\b(?:` + strings.Join(words, "|") + `)\b`)
}

// NeedsContext reports whether message refers to earlier interactions.
// It depends only on the message text.
func NeedsContext(message string) bool {
	lower := strings.ToLower(message)
	if contextWords.MatchString(lower) {
		return true
	}
	for _, phrase := range contextPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// HandlerID names one handler implementation.
type HandlerID string

const (
	HandlerQuestionGeneral          HandlerID = "question_general"
	HandlerQuestionParameter        HandlerID = "question_parameter"
	HandlerParameter                HandlerID = "parameter"
	HandlerGeneration               HandlerID = "generation"
	HandlerAnalysis                 HandlerID = "analysis"
	HandlerHistoryQuestionGeneral   HandlerID = "history_question_general"
	HandlerHistoryQuestionParameter HandlerID = "history_question_parameter"
	HandlerHistoryParameter         HandlerID = "history_parameter"
	HandlerHistoryGeneration        HandlerID = "history_generation"
	HandlerHistoryAnalysis          HandlerID = "history_analysis"
)

// variantTable maps each action to its {standard, history-aware} handlers.
var variantTable = map[ActionType][2]HandlerID{
	ActionQuestionGeneral:   {HandlerQuestionGeneral, HandlerHistoryQuestionGeneral},
	ActionQuestionParameter: {HandlerQuestionParameter, HandlerHistoryQuestionParameter},
	ActionParameter:         {HandlerParameter, HandlerHistoryParameter},
	ActionGeneration:        {HandlerGeneration, HandlerHistoryGeneration},
	ActionAnalysis:          {HandlerAnalysis, HandlerHistoryAnalysis},
}

// SelectVariant returns the handler for action. ok is false only for an
// action outside the declared set.
func SelectVariant(action ActionType, needsContext bool) (id HandlerID, ok bool) {
	pair, ok := variantTable[action]
	if !ok {
		return "", false
	}
	if needsContext {
		return pair[1], true
	}
	return pair[0], true
}
