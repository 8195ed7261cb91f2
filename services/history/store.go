// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history archives chat sessions in BadgerDB.
//
// The archive keeps every message, interaction, and simulation result of
// a session. The in-memory caps of agent.SessionState do not apply here;
// they are re-applied when a session is resumed.
//
// Key layout:
//
//	session/{id}           SessionInfo
//	msg/{id}/{seq}         agent.Message
//	conv/{id}/{seq}        agent.ConversationEntry
//	sim/{id}/{seq}         agent.CachedResult
//
// seq is a zero-padded counter so prefix scans return insertion order.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/pvagent/services/agent"
	storebadger "github.com/AleutianAI/pvagent/services/storage/badger"
)

// ErrSessionNotFound is returned for operations on an unknown session.
var ErrSessionNotFound = errors.New("session not found")

// SessionInfo is the per-session metadata record.
type SessionInfo struct {
	SessionID          string    `json:"session_id"`
	SessionName        string    `json:"session_name"`
	CreatedAt          time.Time `json:"created_at"`
	LastUpdated        time.Time `json:"last_updated"`
	TotalMessages      int       `json:"total_messages"`
	TotalConversations int       `json:"total_conversations"`
	TotalCachedResults int       `json:"total_cached_results"`
}

// Session is a complete archived session.
type Session struct {
	SessionInfo
	Messages            []agent.Message           `json:"messages"`
	ConversationHistory []agent.ConversationEntry `json:"conversation_history"`
	CachedResults       []agent.CachedResult      `json:"cached_results"`
}

// Statistics aggregates the whole archive.
type Statistics struct {
	TotalSessions      int        `json:"total_sessions"`
	TotalMessages      int        `json:"total_messages"`
	TotalConversations int        `json:"total_conversations"`
	TotalCachedResults int        `json:"total_cached_results"`
	OldestSession      *time.Time `json:"oldest_session,omitempty"`
	NewestSession      *time.Time `json:"newest_session,omitempty"`
}

// Store is the BadgerDB-backed session archive.
//
// # Thread Safety
//
// Safe for concurrent use. Writes are serialized so per-session counters
// never conflict.
type Store struct {
	db  *storebadger.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewStore wraps an opened database.
func NewStore(db *storebadger.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const (
	sessionPrefix = "session/"
	messagePrefix = "msg/"
	convPrefix    = "conv/"
	simPrefix     = "sim/"
)

func sessionKey(id string) []byte { return []byte(sessionPrefix + id) }

func itemPrefix(prefix, id string) []byte { return []byte(prefix + id + "/") }

func itemKey(prefix, id string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s/%010d", prefix, id, seq))
}

// =============================================================================
// Writes
// =============================================================================

// StartSession creates the session if it does not exist and returns its
// metadata. An empty name becomes "Session_YYYYMMDD_HHMMSS".
func (s *Store) StartSession(ctx context.Context, id, name string) (SessionInfo, error) {
	if strings.TrimSpace(id) == "" {
		return SessionInfo{}, errors.New("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var info SessionInfo
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var err error
		info, err = s.ensureSession(txn, id, name)
		return err
	})
	if err != nil {
		return SessionInfo{}, fmt.Errorf("start session %s: %w", id, err)
	}
	return info, nil
}

func (s *Store) ensureSession(txn *badger.Txn, id, name string) (SessionInfo, error) {
	var info SessionInfo
	err := storebadger.GetJSON(txn, sessionKey(id), &info)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, storebadger.ErrNotFound) {
		return SessionInfo{}, err
	}
	now := s.now()
	if name == "" {
		name = "Session_" + now.Format("20060102_150405")
	}
	info = SessionInfo{SessionID: id, SessionName: name, CreatedAt: now, LastUpdated: now}
	return info, storebadger.PutJSON(txn, sessionKey(id), info)
}

// AddMessage appends a transcript message, creating the session if needed.
func (s *Store) AddMessage(ctx context.Context, id string, msg agent.Message) error {
	return s.appendItem(ctx, id, messagePrefix, msg, func(info *SessionInfo) int {
		info.TotalMessages++
		return info.TotalMessages - 1
	})
}

// AddConversation appends a completed interaction.
func (s *Store) AddConversation(ctx context.Context, id string, entry agent.ConversationEntry) error {
	return s.appendItem(ctx, id, convPrefix, entry, func(info *SessionInfo) int {
		info.TotalConversations++
		return info.TotalConversations - 1
	})
}

// AddCachedResult appends a simulation result.
func (s *Store) AddCachedResult(ctx context.Context, id string, entry agent.CachedResult) error {
	return s.appendItem(ctx, id, simPrefix, entry, func(info *SessionInfo) int {
		info.TotalCachedResults++
		return info.TotalCachedResults - 1
	})
}

// appendItem stores v under the next sequence number. next bumps the
// matching counter and returns the sequence to use.
func (s *Store) appendItem(ctx context.Context, id, prefix string, v any, next func(*SessionInfo) int) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		info, err := s.ensureSession(txn, id, "")
		if err != nil {
			return err
		}
		seq := next(&info)
		info.LastUpdated = s.now()
		if err := storebadger.PutJSON(txn, itemKey(prefix, id, seq), v); err != nil {
			return err
		}
		return storebadger.PutJSON(txn, sessionKey(id), info)
	})
	if err != nil {
		return fmt.Errorf("archive %s for session %s: %w", strings.TrimSuffix(prefix, "/"), id, err)
	}
	return nil
}

// Clear drops the session's messages, interactions, and results but keeps
// the session itself.
func (s *Store) Clear(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var info SessionInfo
		if err := storebadger.GetJSON(txn, sessionKey(id), &info); err != nil {
			return notFound(id, err)
		}
		if err := deleteItems(txn, id); err != nil {
			return err
		}
		info.TotalMessages, info.TotalConversations, info.TotalCachedResults = 0, 0, 0
		info.LastUpdated = s.now()
		return storebadger.PutJSON(txn, sessionKey(id), info)
	})
}

// Delete removes the session and everything archived under it.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var info SessionInfo
		if err := storebadger.GetJSON(txn, sessionKey(id), &info); err != nil {
			return notFound(id, err)
		}
		if err := deleteItems(txn, id); err != nil {
			return err
		}
		return txn.Delete(sessionKey(id))
	})
}

func deleteItems(txn *badger.Txn, id string) error {
	for _, prefix := range []string{messagePrefix, convPrefix, simPrefix} {
		if _, err := storebadger.DeletePrefix(txn, itemPrefix(prefix, id)); err != nil {
			return err
		}
	}
	return nil
}

func notFound(id string, err error) error {
	if errors.Is(err, storebadger.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return err
}

// =============================================================================
// Reads
// =============================================================================

// Session loads the full archived session.
func (s *Store) Session(ctx context.Context, id string) (*Session, error) {
	var out Session
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		if err := storebadger.GetJSON(txn, sessionKey(id), &out.SessionInfo); err != nil {
			return notFound(id, err)
		}
		var err error
		if out.Messages, err = scanItems[agent.Message](txn, messagePrefix, id); err != nil {
			return err
		}
		if out.ConversationHistory, err = scanItems[agent.ConversationEntry](txn, convPrefix, id); err != nil {
			return err
		}
		out.CachedResults, err = scanItems[agent.CachedResult](txn, simPrefix, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func scanItems[T any](txn *badger.Txn, prefix, id string) ([]T, error) {
	out := []T{}
	err := storebadger.ScanPrefix(txn, itemPrefix(prefix, id), func(key, val []byte) error {
		var v T
		if err := json.Unmarshal(val, &v); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// Sessions lists session metadata, newest first.
func (s *Store) Sessions(ctx context.Context) ([]SessionInfo, error) {
	var out []SessionInfo
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return storebadger.ScanPrefix(txn, []byte(sessionPrefix), func(key, val []byte) error {
			var info SessionInfo
			if err := json.Unmarshal(val, &info); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			out = append(out, info)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// LatestSession returns the most recently updated session.
func (s *Store) LatestSession(ctx context.Context) (*Session, error) {
	infos, err := s.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, ErrSessionNotFound
	}
	latest := infos[0]
	for _, info := range infos[1:] {
		if info.LastUpdated.After(latest.LastUpdated) {
			latest = info
		}
	}
	return s.Session(ctx, latest.SessionID)
}

// Statistics aggregates counts over every session.
func (s *Store) Statistics(ctx context.Context) (Statistics, error) {
	infos, err := s.Sessions(ctx)
	if err != nil {
		return Statistics{}, err
	}
	stats := Statistics{TotalSessions: len(infos)}
	for i := range infos {
		info := infos[i]
		stats.TotalMessages += info.TotalMessages
		stats.TotalConversations += info.TotalConversations
		stats.TotalCachedResults += info.TotalCachedResults
		if stats.OldestSession == nil || info.CreatedAt.Before(*stats.OldestSession) {
			stats.OldestSession = &infos[i].CreatedAt
		}
		if stats.NewestSession == nil || info.CreatedAt.After(*stats.NewestSession) {
			stats.NewestSession = &infos[i].CreatedAt
		}
	}
	return stats, nil
}

// Export writes the session as indented JSON. An empty path becomes
// "{name}_{id}.json" in the working directory. It returns the path
// written.
func (s *Store) Export(ctx context.Context, id, path string) (string, error) {
	sess, err := s.Session(ctx, id)
	if err != nil {
		return "", err
	}
	if path == "" {
		path = fmt.Sprintf("%s_%s.json", safeName(sess.SessionName), id)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode session %s: %w", id, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export %s: %w", path, err)
	}
	return path, nil
}

func safeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(b.String(), " ")
}
