// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sessions holds live agent sessions for the HTTP service and
// serializes the turns of each one.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/pvagent/services/agent"
	"github.com/AleutianAI/pvagent/services/history"
)

// Archive is the durable side of the registry. *history.Store satisfies
// it.
type Archive interface {
	StartSession(ctx context.Context, id, name string) (history.SessionInfo, error)
	Resume(ctx context.Context, id string) (*agent.SessionState, error)
	Clear(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type entry struct {
	mu       sync.Mutex
	state    *agent.SessionState
	lastUsed time.Time
}

// Registry maps session IDs to live session state.
//
// # Description
//
// Each session has its own mutex; Do holds it for the whole callback, so
// at most one turn runs per session while different sessions proceed in
// parallel. Entries leave the map only under their own mutex, and Do
// re-checks membership after locking. Sessions missing from memory are resumed from the archive;
// concurrent requests for the same missing session share one load.
//
// # Thread Safety
//
// Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*entry
	archive  Archive
	loads    singleflight.Group
	onResize func(n int)
	now      func() time.Time
}

// NewRegistry creates a registry. archive may be nil for memory-only
// sessions. onResize, if non-nil, is called with the session count after
// every insert or removal.
func NewRegistry(archive Archive, onResize func(n int)) *Registry {
	return &Registry{
		entries:  make(map[string]*entry),
		archive:  archive,
		onResize: onResize,
		now:      time.Now,
	}
}

// Create starts a new session and returns its ID.
func (r *Registry) Create(ctx context.Context, name string) (string, error) {
	state := agent.NewSessionState()
	if r.archive != nil {
		info, err := r.archive.StartSession(ctx, state.SessionID, name)
		if err != nil {
			return "", fmt.Errorf("start session: %w", err)
		}
		state.StartedAt = info.CreatedAt
	}
	r.put(state.SessionID, &entry{state: state, lastUsed: r.now()})
	slog.Info("Session created", "session_id", state.SessionID)
	return state.SessionID, nil
}

// Do runs fn with exclusive access to the session's state.
//
// # Outputs
//
//   - error: history.ErrSessionNotFound if the session is unknown, a load
//     error, or fn's error.
func (r *Registry) Do(ctx context.Context, id string, fn func(*agent.SessionState) error) error {
	e, err := r.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()
	e.lastUsed = r.now()
	return fn(e.state)
}

// acquire returns the live entry for id with its mutex held. An entry
// evicted or deleted while the caller waited for its lock is stale; the
// lookup is retried so the caller never works on a detached state.
func (r *Registry) acquire(ctx context.Context, id string) (*entry, error) {
	for {
		e, err := r.lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		if r.current(id, e) {
			return e, nil
		}
		e.mu.Unlock()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func (r *Registry) current(id string, e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id] == e
}

func (r *Registry) lookup(ctx context.Context, id string) (*entry, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if ok {
		return e, nil
	}
	if r.archive == nil {
		return nil, fmt.Errorf("%w: %s", history.ErrSessionNotFound, id)
	}

	v, err, _ := r.loads.Do(id, func() (interface{}, error) {
		state, err := r.archive.Resume(ctx, id)
		if err != nil {
			return nil, err
		}
		slog.Info("Session resumed from archive", "session_id", id,
			"messages", len(state.Messages))
		return r.putIfAbsent(id, &entry{state: state, lastUsed: r.now()}), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

// Clear resets the session to a fresh state with the same ID and drops its
// archived contents.
func (r *Registry) Clear(ctx context.Context, id string) error {
	if r.archive != nil {
		if err := r.archive.Clear(ctx, id); err != nil {
			return err
		}
	}
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		if r.archive == nil {
			return fmt.Errorf("%w: %s", history.ErrSessionNotFound, id)
		}
		return nil
	}
	e.mu.Lock()
	started := e.state.StartedAt
	e.state = agent.NewSessionStateWithID(id)
	e.state.StartedAt = started
	e.mu.Unlock()
	return nil
}

// Delete removes the session from memory and from the archive. A turn in
// progress finishes first, so nothing it records outlives the delete.
func (r *Registry) Delete(ctx context.Context, id string) error {
	e, err := r.acquire(ctx, id)
	if err != nil {
		if r.archive == nil || errors.Is(err, history.ErrSessionNotFound) {
			return err
		}
		// An archived session that no longer loads can still be removed.
		slog.Warn("Deleting session that could not be resumed", "session_id", id, "error", err)
		return r.archive.Delete(ctx, id)
	}
	defer e.mu.Unlock()

	if r.archive != nil {
		if err := r.archive.Delete(ctx, id); err != nil && !errors.Is(err, history.ErrSessionNotFound) {
			return err
		}
	}
	r.mu.Lock()
	delete(r.entries, id)
	n := len(r.entries)
	r.mu.Unlock()
	r.resized(n)
	return nil
}

// EvictIdle drops sessions unused for longer than idle from memory. They
// stay in the archive and are resumed on next use. Sessions with a turn in
// progress are skipped; an entry is only removed while its lock is held.
// Without an archive nothing is evicted.
func (r *Registry) EvictIdle(idle time.Duration) int {
	if r.archive == nil || idle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	evicted := 0
	for id, e := range r.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.lastUsed.Before(cutoff) {
			delete(r.entries, id)
			evicted++
		}
		e.mu.Unlock()
	}
	n := len(r.entries)
	r.mu.Unlock()

	if evicted > 0 {
		r.resized(n)
	}
	return evicted
}

// Len returns the number of sessions held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) put(id string, e *entry) {
	r.mu.Lock()
	r.entries[id] = e
	n := len(r.entries)
	r.mu.Unlock()
	r.resized(n)
}

func (r *Registry) putIfAbsent(id string, e *entry) *entry {
	r.mu.Lock()
	if existing, ok := r.entries[id]; ok {
		r.mu.Unlock()
		return existing
	}
	r.entries[id] = e
	n := len(r.entries)
	r.mu.Unlock()
	r.resized(n)
	return e
}

func (r *Registry) resized(n int) {
	if r.onResize != nil {
		r.onResize(n)
	}
}
