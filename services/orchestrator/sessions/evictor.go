// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// EvictorConfig configures the idle-session evictor.
//
// # Fields
//
//   - Interval: How often to scan. Default: 5 minutes.
//   - IdleTTL: How long a session may sit unused in memory. Default: 30
//     minutes.
type EvictorConfig struct {
	Interval time.Duration
	IdleTTL  time.Duration
}

// DefaultEvictorConfig returns the default evictor configuration.
func DefaultEvictorConfig() EvictorConfig {
	return EvictorConfig{
		Interval: 5 * time.Minute,
		IdleTTL:  30 * time.Minute,
	}
}

// Evictor periodically drops idle sessions from a Registry.
//
// # Description
//
// Runs a ticker goroutine that calls Registry.EvictIdle. Stop or
// cancelling the Start context ends the loop.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Evictor struct {
	registry *Registry
	config   EvictorConfig
	done     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewEvictor creates an evictor for registry. Zero config fields take
// their defaults.
func NewEvictor(registry *Registry, config EvictorConfig) *Evictor {
	def := DefaultEvictorConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = def.IdleTTL
	}
	return &Evictor{registry: registry, config: config}
}

// Start begins the background loop.
//
// # Outputs
//
//   - error: Non-nil if the evictor is already running.
func (e *Evictor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("evictor is already running")
	}
	e.running = true
	e.done = make(chan struct{})
	e.stopped = make(chan struct{})

	slog.Info("Idle session evictor starting",
		"interval", e.config.Interval.String(),
		"idle_ttl", e.config.IdleTTL.String(),
	)
	go e.runLoop(ctx, e.done, e.stopped)
	return nil
}

// Stop ends the loop and waits for it to exit. Safe to call more than once.
func (e *Evictor) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.done)
	stopped := e.stopped
	e.mu.Unlock()
	<-stopped
}

// RunNow performs one eviction pass and returns the number of sessions
// dropped.
func (e *Evictor) RunNow() int {
	n := e.registry.EvictIdle(e.config.IdleTTL)
	if n > 0 {
		slog.Info("Evicted idle sessions", "evicted", n, "remaining", e.registry.Len())
	}
	return n
}

func (e *Evictor) runLoop(ctx context.Context, done, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Idle session evictor stopped (context cancelled)")
			return
		case <-done:
			slog.Info("Idle session evictor stopped (stop requested)")
			return
		case <-ticker.C:
			e.RunNow()
		}
	}
}
