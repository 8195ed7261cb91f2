// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pvagent/services/agent"
	"github.com/AleutianAI/pvagent/services/history"
)

// turnProcessor runs one user message against a session.
type turnProcessor interface {
	Process(ctx context.Context, s *agent.SessionState, message string) (agent.Response, error)
}

// sessionArchive is the part of the history store the REPL needs.
type sessionArchive interface {
	StartSession(ctx context.Context, id, name string) (history.SessionInfo, error)
	Resume(ctx context.Context, id string) (*agent.SessionState, error)
	LatestSession(ctx context.Context) (*history.Session, error)
}

// resumeLatest is the --resume value selecting the newest archived session.
const resumeLatest = "latest"

func runChat(cmd *cobra.Command, args []string) error {
	resumeID, _ := cmd.Flags().GetString("resume")
	if cmd.Flags().Changed("history-aware") {
		cfg.Agent.HistoryAwareDefault, _ = cmd.Flags().GetBool("history-aware")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	stack, err := buildAgent(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer stack.Close()

	repl := newChatREPL(stack.agent, stack.archive.store, os.Stdin, newPrinter(os.Stdout))
	if err := repl.Open(ctx, resumeID); err != nil {
		return err
	}
	return repl.Run(ctx)
}

// chatREPL is the interactive loop behind `pvagent chat`.
type chatREPL struct {
	proc    turnProcessor
	archive sessionArchive
	in      *bufio.Scanner
	p       *printer
	state   *agent.SessionState
}

func newChatREPL(proc turnProcessor, archive sessionArchive, in io.Reader, p *printer) *chatREPL {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &chatREPL{proc: proc, archive: archive, in: scanner, p: p}
}

// Open starts a fresh session, or resumes resumeID ("latest" for the
// newest archived session).
func (r *chatREPL) Open(ctx context.Context, resumeID string) error {
	switch resumeID {
	case "":
		return r.startNew(ctx)
	case resumeLatest:
		latest, err := r.archive.LatestSession(ctx)
		if err != nil {
			return fmt.Errorf("no session to resume: %w", err)
		}
		resumeID = latest.SessionID
	}

	state, err := r.archive.Resume(ctx, resumeID)
	if err != nil {
		return fmt.Errorf("resume session %s: %w", resumeID, err)
	}
	r.state = state
	r.p.Success(fmt.Sprintf("Resumed session %s (%d interactions, %d simulations)",
		state.SessionID, len(state.ConversationHistory), len(state.CachedResults)))
	return nil
}

func (r *chatREPL) startNew(ctx context.Context) error {
	state := agent.NewSessionState()
	info, err := r.archive.StartSession(ctx, state.SessionID, "")
	if err != nil {
		return err
	}
	state.StartedAt = info.CreatedAt
	r.state = state
	r.p.Success(fmt.Sprintf("Started session %s", state.SessionID))
	return nil
}

// Run reads messages until EOF, /quit, or cancellation.
func (r *chatREPL) Run(ctx context.Context) error {
	r.p.Title("PV-curve assistant")
	r.p.Muted("Ask about voltage stability, change parameters, or run a simulation. /help lists commands.")

	for {
		fmt.Fprint(r.p.out, r.p.render(styles.Label, "you> "))
		if !r.in.Scan() {
			fmt.Fprintln(r.p.out)
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				r.p.Error(err.Error())
			}
			if quit {
				return nil
			}
			continue
		}
		if err := r.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.p.Error(err.Error())
		}
	}
}

func (r *chatREPL) turn(ctx context.Context, message string) error {
	resp, err := r.proc.Process(ctx, r.state, message)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.p.out, "%s %s\n", r.p.render(styles.Assistant, "agent>"), resp.Text)
	if resp.Fatal && resp.Error != nil {
		r.p.Warn("The request could not be completed. Try rephrasing it or check /params.")
	}
	return nil
}

func (r *chatREPL) command(ctx context.Context, line string) (quit bool, err error) {
	switch strings.ToLower(strings.Fields(line)[0]) {
	case "/quit", "/exit":
		r.p.Muted("Session saved as " + r.state.SessionID)
		return true, nil
	case "/params":
		r.printParams()
	case "/history":
		r.printHistory()
	case "/new":
		return false, r.startNew(ctx)
	case "/help":
		r.p.Println("/params   show the current simulation parameters")
		r.p.Println("/history  show recent interactions and simulations")
		r.p.Println("/new      start a new session")
		r.p.Println("/quit     leave the chat")
	default:
		return false, errors.New("unknown command " + line + ", try /help")
	}
	return false, nil
}

func (r *chatREPL) printParams() {
	p := r.state.Parameters
	r.p.Title("Parameters")
	r.p.Field("grid", p.Grid)
	r.p.Field("bus_id", p.BusID)
	r.p.Field("step_size", p.StepSize)
	r.p.Field("max_scale", p.MaxScale)
	r.p.Field("power_factor", p.PowerFactor)
	r.p.Field("voltage_limit", p.VoltageLimit)
	r.p.Field("capacitive", p.Capacitive)
	r.p.Field("continuation", p.Continuation)
}

func (r *chatREPL) printHistory() {
	if len(r.state.ConversationHistory) == 0 {
		r.p.Muted("No interactions yet.")
		return
	}
	r.p.Title("Recent interactions")
	for i, entry := range r.state.ConversationHistory {
		r.p.Println(fmt.Sprintf("%d. [%s] %s", i+1, entry.Timestamp.Local().Format("15:04:05"), truncate(entry.UserInput, 70)))
	}
	if n := len(r.state.CachedResults); n > 0 {
		r.p.Title("Cached simulations")
		for i, c := range r.state.CachedResults {
			if c.Result == nil {
				continue
			}
			r.p.Println(fmt.Sprintf("%d. %s bus %d, nose %.1f MW at %.3f pu",
				i+1, c.ParametersUsed.Grid, c.ParametersUsed.BusID, c.Result.NosePoint.LoadMW, c.Result.NosePoint.VoltagePU))
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
