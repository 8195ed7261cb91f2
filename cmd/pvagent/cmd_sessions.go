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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/pvagent/services/history"
)

// sessionsStore is the archive surface behind `pvagent sessions`.
type sessionsStore interface {
	Sessions(ctx context.Context) ([]history.SessionInfo, error)
	Session(ctx context.Context, id string) (*history.Session, error)
	Statistics(ctx context.Context) (history.Statistics, error)
	Export(ctx context.Context, id, path string) (string, error)
	Clear(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// confirmFunc asks the user to confirm a destructive action.
type confirmFunc func(title string) (bool, error)

func confirmWithHuh(title string) (bool, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return false, errors.New("refusing to delete without a terminal, pass --yes")
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Delete").
		Negative("Cancel").
		Value(&ok).
		Run()
	return ok, err
}

// sessionsCommand runs one sessions subcommand against the archive.
type sessionsCommand struct {
	store   sessionsStore
	out     io.Writer
	json    bool
	confirm confirmFunc
}

// withSessions opens the archive for the duration of fn.
func withSessions(cmd *cobra.Command, fn func(sc *sessionsCommand) error) error {
	arch, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer arch.Close()

	jsonMode, _ := cmd.Flags().GetBool("json")
	return fn(&sessionsCommand{
		store:   arch.store,
		out:     cmd.OutOrStdout(),
		json:    jsonMode,
		confirm: confirmWithHuh,
	})
}

func (sc *sessionsCommand) emit(command string, started time.Time, data any, err error) error {
	if sc.json {
		if encErr := OutputJSON(sc.out, newCommandResult(command, started, data, err)); encErr != nil {
			return encErr
		}
	}
	return err
}

func (sc *sessionsCommand) List(ctx context.Context) error {
	started := time.Now()
	infos, err := sc.store.Sessions(ctx)
	if sc.json || err != nil {
		return sc.emit("sessions list", started, infos, err)
	}

	p := newPrinter(sc.out)
	if len(infos) == 0 {
		p.Muted("No sessions yet. Start one with `pvagent chat`.")
		return nil
	}
	p.Title(fmt.Sprintf("%d sessions", len(infos)))
	for _, info := range infos {
		p.Println(fmt.Sprintf("%s  %-28s %s  %3d msgs  %2d sims",
			info.SessionID,
			truncate(info.SessionName, 28),
			info.LastUpdated.Local().Format("2006-01-02 15:04"),
			info.TotalMessages,
			info.TotalCachedResults))
	}
	return nil
}

func (sc *sessionsCommand) Show(ctx context.Context, id string) error {
	started := time.Now()
	sess, err := sc.store.Session(ctx, id)
	if sc.json || err != nil {
		return sc.emit("sessions show", started, sess, err)
	}

	p := newPrinter(sc.out)
	p.Title(sess.SessionName)
	p.Field("session_id", sess.SessionID)
	p.Field("created", sess.CreatedAt.Local().Format(time.RFC1123))
	p.Field("last_updated", sess.LastUpdated.Local().Format(time.RFC1123))
	p.Field("messages", sess.TotalMessages)
	p.Field("interactions", sess.TotalConversations)
	p.Field("simulations", sess.TotalCachedResults)
	for _, msg := range sess.Messages {
		p.Println(fmt.Sprintf("%s %s", p.render(styles.Label, msg.Role+":"), msg.Content))
	}
	return nil
}

func (sc *sessionsCommand) Export(ctx context.Context, id, path string) error {
	started := time.Now()
	written, err := sc.store.Export(ctx, id, path)
	if sc.json || err != nil {
		return sc.emit("sessions export", started, map[string]string{"path": written}, err)
	}
	newPrinter(sc.out).Success("Exported to " + written)
	return nil
}

func (sc *sessionsCommand) Clear(ctx context.Context, id string) error {
	started := time.Now()
	err := sc.store.Clear(ctx, id)
	if sc.json || err != nil {
		return sc.emit("sessions clear", started, map[string]string{"session_id": id}, err)
	}
	newPrinter(sc.out).Success("Cleared session " + id)
	return nil
}

func (sc *sessionsCommand) Delete(ctx context.Context, id string, skipConfirm bool) error {
	started := time.Now()
	if !skipConfirm {
		ok, err := sc.confirm(fmt.Sprintf("Delete session %s and its whole history?", id))
		if err != nil {
			return err
		}
		if !ok {
			newPrinter(sc.out).Muted("Cancelled.")
			return nil
		}
	}
	err := sc.store.Delete(ctx, id)
	if sc.json || err != nil {
		return sc.emit("sessions delete", started, map[string]string{"session_id": id}, err)
	}
	newPrinter(sc.out).Success("Deleted session " + id)
	return nil
}

func (sc *sessionsCommand) Stats(ctx context.Context) error {
	started := time.Now()
	stats, err := sc.store.Statistics(ctx)
	if sc.json || err != nil {
		return sc.emit("sessions stats", started, stats, err)
	}

	p := newPrinter(sc.out)
	p.Title("Session archive")
	p.Field("sessions", stats.TotalSessions)
	p.Field("messages", stats.TotalMessages)
	p.Field("interactions", stats.TotalConversations)
	p.Field("simulations", stats.TotalCachedResults)
	if stats.OldestSession != nil {
		p.Field("oldest", stats.OldestSession.Local().Format("2006-01-02 15:04"))
	}
	if stats.NewestSession != nil {
		p.Field("newest", stats.NewestSession.Local().Format("2006-01-02 15:04"))
	}
	return nil
}
