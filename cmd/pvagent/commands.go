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
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "pvagent",
		Short: "A conversational assistant for PV-curve voltage stability analysis",
		Long: `pvagent answers power-system questions, edits simulation parameters from
plain language, runs PV-curve sweeps on IEEE test cases, and explains the
results. Sessions are archived locally and can be resumed.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive analysis session",
		Long: `Starts a chat session. Slash commands: /params, /history, /new, /quit.
Use --resume <session-id> (or --resume latest) to continue an archived session.`,
		Args: cobra.NoArgs,
		RunE: runChat,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	ingestCmd = &cobra.Command{
		Use:   "ingest <paths...>",
		Short: "Load reference documents into the Weaviate knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIngest,
	}

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run a single PV-curve sweep and print the summary",
		Args:  cobra.NoArgs,
		RunE:  runSimulate,
	}

	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage archived sessions",
	}

	sessionsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd, func(sc *sessionsCommand) error { return sc.List(cmd.Context()) })
		},
	}

	sessionsShowCmd = &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session's metadata and transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd, func(sc *sessionsCommand) error { return sc.Show(cmd.Context(), args[0]) })
		},
	}

	sessionsExportCmd = &cobra.Command{
		Use:   "export <session-id>",
		Short: "Write a session to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("output")
			return withSessions(cmd, func(sc *sessionsCommand) error { return sc.Export(cmd.Context(), args[0], path) })
		},
	}

	sessionsClearCmd = &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Drop a session's messages and results but keep the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd, func(sc *sessionsCommand) error { return sc.Clear(cmd.Context(), args[0]) })
		},
	}

	sessionsDeleteCmd = &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			return withSessions(cmd, func(sc *sessionsCommand) error { return sc.Delete(cmd.Context(), args[0], yes) })
		},
	}

	sessionsStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show archive totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd, func(sc *sessionsCommand) error { return sc.Stats(cmd.Context()) })
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.pvagent/pvagent.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Override logging.level (debug, info, warn, error)")

	chatCmd.Flags().String("resume", "", "Resume a session by ID, or \"latest\".")
	chatCmd.Flags().Bool("history-aware", false, "Always answer with the session history in context.")

	serveCmd.Flags().Int("port", 0, "HTTP port (default from config)")

	simulateFlags(simulateCmd.Flags())

	sessionsCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	sessionsExportCmd.Flags().StringP("output", "o", "", "Output file (default {name}_{id}.json)")
	sessionsDeleteCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsExportCmd,
		sessionsClearCmd, sessionsDeleteCmd, sessionsStatsCmd)

	rootCmd.AddCommand(chatCmd, serveCmd, ingestCmd, simulateCmd, sessionsCmd)
}
