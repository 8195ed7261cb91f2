// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command pvagent is the command-line front end of the PV-curve agent.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pvagent/cmd/pvagent/config"
	"github.com/AleutianAI/pvagent/pkg/logging"
)

var (
	configPath string
	cfg        config.PVAgentConfig
	logger     *logging.Logger
)

func main() {
	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Close()
	}
	if err != nil {
		newPrinter(os.Stderr).Error(err.Error())
		os.Exit(CLIExitError)
	}
}

// setup loads the config file and installs the process logger.
func setup(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}
	loaded, created, err := config.Load(path)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(os.Stderr, "First run detected, created the config at %s\n", path)
	}
	cfg = loaded

	levelName := cfg.Logging.Level
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		levelName = flag
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}

	// The REPL owns the terminal; its logs go to the file only.
	logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "pvagent-" + cmd.Name(),
		JSON:    cmd == serveCmd,
		Quiet:   cmd == chatCmd,
	})
	logger.SetDefault()
	return nil
}
