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
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AleutianAI/pvagent/services/pvcurve"
)

// simulateFlags registers the parameter flags with the session defaults.
func simulateFlags(fs *pflag.FlagSet) {
	d := pvcurve.DefaultParams()
	fs.String("grid", d.Grid, "IEEE test case (ieee14, ieee24, ieee30, ieee39, ieee57, ieee118, ieee300)")
	fs.Int("bus", d.BusID, "Target bus index")
	fs.Float64("step", d.StepSize, "Load scale increment per step")
	fs.Float64("max-scale", d.MaxScale, "Maximum load scale factor")
	fs.Float64("pf", d.PowerFactor, "Load power factor")
	fs.Float64("voltage-limit", d.VoltageLimit, "Stop once the bus voltage falls under this value (pu)")
	fs.Bool("capacitive", d.Capacitive, "Treat the load as capacitive")
	fs.Bool("no-continuation", !d.Continuation, "Disable the continuation power flow on the remote service")
	fs.String("output-dir", "", "Directory for the curve CSV (default from config)")
	fs.Bool("json", false, "Print the full result as JSON")
}

func paramsFromFlags(fs *pflag.FlagSet) pvcurve.Params {
	p := pvcurve.DefaultParams()
	p.Grid, _ = fs.GetString("grid")
	p.BusID, _ = fs.GetInt("bus")
	p.StepSize, _ = fs.GetFloat64("step")
	p.MaxScale, _ = fs.GetFloat64("max-scale")
	p.PowerFactor, _ = fs.GetFloat64("pf")
	p.VoltageLimit, _ = fs.GetFloat64("voltage-limit")
	p.Capacitive, _ = fs.GetBool("capacitive")
	noCont, _ := fs.GetBool("no-continuation")
	p.Continuation = !noCont
	return p
}

func runSimulate(cmd *cobra.Command, args []string) error {
	simCfg := cfg
	if dir, _ := cmd.Flags().GetString("output-dir"); dir != "" {
		simCfg.Simulator.OutputDir = dir
	}
	jsonMode, _ := cmd.Flags().GetBool("json")
	return simulate(cmd.Context(), newSimulator(simCfg), paramsFromFlags(cmd.Flags()), cmd.OutOrStdout(), jsonMode)
}

func simulate(ctx context.Context, sim pvcurve.Simulator, params pvcurve.Params, out io.Writer, jsonMode bool) error {
	started := time.Now()
	if err := params.Validate(); err != nil {
		if jsonMode {
			_ = OutputJSON(out, newCommandResult("simulate", started, nil, err))
		}
		return err
	}

	result, err := sim.Run(ctx, params)
	if jsonMode {
		if encErr := OutputJSON(out, newCommandResult("simulate", started, result, err)); encErr != nil {
			return encErr
		}
		return err
	}
	if err != nil {
		return err
	}

	p := newPrinter(out)
	p.Box(result.Summary())
	return nil
}
