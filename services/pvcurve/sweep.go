// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pvcurve

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// gridModel is the Thevenin equivalent of one IEEE test case, expressed in
// per unit on the case's total base load.
type gridModel struct {
	buses  int
	baseMW float64
	r, x   float64
}

// Equivalent impedances are tuned so the nose of each case falls between
// roughly 1.5x and 2.6x base load at pf 0.95, matching the range the full
// AC power flow reports for these cases.
var gridModels = map[string]gridModel{
	"ieee14":  {buses: 14, baseMW: 259.0, r: 0.014, x: 0.140},
	"ieee24":  {buses: 24, baseMW: 2850.0, r: 0.017, x: 0.170},
	"ieee30":  {buses: 30, baseMW: 189.2, r: 0.013, x: 0.130},
	"ieee39":  {buses: 39, baseMW: 6254.23, r: 0.0165, x: 0.165},
	"ieee57":  {buses: 57, baseMW: 1250.8, r: 0.019, x: 0.190},
	"ieee118": {buses: 118, baseMW: 4242.0, r: 0.015, x: 0.150},
	"ieee300": {buses: 300, baseMW: 23525.85, r: 0.020, x: 0.200},
}

// BusCount returns the number of buses in grid, or 0 if unknown.
func BusCount(grid string) int {
	return gridModels[grid].buses
}

// LocalSimulator runs the load-scaling sweep in process.
//
// # Description
//
// All loads are scaled together from 1.0 in StepSize increments up to
// MaxScale. Reactive load follows the power factor (negative when
// Capacitive). At each step the receiving-end voltage of the two-bus
// equivalent seen from the target bus is solved in closed form. The sweep
// stops at the first step with no real solution (voltage collapse) or
// once the voltage falls under VoltageLimit.
//
// # Limitations
//
//   - Only the upper branch is traced; Continuation is ignored.
//   - The target bus only changes the electrical distance to the source.
//
// # Thread Safety
//
// Safe for concurrent use.
type LocalSimulator struct {
	// OutputDir receives one CSV per run. Empty disables the artifact.
	OutputDir string

	now func() time.Time
}

// NewLocalSimulator creates a simulator writing artifacts to outputDir.
func NewLocalSimulator(outputDir string) *LocalSimulator {
	return &LocalSimulator{OutputDir: outputDir, now: time.Now}
}

// Run implements Simulator.
func (s *LocalSimulator) Run(ctx context.Context, p Params) (*Result, error) {
	ctx, span := otel.Tracer("pvagent.pvcurve").Start(ctx, "pvcurve.LocalSimulator.Run",
		trace.WithAttributes(
			attribute.String("pvcurve.grid", p.Grid),
			attribute.Int("pvcurve.bus", p.BusID),
		),
	)
	defer span.End()

	result, err := s.run(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("pvcurve.converged_steps", result.ConvergedSteps),
		attribute.Float64("pvcurve.nose_mw", result.NosePoint.LoadMW),
	)
	return result, nil
}

func (s *LocalSimulator) run(ctx context.Context, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	model, ok := gridModels[p.Grid]
	if !ok {
		return nil, fmt.Errorf("%w %q, choose from %v", ErrUnsupportedGrid, p.Grid, SupportedGrids)
	}
	if p.BusID >= model.buses {
		return nil, fmt.Errorf("%w: bus %d, %s has buses 0..%d", ErrBusOutOfRange, p.BusID, p.Grid, model.buses-1)
	}

	// Buses further down the index list sit electrically further from the
	// equivalent source.
	distance := 1 + 0.6*float64(p.BusID)/float64(model.buses)
	r, x := model.r*distance, model.x*distance
	qRatio := math.Tan(math.Acos(p.PowerFactor))
	if p.Capacitive {
		qRatio = -qRatio
	}

	var loads, volts []float64
	for i := 0; ; i++ {
		scale := 1 + float64(i)*p.StepSize
		if scale > p.MaxScale+1e-9 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("sweep interrupted: %w", err)
		}
		v, ok := receivingVoltage(1.0, scale, scale*qRatio, r, x)
		if !ok {
			slog.Debug("Voltage collapse point reached", "grid", p.Grid, "scale", scale)
			break
		}
		loads = append(loads, scale*model.baseMW)
		volts = append(volts, v)
		if v < p.VoltageLimit {
			slog.Debug("Voltage below limit, stopping sweep", "grid", p.Grid, "voltage_pu", v)
			break
		}
	}
	if len(loads) == 0 {
		return nil, fmt.Errorf("%w at base load for %s bus %d", ErrNotConverged, p.Grid, p.BusID)
	}

	savePath := ""
	if s.OutputDir != "" {
		var err error
		savePath, err = s.writeCSV(p, loads, volts)
		if err != nil {
			return nil, err
		}
	}
	return BuildResult(p, loads, volts, savePath), nil
}

// receivingVoltage solves the two-bus power flow
//
//	V^4 + (2(PR + QX) - E^2) V^2 + (P^2 + Q^2)(R^2 + X^2) = 0
//
// for the high-voltage root. ok is false past the nose.
func receivingVoltage(e, p, q, r, x float64) (float64, bool) {
	b := 2*(p*r+q*x) - e*e
	c := (p*p + q*q) * (r*r + x*x)
	disc := b*b - 4*c
	if disc < 0 {
		return 0, false
	}
	v2 := (-b + math.Sqrt(disc)) / 2
	if v2 <= 0 {
		return 0, false
	}
	return math.Sqrt(v2), true
}

// writeCSV saves the curve under a name unique to this run. Runs sharing
// a grid and a clock second get distinct files.
func (s *LocalSimulator) writeCSV(p Params, loads, volts []float64) (path string, err error) {
	if err := os.MkdirAll(s.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	name := fmt.Sprintf("pv_curve_%s_%s_%s.csv", p.Grid, now().Format("20060102_150405"), uuid.NewString()[:8])
	path = filepath.Join(s.OutputDir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create curve file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			path, err = "", fmt.Errorf("close curve file: %w", cerr)
		}
	}()

	w := csv.NewWriter(f)
	records := [][]string{{"step", "load_mw", "voltage_pu"}}
	for i := range loads {
		records = append(records, []string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(loads[i], 'f', 3, 64),
			strconv.FormatFloat(volts[i], 'f', 5, 64),
		})
	}
	if err := w.WriteAll(records); err != nil {
		return "", fmt.Errorf("write curve file: %w", err)
	}
	slog.Info("PV curve written", "path", path, "points", len(loads))
	return path, nil
}

var _ Simulator = (*LocalSimulator)(nil)
