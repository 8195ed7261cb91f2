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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConverged means the power flow had no solution at the base load,
	// so no curve point exists.
	ErrNotConverged = errors.New("power flow did not converge")

	// ErrUnsupportedGrid means the grid identifier is unknown.
	ErrUnsupportedGrid = errors.New("unsupported grid")

	// ErrBusOutOfRange means the target bus does not exist in the grid.
	ErrBusOutOfRange = errors.New("target bus out of range")
)

// Simulator runs a PV-curve simulation.
type Simulator interface {
	Run(ctx context.Context, params Params) (*Result, error)
}

// OperatingPoint is a (load, voltage) pair.
type OperatingPoint struct {
	LoadMW    float64 `json:"load_mw"`
	VoltagePU float64 `json:"voltage_pu"`
}

// NosePoint is the maximum-load point of the curve.
type NosePoint struct {
	LoadMW    float64 `json:"load_mw"`
	VoltagePU float64 `json:"voltage_pu"`
	Index     int     `json:"index"`
}

// CurvePoint is one converged step of the sweep.
type CurvePoint struct {
	Step                     int     `json:"step"`
	LoadMW                   float64 `json:"load_mw"`
	VoltagePU                float64 `json:"voltage_pu"`
	LoadScaleFactor          float64 `json:"load_scale_factor"`
	VoltageDropFromInitialPU float64 `json:"voltage_drop_from_initial_pu"`
	VoltageDropPercent       float64 `json:"voltage_drop_percent"`
	IsNosePoint              bool    `json:"is_nose_point"`
}

// Result is the structured output of one simulation.
type Result struct {
	GridSystem              string         `json:"grid_system"`
	TargetBus               int            `json:"target_bus"`
	PowerFactor             float64        `json:"power_factor"`
	CapacitiveLoad          bool           `json:"capacitive_load"`
	LoadValuesMW            []float64      `json:"load_values_mw"`
	VoltageValuesPU         []float64      `json:"voltage_values_pu"`
	CurvePoints             []CurvePoint   `json:"curve_points"`
	NosePoint               NosePoint      `json:"nose_point"`
	InitialConditions       OperatingPoint `json:"initial_conditions"`
	FinalConditions         OperatingPoint `json:"final_conditions"`
	VoltageDropTotal        float64        `json:"voltage_drop_total"`
	VoltageDropPercentTotal float64        `json:"voltage_drop_percent_total"`
	LoadMarginMW            float64        `json:"load_margin_mw"`
	LoadMarginPercent       float64        `json:"load_margin_percent"`
	ConvergedSteps          int            `json:"converged_steps"`
	VoltageLimit            float64        `json:"voltage_limit"`
	SavePath                string         `json:"save_path"`
}

// BuildResult derives every summary field from the converged (load,
// voltage) pairs. loads and volts must have the same non-zero length.
func BuildResult(p Params, loads, volts []float64, savePath string) *Result {
	noseIdx := 0
	for i, l := range loads {
		if l > loads[noseIdx] {
			noseIdx = i
		}
	}

	initialLoad, initialVolt := loads[0], volts[0]
	last := len(loads) - 1

	points := make([]CurvePoint, len(loads))
	for i := range loads {
		scale := 1.0
		if initialLoad > 0 {
			scale = loads[i] / initialLoad
		}
		drop := initialVolt - volts[i]
		dropPct := 0.0
		if initialVolt > 0 {
			dropPct = drop / initialVolt * 100
		}
		points[i] = CurvePoint{
			Step:                     i + 1,
			LoadMW:                   loads[i],
			VoltagePU:                volts[i],
			LoadScaleFactor:          scale,
			VoltageDropFromInitialPU: drop,
			VoltageDropPercent:       dropPct,
			IsNosePoint:              i == noseIdx,
		}
	}

	r := &Result{
		GridSystem:        p.Grid,
		TargetBus:         p.BusID,
		PowerFactor:       p.PowerFactor,
		CapacitiveLoad:    p.Capacitive,
		LoadValuesMW:      append([]float64(nil), loads...),
		VoltageValuesPU:   append([]float64(nil), volts...),
		CurvePoints:       points,
		NosePoint:         NosePoint{LoadMW: loads[noseIdx], VoltagePU: volts[noseIdx], Index: noseIdx},
		InitialConditions: OperatingPoint{LoadMW: initialLoad, VoltagePU: initialVolt},
		FinalConditions:   OperatingPoint{LoadMW: loads[last], VoltagePU: volts[last]},
		VoltageDropTotal:  initialVolt - volts[last],
		LoadMarginMW:      loads[noseIdx] - initialLoad,
		ConvergedSteps:    len(loads),
		VoltageLimit:      p.VoltageLimit,
		SavePath:          savePath,
	}
	if initialVolt > 0 {
		r.VoltageDropPercentTotal = r.VoltageDropTotal / initialVolt * 100
	}
	if initialLoad > 0 {
		r.LoadMarginPercent = r.LoadMarginMW / initialLoad * 100
	}
	return r
}

// Summary renders the headline numbers for a chat response.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "PV curve for %s, bus %d (pf %.2f, %s load)\n",
		r.GridSystem, r.TargetBus, r.PowerFactor, loadKind(r.CapacitiveLoad))
	fmt.Fprintf(&b, "- Nose point: %.1f MW at %.3f pu\n", r.NosePoint.LoadMW, r.NosePoint.VoltagePU)
	fmt.Fprintf(&b, "- Initial: %.1f MW at %.3f pu\n", r.InitialConditions.LoadMW, r.InitialConditions.VoltagePU)
	fmt.Fprintf(&b, "- Load margin: %.1f MW (%.1f%%)\n", r.LoadMarginMW, r.LoadMarginPercent)
	fmt.Fprintf(&b, "- Voltage drop: %.3f pu (%.1f%%)\n", r.VoltageDropTotal, r.VoltageDropPercentTotal)
	fmt.Fprintf(&b, "- Converged steps: %d", r.ConvergedSteps)
	if r.SavePath != "" {
		fmt.Fprintf(&b, "\n- Curve saved to %s", r.SavePath)
	}
	return b.String()
}

func loadKind(capacitive bool) string {
	if capacitive {
		return "capacitive"
	}
	return "inductive"
}
