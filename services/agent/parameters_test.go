// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"errors"
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/pvagent/services/pvcurve"
)

func TestCoerceBool(t *testing.T) {
	for _, in := range []string{"true", "Yes", "1", "on", "TRUE", " yes "} {
		assert.True(t, CoerceBool(in), in)
	}
	for _, in := range []string{"false", "no", "0", "off", "maybe", "", "enabled"} {
		assert.False(t, CoerceBool(in), in)
	}
}

func TestApplyEdits_CoercesPerFieldType(t *testing.T) {
	next, changes, err := ApplyEdits(pvcurve.DefaultParams(), []ParameterEdit{
		{Parameter: "bus_id", Value: "12"},
		{Parameter: "power factor", Value: 0.85},
		{Parameter: "step", Value: "0.05"},
		{Parameter: "capacitive", Value: "on"},
		{Parameter: "continuation", Value: false},
		{Parameter: "grid", Value: "IEEE-14"},
		{Parameter: "max_scale", Value: float64(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, 12, next.BusID)
	assert.Equal(t, 0.85, next.PowerFactor)
	assert.Equal(t, 0.05, next.StepSize)
	assert.True(t, next.Capacitive)
	assert.False(t, next.Continuation)
	assert.Equal(t, "ieee14", next.Grid)
	assert.Equal(t, 2.0, next.MaxScale)
	require.Len(t, changes, 7)
	assert.Equal(t, FieldChange{Field: "bus_id", Old: "5", New: "12"}, changes[0])
}

func TestApplyEdits_RejectsWholeBatch(t *testing.T) {
	current := pvcurve.DefaultParams()
	next, changes, err := ApplyEdits(current, []ParameterEdit{
		{Parameter: "bus_id", Value: "10"},
		{Parameter: "step_size", Value: "0.5"},
		{Parameter: "power_factor", Value: "high"},
		{Parameter: "colour", Value: "blue"},
		{Parameter: "bus_id", Value: 3.5},
	})
	require.Error(t, err)
	assert.Equal(t, current, next)
	assert.Nil(t, changes)

	var verr *pvcurve.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"bus_id", "colour", "power_factor", "step_size"}, verr.FieldNames())
	assert.Contains(t, err.Error(), "colour: is not a known parameter")
	assert.Contains(t, err.Error(), "power_factor: must be a number")
}

func TestApplyEdits_OverflowingIntegerIsNotAnInteger(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"inf text", "Inf"},
		{"negative inf text", "-Inf"},
		{"huge text", "1e300"},
		{"inf number", math.Inf(1)},
		{"huge number", 1e300},
		{"above int32", float64(math.MaxInt32) + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := pvcurve.DefaultParams()
			next, _, err := ApplyEdits(current, []ParameterEdit{{Parameter: "bus_id", Value: tt.value}})
			require.Error(t, err)
			assert.Equal(t, current, next)

			var verr *pvcurve.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, []string{"bus_id"}, verr.FieldNames())
			assert.Contains(t, err.Error(), "bus_id: must be an integer")
			assert.NotContains(t, err.Error(), "-9223372036854775808")
		})
	}
}

func TestApplyEdits_NoOpEditIsIdempotent(t *testing.T) {
	current := pvcurve.DefaultParams()
	next, changes, err := ApplyEdits(current, []ParameterEdit{{Parameter: "bus_id", Value: "5"}})
	require.NoError(t, err)
	assert.Equal(t, current, next)
	require.Len(t, changes, 1)
	assert.False(t, changes[0].Changed())
	assert.Contains(t, summarizeChanges(changes, next), "bus_id: 5 (unchanged)")

	again, _, err := ApplyEdits(next, []ParameterEdit{{Parameter: "bus_id", Value: 5.0}})
	require.NoError(t, err)
	assert.Equal(t, current, again)
}

func TestApplyEdits_NoEdits(t *testing.T) {
	current := pvcurve.DefaultParams()
	next, changes, err := ApplyEdits(current, nil)
	require.NoError(t, err)
	assert.Equal(t, current, next)
	assert.Contains(t, summarizeChanges(changes, next), "No parameter changes")
}

// Random edit batches never leave an invalid record behind.
func TestApplyEdits_ResultAlwaysValid(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := map[string][]string{
		"grid":          {"ieee14", "ieee39", "ieee300", "ieee99", "39"},
		"bus_id":        {"0", "5", "300", "301", "-1", "2.5"},
		"step_size":     {"0.001", "0.1", "0.2", "0", "abc"},
		"max_scale":     {"1", "1.5", "10", "11"},
		"power_factor":  {"0.5", "1", "0", "1.2"},
		"voltage_limit": {"0", "0.4", "0.99", "1"},
		"capacitive":    {"yes", "no", "maybe"},
		"continuation":  {"on", "off"},
	}
	names := ParameterNames()

	p := pvcurve.DefaultParams()
	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(3)
		batch := make([]ParameterEdit, n)
		for j := range batch {
			name := names[rng.Intn(len(names))]
			opts := values[name]
			batch[j] = ParameterEdit{Parameter: name, Value: opts[rng.Intn(len(opts))]}
		}
		next, _, err := ApplyEdits(p, batch)
		if err != nil {
			require.Equal(t, p, next, "iteration %d", i)
		}
		require.NoError(t, next.Validate(), "iteration %d: %v", i, batch)
		p = next
	}
}

func TestFormatParams(t *testing.T) {
	got := FormatParams(pvcurve.DefaultParams())
	assert.Equal(t, "grid=ieee39, bus_id=5, step_size=0.01, max_scale=3, power_factor=0.95, "+
		"voltage_limit=0.4, capacitive=false, continuation=true", got)
}

func TestNormalizeGrid(t *testing.T) {
	for in, want := range map[string]string{
		"IEEE 39":  "ieee39",
		"ieee-118": "ieee118",
		"14":       "ieee14",
		"ieee_30":  "ieee30",
	} {
		assert.Equal(t, want, normalizeGrid(in), strconv.Quote(in))
	}
}
