// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/AleutianAI/pvagent/services/pvcurve"
)

// ParameterEdit is one (name, new value) pair extracted from a message.
// Value holds whatever the extractor produced: a string, a JSON number
// (float64), or a bool.
type ParameterEdit struct {
	Parameter string `json:"parameter"`
	Value     any    `json:"value"`
}

// FieldChange describes one applied edit.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Changed reports whether the edit altered the value.
func (c FieldChange) Changed() bool { return c.Old != c.New }

type fieldKind int

const (
	kindString fieldKind = iota
	kindInt
	kindFloat
	kindBool
)

type paramField struct {
	name string
	kind fieldKind
	get  func(pvcurve.Params) any
	set  func(*pvcurve.Params, any)
}

// paramFields is the editable schema, in display order.
var paramFields = []paramField{
	{"grid", kindString,
		func(p pvcurve.Params) any { return p.Grid },
		func(p *pvcurve.Params, v any) { p.Grid = v.(string) }},
	{"bus_id", kindInt,
		func(p pvcurve.Params) any { return p.BusID },
		func(p *pvcurve.Params, v any) { p.BusID = v.(int) }},
	{"step_size", kindFloat,
		func(p pvcurve.Params) any { return p.StepSize },
		func(p *pvcurve.Params, v any) { p.StepSize = v.(float64) }},
	{"max_scale", kindFloat,
		func(p pvcurve.Params) any { return p.MaxScale },
		func(p *pvcurve.Params, v any) { p.MaxScale = v.(float64) }},
	{"power_factor", kindFloat,
		func(p pvcurve.Params) any { return p.PowerFactor },
		func(p *pvcurve.Params, v any) { p.PowerFactor = v.(float64) }},
	{"voltage_limit", kindFloat,
		func(p pvcurve.Params) any { return p.VoltageLimit },
		func(p *pvcurve.Params, v any) { p.VoltageLimit = v.(float64) }},
	{"capacitive", kindBool,
		func(p pvcurve.Params) any { return p.Capacitive },
		func(p *pvcurve.Params, v any) { p.Capacitive = v.(bool) }},
	{"continuation", kindBool,
		func(p pvcurve.Params) any { return p.Continuation },
		func(p *pvcurve.Params, v any) { p.Continuation = v.(bool) }},
}

// parameterAliases maps loose names the extractor tends to produce.
var parameterAliases = map[string]string{
	"bus":            "bus_id",
	"target_bus":     "bus_id",
	"target_bus_idx": "bus_id",
	"bus_index":      "bus_id",
	"pf":             "power_factor",
	"step":           "step_size",
	"scale":          "max_scale",
	"max_load_scale": "max_scale",
	"v_limit":        "voltage_limit",
	"voltage_min":    "voltage_limit",
	"system":         "grid",
	"grid_system":    "grid",
}

func lookupField(name string) (paramField, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if alias, ok := parameterAliases[key]; ok {
		key = alias
	}
	for _, f := range paramFields {
		if f.name == key {
			return f, true
		}
	}
	return paramField{}, false
}

// ParameterNames returns the canonical editable parameter names.
func ParameterNames() []string {
	names := make([]string, len(paramFields))
	for i, f := range paramFields {
		names[i] = f.name
	}
	return names
}

// FormatParams renders p as "grid=ieee39, bus_id=5, ...".
func FormatParams(p pvcurve.Params) string {
	parts := make([]string, len(paramFields))
	for i, f := range paramFields {
		parts[i] = f.name + "=" + formatValue(f.get(p))
	}
	return strings.Join(parts, ", ")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// =============================================================================
// Coercion
// =============================================================================

// CoerceBool maps textual booleans: "true", "yes", "1", and "on" are true
// (case-insensitive, surrounding space ignored); any other text is false.
func CoerceBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "on":
		return true
	default:
		return false
	}
}

func coerce(kind fieldKind, v any) (any, error) {
	switch kind {
	case kindBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			return CoerceBool(x), nil
		case float64:
			return x == 1, nil
		case int:
			return x == 1, nil
		}
	case kindInt:
		switch x := v.(type) {
		case int:
			return x, nil
		case float64:
			if !integral(x) {
				return nil, fmt.Errorf("must be an integer (got %v)", x)
			}
			return int(x), nil
		case string:
			s := strings.TrimSpace(x)
			if n, err := strconv.Atoi(s); err == nil {
				return n, nil
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil && integral(f) {
				return int(f), nil
			}
			return nil, fmt.Errorf("must be an integer (got %q)", x)
		}
	case kindFloat:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int:
			return float64(x), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, fmt.Errorf("must be a number (got %q)", x)
			}
			return f, nil
		}
	case kindString:
		switch x := v.(type) {
		case string:
			return normalizeGrid(x), nil
		case float64:
			if x == math.Trunc(x) {
				return fmt.Sprintf("ieee%d", int(x)), nil
			}
		case int:
			return fmt.Sprintf("ieee%d", x), nil
		}
	}
	return nil, fmt.Errorf("has an unsupported value %v (%T)", v, v)
}

// normalizeGrid turns "IEEE 39", "ieee-39" or "39" into "ieee39".
func normalizeGrid(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
	if _, err := strconv.Atoi(s); err == nil {
		return "ieee" + s
	}
	return s
}

// =============================================================================
// Atomic application
// =============================================================================

// ApplyEdits applies edits to a copy of current.
//
// # Description
//
// Every edit is coerced to its field's type and the whole copy is then
// validated. If any edit names an unknown field, fails coercion, or leaves
// the record invalid, nothing is applied.
//
// # Outputs
//
//   - pvcurve.Params: the updated record, or current unchanged on error.
//   - []FieldChange: one entry per edit, in edit order.
//   - error: a *pvcurve.ValidationError naming every failing field.
func ApplyEdits(current pvcurve.Params, edits []ParameterEdit) (pvcurve.Params, []FieldChange, error) {
	next := current
	changes := make([]FieldChange, 0, len(edits))
	failed := map[string]bool{}
	verr := &pvcurve.ValidationError{}

	for _, e := range edits {
		f, ok := lookupField(e.Parameter)
		if !ok {
			verr.Fields = append(verr.Fields, pvcurve.FieldError{
				Field:   e.Parameter,
				Message: fmt.Sprintf("is not a known parameter (known: %s)", strings.Join(ParameterNames(), ", ")),
			})
			failed[e.Parameter] = true
			continue
		}
		v, err := coerce(f.kind, e.Value)
		if err != nil {
			verr.Fields = append(verr.Fields, pvcurve.FieldError{Field: f.name, Message: err.Error()})
			failed[f.name] = true
			continue
		}
		old := formatValue(f.get(next))
		f.set(&next, v)
		changes = append(changes, FieldChange{Field: f.name, Old: old, New: formatValue(v)})
	}

	if err := next.Validate(); err != nil {
		pverr, ok := err.(*pvcurve.ValidationError)
		if !ok {
			return current, nil, err
		}
		for _, fe := range pverr.Fields {
			if !failed[fe.Field] {
				verr.Fields = append(verr.Fields, fe)
			}
		}
	}
	if len(verr.Fields) > 0 {
		return current, nil, verr
	}
	return next, changes, nil
}

// summarizeChanges renders the success response of a parameter edit.
func summarizeChanges(changes []FieldChange, p pvcurve.Params) string {
	if len(changes) == 0 {
		return "No parameter changes were found in your request. Current parameters: " + FormatParams(p)
	}
	var b strings.Builder
	b.WriteString("Updated parameters:")
	for _, c := range changes {
		if c.Changed() {
			fmt.Fprintf(&b, "\n- %s: %s -> %s", c.Field, c.Old, c.New)
		} else {
			fmt.Fprintf(&b, "\n- %s: %s (unchanged)", c.Field, c.New)
		}
	}
	return b.String()
}

// integral reports whether f is a whole number that converts to int
// without overflow. Inf and NaN are not.
func integral(f float64) bool {
	return f == math.Trunc(f) && math.Abs(f) <= math.MaxInt32
}
