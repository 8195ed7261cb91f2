// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pvcurve defines the PV-curve simulation parameters and results
// and provides two simulators: an in-process load-scaling sweep over a
// Thevenin equivalent of each IEEE test case, and an HTTP client for an
// external power-flow service.
package pvcurve

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SupportedGrids lists the accepted grid identifiers.
var SupportedGrids = []string{"ieee14", "ieee24", "ieee30", "ieee39", "ieee57", "ieee118", "ieee300"}

// Params is the simulation parameter record.
//
// Params is a plain value. Callers that need atomic updates copy it, edit
// the copy, validate it, and swap the whole record.
type Params struct {
	Grid         string  `json:"grid" yaml:"grid" validate:"required,oneof=ieee14 ieee24 ieee30 ieee39 ieee57 ieee118 ieee300"`
	BusID        int     `json:"bus_id" yaml:"bus_id" validate:"gte=0,lte=300"`
	StepSize     float64 `json:"step_size" yaml:"step_size" validate:"gt=0,lte=0.1"`
	MaxScale     float64 `json:"max_scale" yaml:"max_scale" validate:"gt=1,lte=10"`
	PowerFactor  float64 `json:"power_factor" yaml:"power_factor" validate:"gt=0,lte=1"`
	VoltageLimit float64 `json:"voltage_limit" yaml:"voltage_limit" validate:"gte=0,lt=1"`
	Capacitive   bool    `json:"capacitive" yaml:"capacitive"`
	Continuation bool    `json:"continuation" yaml:"continuation"`
}

// DefaultParams returns the parameters a new session starts with.
func DefaultParams() Params {
	return Params{
		Grid:         "ieee39",
		BusID:        5,
		StepSize:     0.01,
		MaxScale:     3.0,
		PowerFactor:  0.95,
		VoltageLimit: 0.4,
		Capacitive:   false,
		Continuation: true,
	}
}

var paramsValidate *validator.Validate

func init() {
	paramsValidate = validator.New()
	paramsValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// FieldError describes one field that failed validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every failing field of a Params record.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid parameters: " + strings.Join(parts, "; ")
}

// FieldNames returns the failing field names, sorted.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	sort.Strings(names)
	return names
}

// Validate checks p against the schema constraints.
//
// # Outputs
//
//   - error: nil, or a *ValidationError naming every failing field.
func (p Params) Validate() error {
	err := paramsValidate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate parameters: %w", err)
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Message: describeRule(fe),
		})
	}
	return out
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("must be greater than %s (got %v)", fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("must be at least %s (got %v)", fe.Param(), fe.Value())
	case "lt":
		return fmt.Sprintf("must be less than %s (got %v)", fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("must be at most %s (got %v)", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
