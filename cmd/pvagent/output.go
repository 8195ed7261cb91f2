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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess = 0
	CLIExitError   = 2
)

// Palette: deep ocean teals.
var (
	colorTealBright  = lipgloss.Color("#2CD7C7")
	colorTealPrimary = lipgloss.Color("#20B9B4")
	colorTealDeep    = lipgloss.Color("#16858E")
	colorSlate       = lipgloss.Color("#2C4A54")
	colorWarning     = lipgloss.Color("#F4D03F")
	colorError       = lipgloss.Color("#E74C3C")
)

var styles = struct {
	Title     lipgloss.Style
	Label     lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Assistant lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(colorTealBright),
	Label:     lipgloss.NewStyle().Foreground(colorTealPrimary),
	Muted:     lipgloss.NewStyle().Foreground(colorSlate),
	Success:   lipgloss.NewStyle().Foreground(colorTealBright),
	Warning:   lipgloss.NewStyle().Foreground(colorWarning),
	Error:     lipgloss.NewStyle().Foreground(colorError),
	Assistant: lipgloss.NewStyle().Foreground(colorTealPrimary).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorTealDeep).
		Padding(0, 1),
}

// printer writes human-readable output, styled only when the destination
// is a terminal and NO_COLOR is unset.
type printer struct {
	out   io.Writer
	color bool
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, color: colorEnabled(out)}
}

func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *printer) render(style lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return style.Render(text)
}

func (p *printer) Title(text string) {
	fmt.Fprintln(p.out, p.render(styles.Title, text))
}

func (p *printer) Success(text string) {
	fmt.Fprintf(p.out, "%s %s\n", p.render(styles.Success, "✓"), text)
}

func (p *printer) Warn(text string) {
	fmt.Fprintf(p.out, "%s %s\n", p.render(styles.Warning, "⚠"), text)
}

func (p *printer) Error(text string) {
	fmt.Fprintf(p.out, "%s %s\n", p.render(styles.Error, "✗"), text)
}

func (p *printer) Muted(text string) {
	fmt.Fprintln(p.out, p.render(styles.Muted, text))
}

func (p *printer) Println(text string) {
	fmt.Fprintln(p.out, text)
}

// Field prints an aligned "label: value" line.
func (p *printer) Field(label string, value any) {
	fmt.Fprintf(p.out, "  %s %v\n", p.render(styles.Label, fmt.Sprintf("%-16s", label+":")), value)
}

// Box prints text inside a rounded border, or indented when unstyled.
func (p *printer) Box(text string) {
	if p.color {
		fmt.Fprintln(p.out, styles.Box.Render(text))
		return
	}
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintln(p.out, "  "+line)
	}
}

// CommandResult wraps command output with metadata for --json mode.
type CommandResult struct {
	APIVersion string    `json:"api_version"`
	Command    string    `json:"command"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Data       any       `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func newCommandResult(command string, started time.Time, data any, err error) CommandResult {
	result := CommandResult{
		APIVersion: "1.0",
		Command:    command,
		Timestamp:  time.Now().UTC(),
		DurationMs: time.Since(started).Milliseconds(),
		Success:    err == nil,
		Data:       data,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// OutputJSON writes data as indented JSON to w.
func OutputJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
