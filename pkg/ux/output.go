// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders human-facing CLI output in the Aleutian palette.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Aleutian color palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = ColorTealBright
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = ColorSlate
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title    lipgloss.Style
	Bold     lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Box      lipgloss.Style
	ErrorBox lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
)

// Render returns the icon with its status color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Stat is one labelled number of a summary line.
type Stat struct {
	Label string
	Value int
	Icon  Icon
}

// Printer writes styled output for one personality level.
//
// Thread Safety: Not safe for concurrent use.
type Printer struct {
	w     io.Writer
	level PersonalityLevel
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer, level PersonalityLevel) *Printer {
	return &Printer{w: w, level: level}
}

// Level returns the personality level.
func (p *Printer) Level() PersonalityLevel {
	return p.level
}

// Title prints a heading. Machine output has none.
func (p *Printer) Title(text string) {
	switch p.level {
	case PersonalityMachine:
	case PersonalityMinimal:
		fmt.Fprintln(p.w, text)
	default:
		fmt.Fprintln(p.w, Styles.Title.Render(text))
	}
}

// Success prints a success line.
func (p *Printer) Success(text string) {
	p.status("OK", IconSuccess, Styles.Success, text)
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	p.status("WARN", IconWarning, Styles.Warning, text)
}

// Error prints an error line.
func (p *Printer) Error(text string) {
	p.status("ERROR", IconError, Styles.Error, text)
}

func (p *Printer) status(tag string, icon Icon, style lipgloss.Style, text string) {
	switch p.level {
	case PersonalityMachine:
		fmt.Fprintf(p.w, "%s: %s\n", tag, text)
	case PersonalityMinimal:
		fmt.Fprintf(p.w, "%s %s\n", icon, text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", icon.Render(), style.Render(text))
	}
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	if p.level == PersonalityMachine {
		fmt.Fprintln(p.w, text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Muted.Render("│"), text)
}

// FileStatus prints one file with an icon and an optional reason.
func (p *Printer) FileStatus(path string, icon Icon, reason string) {
	switch p.level {
	case PersonalityMachine:
		fmt.Fprintf(p.w, "%s\t%s\t%s\n", icon, path, reason)
	case PersonalityMinimal:
		if reason != "" {
			fmt.Fprintf(p.w, "%s %s (%s)\n", icon, path, reason)
			return
		}
		fmt.Fprintf(p.w, "%s %s\n", icon, path)
	default:
		if reason != "" {
			fmt.Fprintf(p.w, "%s %s %s\n", icon.Render(), path, Styles.Muted.Render("("+reason+")"))
			return
		}
		fmt.Fprintf(p.w, "%s %s\n", icon.Render(), path)
	}
}

// Summary prints counts on one line.
func (p *Printer) Summary(stats ...Stat) {
	parts := make([]string, 0, len(stats))
	if p.level == PersonalityMachine {
		for _, s := range stats {
			parts = append(parts, fmt.Sprintf("%s=%d", s.Label, s.Value))
		}
		fmt.Fprintf(p.w, "SUMMARY: %s\n", strings.Join(parts, " "))
		return
	}
	for _, s := range stats {
		value := fmt.Sprintf("%d", s.Value)
		if p.level == PersonalityFull {
			value = styleFor(s.Icon).Render(value)
			parts = append(parts, value+" "+Styles.Muted.Render(s.Label))
			continue
		}
		parts = append(parts, value+" "+s.Label)
	}
	fmt.Fprintf(p.w, "\n%s\n", strings.Join(parts, "  "))
}

// Box prints content in a rounded box under a title. Failure boxes use the
// error border.
func (p *Printer) Box(title, content string, failed bool) {
	switch p.level {
	case PersonalityMachine:
		fmt.Fprintf(p.w, "%s: %s\n", title, strings.ReplaceAll(content, "\n", "; "))
	case PersonalityMinimal:
		fmt.Fprintf(p.w, "%s\n%s\n", title, content)
	default:
		box, head := Styles.Box, Styles.Title
		if failed {
			box, head = Styles.ErrorBox, Styles.Error.Bold(true)
		}
		fmt.Fprintln(p.w, box.Width(60).Render(head.Render(title)+"\n"+content))
	}
}

func styleFor(icon Icon) lipgloss.Style {
	switch icon {
	case IconSuccess:
		return Styles.Success
	case IconWarning:
		return Styles.Warning
	case IconError:
		return Styles.Error
	default:
		return Styles.Bold
	}
}
