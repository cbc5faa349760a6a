// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// Icon.Render Tests
// =============================================================================

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending} {
		if !strings.Contains(icon.Render(), string(icon)) {
			t.Errorf("Render() of %q lost the glyph: %q", icon, icon.Render())
		}
	}
	if got := IconArrow.Render(); got != string(IconArrow) {
		t.Errorf("IconArrow.Render() = %q, want plain glyph", got)
	}
}

// =============================================================================
// Personality Tests
// =============================================================================

func TestParsePersonalityLevel(t *testing.T) {
	tests := map[string]PersonalityLevel{
		"full":    PersonalityFull,
		"F":       PersonalityFull,
		"minimal": PersonalityMinimal,
		"machine": PersonalityMachine,
		" quiet ": PersonalityMachine,
		"fancy":   PersonalityMinimal,
	}
	for in, want := range tests {
		if got := ParsePersonalityLevel(in); got != want {
			t.Errorf("ParsePersonalityLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectPersonality_NotATerminal(t *testing.T) {
	t.Setenv(EnvPersonality, "")
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if got := DetectPersonality(f); got != PersonalityMachine {
		t.Errorf("DetectPersonality(file) = %q, want machine", got)
	}
	if got := DetectPersonality(nil); got != PersonalityMachine {
		t.Errorf("DetectPersonality(nil) = %q, want machine", got)
	}
}

func TestDetectPersonality_EnvOverride(t *testing.T) {
	t.Setenv(EnvPersonality, "full")
	if got := DetectPersonality(nil); got != PersonalityFull {
		t.Errorf("DetectPersonality() = %q, want full", got)
	}
}

// =============================================================================
// Printer Tests
// =============================================================================

func TestPrinter_Machine(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, PersonalityMachine)

	p.Title("Analysis")
	p.Success("done")
	p.Warning("slow")
	p.Error("broken")
	p.Info("plain")
	p.FileStatus("src/a.js", IconError, "parsing error")
	p.Summary(Stat{Label: "analyzed", Value: 2}, Stat{Label: "replayed", Value: 1})
	p.Box("Aborted", "line one\nline two", true)

	want := "OK: done\n" +
		"WARN: slow\n" +
		"ERROR: broken\n" +
		"plain\n" +
		"✗\tsrc/a.js\tparsing error\n" +
		"SUMMARY: analyzed=2 replayed=1\n" +
		"Aborted: line one; line two\n"
	if got := buf.String(); got != want {
		t.Errorf("machine output =\n%q\nwant\n%q", got, want)
	}
}

func TestPrinter_Minimal(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, PersonalityMinimal)

	p.Title("Analysis")
	p.Success("done")
	p.FileStatus("src/a.js", IconWarning, "")
	p.FileStatus("src/b.js", IconError, "timeout")
	p.Summary(Stat{Label: "issues", Value: 4, Icon: IconWarning})

	want := "Analysis\n" +
		"✓ done\n" +
		"⚠ src/a.js\n" +
		"✗ src/b.js (timeout)\n" +
		"\n4 issues\n"
	if got := buf.String(); got != want {
		t.Errorf("minimal output =\n%q\nwant\n%q", got, want)
	}
}

func TestPrinter_Full(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, PersonalityFull)
	if p.Level() != PersonalityFull {
		t.Fatalf("Level() = %q", p.Level())
	}

	p.Title("Analysis")
	p.Error("worker died")
	p.FileStatus("src/a.js", IconSuccess, "cached")
	p.Summary(Stat{Label: "files", Value: 3, Icon: IconSuccess}, Stat{Label: "errors", Value: 1, Icon: IconError})
	p.Box("Batch", "3 files", false)

	out := buf.String()
	for _, want := range []string{"Analysis", "worker died", "src/a.js", "cached", "files", "errors", "Batch", "3 files"} {
		if !strings.Contains(out, want) {
			t.Errorf("full output missing %q:\n%s", want, out)
		}
	}
}
