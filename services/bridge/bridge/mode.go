// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bridge

import "fmt"

// Linter identifiers configured inside the worker.
const (
	// LinterDefault runs every enabled rule.
	LinterDefault = "default"

	// LinterUnchanged runs only the rules that must still see unchanged
	// files in skip-unchanged mode.
	LinterUnchanged = "unchanged"
)

// AnalysisMode decides which linter handles a file.
type AnalysisMode int

const (
	// ModeDefault analyzes every file with the default linter.
	ModeDefault AnalysisMode = iota

	// ModeSkipUnchanged routes unchanged files to the reduced linter.
	ModeSkipUnchanged
)

var modeNames = []string{"default", "skip-unchanged"}

// String returns the mode name.
func (m AnalysisMode) String() string {
	if int(m) < len(modeNames) && m >= 0 {
		return modeNames[m]
	}
	return "unknown"
}

// ParseAnalysisMode converts a configuration string to an AnalysisMode.
func ParseAnalysisMode(s string) (AnalysisMode, error) {
	for i, name := range modeNames {
		if name == s {
			return AnalysisMode(i), nil
		}
	}
	return ModeDefault, fmt.Errorf("unknown analysis mode %q", s)
}

// LinterIDFor returns the linter a file is analyzed with.
func (m AnalysisMode) LinterIDFor(unchanged bool) string {
	if m == ModeSkipUnchanged && unchanged {
		return LinterUnchanged
	}
	return LinterDefault
}

// UnchangedFileRules filters rules down to those listed in keys.
func UnchangedFileRules(rules []Rule, keys map[string]bool) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if keys[r.Key] {
			out = append(out, r)
		}
	}
	return out
}
