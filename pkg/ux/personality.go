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
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// EnvPersonality overrides the detected output style.
const EnvPersonality = "LINTBRIDGE_OUTPUT"

// PersonalityLevel defines how rich the CLI output is.
type PersonalityLevel string

const (
	// PersonalityFull enables colors, icons and boxes.
	PersonalityFull PersonalityLevel = "full"

	// PersonalityMinimal uses icons and plain text.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine outputs tab-separated lines for scripts.
	PersonalityMachine PersonalityLevel = "machine"
)

// ParsePersonalityLevel converts a string to a PersonalityLevel. Unknown
// values select PersonalityMinimal.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "f":
		return PersonalityFull
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityMinimal
	}
}

// DetectPersonality picks the output style for f.
//
// Description:
//
//	EnvPersonality wins when set. Otherwise a terminal gets
//	PersonalityFull, or PersonalityMinimal when NO_COLOR is set, and
//	anything else (pipes, files, CI logs) gets PersonalityMachine.
func DetectPersonality(f *os.File) PersonalityLevel {
	if env := os.Getenv(EnvPersonality); env != "" {
		return ParsePersonalityLevel(env)
	}
	if f == nil || !IsTerminal(f) {
		return PersonalityMachine
	}
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return PersonalityMinimal
	}
	return PersonalityFull
}

// IsTerminal reports whether f is a terminal, Cygwin and MSYS included.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
