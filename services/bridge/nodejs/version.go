// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nodejs

import (
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/mod/semver"
)

// versionPattern matches the output of `node -v`, e.g. "v18.17.1" or
// "v10.8.0+123". Build metadata is accepted and ignored.
var versionPattern = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(\+.+)?$`)

// Version is a parsed Node.js engine version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// NewVersion creates a Version from its parts.
func NewVersion(major, minor, patch int) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// ParseVersion parses the output of `node -v`.
//
// Description:
//
//	Accepts "v<major>.<minor>.<patch>" with optional "+build" suffix.
//	The leading "v" is optional.
//
// Inputs:
//
//	s - Raw version string, already trimmed of surrounding whitespace.
//
// Outputs:
//
//	Version - The parsed version.
//	error - *CommandError of kind ErrVersion when s does not match.
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, versionError(fmt.Sprintf("Failed to parse Node.js version, got '%s'", s), nil)
	}
	// The pattern guarantees digits; Atoi only fails on overflow.
	parts := [3]int{}
	for i := range parts {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Version{}, versionError(fmt.Sprintf("Failed to parse Node.js version, got '%s'", s), err)
		}
		parts[i] = n
	}
	return Version{Major: parts[0], Minor: parts[1], Patch: parts[2]}, nil
}

// IsZero reports whether v is the zero Version (no constraint / not checked).
func (v Version) IsZero() bool {
	return v == Version{}
}

// Compare returns -1, 0 or +1 depending on whether v is lower than,
// equal to, or greater than other.
func (v Version) Compare(other Version) int {
	return semver.Compare(v.semver(), other.semver())
}

// AtLeast reports whether v >= min.
func (v Version) AtLeast(min Version) bool {
	return v.Compare(min) >= 0
}

// String renders the version as "major.minor" when the patch is zero,
// "major.minor.patch" otherwise.
func (v Version) String() string {
	if v.Patch == 0 {
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v Version) semver() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}
