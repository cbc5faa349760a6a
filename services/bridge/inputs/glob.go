// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package inputs

import (
	"path"
	"strings"
)

var (
	// DefaultExclusions are never analyzed.
	DefaultExclusions = []string{
		"**/node_modules/**",
		"**/bower_components/**",
		"**/vendor/**",
	}

	// DefaultTestPatterns classify a file as TEST code.
	DefaultTestPatterns = []string{
		"**/*.test.*",
		"**/*.spec.*",
		"**/__tests__/**",
		"**/__mocks__/**",
	}
)

// Patterns matches slash-separated relative paths against glob patterns.
//
// Pattern syntax, segment by segment:
//   - ** matches zero or more whole segments
//   - * ? and [abc] behave as in path.Match within one segment
//
// Thread Safety: Safe for concurrent use after creation.
type Patterns struct {
	patterns [][]string
}

// NewPatterns compiles patterns. Empty patterns are ignored.
func NewPatterns(patterns ...string) *Patterns {
	p := &Patterns{}
	for _, raw := range patterns {
		raw = strings.Trim(strings.TrimSpace(raw), "/")
		if raw == "" {
			continue
		}
		p.patterns = append(p.patterns, strings.Split(raw, "/"))
	}
	return p
}

// Match reports whether rel matches any pattern.
func (p *Patterns) Match(rel string) bool {
	if p == nil {
		return false
	}
	segs := strings.Split(strings.Trim(rel, "/"), "/")
	for _, pat := range p.patterns {
		if matchSegments(pat, segs) {
			return true
		}
	}
	return false
}

func matchSegments(pat, segs []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			rest := pat[1:]
			for i := 0; i <= len(segs); i++ {
				if matchSegments(rest, segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		ok, err := path.Match(pat[0], segs[0])
		if err != nil || !ok {
			return false
		}
		pat, segs = pat[1:], segs[1:]
	}
	return len(segs) == 0
}
