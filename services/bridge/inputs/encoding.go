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
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// LookupEncoding resolves a source charset label such as "windows-1252",
// "latin1" or "shift_jis" using the WHATWG label table. An empty label or
// any UTF-8 label returns a nil Encoding, meaning files are read as UTF-8.
func LookupEncoding(label string) (encoding.Encoding, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, label)
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return nil, nil
	}
	return enc, nil
}

// decodeContent turns raw file bytes into the UTF-8 text the worker
// receives. With no encoding, invalid bytes each become one U+FFFD so
// that columns reported by the worker still line up.
func decodeContent(data []byte, enc encoding.Encoding) (string, error) {
	if enc == nil {
		if utf8.Valid(data) {
			return string(data), nil
		}
		return string(bytes.Runes(data)), nil
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode content: %w", err)
	}
	return string(out), nil
}
