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
	"errors"
	"fmt"
)

var (
	// ErrInvalidRoot is returned when the base directory or a root is not
	// an existing directory inside it.
	ErrInvalidRoot = errors.New("invalid project root")

	// ErrFileTooLarge marks files skipped because they exceed the size limit.
	ErrFileTooLarge = errors.New("file too large to analyze")

	// ErrUnknownEncoding is returned for a charset label that has no
	// decoder.
	ErrUnknownEncoding = errors.New("unknown source encoding")
)

// ScanError is a non-fatal error recorded while selecting files. The file
// is left out of the selection and scanning continues.
type ScanError struct {
	// Path is the project-relative path that failed.
	Path string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e ScanError) Unwrap() error {
	return e.Err
}
