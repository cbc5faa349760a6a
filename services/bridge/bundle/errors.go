// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bundle

import (
	"errors"
	"fmt"
)

var (
	// ErrEntryOutsideRoot indicates an archive entry would be written
	// outside the extraction root (path traversal).
	ErrEntryOutsideRoot = errors.New("archive entry outside extraction root")

	// ErrBundleCorrupt indicates the archive could not be read or contains
	// an entry type that cannot be extracted.
	ErrBundleCorrupt = errors.New("failed to extract bundle")
)

// SecurityError reports an archive entry that escapes the extraction root.
type SecurityError struct {
	// Entry is the entry name as stored in the archive.
	Entry string

	// Root is the absolute extraction root.
	Root string
}

// Error implements the error interface.
func (e *SecurityError) Error() string {
	return fmt.Sprintf("Archive entry %s is not within %s", e.Entry, e.Root)
}

// Unwrap returns ErrEntryOutsideRoot.
func (e *SecurityError) Unwrap() error {
	return ErrEntryOutsideRoot
}
