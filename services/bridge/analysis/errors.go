// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrBridgeNotAnswering aborts a batch when the worker stops answering
	// its liveness check.
	ErrBridgeNotAnswering = errors.New("bridge server is not answering")

	// ErrCancelled aborts a batch when the host requested a stop.
	ErrCancelled = errors.New("analysis cancelled")

	// ErrAlreadyRun is returned when Run is called a second time.
	ErrAlreadyRun = errors.New("batch already run")
)

// FileError records the file whose analysis aborted the batch.
type FileError struct {
	// Path is the absolute path of the file.
	Path string

	// Err is the underlying failure, usually a *bridge.TransportError.
	Err error
}

// Error implements the error interface.
func (e *FileError) Error() string {
	return fmt.Sprintf("analyze %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FileError) Unwrap() error {
	return e.Err
}
