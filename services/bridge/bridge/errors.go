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

import (
	"errors"
	"fmt"
)

// Sentinel errors for bridge operations.
var (
	// ErrTransport indicates an exchange with the worker failed
	// (I/O, HTTP status, undecodable payload, worker-side error).
	ErrTransport = errors.New("bridge transport failure")

	// ErrSessionNotInitialized indicates an analyze call before InitLinter.
	ErrSessionNotInitialized = errors.New("bridge session not initialized")

	// ErrSessionAlreadyInitialized indicates a second InitLinter call.
	ErrSessionAlreadyInitialized = errors.New("bridge session already initialized")

	// ErrStartupTimeout indicates the worker did not answer before the
	// startup deadline.
	ErrStartupTimeout = errors.New("bridge worker did not start in time")

	// ErrServerNotStarted indicates Client was requested before Start.
	ErrServerNotStarted = errors.New("bridge server not started")

	// ErrServerAlreadyStarted indicates Start was called twice.
	ErrServerAlreadyStarted = errors.New("bridge server already started")
)

// TransportError wraps a failed exchange on one route.
type TransportError struct {
	// Route is the worker route, e.g. "/analyze-js".
	Route string

	// Err is the cause.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("bridge request %s failed: %v", e.Route, e.Err)
}

// Unwrap exposes ErrTransport and the cause.
func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// WorkerError is an error reported by the worker in its response payload.
type WorkerError struct {
	Message string
}

// Error implements the error interface.
func (e *WorkerError) Error() string {
	return "worker error: " + e.Message
}
