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
	"errors"
	"strings"
)

// Sentinel errors for Node.js command construction and launch.
var (
	// ErrConfiguration indicates the command configuration is invalid
	// (missing executable, bad argument shape).
	ErrConfiguration = errors.New("invalid node.js command configuration")

	// ErrVersion indicates the Node.js version could not be determined or
	// is below the required minimum.
	ErrVersion = errors.New("unsupported node.js version")

	// ErrLaunch indicates the operating system refused to start the process.
	ErrLaunch = errors.New("node.js process launch failed")

	// ErrAlreadyStarted indicates Start was called twice on the same command.
	ErrAlreadyStarted = errors.New("node.js process already started")
)

// Exit codes returned by WaitFor when the process did not exit on its own.
const (
	// ExitTimeout is returned when the process outlived the wait timeout
	// and was killed.
	ExitTimeout = -1

	// ExitInterrupted is returned when the waiting context was cancelled
	// and the process was destroyed.
	ExitInterrupted = 1
)

// CommandError is returned for every build-time and launch-time failure.
//
// Kind is one of ErrConfiguration, ErrVersion or ErrLaunch, so callers
// can classify with errors.Is. Err holds the native cause, if any.
type CommandError struct {
	// Kind is the sentinel classifying the failure.
	Kind error

	// Message is the human-readable description.
	Message string

	// CommandLine is the attempted command line (launch failures only).
	CommandLine string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	var sb strings.Builder
	sb.WriteString(e.Message)
	sb.WriteString(": ")
	sb.WriteString(e.Err.Error())
	return sb.String()
}

// Unwrap exposes both the classifying sentinel and the native cause.
func (e *CommandError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func configError(msg string) *CommandError {
	return &CommandError{Kind: ErrConfiguration, Message: msg}
}

func versionError(msg string, cause error) *CommandError {
	return &CommandError{Kind: ErrVersion, Message: msg, Err: cause}
}
