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

// BatchState is the lifecycle of one batch.
type BatchState int

const (
	StateNotStarted BatchState = iota
	StateProbing
	StateRunning
	StateCompleted
	StateAborted
)

var batchStateNames = []string{"not_started", "probing", "running", "completed", "aborted"}

// String returns the state name.
func (s BatchState) String() string {
	if int(s) < len(batchStateNames) && s >= 0 {
		return batchStateNames[s]
	}
	return "unknown"
}

// IsTerminal reports whether the batch is finished.
func (s BatchState) IsTerminal() bool {
	return s == StateCompleted || s == StateAborted
}
