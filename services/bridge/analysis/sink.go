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
	"context"
	"sync"

	"github.com/AleutianAI/lintbridge/services/bridge/bridge"
	"github.com/AleutianAI/lintbridge/services/bridge/inputs"
)

// FileResult is the outcome for one file.
type FileResult struct {
	// File is the analyzed file.
	File inputs.File

	// Response holds the diagnostics, live or replayed.
	Response *bridge.AnalysisResponse

	// Replayed is true when the result came from the cache.
	Replayed bool
}

// ResultSink consumes results in file order. An error aborts the batch.
type ResultSink interface {
	Accept(ctx context.Context, result FileResult) error
}

// Collector is a ResultSink that keeps every result in memory.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	results []FileResult
}

// Accept implements ResultSink.
func (c *Collector) Accept(_ context.Context, result FileResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
	return nil
}

// Results returns a copy of the collected results.
func (c *Collector) Results() []FileResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FileResult, len(c.results))
	copy(out, c.results)
	return out
}

// Progress is one progress notification.
type Progress struct {
	// Current is the path of the file just processed.
	Current string

	// Done is the number of processed files.
	Done int

	// Total is the number of files in the batch.
	Total int
}

// ProgressSink receives progress notifications at a bounded cadence.
type ProgressSink interface {
	Report(p Progress)
}

// ProgressFunc adapts a function to a ProgressSink.
type ProgressFunc func(p Progress)

// Report implements ProgressSink.
func (f ProgressFunc) Report(p Progress) {
	f(p)
}
