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
	"sync/atomic"
)

// CancelSignal is polled once per file boundary. It never interrupts an
// in-flight request.
type CancelSignal interface {
	Cancelled() bool
}

// contextSignal reports cancellation of a context.
type contextSignal struct {
	ctx context.Context
}

// ContextSignal adapts a context to a CancelSignal.
func ContextSignal(ctx context.Context) CancelSignal {
	return contextSignal{ctx: ctx}
}

func (s contextSignal) Cancelled() bool {
	return s.ctx.Err() != nil
}

// Flag is a CancelSignal set by Cancel.
//
// Thread Safety: Safe for concurrent use.
type Flag struct {
	set atomic.Bool
}

// Cancel requests a stop at the next file boundary.
func (f *Flag) Cancel() {
	f.set.Store(true)
}

// Cancelled implements CancelSignal.
func (f *Flag) Cancelled() bool {
	return f.set.Load()
}
