// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import "context"

// Store persists cache entries and content hashes across runs.
//
// A store holds two generations: the previous run (read side) and the
// current run (write side). Reads never observe writes of the current run;
// Commit makes the current run the previous one for the next session.
type Store interface {
	// Read returns the previous run's entry for key.
	Read(ctx context.Context, key string) (*Entry, bool, error)

	// Write records an entry for the current run.
	Write(ctx context.Context, entry Entry) error

	// PreviousHash returns the previous run's content hash for key.
	PreviousHash(ctx context.Context, key string) (string, bool, error)

	// RecordHash records the current run's content hash for key.
	RecordHash(ctx context.Context, key, hash string) error

	// Commit promotes the current run to previous.
	Commit(ctx context.Context) error

	// Close releases the store.
	Close() error
}
