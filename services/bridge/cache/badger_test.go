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

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/lintbridge/services/bridge/bridge"
)

func openMemStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenInMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestBadgerStore_WritesInvisibleUntilCommit verifies generation isolation.
func TestBadgerStore_WritesInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := openMemStore(t)

	entry := Entry{SchemaVersion: "1", FileKey: "src/a.js", Diagnostics: []bridge.Issue{{Line: 1, RuleID: "r"}}}
	require.NoError(t, s.Write(ctx, entry))
	require.NoError(t, s.RecordHash(ctx, "src/a.js", "abc"))

	_, ok, err := s.Read(ctx, "src/a.js")
	require.NoError(t, err)
	assert.False(t, ok, "current run writes must not be readable before commit")

	_, ok, err = s.PreviousHash(ctx, "src/a.js")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Commit(ctx))

	got, ok, err := s.Read(ctx, "src/a.js")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry, *got)

	hash, ok, err := s.PreviousHash(ctx, "src/a.js")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", hash)
}

// TestBadgerStore_CommitDropsRemovedFiles verifies stale keys are purged.
func TestBadgerStore_CommitDropsRemovedFiles(t *testing.T) {
	ctx := context.Background()
	s := openMemStore(t)

	require.NoError(t, s.Write(ctx, Entry{SchemaVersion: "1", FileKey: "keep.js"}))
	require.NoError(t, s.Write(ctx, Entry{SchemaVersion: "1", FileKey: "gone.js"}))
	require.NoError(t, s.Commit(ctx))

	// Second run only sees keep.js.
	require.NoError(t, s.Write(ctx, Entry{SchemaVersion: "2", FileKey: "keep.js"}))
	require.NoError(t, s.Commit(ctx))

	got, ok, err := s.Read(ctx, "keep.js")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", got.SchemaVersion)

	_, ok, err = s.Read(ctx, "gone.js")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestBadgerStore_Persistent verifies entries survive a reopen.
func TestBadgerStore_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenStore(DefaultStoreConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, Entry{SchemaVersion: "1", FileKey: "a.ts"}))
	require.NoError(t, s.Commit(ctx))
	require.NoError(t, s.Close())

	s2, err := OpenStore(DefaultStoreConfig(dir))
	require.NoError(t, err)
	defer s2.Close()

	_, ok, err := s2.Read(ctx, "a.ts")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenStore_RequiresPath(t *testing.T) {
	_, err := OpenStore(StoreConfig{})
	assert.Error(t, err)
}

func TestOpenStore_InvalidRatio(t *testing.T) {
	_, err := OpenStore(StoreConfig{InMemory: true, GCDiscardRatio: 2})
	assert.Error(t, err)
}

func TestBadgerStore_CloseTwice(t *testing.T) {
	s, err := OpenInMemoryStore()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestBadgerStore_UseAfterClose(t *testing.T) {
	s, err := OpenInMemoryStore()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Write(context.Background(), Entry{FileKey: "a.js"})
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestBadgerStore_CancelledContext(t *testing.T) {
	s := openMemStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.Read(ctx, "a.js")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Commit(ctx), context.Canceled)
}
