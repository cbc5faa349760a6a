// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache decides per file whether a previous analysis can be replayed.
//
// A previous result is replayed only when the file is exactly unchanged, an
// entry exists for it, and that entry was written with the current schema
// and worker version. Every other combination triggers a live analysis whose
// result is written back for the next run.
package cache

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/lintbridge/services/bridge/bridge"
)

// Kind is the caching behavior chosen for one file.
type Kind int

const (
	// KindNoCache analyzes the file and writes nothing.
	KindNoCache Kind = iota

	// KindWriteOnly analyzes the file and writes the result.
	KindWriteOnly

	// KindReadAndWrite replays the previous result and carries it forward.
	KindReadAndWrite
)

var kindNames = []string{"no_cache", "write_only", "read_and_write"}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) && k >= 0 {
		return kindNames[k]
	}
	return "unknown"
}

// Reason explains why a Kind was chosen.
type Reason string

const (
	ReasonCacheDisabled   Reason = "cache_disabled"
	ReasonFileChanged     Reason = "file_changed"
	ReasonMissingEntry    Reason = "missing_entry"
	ReasonVersionMismatch Reason = "schema_version_mismatch"
	ReasonReadError       Reason = "read_error"
	ReasonCacheHit        Reason = "cache_hit"
)

// Cache hands out per-file strategies backed by a Store.
//
// Thread Safety: Safe for concurrent use when the Store is.
type Cache struct {
	store         Store
	enabled       bool
	workerVersion string
	settings      string
	version       string
	logger        *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithWorkerVersion ties entries to a worker version; an upgraded worker
// invalidates every entry.
func WithWorkerVersion(v string) Option {
	return func(c *Cache) {
		c.workerVersion = v
	}
}

// WithSettingsDigest ties entries to the analysis settings (see
// SettingsDigest); changed rules or mode invalidate every entry.
func WithSettingsDigest(d string) Option {
	return func(c *Cache) {
		c.settings = d
	}
}

// WithDisabled turns caching off: every file is analyzed, nothing written.
func WithDisabled() Option {
	return func(c *Cache) {
		c.enabled = false
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a Cache. A nil store disables caching.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		enabled: store != nil,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.version = versionTag(c.workerVersion, c.settings)
	if c.store == nil {
		c.enabled = false
	}
	return c
}

// Version returns the version tag written into entries.
func (c *Cache) Version() string {
	return c.version
}

// Enabled reports whether the cache reads and writes entries.
func (c *Cache) Enabled() bool {
	return c.enabled
}

// StrategyFor decides how the file identified by key is handled.
//
// Description:
//
//	Returns KindReadAndWrite only when status is StatusUnchanged, a
//	previous entry exists and its schema version equals the cache version.
//	A failing store read degrades to a live analysis. Never fails.
//
// Inputs:
//
//	ctx - Context for the store read.
//	key - The file key.
//	status - The file's change status.
//
// Outputs:
//
//	*Strategy - The decision for this file.
func (c *Cache) StrategyFor(ctx context.Context, key string, status FileStatus) *Strategy {
	ctx, span := startStrategySpan(ctx, key, status)
	defer span.End()

	s := c.decide(ctx, key, status)
	setStrategySpanResult(span, s)
	recordStrategy(s)
	return s
}

func (c *Cache) decide(ctx context.Context, key string, status FileStatus) *Strategy {
	s := &Strategy{cache: c, key: key}

	if !c.enabled {
		s.kind, s.reason = KindNoCache, ReasonCacheDisabled
		return s
	}
	s.kind = KindWriteOnly

	if status != StatusUnchanged {
		s.reason = ReasonFileChanged
		return s
	}

	prev, ok, err := c.store.Read(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn("Failed to read cache entry, analyzing file",
			slog.String("file", key),
			slog.String("error", err.Error()),
		)
		s.reason = ReasonReadError
	case !ok:
		s.reason = ReasonMissingEntry
	case prev.SchemaVersion != c.version:
		c.logger.Debug("Cache entry has a different schema version",
			slog.String("file", key),
			slog.String("entry_version", prev.SchemaVersion),
			slog.String("cache_version", c.version),
		)
		s.reason = ReasonVersionMismatch
	default:
		s.kind, s.reason = KindReadAndWrite, ReasonCacheHit
		s.previous = prev
	}
	return s
}

// Commit promotes this run's entries for the next session.
func (c *Cache) Commit(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	return c.store.Commit(ctx)
}

// Strategy is the caching decision for one file.
type Strategy struct {
	cache    *Cache
	key      string
	kind     Kind
	reason   Reason
	previous *Entry
}

// Kind returns the chosen behavior.
func (s *Strategy) Kind() Kind {
	return s.kind
}

// Reason returns why the behavior was chosen.
func (s *Strategy) Reason() Reason {
	return s.reason
}

// IsAnalysisRequired reports whether the file must be analyzed live.
func (s *Strategy) IsAnalysisRequired() bool {
	return s.kind != KindReadAndWrite
}

// ReadAnalysisFromCache returns the previous result and carries it into
// the current generation so it survives the next commit.
//
// Outputs:
//
//	*Entry - The previous entry.
//	error - ErrNoCachedAnalysis unless the kind is KindReadAndWrite, or a
//	        store error while carrying the entry forward.
func (s *Strategy) ReadAnalysisFromCache(ctx context.Context) (*Entry, error) {
	if s.kind != KindReadAndWrite || s.previous == nil {
		return nil, ErrNoCachedAnalysis
	}
	if err := s.cache.store.Write(ctx, *s.previous); err != nil {
		recordWrite(false)
		return nil, err
	}
	recordWrite(true)
	return s.previous, nil
}

// WriteAnalysisToCache records a live analysis result. A no-op for
// KindNoCache.
func (s *Strategy) WriteAnalysisToCache(ctx context.Context, resp *bridge.AnalysisResponse) error {
	if s.kind == KindNoCache {
		return nil
	}
	err := s.cache.store.Write(ctx, EntryFromResponse(s.cache.version, s.key, resp))
	recordWrite(err == nil)
	return err
}
