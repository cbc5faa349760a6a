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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key layout. Each generation keeps entries and content hashes apart.
const (
	genPrevious = "prev/"
	genCurrent  = "next/"

	kindEntry = "e/"
	kindHash  = "h/"
)

func storeKey(gen, kind, key string) []byte {
	return []byte(gen + kind + key)
}

// StoreConfig configures a BadgerStore.
type StoreConfig struct {
	// Path is the cache directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps the cache in RAM only. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. Nil silences them.
	Logger *slog.Logger

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the garbage ratio that triggers a value log rewrite.
	GCDiscardRatio float64
}

// DefaultStoreConfig returns settings for an on-disk cache at path.
//
// Writes are not synced: losing the tail of a cache after a crash only
// costs a re-analysis.
func DefaultStoreConfig(path string) StoreConfig {
	return StoreConfig{
		Path:           path,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryStoreConfig returns settings for a throwaway in-memory cache.
func InMemoryStoreConfig() StoreConfig {
	return StoreConfig{InMemory: true}
}

// badgerLogger routes BadgerDB's printf-style logging into slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// BadgerStore is a Store backed by BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger

	gcStop chan struct{}
	gcDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// OpenStore opens (or creates) a cache store.
//
// Description:
//
//	Opens BadgerDB at cfg.Path, or in memory when cfg.InMemory is set, and
//	starts periodic value log GC when cfg.GCInterval is positive.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*BadgerStore - The open store. Caller must Close it.
//	error - Non-nil if the path is invalid or the database cannot be opened.
func OpenStore(cfg StoreConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("cache path is required for a persistent store")
	}
	if cfg.GCDiscardRatio < 0 || cfg.GCDiscardRatio > 1 {
		return nil, errors.New("gc discard ratio must be between 0 and 1")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &BadgerStore{db: db, logger: logger}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// OpenInMemoryStore opens an empty in-memory store.
func OpenInMemoryStore() (*BadgerStore, error) {
	return OpenStore(InMemoryStoreConfig())
}

func (s *BadgerStore) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("Cache value log GC failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Read implements Store.
func (s *BadgerStore) Read(ctx context.Context, key string) (*Entry, bool, error) {
	data, ok, err := s.get(ctx, storeKey(genPrevious, kindEntry, key))
	if err != nil || !ok {
		return nil, ok, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &e, true, nil
}

// Write implements Store.
func (s *BadgerStore) Write(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", entry.FileKey, err)
	}
	return s.set(ctx, storeKey(genCurrent, kindEntry, entry.FileKey), data)
}

// PreviousHash implements Store.
func (s *BadgerStore) PreviousHash(ctx context.Context, key string) (string, bool, error) {
	data, ok, err := s.get(ctx, storeKey(genPrevious, kindHash, key))
	return string(data), ok, err
}

// RecordHash implements Store.
func (s *BadgerStore) RecordHash(ctx context.Context, key, hash string) error {
	return s.set(ctx, storeKey(genCurrent, kindHash, key), []byte(hash))
}

func (s *BadgerStore) get(ctx context.Context, k []byte) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("context cancelled: %w", err)
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.wrap(err)
	}
	return out, true, nil
}

func (s *BadgerStore) set(ctx context.Context, k, v []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, v)
	})
	return s.wrap(err)
}

func (s *BadgerStore) wrap(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrStoreClosed
	}
	return err
}

// Commit implements Store.
//
// Description:
//
//	Replaces the previous generation with the current one. Previous keys
//	without a current counterpart are deleted, so files removed from the
//	project drop out of the cache. The promotion runs as a write batch; an
//	interrupted commit leaves a partial cache, which only costs re-analysis.
func (s *BadgerStore) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	type kv struct {
		key, value []byte
	}
	var current []kv
	var previous [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(genCurrent), PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			current = append(current, kv{key: it.Item().KeyCopy(nil), value: v})
		}

		pit := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(genPrevious)})
		defer pit.Close()
		for pit.Rewind(); pit.Valid(); pit.Next() {
			previous = append(previous, pit.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return s.wrap(err)
	}

	promoted := make(map[string]bool, len(current))
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, e := range current {
		prevKey := genPrevious + strings.TrimPrefix(string(e.key), genCurrent)
		promoted[prevKey] = true
		if err := wb.Set([]byte(prevKey), e.value); err != nil {
			return s.wrap(err)
		}
		if err := wb.Delete(e.key); err != nil {
			return s.wrap(err)
		}
	}
	for _, k := range previous {
		if promoted[string(k)] {
			continue
		}
		if err := wb.Delete(k); err != nil {
			return s.wrap(err)
		}
	}
	if err := wb.Flush(); err != nil {
		return s.wrap(err)
	}

	s.logger.Debug("Cache committed",
		slog.Int("promoted", len(current)),
		slog.Int("previous", len(previous)),
	)
	return nil
}

// Close stops GC and closes the database. Safe to call multiple times.
func (s *BadgerStore) Close() error {
	s.closeOnce.Do(func() {
		if s.gcStop != nil {
			close(s.gcStop)
			<-s.gcDone
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

var _ Store = (*BadgerStore)(nil)
