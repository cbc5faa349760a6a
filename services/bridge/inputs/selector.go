// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package inputs selects the source files handed to the analysis and works
// out how each one changed since the previous run.
//
// # Thread Safety
//
// A Selector is safe for concurrent use. Select hashes files in parallel but
// returns them in a deterministic, lexical order.
package inputs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"

	"github.com/AleutianAI/lintbridge/services/bridge/bridge"
	"github.com/AleutianAI/lintbridge/services/bridge/cache"
)

// DefaultMaxFileSize is the largest file analyzed, in bytes.
const DefaultMaxFileSize int64 = 1000 * 1024

// Language is the worker route family a file is analyzed with.
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
)

var extensions = map[string]Language{
	".js":  LanguageJavaScript,
	".jsx": LanguageJavaScript,
	".mjs": LanguageJavaScript,
	".cjs": LanguageJavaScript,
	".vue": LanguageJavaScript,
	".ts":  LanguageTypeScript,
	".tsx": LanguageTypeScript,
	".mts": LanguageTypeScript,
	".cts": LanguageTypeScript,
}

// LanguageOf returns the language for a file name, or false when the
// extension is not analyzed.
func LanguageOf(name string) (Language, bool) {
	lang, ok := extensions[strings.ToLower(filepath.Ext(name))]
	return lang, ok
}

// HashStore keeps content hashes between runs. cache.Store satisfies it.
type HashStore interface {
	PreviousHash(ctx context.Context, key string) (string, bool, error)
	RecordHash(ctx context.Context, key, hash string) error
}

// File is one selected source file.
type File struct {
	// Path is the absolute path sent to the worker.
	Path string

	// Key is the slash-separated path relative to the base directory. It
	// identifies the file in the cache.
	Key string

	// Type is MAIN or TEST.
	Type bridge.FileType

	// Language selects the analysis route.
	Language Language

	// Status is the change status relative to the previous run.
	Status cache.FileStatus

	// Hash is the hex SHA-256 of the content.
	Hash string

	// Content is set only when the worker must not read the file itself.
	// See ShouldSendFileContent.
	Content string
}

// Selection is the result of Select.
type Selection struct {
	// Files in lexical order of their keys.
	Files []File

	// Errors are files left out because they could not be read.
	Errors []ScanError
}

// Selector walks project roots and builds the list of files to analyze.
type Selector struct {
	baseDir     string
	store       HashStore
	exclusions  *Patterns
	tests       *Patterns
	maxFileSize int64
	sendContent bool
	charset     encoding.Encoding
	workers     int
	logger      *slog.Logger
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithHashStore sets where content hashes are compared and recorded.
// Without it every file has StatusUnknown.
func WithHashStore(store HashStore) SelectorOption {
	return func(s *Selector) {
		s.store = store
	}
}

// WithExclusions replaces DefaultExclusions.
func WithExclusions(patterns ...string) SelectorOption {
	return func(s *Selector) {
		s.exclusions = NewPatterns(patterns...)
	}
}

// WithTestPatterns replaces DefaultTestPatterns.
func WithTestPatterns(patterns ...string) SelectorOption {
	return func(s *Selector) {
		s.tests = NewPatterns(patterns...)
	}
}

// WithMaxFileSize sets the size limit. Zero or less disables it.
func WithMaxFileSize(bytes int64) SelectorOption {
	return func(s *Selector) {
		s.maxFileSize = bytes
	}
}

// WithSendContent forces file content into every request.
func WithSendContent(send bool) SelectorOption {
	return func(s *Selector) {
		s.sendContent = send
	}
}

// WithEncoding declares the charset source files are written in. Content is
// decoded to UTF-8 and always sent inline. A nil Encoding means UTF-8.
func WithEncoding(enc encoding.Encoding) SelectorOption {
	return func(s *Selector) {
		s.charset = enc
	}
}

// WithWorkers bounds parallel hashing. Default: runtime.NumCPU().
func WithWorkers(n int) SelectorOption {
	return func(s *Selector) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) SelectorOption {
	return func(s *Selector) {
		s.logger = logger
	}
}

// NewSelector creates a Selector for the project rooted at baseDir.
func NewSelector(baseDir string, opts ...SelectorOption) (*Selector, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, abs)
	}

	s := &Selector{
		baseDir:     abs,
		exclusions:  NewPatterns(DefaultExclusions...),
		tests:       NewPatterns(DefaultTestPatterns...),
		maxFileSize: DefaultMaxFileSize,
		workers:     runtime.NumCPU(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BaseDir returns the absolute project directory.
func (s *Selector) BaseDir() string {
	return s.baseDir
}

// Select walks roots and returns the analyzable files.
//
// Description:
//
//	Roots are directories relative to the base directory; none means the
//	base directory itself. Hidden entries and excluded paths are skipped.
//	Each file is read once to compute its hash, its change status and,
//	when needed, the content sent to the worker. The current hash is
//	recorded in the hash store for the next run.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	roots - Directories to walk, relative to the base directory.
//
// Outputs:
//
//	*Selection - Files in lexical key order, plus per-file read errors.
//	error - ErrInvalidRoot for a bad root, ctx.Err() on cancellation, or a
//	        hash store failure.
func (s *Selector) Select(ctx context.Context, roots ...string) (*Selection, error) {
	if len(roots) == 0 {
		roots = []string{"."}
	}

	seen := make(map[string]bool)
	var candidates []File
	for _, root := range roots {
		found, err := s.walk(ctx, root)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if !seen[f.Key] {
				seen[f.Key] = true
				candidates = append(candidates, f)
			}
		}
	}
	slices.SortFunc(candidates, func(a, b File) int {
		return strings.Compare(a.Key, b.Key)
	})

	errs := make([]error, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range candidates {
		g.Go(func() error {
			err := s.inspect(gctx, &candidates[i])
			var scanErr ScanError
			if errors.As(err, &scanErr) {
				errs[i] = scanErr
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sel := &Selection{Files: make([]File, 0, len(candidates))}
	for i, f := range candidates {
		if errs[i] != nil {
			sel.Errors = append(sel.Errors, errs[i].(ScanError))
			continue
		}
		sel.Files = append(sel.Files, f)
	}

	s.logger.Info("Selected files for analysis",
		slog.Int("files", len(sel.Files)),
		slog.Int("skipped", len(sel.Errors)),
	)
	return sel, nil
}

// walk lists candidate files below root without reading them.
func (s *Selector) walk(ctx context.Context, root string) ([]File, error) {
	dir := filepath.Clean(filepath.Join(s.baseDir, root))
	if filepath.IsAbs(root) {
		dir = filepath.Clean(root)
	}
	rel, err := filepath.Rel(s.baseDir, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s escapes %s", ErrInvalidRoot, root, s.baseDir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}

	var files []File
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.logger.Warn("Skipping unreadable path", slog.String("path", p), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(relPath)

		if p != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if key != "." && s.exclusions.Match(key) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		lang, ok := LanguageOf(d.Name())
		if !ok {
			return nil
		}
		fileType := bridge.FileTypeMain
		if s.tests.Match(key) {
			fileType = bridge.FileTypeTest
		}
		files = append(files, File{Path: p, Key: key, Type: fileType, Language: lang})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// inspect reads f once and fills in its hash, status and content. Read
// failures are returned as ScanError.
func (s *Selector) inspect(ctx context.Context, f *File) error {
	if s.maxFileSize > 0 {
		info, err := os.Stat(f.Path)
		if err != nil {
			return ScanError{Path: f.Key, Err: err}
		}
		if info.Size() > s.maxFileSize {
			s.logger.Warn("File is too large and will not be analyzed",
				slog.String("file", f.Key),
				slog.Int64("size", info.Size()),
				slog.Int64("max_size", s.maxFileSize),
			)
			return ScanError{Path: f.Key, Err: ErrFileTooLarge}
		}
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return ScanError{Path: f.Key, Err: err}
	}
	sum := sha256.Sum256(data)
	f.Hash = hex.EncodeToString(sum[:])

	if ShouldSendFileContent(data, s.charset, s.sendContent) {
		content, err := decodeContent(data, s.charset)
		if err != nil {
			return ScanError{Path: f.Key, Err: err}
		}
		if s.charset == nil && !utf8.Valid(data) {
			s.logger.Warn("File is not valid UTF-8, set analysis.encoding to decode it",
				slog.String("file", f.Key),
			)
		}
		f.Content = content
	}

	if s.store == nil {
		f.Status = cache.StatusUnknown
		return nil
	}
	prev, ok, err := s.store.PreviousHash(ctx, f.Key)
	if err != nil {
		return fmt.Errorf("read previous hash for %s: %w", f.Key, err)
	}
	switch {
	case !ok:
		f.Status = cache.StatusAdded
	case prev == f.Hash:
		f.Status = cache.StatusUnchanged
	default:
		f.Status = cache.StatusChanged
	}
	if err := s.store.RecordHash(ctx, f.Key, f.Hash); err != nil {
		return fmt.Errorf("record hash for %s: %w", f.Key, err)
	}
	return nil
}

// ShouldSendFileContent reports whether the content must travel in the
// request instead of being read by the worker from disk. The worker only
// reads UTF-8, so files in a declared non-UTF-8 charset, invalid UTF-8 and
// explicit requests are sent inline.
func ShouldSendFileContent(data []byte, enc encoding.Encoding, force bool) bool {
	return force || enc != nil || !utf8.Valid(data)
}
