// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package inputs_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/AleutianAI/lintbridge/services/bridge/bridge"
	"github.com/AleutianAI/lintbridge/services/bridge/cache"
	"github.com/AleutianAI/lintbridge/services/bridge/inputs"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func keys(files []inputs.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Key
	}
	return out
}

func TestSelect_FiltersAndClassifies(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/b.ts":                  "let b: number = 1;",
		"src/a.js":                  "var a = 1;",
		"src/a.test.js":             "test();",
		"src/__tests__/c.tsx":       "<div/>",
		"src/readme.md":             "# docs",
		"node_modules/lib/index.js": "module.exports = 1;",
		".hidden/x.js":              "x();",
		"web/.eslintrc.js":          "module.exports = {};",
		"vendor/jquery.js":          "jq();",
		"web/component.vue":         "<template/>",
	})

	sel, err := inputs.NewSelector(dir)
	require.NoError(t, err)

	got, err := sel.Select(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.Errors)
	assert.Equal(t, []string{
		"src/__tests__/c.tsx",
		"src/a.js",
		"src/a.test.js",
		"src/b.ts",
		"web/component.vue",
	}, keys(got.Files))

	byKey := map[string]inputs.File{}
	for _, f := range got.Files {
		byKey[f.Key] = f
	}
	assert.Equal(t, bridge.FileTypeTest, byKey["src/__tests__/c.tsx"].Type)
	assert.Equal(t, inputs.LanguageTypeScript, byKey["src/__tests__/c.tsx"].Language)
	assert.Equal(t, bridge.FileTypeMain, byKey["src/a.js"].Type)
	assert.Equal(t, inputs.LanguageJavaScript, byKey["src/a.js"].Language)
	assert.Equal(t, bridge.FileTypeTest, byKey["src/a.test.js"].Type)
	assert.Equal(t, filepath.Join(dir, "src", "a.js"), byKey["src/a.js"].Path)
	assert.Equal(t, cache.StatusUnknown, byKey["src/a.js"].Status)
	assert.Len(t, byKey["src/a.js"].Hash, 64)
	assert.Empty(t, byKey["src/a.js"].Content)
}

func TestSelect_StatusAcrossRuns(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"same.js":    "same();",
		"changed.js": "before();",
	})

	store, err := cache.OpenInMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sel, err := inputs.NewSelector(dir, inputs.WithHashStore(store))
	require.NoError(t, err)

	first, err := sel.Select(ctx)
	require.NoError(t, err)
	for _, f := range first.Files {
		assert.Equal(t, cache.StatusAdded, f.Status, f.Key)
	}
	require.NoError(t, store.Commit(ctx))

	writeFiles(t, dir, map[string]string{
		"changed.js": "after();",
		"new.js":     "fresh();",
	})

	second, err := sel.Select(ctx)
	require.NoError(t, err)
	status := map[string]cache.FileStatus{}
	for _, f := range second.Files {
		status[f.Key] = f.Status
	}
	assert.Equal(t, map[string]cache.FileStatus{
		"changed.js": cache.StatusChanged,
		"new.js":     cache.StatusAdded,
		"same.js":    cache.StatusUnchanged,
	}, status)
}

func TestSelect_Roots(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"app/a.js": "a();",
		"lib/b.js": "b();",
		"etc/c.js": "c();",
	})
	sel, err := inputs.NewSelector(dir)
	require.NoError(t, err)

	got, err := sel.Select(context.Background(), "lib", "app", "app")
	require.NoError(t, err)
	assert.Equal(t, []string{"app/a.js", "lib/b.js"}, keys(got.Files))

	_, err = sel.Select(context.Background(), "../outside")
	assert.ErrorIs(t, err, inputs.ErrInvalidRoot)

	_, err = sel.Select(context.Background(), "missing")
	assert.ErrorIs(t, err, inputs.ErrInvalidRoot)
}

func TestSelect_CustomPatterns(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/a.js":          "a();",
		"src/gen/b.js":      "b();",
		"test/c.js":         "c();",
		"node_modules/d.js": "d();",
	})
	sel, err := inputs.NewSelector(dir,
		inputs.WithExclusions("src/gen/**"),
		inputs.WithTestPatterns("test/**"),
	)
	require.NoError(t, err)

	got, err := sel.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"node_modules/d.js", "src/a.js", "test/c.js"}, keys(got.Files))
	assert.Equal(t, bridge.FileTypeTest, got.Files[2].Type)
}

func TestSelect_TooLarge(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"small.js": "a();",
		"big.js":   "0123456789abcdef",
	})
	sel, err := inputs.NewSelector(dir, inputs.WithMaxFileSize(8))
	require.NoError(t, err)

	got, err := sel.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"small.js"}, keys(got.Files))
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "big.js", got.Errors[0].Path)
	assert.ErrorIs(t, got.Errors[0], inputs.ErrFileTooLarge)
}

func TestSelect_SendsNonUTF8Content(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"latin1.js": "var s = '\xe9t\xe9';",
		"utf8.js":   "var s = 'été';",
	})
	sel, err := inputs.NewSelector(dir)
	require.NoError(t, err)

	got, err := sel.Select(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Files, 2)
	assert.Equal(t, "var s = '\uFFFDt\uFFFD';", got.Files[0].Content)
	assert.True(t, utf8.ValidString(got.Files[0].Content))
	assert.Empty(t, got.Files[1].Content)

	forced, err := inputs.NewSelector(dir, inputs.WithSendContent(true))
	require.NoError(t, err)
	got, err = forced.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "var s = 'été';", got.Files[1].Content)
}

func TestSelect_DecodesDeclaredEncoding(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"latin1.js": "var s = 'caf\xe9';\n",
		"ascii.js":  "var a = 1;\n",
	})
	enc, err := inputs.LookupEncoding("latin1")
	require.NoError(t, err)
	sel, err := inputs.NewSelector(dir, inputs.WithEncoding(enc))
	require.NoError(t, err)

	got, err := sel.Select(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Files, 2)
	assert.Equal(t, "var a = 1;\n", got.Files[0].Content)
	assert.Equal(t, "var s = 'café';\n", got.Files[1].Content)

	// The hash is computed over the bytes on disk, not the decoded text.
	sum := sha256.Sum256([]byte("var s = 'caf\xe9';\n"))
	assert.Equal(t, hex.EncodeToString(sum[:]), got.Files[1].Hash)
}

func TestSelect_DeclaredEncodingWithCharmap(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"euro.js": "var p = '\x80 5';"})
	sel, err := inputs.NewSelector(dir, inputs.WithEncoding(charmap.Windows1252))
	require.NoError(t, err)

	got, err := sel.Select(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "var p = '€ 5';", got.Files[0].Content)
}

func TestLookupEncoding(t *testing.T) {
	tests := []struct {
		label   string
		wantNil bool
		wantErr error
	}{
		{label: "", wantNil: true},
		{label: "utf-8", wantNil: true},
		{label: "UTF8", wantNil: true},
		{label: "latin1"},
		{label: " windows-1252 "},
		{label: "shift_jis"},
		{label: "klingon", wantErr: inputs.ErrUnknownEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			enc, err := inputs.LookupEncoding(tt.label)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, enc)
			} else {
				assert.NotNil(t, enc)
			}
		})
	}
}

func TestSelect_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.js": "a();"})
	sel, err := inputs.NewSelector(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sel.Select(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type brokenStore struct{}

func (brokenStore) PreviousHash(context.Context, string) (string, bool, error) {
	return "", false, errors.New("store unavailable")
}

func (brokenStore) RecordHash(context.Context, string, string) error { return nil }

func TestSelect_HashStoreFailure(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.js": "a();"})
	sel, err := inputs.NewSelector(dir, inputs.WithHashStore(brokenStore{}))
	require.NoError(t, err)

	_, err = sel.Select(context.Background())
	assert.ErrorContains(t, err, "store unavailable")
}

func TestNewSelector_InvalidBase(t *testing.T) {
	_, err := inputs.NewSelector(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, inputs.ErrInvalidRoot)

	f := filepath.Join(t.TempDir(), "file.js")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	_, err = inputs.NewSelector(f)
	assert.ErrorIs(t, err, inputs.ErrInvalidRoot)
}

func TestShouldSendFileContent(t *testing.T) {
	assert.False(t, inputs.ShouldSendFileContent([]byte("plain"), nil, false))
	assert.True(t, inputs.ShouldSendFileContent([]byte("plain"), nil, true))
	assert.True(t, inputs.ShouldSendFileContent([]byte{0xff, 0xfe}, nil, false))
	assert.True(t, inputs.ShouldSendFileContent([]byte("plain"), charmap.ISO8859_1, false))
}

func TestLanguageOf(t *testing.T) {
	lang, ok := inputs.LanguageOf("Component.TSX")
	assert.True(t, ok)
	assert.Equal(t, inputs.LanguageTypeScript, lang)

	_, ok = inputs.LanguageOf("style.css")
	assert.False(t, ok)
}
