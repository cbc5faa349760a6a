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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/AleutianAI/lintbridge/services/bridge/bridge"
)

// SchemaVersion is bumped whenever the Entry layout or its meaning changes.
// Entries written with another schema are never replayed.
const SchemaVersion = 1

var (
	// ErrNoCachedAnalysis indicates a replay was requested from a strategy
	// that does not hold a previous entry.
	ErrNoCachedAnalysis = errors.New("no cached analysis for file")

	// ErrStoreClosed indicates the store was used after Close.
	ErrStoreClosed = errors.New("cache store closed")
)

// FileStatus is a file's change status relative to the previous run.
type FileStatus int

const (
	// StatusUnknown means no previous run information is available.
	StatusUnknown FileStatus = iota

	// StatusAdded means the file did not exist in the previous run.
	StatusAdded

	// StatusChanged means the file content differs from the previous run.
	StatusChanged

	// StatusUnchanged means the file content is identical to the previous run.
	StatusUnchanged
)

var fileStatusNames = []string{"unknown", "added", "changed", "unchanged"}

// String returns the status name.
func (s FileStatus) String() string {
	if int(s) < len(fileStatusNames) && s >= 0 {
		return fileStatusNames[s]
	}
	return "unknown"
}

// Entry is a cached analysis result for one file. Entries are immutable
// once written.
type Entry struct {
	// SchemaVersion identifies the schema and worker that produced the entry.
	SchemaVersion string `json:"schemaVersion"`

	// FileKey is the project-relative key of the file.
	FileKey string `json:"fileKey"`

	// Diagnostics are the issues reported for the file.
	Diagnostics []bridge.Issue `json:"diagnostics"`

	// DuplicationTokens are the copy-paste detection tokens.
	DuplicationTokens []bridge.CpdToken `json:"duplicationTokens"`

	// UcfgPaths are auxiliary artifacts produced by the worker.
	UcfgPaths []string `json:"ucfgPaths,omitempty"`
}

// EntryFromResponse builds an Entry from a live analysis.
func EntryFromResponse(version, key string, resp *bridge.AnalysisResponse) Entry {
	e := Entry{SchemaVersion: version, FileKey: key}
	if resp == nil {
		return e
	}
	e.Diagnostics = resp.Issues
	e.DuplicationTokens = resp.CpdTokens
	e.UcfgPaths = resp.UcfgPaths
	return e
}

// Response converts the entry back to the shape of a live analysis.
func (e *Entry) Response() *bridge.AnalysisResponse {
	return &bridge.AnalysisResponse{
		Issues:    e.Diagnostics,
		CpdTokens: e.DuplicationTokens,
		UcfgPaths: e.UcfgPaths,
	}
}

// versionTag combines SchemaVersion with the worker version and the
// analysis settings digest so an upgraded worker or a rule change
// invalidates every entry.
func versionTag(workerVersion, settings string) string {
	tag := strconv.Itoa(SchemaVersion)
	if workerVersion != "" {
		tag += "+" + workerVersion
	}
	if settings != "" {
		tag += "#" + settings
	}
	return tag
}

// SettingsDigest returns a short stable hash of the JSON encoding of v.
// Pass everything that shapes an analysis result: rules, environments,
// globals, analysis mode.
func SettingsDigest(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("digest analysis settings: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12], nil
}
