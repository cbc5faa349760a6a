// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AleutianAI/lintbridge/pkg/ux"
	"github.com/AleutianAI/lintbridge/services/bridge/analysis"
	"github.com/AleutianAI/lintbridge/services/bridge/bridge"
	"github.com/AleutianAI/lintbridge/services/bridge/inputs"
)

// ReportVersion is bumped when the report layout changes incompatibly.
const ReportVersion = 1

// =============================================================================
// REPORT TYPES
// =============================================================================

// Report is the JSON document written by `lintbridge analyze`.
type Report struct {
	Version   int           `json:"version"`
	Project   string        `json:"project"`
	State     string        `json:"state"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	Summary   ReportSummary `json:"summary"`
	Files     []FileReport  `json:"files"`
	Skipped   []SkippedFile `json:"skipped,omitempty"`
}

// ReportSummary holds the batch counters.
type ReportSummary struct {
	Files         int   `json:"files"`
	Analyzed      int   `json:"analyzed"`
	Replayed      int   `json:"replayed"`
	Issues        int   `json:"issues"`
	ParsingErrors int   `json:"parsingErrors"`
	Skipped       int   `json:"skipped"`
	DurationMs    int64 `json:"durationMs"`
}

// FileReport is the outcome for one processed file.
type FileReport struct {
	Path         string               `json:"path"`
	Language     string               `json:"language"`
	Type         string               `json:"type"`
	Status       string               `json:"status"`
	Replayed     bool                 `json:"replayed"`
	Issues       []bridge.Issue       `json:"issues"`
	ParsingError *bridge.ParsingError `json:"parsingError,omitempty"`
}

// SkippedFile is a selected file that could not be read.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// =============================================================================
// REPORT SINK
// =============================================================================

// reportSink collects orchestrator results into FileReports.
//
// Thread Safety: Safe for concurrent use.
type reportSink struct {
	mu    sync.Mutex
	files []FileReport
}

// Accept implements analysis.ResultSink.
func (s *reportSink) Accept(_ context.Context, result analysis.FileResult) error {
	if result.Response == nil {
		return errors.New("result without response for " + result.File.Key)
	}
	issues := result.Response.Issues
	if issues == nil {
		issues = []bridge.Issue{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, FileReport{
		Path:         result.File.Key,
		Language:     string(result.File.Language),
		Type:         string(result.File.Type),
		Status:       result.File.Status.String(),
		Replayed:     result.Replayed,
		Issues:       issues,
		ParsingError: result.Response.ParsingError,
	})
	return nil
}

func (s *reportSink) reports() []FileReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FileReport, len(s.files))
	copy(out, s.files)
	return out
}

// buildReport assembles the report of one run. res may be nil when the
// batch never ran.
func buildReport(project string, started time.Time, sink *reportSink, skipped []inputs.ScanError, res *analysis.BatchResult) *Report {
	r := &Report{
		Version:   ReportVersion,
		Project:   project,
		State:     analysis.StateCompleted.String(),
		StartedAt: started.UTC(),
		Files:     []FileReport{},
	}
	if sink != nil {
		r.Files = sink.reports()
	}
	for _, s := range skipped {
		r.Skipped = append(r.Skipped, SkippedFile{Path: s.Path, Reason: s.Err.Error()})
	}

	r.Summary.Skipped = len(r.Skipped)
	for _, f := range r.Files {
		r.Summary.Issues += len(f.Issues)
		if f.ParsingError != nil {
			r.Summary.ParsingErrors++
		}
	}
	if res != nil {
		r.State = res.State.String()
		r.Summary.Files = res.Total
		r.Summary.Analyzed = res.Analyzed
		r.Summary.Replayed = res.Replayed
		r.Summary.DurationMs = res.Duration.Milliseconds()
		if res.Err != nil {
			r.Error = res.Err.Error()
		}
	}
	return r
}

// =============================================================================
// OUTPUT FUNCTIONS
// =============================================================================

// writeReport writes r as indented JSON to path, or to stdout for "-".
func writeReport(r *Report, path string, stdout io.Writer) error {
	if path == "-" {
		return encodeReport(stdout, r)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := encodeReport(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodeReport(w io.Writer, r *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// printSummary renders the human summary of a run.
func printSummary(p *ux.Printer, r *Report, verbose bool) {
	p.Title("lintbridge analysis of " + r.Project)

	for _, f := range r.Files {
		switch {
		case f.ParsingError != nil:
			p.FileStatus(f.Path, ux.IconError, string(f.ParsingError.Code)+": "+f.ParsingError.Message)
		case len(f.Issues) > 0:
			p.FileStatus(f.Path, ux.IconWarning, pluralize(len(f.Issues), "issue"))
		case verbose && f.Replayed:
			p.FileStatus(f.Path, ux.IconSuccess, "cached")
		case verbose:
			p.FileStatus(f.Path, ux.IconSuccess, "")
		}
	}
	for _, s := range r.Skipped {
		p.FileStatus(s.Path, ux.IconPending, s.Reason)
	}

	p.Summary(
		ux.Stat{Label: "files", Value: r.Summary.Files},
		ux.Stat{Label: "analyzed", Value: r.Summary.Analyzed, Icon: ux.IconSuccess},
		ux.Stat{Label: "cached", Value: r.Summary.Replayed, Icon: ux.IconSuccess},
		ux.Stat{Label: "issues", Value: r.Summary.Issues, Icon: ux.IconWarning},
		ux.Stat{Label: "parse-errors", Value: r.Summary.ParsingErrors, Icon: ux.IconError},
	)

	if r.State == analysis.StateAborted.String() {
		p.Box("Analysis aborted", fmt.Sprintf("%d of %d files processed\n%s",
			r.Summary.Analyzed+r.Summary.Replayed, r.Summary.Files, r.Error), true)
		return
	}
	p.Success(fmt.Sprintf("Analysis completed in %s", time.Duration(r.Summary.DurationMs)*time.Millisecond))
}

func pluralize(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
