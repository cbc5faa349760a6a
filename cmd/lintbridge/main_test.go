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
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/lintbridge/services/bridge/analysis"
	"github.com/AleutianAI/lintbridge/services/bridge/bridge"
	"github.com/AleutianAI/lintbridge/services/bridge/bridgetest"
	"github.com/AleutianAI/lintbridge/services/bridge/bundle"
	"github.com/AleutianAI/lintbridge/services/bridge/config"
	"github.com/AleutianAI/lintbridge/services/bridge/nodejs"
)

// The test binary doubles as the node executable when fakeNodeEnv is set:
// `-v` prints a version, a script argument starts a fake worker.
const (
	fakeNodeEnv        = "LINTBRIDGE_FAKE_NODE"
	fakeNodeVersionEnv = "LINTBRIDGE_FAKE_NODE_VERSION"
)

func TestMain(m *testing.M) {
	if os.Getenv(fakeNodeEnv) == "1" {
		os.Exit(runFakeNode(os.Args[1:]))
	}
	os.Exit(m.Run())
}

func runFakeNode(args []string) int {
	for len(args) > 0 && strings.HasPrefix(args[0], "--") {
		args = args[1:]
	}
	if len(args) == 0 {
		return 2
	}
	if args[0] == "-v" {
		v := os.Getenv(fakeNodeVersionEnv)
		if v == "" {
			v = "v18.17.1"
		}
		fmt.Println(v)
		return 0
	}

	// script port host workDir allowTsParserJsFiles editorMode bundles
	if len(args) < 7 {
		return 2
	}
	w := bridgetest.NewWorker()
	w.OnAnalyze(func(_ string, req bridge.AnalysisRequest) (bridge.AnalysisResponse, error) {
		content := req.FileContent
		if content == "" {
			data, err := os.ReadFile(req.FilePath)
			if err != nil {
				return bridge.AnalysisResponse{}, err
			}
			content = string(data)
		}
		resp := bridge.AnalysisResponse{Issues: []bridge.Issue{}}
		if strings.Contains(content, "eval(") {
			resp.Issues = append(resp.Issues, bridge.Issue{Line: 1, Column: 0, Message: "Remove this use of eval.", RuleID: "no-eval"})
		}
		if strings.Contains(content, "{{{") {
			resp.ParsingError = &bridge.ParsingError{Message: "Unexpected token", Code: bridge.ParsingErrorParsing}
		}
		return resp, nil
	})
	if err := bridgetest.Serve(context.Background(), net.JoinHostPort(args[2], args[1]), w); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// =============================================================================
// HELPERS
// =============================================================================

// resetFlags restores every package-level flag after the test.
func resetFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		configPath, logLevel, logDir, logJSON, outputStyle = "", "", "", false, "machine"
		analyzeOutput, analyzeFailOnIssues, analyzeNoCache, analyzeMode = "", false, false, ""
		analyzeVerbose, analyzeMetricsFile, analyzeTrace, analyzeOtelMetrics = false, "", false, false
		analyzeTimeout = 0
		initForce = false
	}
	reset()
	t.Cleanup(reset)
}

// tempFile returns a file to stand in for stdout or stderr.
func tempFile(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func contents(t *testing.T, f *os.File) string {
	t.Helper()
	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	return string(data)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// writeBundle writes a gzip tar holding the worker entry point.
func writeBundle(t *testing.T, path string, extra ...string) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	body := "#!/usr/bin/env node\n"
	for _, name := range append([]string{"package/bin/server"}, extra...) {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o755, Size: int64(len(body))}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	writeFile(t, path, buf.String())
}

// newProject lays out a project analyzed by the fake node executable.
func newProject(t *testing.T, nodeVersion string) string {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)

	dir := t.TempDir()
	writeBundle(t, filepath.Join(dir, "bridge.tgz"))
	writeFile(t, filepath.Join(dir, "lintbridge.yaml"), fmt.Sprintf(`nodejs:
  executable: %q
  min_version: "14.17.0"
  env:
    %s: "1"
    %s: %q
bridge:
  startup_timeout: 10s
  shutdown_timeout: 5s
logging:
  level: debug
  quiet: true
`, exe, fakeNodeEnv, fakeNodeVersionEnv, nodeVersion))

	writeFile(t, filepath.Join(dir, "src", "app.js"), "eval('1 + 1');\n")
	writeFile(t, filepath.Join(dir, "src", "app.test.js"), "test('ok', () => {});\n")
	writeFile(t, filepath.Join(dir, "src", "util.ts"), "export const x: number = 1;\n")
	writeFile(t, filepath.Join(dir, "node_modules", "dep", "index.js"), "eval('dep');\n")
	writeFile(t, filepath.Join(dir, "README.md"), "# project\n")
	return dir
}

func readReport(t *testing.T, path string) Report {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var r Report
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

// =============================================================================
// ANALYZE TESTS
// =============================================================================

func TestAnalyze_EndToEnd(t *testing.T) {
	resetFlags(t)
	dir := newProject(t, "v18.17.1")
	reportPath := filepath.Join(t.TempDir(), "report.json")
	analyzeOutput = reportPath
	analyzeMetricsFile = filepath.Join(t.TempDir(), "lintbridge.prom")

	stdout := tempFile(t, "stdout")
	code := analyzeMain(context.Background(), []string{dir}, stdout, tempFile(t, "stderr"))
	require.Equal(t, ExitSuccess, code, contents(t, stdout))

	r := readReport(t, reportPath)
	assert.Equal(t, "completed", r.State)
	assert.Equal(t, 3, r.Summary.Files)
	assert.Equal(t, 3, r.Summary.Analyzed)
	assert.Equal(t, 0, r.Summary.Replayed)
	assert.Equal(t, 1, r.Summary.Issues)

	require.Len(t, r.Files, 3)
	assert.Equal(t, "src/app.js", r.Files[0].Path)
	assert.Equal(t, "MAIN", r.Files[0].Type)
	assert.Equal(t, "added", r.Files[0].Status)
	require.Len(t, r.Files[0].Issues, 1)
	assert.Equal(t, "no-eval", r.Files[0].Issues[0].RuleID)
	assert.Equal(t, "src/app.test.js", r.Files[1].Path)
	assert.Equal(t, "TEST", r.Files[1].Type)
	assert.Equal(t, "src/util.ts", r.Files[2].Path)
	assert.Equal(t, "typescript", r.Files[2].Language)

	assert.Contains(t, contents(t, stdout), "SUMMARY: files=3 analyzed=3 cached=0 issues=1 parse-errors=0")

	metrics, err := os.ReadFile(analyzeMetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "lintbridge_analysis_files_total")

	// Second run: nothing changed, everything is replayed.
	code = analyzeMain(context.Background(), []string{dir}, tempFile(t, "stdout2"), tempFile(t, "stderr2"))
	require.Equal(t, ExitSuccess, code)

	r = readReport(t, reportPath)
	assert.Equal(t, 0, r.Summary.Analyzed)
	assert.Equal(t, 3, r.Summary.Replayed)
	assert.Equal(t, 1, r.Summary.Issues, "replayed issues are reported again")
	for _, f := range r.Files {
		assert.True(t, f.Replayed, f.Path)
		assert.Equal(t, "unchanged", f.Status, f.Path)
	}

	// Third run: one file changed.
	writeFile(t, filepath.Join(dir, "src", "util.ts"), "export const x = eval('1');\n")
	analyzeFailOnIssues = true
	code = analyzeMain(context.Background(), []string{dir}, tempFile(t, "stdout3"), tempFile(t, "stderr3"))
	assert.Equal(t, ExitIssuesFound, code)

	r = readReport(t, reportPath)
	assert.Equal(t, 1, r.Summary.Analyzed)
	assert.Equal(t, 2, r.Summary.Replayed)
	assert.Equal(t, 2, r.Summary.Issues)
}

func TestAnalyze_ModeChangeInvalidatesCache(t *testing.T) {
	resetFlags(t)
	dir := newProject(t, "v18.17.1")
	analyzeOutput = filepath.Join(t.TempDir(), "report.json")

	analyzeMode = "skip-unchanged"
	code := analyzeMain(context.Background(), []string{dir}, tempFile(t, "stdout"), tempFile(t, "stderr"))
	require.Equal(t, ExitSuccess, code)

	analyzeMode = "default"
	code = analyzeMain(context.Background(), []string{dir}, tempFile(t, "stdout2"), tempFile(t, "stderr2"))
	require.Equal(t, ExitSuccess, code)

	r := readReport(t, analyzeOutput)
	assert.Equal(t, 3, r.Summary.Analyzed)
	assert.Equal(t, 0, r.Summary.Replayed)
	for _, f := range r.Files {
		assert.Equal(t, "unchanged", f.Status, f.Path)
	}
}

func TestAnalyze_NoCacheAnalyzesEverything(t *testing.T) {
	resetFlags(t)
	dir := newProject(t, "v18.17.1")
	analyzeNoCache = true
	analyzeOutput = filepath.Join(t.TempDir(), "report.json")

	for i := 0; i < 2; i++ {
		code := analyzeMain(context.Background(), []string{dir}, tempFile(t, "stdout"), tempFile(t, "stderr"))
		require.Equal(t, ExitSuccess, code)
		r := readReport(t, analyzeOutput)
		assert.Equal(t, 3, r.Summary.Analyzed, "run %d", i)
		assert.Equal(t, 0, r.Summary.Replayed, "run %d", i)
	}
	_, err := os.Stat(filepath.Join(dir, ".lintbridge", "cache"))
	assert.True(t, os.IsNotExist(err), "cache directory must not be created")
}

func TestAnalyze_ReportToStdout(t *testing.T) {
	resetFlags(t)
	dir := newProject(t, "v18.17.1")
	analyzeOutput = "-"

	stdout, stderr := tempFile(t, "stdout"), tempFile(t, "stderr")
	code := analyzeMain(context.Background(), []string{dir}, stdout, stderr)
	require.Equal(t, ExitSuccess, code)

	var r Report
	require.NoError(t, json.Unmarshal([]byte(contents(t, stdout)), &r))
	assert.Equal(t, 3, r.Summary.Files)
	assert.Contains(t, contents(t, stderr), "SUMMARY:")
}

func TestAnalyze_ParsingErrorFailsOnIssues(t *testing.T) {
	resetFlags(t)
	dir := newProject(t, "v18.17.1")
	writeFile(t, filepath.Join(dir, "src", "app.js"), "function {{{\n")
	writeFile(t, filepath.Join(dir, "src", "util.ts"), "export {};\n")
	analyzeOutput = filepath.Join(t.TempDir(), "report.json")
	analyzeFailOnIssues = true

	code := analyzeMain(context.Background(), []string{dir}, tempFile(t, "stdout"), tempFile(t, "stderr"))
	assert.Equal(t, ExitIssuesFound, code)

	r := readReport(t, analyzeOutput)
	assert.Equal(t, 1, r.Summary.ParsingErrors)
	require.NotNil(t, r.Files[0].ParsingError)
	assert.Equal(t, bridge.ParsingErrorParsing, r.Files[0].ParsingError.Code)
}

func TestAnalyze_NodeTooOld(t *testing.T) {
	resetFlags(t)
	dir := newProject(t, "v12.22.0")

	stdout := tempFile(t, "stdout")
	code := analyzeMain(context.Background(), []string{dir}, stdout, tempFile(t, "stderr"))
	assert.Equal(t, ExitError, code)
	assert.Contains(t, contents(t, stdout), "14.17")
}

func TestAnalyze_MissingBundle(t *testing.T) {
	resetFlags(t)
	dir := newProject(t, "v18.17.1")
	require.NoError(t, os.Remove(filepath.Join(dir, "bridge.tgz")))

	stdout := tempFile(t, "stdout")
	code := analyzeMain(context.Background(), []string{dir}, stdout, tempFile(t, "stderr"))
	assert.Equal(t, ExitError, code)
	assert.Contains(t, contents(t, stdout), "deploy bridge bundle")
}

func TestAnalyze_EmptyProject(t *testing.T) {
	resetFlags(t)
	dir := newProject(t, "v18.17.1")
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "src")))
	analyzeOutput = filepath.Join(t.TempDir(), "report.json")

	code := analyzeMain(context.Background(), []string{dir}, tempFile(t, "stdout"), tempFile(t, "stderr"))
	require.Equal(t, ExitSuccess, code)
	r := readReport(t, analyzeOutput)
	assert.Equal(t, "completed", r.State)
	assert.Empty(t, r.Files)
}

func TestAnalyze_CancelledBeforeStart(t *testing.T) {
	resetFlags(t)
	dir := newProject(t, "v18.17.1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code := analyzeMain(ctx, []string{dir}, tempFile(t, "stdout"), tempFile(t, "stderr"))
	assert.Equal(t, ExitInterrupted, code)
}

func TestAnalyze_InvalidConfig(t *testing.T) {
	resetFlags(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "lintbridge.yaml"), "analysis:\n  mode: sometimes\n")

	stderr := tempFile(t, "stderr")
	code := analyzeMain(context.Background(), []string{dir}, tempFile(t, "stdout"), stderr)
	assert.Equal(t, ExitError, code)
	assert.Contains(t, contents(t, stderr), "invalid configuration")
}

func TestAnalyze_InvalidModeFlag(t *testing.T) {
	resetFlags(t)
	analyzeMode = "fast"

	code := analyzeMain(context.Background(), []string{t.TempDir()}, tempFile(t, "stdout"), tempFile(t, "stderr"))
	assert.Equal(t, ExitError, code)
}

// =============================================================================
// NODE-VERSION AND INIT TESTS
// =============================================================================

func TestNodeVersion(t *testing.T) {
	resetFlags(t)
	dir := newProject(t, "v20.11.0")

	stdout := tempFile(t, "stdout")
	code := nodeVersionMain(context.Background(), []string{dir}, stdout, tempFile(t, "stderr"))
	require.Equal(t, ExitSuccess, code)

	exe, err := os.Executable()
	require.NoError(t, err)
	assert.Equal(t, "20.11\t"+exe+"\n", contents(t, stdout))
}

func TestNodeVersion_Minimal(t *testing.T) {
	resetFlags(t)
	outputStyle = "minimal"
	dir := newProject(t, "v18.17.1")

	stdout := tempFile(t, "stdout")
	code := nodeVersionMain(context.Background(), []string{dir}, stdout, tempFile(t, "stderr"))
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, contents(t, stdout), "Node.js v18.17.1")
	assert.Contains(t, contents(t, stdout), "minimum supported: v14.17.0")
}

func TestNodeVersion_TooOld(t *testing.T) {
	resetFlags(t)
	dir := newProject(t, "v14.16.9")

	stdout := tempFile(t, "stdout")
	code := nodeVersionMain(context.Background(), []string{dir}, stdout, tempFile(t, "stderr"))
	assert.Equal(t, ExitError, code)
	assert.Contains(t, contents(t, stdout), "Only Node.js v14.17 or later is supported")
}

func TestInit(t *testing.T) {
	resetFlags(t)
	dir := t.TempDir()

	code := initMain([]string{dir}, tempFile(t, "stdout"), tempFile(t, "stderr"))
	require.Equal(t, ExitSuccess, code)
	_, err := os.Stat(filepath.Join(dir, "lintbridge.yaml"))
	require.NoError(t, err)

	stderr := tempFile(t, "stderr2")
	code = initMain([]string{dir}, tempFile(t, "stdout2"), stderr)
	assert.Equal(t, ExitError, code)
	assert.Contains(t, contents(t, stderr), "already exists")

	initForce = true
	code = initMain([]string{dir}, tempFile(t, "stdout3"), tempFile(t, "stderr3"))
	assert.Equal(t, ExitSuccess, code)
}

func TestRootCommand_Registered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"analyze", "node-version", "init"} {
		assert.True(t, names[want], want)
	}
}

// =============================================================================
// UNIT TESTS
// =============================================================================

// deployTestBundle deploys a bundle holding the start script and extra.
func deployTestBundle(t *testing.T, extra ...string) *bundle.Bundle {
	t.Helper()
	dir := t.TempDir()
	archive := filepath.Join(dir, "bridge.tgz")
	writeBundle(t, archive, extra...)
	deployed, err := bundle.NewDeployer(filepath.Join(dir, "deploy"), bundle.FileOpener(archive)).Deploy(context.Background())
	require.NoError(t, err)
	return deployed
}

func TestWorkerNodeConfig_MacUsesBundledRunNode(t *testing.T) {
	deployed := deployTestBundle(t, nodejs.DefaultMacExecutable)
	cfg := config.DefaultConfig()
	cfg.Nodejs.MinVersion = ""

	nodeCfg, err := workerNodeConfig(&cfg, deployed)
	require.NoError(t, err)
	nodeCfg.Script = deployed.StartScript()

	cmd, err := nodejs.NewCommand(context.Background(), nodeCfg, nodejs.WithPlatform(nodejs.PlatformMac))
	require.NoError(t, err)
	assert.Equal(t, deployed.Resolve(nodejs.DefaultMacExecutable), cmd.Args()[0])
}

func TestWorkerNodeConfig_MacRunNodeMissing(t *testing.T) {
	deployed := deployTestBundle(t)
	cfg := config.DefaultConfig()
	cfg.Nodejs.MinVersion = ""

	nodeCfg, err := workerNodeConfig(&cfg, deployed)
	require.NoError(t, err)
	nodeCfg.Script = deployed.StartScript()

	_, err = nodejs.NewCommand(context.Background(), nodeCfg, nodejs.WithPlatform(nodejs.PlatformMac))
	require.Error(t, err)
	assert.ErrorIs(t, err, nodejs.ErrConfiguration)
	assert.Equal(t, "Default Node.js executable for MacOS does not exist.", err.Error())
}

func TestWorkerNodeConfig_ExecutableOverrideWins(t *testing.T) {
	deployed := deployTestBundle(t, nodejs.DefaultMacExecutable)
	exe, err := os.Executable()
	require.NoError(t, err)
	cfg := config.DefaultConfig()
	cfg.Nodejs.MinVersion = ""
	cfg.Nodejs.Executable = exe

	nodeCfg, err := workerNodeConfig(&cfg, deployed)
	require.NoError(t, err)
	nodeCfg.Script = deployed.StartScript()

	cmd, err := nodejs.NewCommand(context.Background(), nodeCfg, nodejs.WithPlatform(nodejs.PlatformMac))
	require.NoError(t, err)
	assert.Equal(t, exe, cmd.Args()[0])
}

func TestAnalysisSettingsDigest(t *testing.T) {
	cfg := config.DefaultConfig()
	settingsOf := func(c *config.Config) analysis.LinterSettings {
		return analysis.LinterSettings{
			Rules:        c.BridgeRules(),
			Environments: c.Analysis.Environments,
			Globals:      c.Analysis.Globals,
			Mode:         c.AnalysisMode(),
		}
	}

	base, err := analysisSettingsDigest(&cfg, settingsOf(&cfg), nil)
	require.NoError(t, err)
	again, err := analysisSettingsDigest(&cfg, settingsOf(&cfg), nil)
	require.NoError(t, err)
	assert.Equal(t, base, again)

	withRule := cfg
	withRule.Analysis.Rules = []config.Rule{{Key: "no-eval"}}
	d, err := analysisSettingsDigest(&withRule, settingsOf(&withRule), nil)
	require.NoError(t, err)
	assert.NotEqual(t, base, d, "rules")

	withGlobal := cfg
	withGlobal.Analysis.Globals = []string{"jQuery"}
	d, err = analysisSettingsDigest(&withGlobal, settingsOf(&withGlobal), nil)
	require.NoError(t, err)
	assert.NotEqual(t, base, d, "globals")

	d, err = analysisSettingsDigest(&cfg, settingsOf(&cfg), []string{"/rules/custom.tgz"})
	require.NoError(t, err)
	assert.NotEqual(t, base, d, "rule bundles")

	withEncoding := cfg
	withEncoding.Analysis.Encoding = "latin1"
	d, err = analysisSettingsDigest(&withEncoding, settingsOf(&withEncoding), nil)
	require.NoError(t, err)
	assert.NotEqual(t, base, d, "encoding")
}

func TestExitCode(t *testing.T) {
	withIssues := &Report{Summary: ReportSummary{Issues: 2}}
	clean := &Report{}

	tests := []struct {
		name         string
		report       *Report
		err          error
		failOnIssues bool
		want         int
	}{
		{"clean", clean, nil, true, ExitSuccess},
		{"issues ignored", withIssues, nil, false, ExitSuccess},
		{"issues fail", withIssues, nil, true, ExitIssuesFound},
		{"cancelled", clean, fmt.Errorf("run: %w", context.Canceled), false, ExitInterrupted},
		{"cancelled during startup", nil, fmt.Errorf("start bridge worker: bridge worker startup interrupted: %w", context.Canceled), false, ExitInterrupted},
		{"error", nil, fmt.Errorf("boom"), true, ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.report, tt.err, tt.failOnIssues))
		})
	}
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/p", "a.tgz"), resolvePath("/p", "a.tgz"))
	assert.Equal(t, "/abs/a.tgz", resolvePath("/p", "/abs/a.tgz"))
	assert.Equal(t, "", resolvePath("/p", ""))
}

func TestFileDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.tgz")
	writeFile(t, path, "bundle v1")
	d1, err := fileDigest(path)
	require.NoError(t, err)
	assert.Len(t, d1, 12)

	writeFile(t, path, "bundle v2")
	d2, err := fileDigest(path)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)

	_, err = fileDigest(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestBuildReport_WithoutBatch(t *testing.T) {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := buildReport("/p", started, nil, nil, nil)
	assert.Equal(t, ReportVersion, r.Version)
	assert.Equal(t, "completed", r.State)
	assert.NotNil(t, r.Files)
	assert.Equal(t, started, r.StartedAt)
}
