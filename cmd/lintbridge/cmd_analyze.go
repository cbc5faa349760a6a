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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/lintbridge/pkg/telemetry"
	"github.com/AleutianAI/lintbridge/services/bridge/analysis"
	"github.com/AleutianAI/lintbridge/services/bridge/bridge"
	"github.com/AleutianAI/lintbridge/services/bridge/bundle"
	"github.com/AleutianAI/lintbridge/services/bridge/cache"
	"github.com/AleutianAI/lintbridge/services/bridge/config"
	"github.com/AleutianAI/lintbridge/services/bridge/inputs"
	"github.com/AleutianAI/lintbridge/services/bridge/nodejs"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	analyzeOutput       string
	analyzeFailOnIssues bool
	analyzeNoCache      bool
	analyzeMode         string
	analyzeVerbose      bool
	analyzeMetricsFile  string
	analyzeTrace        bool
	analyzeOtelMetrics  bool
	analyzeTimeout      time.Duration
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var analyzeCmd = &cobra.Command{
	Use:   "analyze [DIR]",
	Short: "Analyze the JavaScript and TypeScript files of a project",
	Long: `Deploy the bridge bundle, start the worker and analyze every selected
file of DIR (default: the current directory).

Files are processed one at a time in path order. The run stops at the first
file the worker fails on; the cache is only updated by a complete run.

Examples:
  lintbridge analyze                          # Analyze the current directory
  lintbridge analyze ./web --output report.json
  lintbridge analyze --output - --output-style machine
  lintbridge analyze --no-cache --mode skip-unchanged
  lintbridge analyze --metrics-file /var/lib/node_exporter/lintbridge.prom

Exit Codes:
  0   = Analysis completed
  1   = Issues found (only with --fail-on-issues)
  2   = Error (bad configuration, worker failure, aborted batch, --timeout)
  130 = Interrupted`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAnalyzeCommand,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "",
		"Write the JSON report to this file, or - for stdout")
	analyzeCmd.Flags().BoolVar(&analyzeFailOnIssues, "fail-on-issues", false,
		"Exit 1 when any issue or parsing error is reported")
	analyzeCmd.Flags().BoolVar(&analyzeNoCache, "no-cache", false,
		"Analyze every file and leave the cache untouched")
	analyzeCmd.Flags().StringVar(&analyzeMode, "mode", "",
		"Analysis mode: default or skip-unchanged (overrides the config file)")
	analyzeCmd.Flags().BoolVarP(&analyzeVerbose, "verbose", "v", false,
		"List clean files in the summary too")
	analyzeCmd.Flags().StringVar(&analyzeMetricsFile, "metrics-file", "",
		"Write Prometheus metrics in textfile format when done")
	analyzeCmd.Flags().BoolVar(&analyzeTrace, "trace", false,
		"Print OpenTelemetry spans to stderr")
	analyzeCmd.Flags().BoolVar(&analyzeOtelMetrics, "otel-metrics", false,
		"Print OpenTelemetry metrics to stderr")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 0,
		"Stop the analysis after this duration (0 = no limit)")

	rootCmd.AddCommand(analyzeCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runAnalyzeCommand(cmd *cobra.Command, args []string) {
	os.Exit(analyzeMain(cmd.Context(), args, os.Stdout, os.Stderr))
}

// analyzeMain runs the analyze command and returns the process exit code.
func analyzeMain(ctx context.Context, args []string, stdout, stderr *os.File) int {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitError
	}

	cfg, err := loadConfig(dir)
	if err == nil {
		err = applyAnalyzeFlags(cfg)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitError
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitError
	}
	defer logger.Close()
	log := logger.Component("analyze")
	log.Debug("Loaded configuration", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if analyzeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, analyzeTimeout)
		defer cancel()
	}

	shutdown, err := telemetry.Init(ctx, telemetryConfig(stderr))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitError
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to flush telemetry", slog.String("error", err.Error()))
		}
	}()

	report, runErr := analyzeProject(ctx, dir, cfg, log)

	summaryOut := stdout
	if analyzeOutput == "-" {
		summaryOut = stderr
	}
	if report != nil {
		if analyzeOutput != "" {
			if err := writeReport(report, analyzeOutput, stdout); err != nil {
				log.Error("Failed to write the report", slog.String("error", err.Error()))
				return ExitError
			}
		}
		printSummary(newPrinter(summaryOut), report, analyzeVerbose)
	}
	if runErr != nil && report == nil {
		newPrinter(summaryOut).Error(runErr.Error())
	}

	if analyzeMetricsFile != "" {
		if err := telemetry.WriteMetricsFile(analyzeMetricsFile); err != nil {
			log.Warn("Failed to write metrics", slog.String("error", err.Error()))
		}
	}
	if runErr != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ExitError
	}
	return exitCode(report, runErr, analyzeFailOnIssues)
}

// applyAnalyzeFlags folds command flags into cfg.
func applyAnalyzeFlags(cfg *config.Config) error {
	if analyzeNoCache {
		cfg.Cache.Enabled = false
	}
	if analyzeMode != "" {
		cfg.Analysis.Mode = analyzeMode
	}
	return cfg.Validate()
}

func telemetryConfig(out io.Writer) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	tc.Output = out
	if analyzeTrace {
		tc.TraceExporter = telemetry.ExporterStdout
	}
	if analyzeOtelMetrics {
		tc.MetricExporter = telemetry.ExporterStdout
	}
	return tc
}

// exitCode maps the outcome of a run to the process exit code.
func exitCode(report *Report, err error, failOnIssues bool) int {
	switch {
	case errors.Is(err, analysis.ErrCancelled), errors.Is(err, context.Canceled):
		return ExitInterrupted
	case err != nil:
		return ExitError
	case failOnIssues && report != nil && report.Summary.Issues+report.Summary.ParsingErrors > 0:
		return ExitIssuesFound
	default:
		return ExitSuccess
	}
}

// analyzeProject runs one complete analysis of dir.
//
// Description:
//
//	Deploys the bundle, opens the cache, selects files, starts the worker
//	and runs the batch. The worker is always shut down before returning.
//
// Outputs:
//
//	*Report - Nil when the run failed before file selection finished.
//	error - Setup errors, or the batch error when it aborted.
func analyzeProject(ctx context.Context, dir string, cfg *config.Config, logger *slog.Logger) (*Report, error) {
	started := time.Now()

	bundlePath := resolvePath(dir, cfg.Bridge.Bundle)
	deployer := bundle.NewDeployer(resolvePath(dir, cfg.Bridge.DeployDir), bundle.FileOpener(bundlePath), bundle.WithLogger(logger))
	deployed, err := deployer.Deploy(ctx)
	if err != nil {
		return nil, fmt.Errorf("deploy bridge bundle: %w", err)
	}
	workerVersion, err := fileDigest(bundlePath)
	if err != nil {
		return nil, err
	}

	var (
		store  cache.Store
		hashes inputs.HashStore
	)
	if cfg.Cache.Enabled {
		storeCfg := cache.DefaultStoreConfig(resolvePath(dir, cfg.Cache.Path))
		storeCfg.GCInterval = cfg.Cache.GCInterval
		storeCfg.GCDiscardRatio = cfg.Cache.GCDiscardRatio
		storeCfg.Logger = logger
		bs, err := cache.OpenStore(storeCfg)
		if err != nil {
			return nil, fmt.Errorf("open analysis cache: %w", err)
		}
		defer bs.Close()
		store, hashes = bs, bs
	}

	srcEncoding, err := cfg.SourceEncoding()
	if err != nil {
		return nil, err
	}
	selector, err := inputs.NewSelector(dir, append(selectorOptions(cfg, hashes, logger), inputs.WithEncoding(srcEncoding))...)
	if err != nil {
		return nil, err
	}
	sel, err := selector.Select(ctx, cfg.Analysis.Roots...)
	if err != nil {
		return nil, fmt.Errorf("select files: %w", err)
	}
	if len(sel.Files) == 0 {
		logger.Info("No source files to analyze")
		return buildReport(dir, started, nil, sel.Errors, nil), nil
	}

	nodeCfg, err := workerNodeConfig(cfg, deployed)
	if err != nil {
		return nil, err
	}
	workDir := resolvePath(dir, cfg.Bridge.WorkDir)
	if workDir == "" {
		workDir = deployed.Root()
	}
	bundles := cfg.Bridge
	bundles.AdditionalRuleBundles = make([]string, 0, len(cfg.Bridge.AdditionalRuleBundles))
	for _, b := range cfg.Bridge.AdditionalRuleBundles {
		bundles.AdditionalRuleBundles = append(bundles.AdditionalRuleBundles, resolvePath(dir, b))
	}

	srv := bridge.NewServer(deployed.StartScript(), bridge.ServerConfig{
		Host:                 cfg.Bridge.Host,
		Port:                 cfg.Bridge.Port,
		WorkDir:              workDir,
		AllowTsParserJsFiles: cfg.Bridge.AllowTsParserJsFiles,
		StartupTimeout:       cfg.Bridge.StartupTimeout,
		ShutdownTimeout:      cfg.Bridge.ShutdownTimeout,
		Node:                 nodeCfg,
	},
		bridge.WithRuleBundles(bundles),
		bridge.WithServerLogger(logger),
		bridge.WithNodeOptions(nodejs.WithLogger(logger)),
		bridge.WithClientOptions(
			bridge.WithRequestTimeout(cfg.Bridge.RequestTimeout),
			bridge.WithUnchangedRuleKeys(cfg.Analysis.UnchangedRules...),
			bridge.WithClientLogger(logger),
		),
	)
	if err := srv.Start(ctx); err != nil {
		return nil, fmt.Errorf("start bridge worker: %w", err)
	}
	defer func() {
		// The batch context may already be cancelled; shutdown still runs.
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*cfg.Bridge.ShutdownTimeout)
		defer cancel()
		srv.Close(closeCtx)
	}()

	client, err := srv.Client()
	if err != nil {
		return nil, err
	}

	sink := &reportSink{}
	opts := []analysis.Option{
		analysis.WithProgressInterval(cfg.Analysis.ProgressInterval),
		analysis.WithProgress(analysis.ProgressFunc(func(p analysis.Progress) {
			logger.Info(fmt.Sprintf("%d/%d source files have been analyzed", p.Done, p.Total),
				slog.String("current", p.Current))
		})),
		analysis.WithLogger(logger),
	}
	switch {
	case len(cfg.Analysis.TsConfigs) > 0:
		paths := make(analysis.StaticTsConfigs, 0, len(cfg.Analysis.TsConfigs))
		for _, p := range cfg.Analysis.TsConfigs {
			paths = append(paths, resolvePath(dir, p))
		}
		opts = append(opts, analysis.WithTsConfigs(paths))
	case cfg.Analysis.GeneratedTsConfig != "":
		opts = append(opts, analysis.WithTsConfigs(analysis.NewGeneratedTsConfig(client, cfg.Analysis.GeneratedTsConfig)))
	}

	settings := analysis.LinterSettings{
		Rules:                cfg.BridgeRules(),
		Environments:         cfg.Analysis.Environments,
		Globals:              cfg.Analysis.Globals,
		Mode:                 cfg.AnalysisMode(),
		IgnoreHeaderComments: cfg.Analysis.IgnoreHeaderComments,
	}
	settingsDigest, err := analysisSettingsDigest(cfg, settings, bundles.RuleBundles())
	if err != nil {
		return nil, err
	}

	orchestrator := analysis.New(client,
		cache.New(store,
			cache.WithWorkerVersion(workerVersion),
			cache.WithSettingsDigest(settingsDigest),
			cache.WithLogger(logger),
		),
		sink,
		settings,
		opts...,
	)

	res, err := orchestrator.Run(ctx, sel.Files)
	if err != nil {
		if analysis.IsFatal(err) {
			logger.Error("Analysis stopped before all files were processed", slog.String("reason", err.Error()))
		} else {
			logger.Error("Analysis aborted on a file failure", slog.String("error", err.Error()))
		}
	}
	return buildReport(dir, started, sink, sel.Errors, res), err
}

func selectorOptions(cfg *config.Config, hashes inputs.HashStore, logger *slog.Logger) []inputs.SelectorOption {
	opts := []inputs.SelectorOption{
		inputs.WithMaxFileSize(cfg.MaxFileSizeBytes()),
		inputs.WithSendContent(cfg.Analysis.SendContent),
		inputs.WithLogger(logger),
	}
	if hashes != nil {
		opts = append(opts, inputs.WithHashStore(hashes))
	}
	if len(cfg.Analysis.Exclusions) > 0 {
		opts = append(opts, inputs.WithExclusions(cfg.Analysis.Exclusions...))
	}
	if len(cfg.Analysis.TestPatterns) > 0 {
		opts = append(opts, inputs.WithTestPatterns(cfg.Analysis.TestPatterns...))
	}
	return opts
}

// fileDigest returns a short content hash of the bundle. It versions cache
// entries so a new bundle never replays results of an older one.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash bridge bundle: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash bridge bundle: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil))[:12], nil
}

// workerNodeConfig returns the engine configuration of the worker. Paths
// relative to the bundle, such as the macOS run-node default, resolve
// against the deployed bundle.
func workerNodeConfig(cfg *config.Config, deployed *bundle.Bundle) (nodejs.Config, error) {
	nodeCfg, err := cfg.NodeConfig()
	if err != nil {
		return nodejs.Config{}, err
	}
	nodeCfg.PathResolver = deployed.Resolve
	return nodeCfg, nil
}

// analysisSettingsDigest hashes everything besides file content that shapes
// a worker result, so cached entries never outlive a rule or mode change.
func analysisSettingsDigest(cfg *config.Config, settings analysis.LinterSettings, ruleBundles []string) (string, error) {
	return cache.SettingsDigest(struct {
		Rules                []bridge.Rule `json:"rules"`
		Environments         []string      `json:"environments"`
		Globals              []string      `json:"globals"`
		Mode                 string        `json:"mode"`
		IgnoreHeaderComments bool          `json:"ignoreHeaderComments"`
		UnchangedRules       []string      `json:"unchangedRules"`
		AllowTsParserJsFiles bool          `json:"allowTsParserJsFiles"`
		TsConfigs            []string      `json:"tsConfigs"`
		GeneratedTsConfig    string        `json:"generatedTsConfig"`
		RuleBundles          []string      `json:"ruleBundles"`
		Encoding             string        `json:"encoding"`
	}{
		Rules:                settings.Rules,
		Environments:         settings.Environments,
		Globals:              settings.Globals,
		Mode:                 settings.Mode.String(),
		IgnoreHeaderComments: settings.IgnoreHeaderComments,
		UnchangedRules:       cfg.Analysis.UnchangedRules,
		AllowTsParserJsFiles: cfg.Bridge.AllowTsParserJsFiles,
		TsConfigs:            cfg.Analysis.TsConfigs,
		GeneratedTsConfig:    cfg.Analysis.GeneratedTsConfig,
		RuleBundles:          ruleBundles,
		Encoding:             cfg.Analysis.Encoding,
	})
}
