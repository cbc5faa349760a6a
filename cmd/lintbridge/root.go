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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/lintbridge/pkg/logging"
	"github.com/AleutianAI/lintbridge/pkg/ux"
	"github.com/AleutianAI/lintbridge/services/bridge/config"
)

// Exit codes shared by all commands.
const (
	ExitSuccess     = 0   // Analysis completed
	ExitIssuesFound = 1   // Issues found with --fail-on-issues
	ExitError       = 2   // Setup failure or aborted analysis
	ExitInterrupted = 130 // Cancelled by SIGINT/SIGTERM
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	configPath  string
	logLevel    string
	logDir      string
	logJSON     bool
	outputStyle string
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "lintbridge",
	Short: "Run JavaScript/TypeScript analysis through a Node.js bridge worker",
	Long: `lintbridge deploys a packaged analysis worker, runs it under Node.js and
sends it every JavaScript and TypeScript file of a project.

Unchanged files are served from a local cache between runs. Settings are
read from lintbridge.yaml in the project directory unless --config is given.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Configuration file (default: <project>/lintbridge.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		"Also write JSON logs to this directory")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false,
		"Write console logs as JSON")
	rootCmd.PersistentFlags().StringVar(&outputStyle, "output-style", "",
		"Output style: full, minimal or machine (default: detected from the terminal)")
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// loadConfig reads --config, or lintbridge.yaml in dir, and applies the
// logging flag overrides.
func loadConfig(dir string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadDir(dir)
	}
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logDir != "" {
		cfg.Logging.Dir = logDir
	}
	if logJSON {
		cfg.Logging.JSON = true
	}
	return cfg, cfg.Validate()
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Dir,
		Service: "lintbridge",
		JSON:    cfg.JSON,
		Quiet:   cfg.Quiet,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault()
	return logger, nil
}

// newPrinter returns the printer for human output on f.
func newPrinter(f *os.File) *ux.Printer {
	level := ux.DetectPersonality(f)
	if outputStyle != "" {
		level = ux.ParsePersonalityLevel(outputStyle)
	}
	return ux.NewPrinter(f, level)
}

// resolvePath anchors a relative config path at the project directory.
func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
