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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/lintbridge/pkg/ux"
	"github.com/AleutianAI/lintbridge/services/bridge/config"
	"github.com/AleutianAI/lintbridge/services/bridge/nodejs"
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var nodeVersionCmd = &cobra.Command{
	Use:   "node-version [DIR]",
	Short: "Print the Node.js version the worker would run on",
	Long: `Resolve the Node.js executable configured for DIR, check it against the
minimum supported version and print its version.

Examples:
  lintbridge node-version
  lintbridge node-version --output-style machine   # "<version>\t<executable>"`,
	Args: cobra.MaximumNArgs(1),
	Run:  runNodeVersionCommand,
}

var (
	initForce bool

	initCmd = &cobra.Command{
		Use:   "init [DIR]",
		Short: "Write a default lintbridge.yaml",
		Args:  cobra.MaximumNArgs(1),
		Run:   runInitCommand,
	}
)

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false,
		"Overwrite an existing configuration file")

	rootCmd.AddCommand(nodeVersionCmd)
	rootCmd.AddCommand(initCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runNodeVersionCommand(cmd *cobra.Command, args []string) {
	os.Exit(nodeVersionMain(cmd.Context(), args, os.Stdout, os.Stderr))
}

func nodeVersionMain(ctx context.Context, args []string, stdout, stderr *os.File) int {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	cfg, err := loadConfig(dir)
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

	p := newPrinter(stdout)
	v, exe, err := checkNode(ctx, cfg, logger.Component("node"))
	if err != nil {
		p.Error(err.Error())
		return ExitError
	}
	printNodeVersion(p, stdout, v, exe, cfg.Nodejs.MinVersion)
	return ExitSuccess
}

// checkNode runs `node -v` with the configured engine settings.
//
// Description:
//
//	Builds the command the worker would use, minus the script, so the
//	executable resolution and minimum version gate are the real ones.
//
// Outputs:
//
//	nodejs.Version - The reported version.
//	string - The resolved executable.
//	error - A *nodejs.CommandError, or a failure to run or parse `-v`.
func checkNode(ctx context.Context, cfg *config.Config, logger *slog.Logger) (nodejs.Version, string, error) {
	nodeCfg, err := cfg.NodeConfig()
	if err != nil {
		return nodejs.Version{}, "", err
	}

	var (
		mu    sync.Mutex
		lines []string
	)
	nodeCfg.NodeArgs = []string{"-v"}
	nodeCfg.MaxOldSpaceSize = 0
	nodeCfg.StdoutSink = func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	}

	cmd, err := nodejs.NewCommand(ctx, nodeCfg, nodejs.WithLogger(logger))
	if err != nil {
		return nodejs.Version{}, "", err
	}
	exe := cmd.Args()[0]
	if err := cmd.Start(); err != nil {
		return nodejs.Version{}, exe, err
	}

	timeout := nodeCfg.VersionCheckTimeout
	if timeout == 0 {
		timeout = nodejs.DefaultVersionCheckTimeout
	}
	if code := cmd.WaitFor(ctx, timeout); code != 0 {
		return nodejs.Version{}, exe, fmt.Errorf("%s -v exited with code %d", exe, code)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(lines) == 0 {
		return nodejs.Version{}, exe, errors.New("node printed no version")
	}
	v, err := nodejs.ParseVersion(strings.TrimSpace(lines[0]))
	return v, exe, err
}

func printNodeVersion(p *ux.Printer, w io.Writer, v nodejs.Version, exe, minVersion string) {
	if p.Level() == ux.PersonalityMachine {
		fmt.Fprintf(w, "%s\t%s\n", v, exe)
		return
	}
	p.Success(fmt.Sprintf("Node.js v%s", v))
	p.Info("executable: " + exe)
	if minVersion != "" {
		p.Info("minimum supported: v" + minVersion)
	}
}

func runInitCommand(cmd *cobra.Command, args []string) {
	os.Exit(initMain(args, os.Stdout, os.Stderr))
}

func initMain(args []string, stdout, stderr *os.File) int {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	path := filepath.Join(dir, config.DefaultFileName)
	if _, err := os.Stat(path); err == nil && !initForce {
		fmt.Fprintf(stderr, "Error: %s already exists (use --force to overwrite)\n", path)
		return ExitError
	}
	if err := config.WriteDefault(path); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitError
	}
	newPrinter(stdout).Success("Wrote " + path)
	return ExitSuccess
}
