// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nodejs

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultVersionCheckTimeout bounds the `node -v` version check.
const DefaultVersionCheckTimeout = 10 * time.Second

var validate = validator.New()

// Config describes a Node.js command. It is validated once by NewCommand
// and never mutated afterwards.
type Config struct {
	// Executable overrides executable resolution. Must exist on disk.
	Executable string

	// MinVersion is the lowest accepted engine version. The zero value
	// disables the version check.
	MinVersion Version

	// MaxOldSpaceSize sets --max-old-space-size in MB. Zero leaves the
	// engine default.
	MaxOldSpaceSize int `validate:"gte=0"`

	// NodeArgs are passed to the engine before the script.
	NodeArgs []string

	// Script is the entry point. Optional when NodeArgs are present.
	Script string

	// ScriptArgs follow the script. Requires Script.
	ScriptArgs []string

	// Env is added to the host environment of the child process.
	Env map[string]string

	// PathResolver maps bundle-relative paths; used for the macOS default.
	PathResolver PathResolver

	// StdoutSink receives each stdout line. Nil discards.
	StdoutSink func(line string)

	// StderrSink receives each stderr line. Nil discards.
	StderrSink func(line string)

	// VersionCheckTimeout bounds the version check. Zero means DefaultVersionCheckTimeout.
	VersionCheckTimeout time.Duration `validate:"gte=0"`
}

// Option configures optional collaborators of a Command.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	platform Platform
	lookPath PathLookup
	environ  func() []string
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPlatform overrides the detected platform.
func WithPlatform(p Platform) Option {
	return func(o *options) {
		o.platform = p
	}
}

// WithPathLookup overrides the PATH lookup used on Windows.
func WithPathLookup(lookPath PathLookup) Option {
	return func(o *options) {
		o.lookPath = lookPath
	}
}

// WithEnviron overrides the host environment the child inherits.
func WithEnviron(environ func() []string) Option {
	return func(o *options) {
		o.environ = environ
	}
}

func defaultOptions() options {
	return options{
		logger:   slog.Default(),
		platform: CurrentPlatform(),
		lookPath: exec.LookPath,
		environ:  os.Environ,
	}
}

// checkArguments enforces the argument shape invariants.
func (c Config) checkArguments() error {
	if len(c.NodeArgs) == 0 && c.Script == "" && len(c.ScriptArgs) == 0 {
		return configError("Missing arguments for Node.js.")
	}
	if c.Script == "" && len(c.ScriptArgs) > 0 {
		return configError("No script provided, but script arguments found.")
	}
	return nil
}

// validateConfig runs struct-tag validation and the argument checks.
func validateConfig(c Config) error {
	if err := validate.Struct(c); err != nil {
		return &CommandError{Kind: ErrConfiguration, Message: "invalid Node.js command configuration", Err: err}
	}
	return c.checkArguments()
}

// buildArgs assembles [executable, heap-flag?, nodeArgs..., script?, scriptArgs...].
func (c Config) buildArgs(executable string) []string {
	args := make([]string, 0, 3+len(c.NodeArgs)+len(c.ScriptArgs))
	args = append(args, executable)
	if c.MaxOldSpaceSize > 0 {
		args = append(args, fmt.Sprintf("--max-old-space-size=%d", c.MaxOldSpaceSize))
	}
	args = append(args, c.NodeArgs...)
	if c.Script != "" {
		args = append(args, c.Script)
	}
	return append(args, c.ScriptArgs...)
}

// buildEnv merges Config.Env over the host environment. Keys are sorted
// so the resulting environment is deterministic.
func (c Config) buildEnv(host []string) []string {
	env := make([]string, 0, len(host)+len(c.Env))
	env = append(env, host...)
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+c.Env[k])
	}
	return env
}
