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
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxLineSize bounds a single output line forwarded to a sink.
const maxLineSize = 1024 * 1024

// PipeCloseDelay is how long output pipes may stay open after the process
// exits before they are closed forcibly.
const PipeCloseDelay = time.Second

// ProcessState tracks the lifecycle of the process owned by a Command.
type ProcessState int

const (
	// StateCreated means the command is built but not started.
	StateCreated ProcessState = iota

	// StateRunning means the process is alive.
	StateRunning

	// StateTerminated means the process has exited or was destroyed.
	StateTerminated
)

var processStateNames = []string{"created", "running", "terminated"}

// String returns the state name.
func (s ProcessState) String() string {
	if int(s) < len(processStateNames) && s >= 0 {
		return processStateNames[s]
	}
	return "unknown"
}

// Termination records how a process reached StateTerminated.
type Termination int

const (
	// TerminationNone means the process has not terminated.
	TerminationNone Termination = iota

	// TerminationExited means the process exited on its own.
	TerminationExited

	// TerminationForced means the process was killed after a wait timeout.
	TerminationForced

	// TerminationInterrupted means the process was destroyed because the
	// waiting context was cancelled.
	TerminationInterrupted
)

var terminationNames = []string{"none", "exited", "forced", "interrupted"}

// String returns the termination name.
func (t Termination) String() string {
	if int(t) < len(terminationNames) && t >= 0 {
		return terminationNames[t]
	}
	return "unknown"
}

// Command owns one Node.js OS process and its two output-draining
// goroutines.
//
// Thread Safety: Start, WaitFor and the accessors are safe for concurrent
// use. Start may be called at most once.
type Command struct {
	cfg     Config
	args    []string
	env     []string
	version Version
	logger  *slog.Logger

	mu          sync.Mutex
	state       ProcessState
	termination Termination
	cmd         *exec.Cmd
	done        chan struct{}
	exitCode    int
}

// NewCommand validates cfg and builds an immutable Command.
//
// Description:
//
//	Checks the argument shape, resolves the executable (explicit override,
//	then the platform default) and, when cfg.MinVersion is set, checks the
//	engine with `<exe> -v` and enforces the minimum. No analysis process is
//	spawned here.
//
// Inputs:
//
//	ctx - Bounds the version check.
//	cfg - The command configuration.
//	opts - Optional collaborators (logger, platform, PATH lookup).
//
// Outputs:
//
//	*Command - Ready to Start.
//	error - *CommandError of kind ErrConfiguration or ErrVersion.
func NewCommand(ctx context.Context, cfg Config, opts ...Option) (*Command, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	res := resolution{
		platform:     o.platform,
		pathResolver: cfg.PathResolver,
		lookPath:     o.lookPath,
		logger:       o.logger,
	}
	executable, err := res.resolveExecutable(cfg.Executable)
	if err != nil {
		return nil, err
	}

	c := &Command{
		cfg:    cfg,
		args:   cfg.buildArgs(executable),
		env:    cfg.buildEnv(o.environ()),
		logger: o.logger,
	}

	if !cfg.MinVersion.IsZero() {
		timeout := cfg.VersionCheckTimeout
		if timeout == 0 {
			timeout = DefaultVersionCheckTimeout
		}
		actual, err := checkVersion(ctx, executable, c.env, timeout)
		if err != nil {
			return nil, err
		}
		if !actual.AtLeast(cfg.MinVersion) {
			return nil, versionError(fmt.Sprintf("Only Node.js v%s or later is supported, got %s.", cfg.MinVersion, actual), nil)
		}
		c.version = actual
		c.logger.Debug("Using Node.js", slog.String("version", actual.String()))
	}

	return c, nil
}

// checkVersion runs `<executable> -v` and parses its output.
func checkVersion(ctx context.Context, executable string, env []string, timeout time.Duration) (Version, error) {
	ctx, span := startVersionCheckSpan(ctx, executable)
	defer span.End()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, executable, "-v")
	cmd.Env = env
	cmd.WaitDelay = PipeCloseDelay
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessTree(cmd.Process) }
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	recordVersionCheck(ctx, time.Since(start), err == nil)
	if err != nil {
		span.RecordError(err)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Version{}, versionError(fmt.Sprintf(
				"Failed to determine the version of Node.js, exit value %d. Executed: '%s -v'",
				exitErr.ExitCode(), executable), nil)
		}
		return Version{}, versionError("Failed to determine the version of Node.js", err)
	}
	return ParseVersion(strings.TrimSpace(stdout.String()))
}

// Start spawns the process and begins draining stdout and stderr.
//
// Outputs:
//
//	error - *CommandError of kind ErrLaunch when the OS refuses to spawn,
//	        carrying the attempted command line. ErrAlreadyStarted on reuse.
func (c *Command) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateCreated {
		return ErrAlreadyStarted
	}

	cmd := exec.Command(c.args[0], c.args[1:]...)
	cmd.Env = c.env
	cmd.WaitDelay = PipeCloseDelay
	setProcessGroup(cmd)

	// Output goes through in-process pipes so Wait never depends on a
	// grandchild closing the inherited descriptors.
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	c.logger.Debug("Launching command", slog.String("command", c.String()))
	if err := cmd.Start(); err != nil {
		recordSpawn(context.Background(), false)
		stdoutW.Close()
		stderrW.Close()
		return c.launchError(err)
	}
	recordSpawn(context.Background(), true)

	var drains errgroup.Group
	drains.Go(func() error { return c.drain(stdoutR, c.cfg.StdoutSink) })
	drains.Go(func() error { return c.drain(stderrR, c.cfg.StderrSink) })

	c.cmd = cmd
	c.state = StateRunning
	c.done = make(chan struct{})

	go func() {
		// Wait returns at most PipeCloseDelay after the process exits,
		// even when a descendant still holds stdout or stderr.
		err := cmd.Wait()
		if errors.Is(err, exec.ErrWaitDelay) {
			c.logger.Debug("Closed output pipes held open by a descendant process",
				slog.String("command", c.String()),
			)
		}
		stdoutW.Close()
		stderrW.Close()
		_ = drains.Wait()

		c.mu.Lock()
		c.exitCode = exitCodeOf(cmd, err)
		c.state = StateTerminated
		if c.termination == TerminationNone {
			c.termination = TerminationExited
		}
		c.mu.Unlock()
		close(c.done)
	}()

	return nil
}

func (c *Command) launchError(err error) error {
	return &CommandError{
		Kind:        ErrLaunch,
		Message:     fmt.Sprintf("Error when running: '%s'", c.String()),
		CommandLine: c.String(),
		Err:         err,
	}
}

// drain forwards each line of r to sink, or discards r when sink is nil.
func (c *Command) drain(r io.Reader, sink func(string)) error {
	if sink == nil {
		_, err := io.Copy(io.Discard, r)
		return err
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		sink(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("Failed to read process output", slog.String("error", err.Error()))
		// Keep the pipe flowing so the child never blocks on a full buffer.
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}

// WaitFor waits for the process to exit.
//
// Description:
//
//	Returns the real exit code when the process exits within timeout.
//	On timeout the process is killed, a warning is logged and ExitTimeout
//	(-1) is returned. If ctx is cancelled first the process is destroyed,
//	the interruption is logged and ExitInterrupted (1) is returned. Kills
//	reach the whole process group, so wrapper scripts take their children
//	with them. The draining goroutines are always joined before returning.
//
// Inputs:
//
//	ctx - Cancellation of the wait itself.
//	timeout - Maximum wait. Zero or negative waits indefinitely.
//
// Outputs:
//
//	int - Exit code or one of the sentinels above. Never fails.
func (c *Command) WaitFor(ctx context.Context, timeout time.Duration) int {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		c.logger.Warn("Waiting for a Node.js process that was never started",
			slog.String("command", c.String()),
		)
		return ExitTimeout
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-done:
		recordWait(ctx, "exited")
		return c.ExitCode()
	case <-expired:
		c.logger.Warn("Node process did not stop in a timely fashion",
			slog.String("command", c.String()),
			slog.Duration("timeout", timeout),
		)
		c.kill(TerminationForced)
		<-done
		recordWait(ctx, "timeout")
		return ExitTimeout
	case <-ctx.Done():
		c.logger.Error("Interrupted while waiting for process to terminate.",
			slog.String("command", c.String()),
		)
		c.kill(TerminationInterrupted)
		<-done
		recordWait(ctx, "interrupted")
		return ExitInterrupted
	}
}

// kill destroys the process unless it already terminated.
func (c *Command) kill(reason Termination) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return
	}
	c.termination = reason
	if err := killProcessTree(c.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		c.logger.Warn("Failed to kill Node.js process", slog.String("error", err.Error()))
	}
}

// IsAlive reports whether the process is running.
func (c *Command) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateRunning
}

// State returns the current lifecycle state.
func (c *Command) State() ProcessState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Termination returns how the process terminated.
func (c *Command) Termination() Termination {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.termination
}

// ExitCode returns the exit code of a terminated process.
func (c *Command) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode
}

// ActualVersion returns the detected engine version, or the zero Version
// when no minimum was configured.
func (c *Command) ActualVersion() Version {
	return c.version
}

// Args returns a copy of the full argument vector, executable first.
func (c *Command) Args() []string {
	out := make([]string, len(c.args))
	copy(out, c.args)
	return out
}

// String returns the command line.
func (c *Command) String() string {
	return strings.Join(c.args, " ")
}

func exitCodeOf(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return ExitTimeout
}
