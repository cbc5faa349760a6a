// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/lintbridge/services/bridge/nodejs"
)

// Default server lifecycle timeouts.
const (
	DefaultStartupTimeout  = 60 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultHost            = "127.0.0.1"

	startupPollInterval = 50 * time.Millisecond
)

// ServerState represents the lifecycle state of the worker.
type ServerState int

const (
	ServerStopped ServerState = iota
	ServerStarting
	ServerReady
	ServerFailed
)

var serverStateNames = []string{"stopped", "starting", "ready", "failed"}

// String returns the state name.
func (s ServerState) String() string {
	if int(s) < len(serverStateNames) && s >= 0 {
		return serverStateNames[s]
	}
	return "unknown"
}

// RuleBundleProvider supplies additional rule bundles to load into the
// worker. Optional: a Server without one loads no extra bundles.
type RuleBundleProvider interface {
	RuleBundles() []string
}

// ServerConfig configures the worker process.
type ServerConfig struct {
	// Host the worker binds to. Default: 127.0.0.1.
	Host string

	// Port the worker listens on. Zero picks a free port.
	Port int

	// WorkDir is handed to the worker for temporary artifacts.
	WorkDir string

	// AllowTsParserJsFiles lets the worker parse .js files with the
	// TypeScript parser.
	AllowTsParserJsFiles bool

	// EditorMode tells the worker it serves single-file editor analysis.
	EditorMode bool

	// StartupTimeout bounds the wait for the first successful status check.
	StartupTimeout time.Duration

	// ShutdownTimeout bounds the wait for the worker to exit after /close.
	ShutdownTimeout time.Duration

	// Node carries engine settings (executable, minimum version, heap,
	// environment). Script and ScriptArgs are set by the Server.
	Node nodejs.Config
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRuleBundles sets the rule bundle provider.
func WithRuleBundles(p RuleBundleProvider) ServerOption {
	return func(s *Server) {
		s.bundles = p
	}
}

// WithServerLogger sets the logger. Default: slog.Default().
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithNodeOptions forwards options to nodejs.NewCommand.
func WithNodeOptions(opts ...nodejs.Option) ServerOption {
	return func(s *Server) {
		s.nodeOpts = append(s.nodeOpts, opts...)
	}
}

// WithClientOptions forwards options to NewClient.
func WithClientOptions(opts ...ClientOption) ServerOption {
	return func(s *Server) {
		s.clientOpts = append(s.clientOpts, opts...)
	}
}

// Server owns the worker process for one analysis session.
//
// Thread Safety: Safe for concurrent use.
type Server struct {
	script     string
	cfg        ServerConfig
	bundles    RuleBundleProvider
	logger     *slog.Logger
	nodeOpts   []nodejs.Option
	clientOpts []ClientOption

	mu     sync.Mutex
	state  ServerState
	cmd    *nodejs.Command
	client *Client
	port   int
}

// NewServer creates a Server running script (the bundle start script).
func NewServer(script string, cfg ServerConfig, opts ...ServerOption) *Server {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = DefaultStartupTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	s := &Server{
		script: script,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker and waits until it answers status checks.
//
// Description:
//
//	Picks a free port when none is configured, builds the node command
//	`[node, heap?, script, port, host, workDir, allowTsParserJsFiles,
//	editorMode, bundles]`, starts it and polls RouteStatus until the
//	startup timeout. Worker stdout is logged at Info, stderr at Error.
//
// Outputs:
//
//	error - nodejs.CommandError for configuration/version/launch failures,
//	        ErrStartupTimeout when the worker never answers, or ctx's
//	        error when ctx ends first.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == ServerStarting || s.state == ServerReady {
		return ErrServerAlreadyStarted
	}
	s.state = ServerStarting

	port := s.cfg.Port
	if port == 0 {
		p, err := freePort(s.cfg.Host)
		if err != nil {
			s.state = ServerFailed
			return fmt.Errorf("pick bridge port: %w", err)
		}
		port = p
	}

	var bundles []string
	if s.bundles != nil {
		bundles = s.bundles.RuleBundles()
	}

	nodeCfg := s.cfg.Node
	nodeCfg.Script = s.script
	nodeCfg.ScriptArgs = []string{
		strconv.Itoa(port),
		s.cfg.Host,
		s.cfg.WorkDir,
		strconv.FormatBool(s.cfg.AllowTsParserJsFiles),
		strconv.FormatBool(s.cfg.EditorMode),
		strings.Join(bundles, ","),
	}
	workerLog := s.logger.With(slog.String("component", "bridge-worker"))
	nodeCfg.StdoutSink = func(line string) { workerLog.Info(line) }
	nodeCfg.StderrSink = func(line string) { workerLog.Error(line) }

	cmd, err := nodejs.NewCommand(ctx, nodeCfg, s.nodeOpts...)
	if err != nil {
		s.state = ServerFailed
		return err
	}

	s.logger.Info("Starting bridge worker",
		slog.String("host", s.cfg.Host),
		slog.Int("port", port),
		slog.Int("rule_bundles", len(bundles)),
	)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		s.state = ServerFailed
		recordServerStart(ctx, false)
		return err
	}

	client := NewClient(fmt.Sprintf("http://%s", net.JoinHostPort(s.cfg.Host, strconv.Itoa(port))), s.clientOpts...)
	if err := s.waitReady(ctx, cmd, client); err != nil {
		_ = cmd.WaitFor(context.Background(), startupPollInterval)
		s.state = ServerFailed
		recordServerStart(ctx, false)
		return err
	}

	s.cmd = cmd
	s.client = client
	s.port = port
	s.state = ServerReady
	recordServerStart(ctx, true)
	s.logger.Info("Bridge worker ready",
		slog.Int("port", port),
		slog.Duration("startup", time.Since(start)),
	)
	return nil
}

// waitReady polls the worker until it answers or the deadline passes.
func (s *Server) waitReady(parent context.Context, cmd *nodejs.Command, client *Client) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.StartupTimeout)
	defer cancel()

	ticker := time.NewTicker(startupPollInterval)
	defer ticker.Stop()

	for {
		if client.IsAlive(ctx) {
			return nil
		}
		if !cmd.IsAlive() {
			return fmt.Errorf("%w: worker exited with code %d", ErrStartupTimeout, cmd.ExitCode())
		}
		select {
		case <-ctx.Done():
			if err := parent.Err(); err != nil {
				return fmt.Errorf("bridge worker startup interrupted: %w", err)
			}
			return fmt.Errorf("%w after %s", ErrStartupTimeout, s.cfg.StartupTimeout)
		case <-ticker.C:
		}
	}
}

// Client returns the session client.
func (s *Server) Client() (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ServerReady {
		return nil, ErrServerNotStarted
	}
	return s.client, nil
}

// IsAlive reports whether the worker process runs and answers.
func (s *Server) IsAlive(ctx context.Context) bool {
	s.mu.Lock()
	cmd, client := s.cmd, s.client
	s.mu.Unlock()
	if cmd == nil || !cmd.IsAlive() {
		return false
	}
	return client.IsAlive(ctx)
}

// State returns the lifecycle state.
func (s *Server) State() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Port returns the port the worker listens on (zero before Start).
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Close asks the worker to exit and waits for it, killing it after the
// shutdown timeout. Returns the worker's exit code. Safe to call when the
// server never started.
func (s *Server) Close(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return 0
	}

	if err := s.client.Close(ctx); err != nil {
		s.logger.Warn("Failed to request bridge worker shutdown", slog.String("error", err.Error()))
	}
	exit := s.cmd.WaitFor(ctx, s.cfg.ShutdownTimeout)
	s.logger.Info("Bridge worker stopped", slog.Int("exit_code", exit))

	s.cmd = nil
	s.client = nil
	s.state = ServerStopped
	return exit
}

// freePort asks the OS for an unused TCP port on host.
func freePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
