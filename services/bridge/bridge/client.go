// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bridge drives the Node.js analysis worker over HTTP/JSON.
//
// A Server owns the worker process for one analysis session; its Client
// configures the worker once (InitLinter) and then issues one analysis
// request per file. Exchanges are serialized: the worker is never sent a
// second request while one is outstanding.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default client timeouts.
const (
	DefaultAliveTimeout   = 2 * time.Second
	DefaultRequestTimeout = 5 * time.Minute
)

// Client talks to one running bridge worker.
//
// Thread Safety: Safe for concurrent use; exchanges are serialized.
type Client struct {
	baseURL        string
	http           *http.Client
	aliveTimeout   time.Duration
	requestTimeout time.Duration
	unchangedRules map[string]bool
	sessionID      string
	logger         *slog.Logger

	mu          sync.Mutex
	initialized bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithAliveTimeout bounds each liveness check.
func WithAliveTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.aliveTimeout = d
	}
}

// WithRequestTimeout bounds each analysis exchange.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// WithUnchangedRuleKeys lists the rules that still run on unchanged files
// in skip-unchanged mode.
func WithUnchangedRuleKeys(keys ...string) ClientOption {
	return func(c *Client) {
		for _, k := range keys {
			c.unchangedRules[k] = true
		}
	}
}

// WithClientLogger sets the logger. Default: slog.Default().
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the worker listening at baseURL,
// e.g. "http://127.0.0.1:42311".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		http:           &http.Client{},
		aliveTimeout:   DefaultAliveTimeout,
		requestTimeout: DefaultRequestTimeout,
		unchangedRules: make(map[string]bool),
		sessionID:      uuid.NewString(),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("bridge_session", c.sessionID))
	return c
}

// SessionID identifies this client's session in logs and spans.
func (c *Client) SessionID() string {
	return c.sessionID
}

// BaseURL returns the worker address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// InitLinter configures the worker's linters for the session.
//
// Description:
//
//	Configures the default linter with every rule. In skip-unchanged mode a
//	second, reduced linter is configured for unchanged files. Must be called
//	exactly once per session, before any analysis.
//
// Outputs:
//
//	error - ErrSessionAlreadyInitialized on a second call, *TransportError
//	        when the worker cannot be reached or rejects the request.
func (c *Client) InitLinter(ctx context.Context, rules []Rule, environments, globals []string, mode AnalysisMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return ErrSessionAlreadyInitialized
	}

	requests := []InitLinterRequest{{
		Rules:        nonNil(rules),
		Environments: nonNil(environments),
		Globals:      nonNil(globals),
		LinterID:     LinterDefault,
	}}
	if mode == ModeSkipUnchanged {
		requests = append(requests, InitLinterRequest{
			Rules:        UnchangedFileRules(rules, c.unchangedRules),
			Environments: nonNil(environments),
			Globals:      nonNil(globals),
			LinterID:     LinterUnchanged,
		})
	}

	for _, req := range requests {
		if err := c.exchange(ctx, RouteInitLinter, req, nil); err != nil {
			return err
		}
	}

	c.initialized = true
	c.logger.Debug("Bridge linter initialized",
		slog.String("mode", mode.String()),
		slog.Int("rules", len(rules)),
	)
	return nil
}

// IsAlive checks the worker. A false result means the worker must be
// considered dead for the rest of the session. Never fails.
func (c *Client) IsAlive(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.aliveTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+RouteStatus, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("Bridge status check failed", slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return false
	}
	return resp.StatusCode == http.StatusOK && strings.TrimSpace(string(body)) == StatusOK
}

// AnalyzeJavaScript analyzes one JavaScript file.
func (c *Client) AnalyzeJavaScript(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	return c.analyze(ctx, RouteAnalyzeJavaScript, req)
}

// AnalyzeTypeScript analyzes one TypeScript file.
func (c *Client) AnalyzeTypeScript(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	return c.analyze(ctx, RouteAnalyzeTypeScript, req)
}

func (c *Client) analyze(ctx context.Context, route string, req AnalysisRequest) (*AnalysisResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil, ErrSessionNotInitialized
	}
	if req.TsConfigs == nil {
		req.TsConfigs = []string{}
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var resp AnalysisResponse
	if err := c.exchange(ctx, route, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateTsConfigFile asks the worker to persist a synthesized tsconfig and
// returns the path it was written to.
func (c *Client) CreateTsConfigFile(ctx context.Context, content string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var resp TsConfigResponse
	if err := c.exchange(ctx, RouteCreateTsConfigFile, json.RawMessage(content), &resp); err != nil {
		return "", err
	}
	if resp.Filename == "" {
		return "", &TransportError{Route: RouteCreateTsConfigFile, Err: errors.New("worker returned an empty filename")}
	}
	return resp.Filename, nil
}

// Close asks the worker to shut down.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exchange(ctx, RouteClose, struct{}{}, nil)
}

// exchange posts body as JSON and decodes the answer into out (when non-nil).
// Callers hold c.mu.
func (c *Client) exchange(ctx context.Context, route string, body any, out any) (err error) {
	ctx, span := startRequestSpan(ctx, route, c.sessionID)
	defer span.End()
	start := time.Now()
	defer func() {
		recordRequestMetrics(ctx, route, time.Since(start), err == nil)
		if err != nil {
			span.RecordError(err)
		}
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return &TransportError{Route: route, Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Route: route, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Route: route, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Route: route, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return &TransportError{Route: route, Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(data, 200))}
	}
	if out == nil {
		return nil
	}

	var env errorEnvelope
	if json.Unmarshal(data, &env) == nil && env.Error != "" {
		return &TransportError{Route: route, Err: &WorkerError{Message: env.Error}}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Route: route, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
