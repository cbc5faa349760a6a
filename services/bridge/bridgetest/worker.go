// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bridgetest provides a programmable in-process bridge worker.
//
// Worker speaks the same HTTP/JSON protocol as the Node.js worker, so the
// bridge client, server and analysis orchestrator can be tested without a
// Node.js installation. It can be served through httptest or, for process
// tests, from a helper binary via Serve.
package bridgetest

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/lintbridge/services/bridge/bridge"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// AnalyzeFunc produces the worker's answer for one analysis request.
// Returning a non-nil error makes the worker answer HTTP 500.
type AnalyzeFunc func(route string, req bridge.AnalysisRequest) (bridge.AnalysisResponse, error)

// StatusFunc decides liveness for the n-th status call (1-based).
type StatusFunc func(n int) bool

// Worker is a fake bridge worker.
//
// Thread Safety: Safe for concurrent use.
type Worker struct {
	engine *gin.Engine

	mu           sync.Mutex
	analyze      AnalyzeFunc
	status       StatusFunc
	statusCalls  int
	initRequests []bridge.InitLinterRequest
	analyzed     []bridge.AnalysisRequest
	routes       []string
	tsConfigs    []string
	closed       chan struct{}
	closeOnce    sync.Once
}

// NewWorker creates a worker that is alive and answers every analysis
// with no issues.
func NewWorker() *Worker {
	w := &Worker{
		analyze: func(string, bridge.AnalysisRequest) (bridge.AnalysisResponse, error) {
			return bridge.AnalysisResponse{Issues: []bridge.Issue{}}, nil
		},
		status: func(int) bool { return true },
		closed: make(chan struct{}),
	}

	r := gin.New()
	r.GET(bridge.RouteStatus, w.handleStatus)
	r.POST(bridge.RouteInitLinter, w.handleInitLinter)
	r.POST(bridge.RouteAnalyzeJavaScript, w.handleAnalyze(bridge.RouteAnalyzeJavaScript))
	r.POST(bridge.RouteAnalyzeTypeScript, w.handleAnalyze(bridge.RouteAnalyzeTypeScript))
	r.POST(bridge.RouteCreateTsConfigFile, w.handleCreateTsConfig)
	r.POST(bridge.RouteClose, w.handleClose)
	w.engine = r
	return w
}

// Handler returns the HTTP handler serving the protocol.
func (w *Worker) Handler() http.Handler {
	return w.engine
}

// OnAnalyze replaces the analysis behavior.
func (w *Worker) OnAnalyze(fn AnalyzeFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.analyze = fn
}

// OnStatus replaces the liveness behavior.
func (w *Worker) OnStatus(fn StatusFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = fn
}

// SetAlive makes every following status call answer alive or dead.
func (w *Worker) SetAlive(alive bool) {
	w.OnStatus(func(int) bool { return alive })
}

// InitRequests returns the received InitLinter requests.
func (w *Worker) InitRequests() []bridge.InitLinterRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]bridge.InitLinterRequest(nil), w.initRequests...)
}

// Analyzed returns the received analysis requests in arrival order.
func (w *Worker) Analyzed() []bridge.AnalysisRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]bridge.AnalysisRequest(nil), w.analyzed...)
}

// AnalyzedRoutes returns the route of each analysis request.
func (w *Worker) AnalyzedRoutes() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.routes...)
}

// AnalyzeCount returns the number of analysis requests received.
func (w *Worker) AnalyzeCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.analyzed)
}

// StatusCalls returns the number of status checks received.
func (w *Worker) StatusCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.statusCalls
}

// TsConfigs returns the tsconfig contents received.
func (w *Worker) TsConfigs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.tsConfigs...)
}

// Closed is closed once the worker received a close request.
func (w *Worker) Closed() <-chan struct{} {
	return w.closed
}

func (w *Worker) handleStatus(c *gin.Context) {
	w.mu.Lock()
	w.statusCalls++
	alive := w.status(w.statusCalls)
	w.mu.Unlock()

	if !alive {
		c.String(http.StatusServiceUnavailable, "")
		return
	}
	c.String(http.StatusOK, bridge.StatusOK)
}

func (w *Worker) handleInitLinter(c *gin.Context) {
	var req bridge.InitLinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	w.mu.Lock()
	w.initRequests = append(w.initRequests, req)
	w.mu.Unlock()
	c.String(http.StatusOK, bridge.StatusOK)
}

func (w *Worker) handleAnalyze(route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bridge.AnalysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"error": err.Error()})
			return
		}

		w.mu.Lock()
		w.analyzed = append(w.analyzed, req)
		w.routes = append(w.routes, route)
		fn := w.analyze
		w.mu.Unlock()

		resp, err := fn(route, req)
		if err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (w *Worker) handleCreateTsConfig(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	w.mu.Lock()
	w.tsConfigs = append(w.tsConfigs, string(body))
	w.mu.Unlock()
	c.JSON(http.StatusOK, bridge.TsConfigResponse{Filename: "/path/to/tsconfig.json"})
}

func (w *Worker) handleClose(c *gin.Context) {
	c.Status(http.StatusOK)
	w.closeOnce.Do(func() { close(w.closed) })
}

// NewServer serves w through httptest; the server is closed with the test.
func NewServer(tb testing.TB, w *Worker) *httptest.Server {
	tb.Helper()
	srv := httptest.NewServer(w.Handler())
	tb.Cleanup(srv.Close)
	return srv
}

// Serve runs w on addr until ctx is cancelled or a close request arrives.
func Serve(ctx context.Context, addr string, w *Worker) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: w.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()

	select {
	case <-ctx.Done():
	case <-w.Closed():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
