// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis drives one batch of files through the bridge worker.
//
// A batch moves NotStarted → Probing → Running → Completed or Aborted. Files
// are processed strictly in order, one request at a time. For each file the
// orchestrator polls the cancel signal, re-checks the worker, then either
// replays the cached result or analyzes the file live and caches it. A
// single transport failure aborts the rest of the batch.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/lintbridge/services/bridge/bridge"
	"github.com/AleutianAI/lintbridge/services/bridge/cache"
	"github.com/AleutianAI/lintbridge/services/bridge/inputs"
)

// DefaultProgressInterval is the minimum time between progress reports.
const DefaultProgressInterval = 10 * time.Second

// Bridge is the worker session used by a batch. *bridge.Client satisfies it.
type Bridge interface {
	IsAlive(ctx context.Context) bool
	InitLinter(ctx context.Context, rules []bridge.Rule, environments, globals []string, mode bridge.AnalysisMode) error
	AnalyzeJavaScript(ctx context.Context, req bridge.AnalysisRequest) (*bridge.AnalysisResponse, error)
	AnalyzeTypeScript(ctx context.Context, req bridge.AnalysisRequest) (*bridge.AnalysisResponse, error)
}

// LinterSettings configure the worker's linter for the session.
type LinterSettings struct {
	Rules                []bridge.Rule
	Environments         []string
	Globals              []string
	Mode                 bridge.AnalysisMode
	IgnoreHeaderComments bool
}

// BatchResult summarizes a finished batch.
type BatchResult struct {
	// State is StateCompleted or StateAborted.
	State BatchState

	// Total is the number of files in the batch.
	Total int

	// Analyzed counts files sent to the worker.
	Analyzed int

	// Replayed counts files served from the cache.
	Replayed int

	// ParsingErrors counts files the worker could not parse.
	ParsingErrors int

	// Duration is the wall time of the batch.
	Duration time.Duration

	// Err is why the batch aborted. Nil when completed.
	Err error
}

// Processed returns the number of files whose result reached the sink.
func (r *BatchResult) Processed() int {
	return r.Analyzed + r.Replayed
}

// Orchestrator runs exactly one batch against one worker session.
//
// Thread Safety: Run must be called once. State may be read concurrently.
type Orchestrator struct {
	bridge   Bridge
	cache    *cache.Cache
	sink     ResultSink
	settings LinterSettings

	cancel    CancelSignal
	tsconfigs TsConfigProvider
	progress  ProgressSink
	interval  time.Duration
	logger    *slog.Logger

	mu    sync.Mutex
	state BatchState
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCancelSignal sets the cooperative stop flag. Default: the Run context.
func WithCancelSignal(s CancelSignal) Option {
	return func(o *Orchestrator) {
		o.cancel = s
	}
}

// WithTsConfigs sets the tsconfig provider. Default: none.
func WithTsConfigs(p TsConfigProvider) Option {
	return func(o *Orchestrator) {
		o.tsconfigs = p
	}
}

// WithProgress sets the progress sink. Default: log at Info.
func WithProgress(p ProgressSink) Option {
	return func(o *Orchestrator) {
		o.progress = p
	}
}

// WithProgressInterval sets the minimum time between progress reports.
// Zero reports after every file.
func WithProgressInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.interval = d
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an Orchestrator.
//
// Inputs:
//
//	b - The worker session. Must not be nil.
//	c - The cache. Nil disables caching.
//	sink - Receives results in file order. Must not be nil.
//	settings - Linter configuration sent once before the first file.
func New(b Bridge, c *cache.Cache, sink ResultSink, settings LinterSettings, opts ...Option) *Orchestrator {
	if c == nil {
		c = cache.New(nil)
	}
	o := &Orchestrator{
		bridge:   b,
		cache:    c,
		sink:     sink,
		settings: settings,
		interval: DefaultProgressInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.progress == nil {
		o.progress = ProgressFunc(func(p Progress) {
			o.logger.Info(fmt.Sprintf("%d/%d files analyzed, current file: %s", p.Done, p.Total, p.Current))
		})
	}
	return o
}

// State returns the batch state.
func (o *Orchestrator) State() BatchState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s BatchState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
}

// Run processes files in order.
//
// Description:
//
//	Checks the worker once and initializes its linter, then handles each
//	file: stop if cancelled, stop if the worker no longer answers, replay
//	or analyze, hand the result to the sink, report progress. The cache is
//	committed only when every file was processed.
//
// Inputs:
//
//	ctx - Context for the batch. Requests already sent are not preempted
//	      by its cancellation; it is observed at file boundaries.
//	files - Files in the order they must be processed.
//
// Outputs:
//
//	*BatchResult - Counters and terminal state. Never nil.
//	error - Same as BatchResult.Err: ErrBridgeNotAnswering, ErrCancelled,
//	        a *FileError wrapping the transport failure, a sink error, or
//	        ErrAlreadyRun.
func (o *Orchestrator) Run(ctx context.Context, files []inputs.File) (*BatchResult, error) {
	o.mu.Lock()
	if o.state != StateNotStarted {
		o.mu.Unlock()
		return &BatchResult{State: o.State(), Err: ErrAlreadyRun}, ErrAlreadyRun
	}
	o.state = StateProbing
	o.mu.Unlock()

	ctx, span := startBatchSpan(ctx, len(files))
	defer span.End()

	start := time.Now()
	res := &BatchResult{Total: len(files)}
	res.Err = o.run(ctx, files, res)
	res.Duration = time.Since(start)

	if res.Err != nil {
		res.State = StateAborted
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	} else {
		res.State = StateCompleted
		if err := o.cache.Commit(ctx); err != nil {
			o.logger.Warn("Failed to commit analysis cache", slog.String("error", err.Error()))
		}
	}
	o.setState(res.State)
	recordBatch(res.State)

	o.logger.Info("Analysis batch finished",
		slog.String("state", res.State.String()),
		slog.Int("files", res.Total),
		slog.Int("analyzed", res.Analyzed),
		slog.Int("replayed", res.Replayed),
		slog.Duration("duration", res.Duration),
	)
	return res, res.Err
}

func (o *Orchestrator) run(ctx context.Context, files []inputs.File, res *BatchResult) error {
	cancel := o.cancel
	if cancel == nil {
		cancel = ContextSignal(ctx)
	}
	if cancel.Cancelled() {
		return ErrCancelled
	}

	if !o.bridge.IsAlive(ctx) {
		o.logger.Error("Bridge server is not answering, no file will be analyzed")
		return ErrBridgeNotAnswering
	}
	s := o.settings
	if err := o.bridge.InitLinter(ctx, s.Rules, s.Environments, s.Globals, s.Mode); err != nil {
		return fmt.Errorf("initialize linter: %w", err)
	}

	var tsconfigs []string
	if o.tsconfigs != nil {
		var err error
		if tsconfigs, err = o.tsconfigs.TsConfigs(ctx); err != nil {
			return err
		}
	}

	o.setState(StateRunning)
	o.logger.Info(fmt.Sprintf("%d source files to be analyzed", len(files)))

	progress := rate.Sometimes{Interval: o.interval}
	if o.interval <= 0 {
		progress = rate.Sometimes{Every: 1}
	}

	for i, f := range files {
		if cancel.Cancelled() {
			o.logger.Info("Analysis interrupted because the cancellation was requested",
				slog.Int("processed", i),
				slog.Int("total", len(files)),
			)
			return ErrCancelled
		}
		if !o.bridge.IsAlive(ctx) {
			o.logger.Error("Bridge server is not answering", slog.String("file", f.Path))
			return ErrBridgeNotAnswering
		}

		if err := o.processFile(ctx, f, tsconfigs, res); err != nil {
			return err
		}

		p := Progress{Current: f.Path, Done: i + 1, Total: len(files)}
		progress.Do(func() { o.progress.Report(p) })
	}

	o.logger.Info(fmt.Sprintf("%d/%d source files have been analyzed", len(files), len(files)))
	return nil
}

func (o *Orchestrator) processFile(ctx context.Context, f inputs.File, tsconfigs []string, res *BatchResult) error {
	lang := string(f.Language)
	ctx, span := startFileSpan(ctx, f.Key, lang)
	defer span.End()
	start := time.Now()

	strategy := o.cache.StrategyFor(ctx, f.Key, f.Status)
	if !strategy.IsAnalysisRequired() {
		entry, err := strategy.ReadAnalysisFromCache(ctx)
		if err == nil {
			if err := o.sink.Accept(ctx, FileResult{File: f, Response: entry.Response(), Replayed: true}); err != nil {
				return err
			}
			res.Replayed++
			recordFile(ctx, "replayed", lang, time.Since(start))
			return nil
		}
		o.logger.Warn("Failed to replay cached analysis, analyzing file",
			slog.String("file", f.Key),
			slog.String("error", err.Error()),
		)
	}

	resp, err := o.analyze(ctx, f, tsconfigs)
	if err != nil {
		o.logger.Error("Failed to get response while analyzing "+f.Path, slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordFile(ctx, "failed", lang, time.Since(start))
		return &FileError{Path: f.Path, Err: err}
	}

	if resp.ParsingError != nil {
		res.ParsingErrors++
		o.logParsingError(f, resp.ParsingError)
	}
	if err := strategy.WriteAnalysisToCache(ctx, resp); err != nil {
		o.logger.Warn("Failed to write analysis to cache",
			slog.String("file", f.Key),
			slog.String("error", err.Error()),
		)
	}
	if err := o.sink.Accept(ctx, FileResult{File: f, Response: resp}); err != nil {
		return err
	}
	res.Analyzed++
	recordFile(ctx, "analyzed", lang, time.Since(start))
	return nil
}

// analyze sends one request. The request is detached from ctx cancellation
// so a stop request only takes effect at the next file boundary.
func (o *Orchestrator) analyze(ctx context.Context, f inputs.File, tsconfigs []string) (*bridge.AnalysisResponse, error) {
	req := bridge.AnalysisRequest{
		FilePath:             f.Path,
		FileType:             f.Type,
		FileContent:          f.Content,
		IgnoreHeaderComments: o.settings.IgnoreHeaderComments,
		TsConfigs:            tsconfigs,
		LinterID:             o.settings.Mode.LinterIDFor(f.Status == cache.StatusUnchanged),
	}
	reqCtx := context.WithoutCancel(ctx)

	switch f.Language {
	case inputs.LanguageTypeScript:
		return o.bridge.AnalyzeTypeScript(reqCtx, req)
	case inputs.LanguageJavaScript:
		return o.bridge.AnalyzeJavaScript(reqCtx, req)
	default:
		return nil, fmt.Errorf("unsupported language %q", f.Language)
	}
}

func (o *Orchestrator) logParsingError(f inputs.File, pe *bridge.ParsingError) {
	attrs := []any{
		slog.String("file", f.Path),
		slog.String("code", string(pe.Code)),
	}
	if pe.Line != nil {
		attrs = append(attrs, slog.Int("line", *pe.Line))
	}
	if pe.Code == bridge.ParsingErrorLinterInitialization {
		o.logger.Error("Failed to initialize the linter: "+pe.Message, attrs...)
		return
	}
	o.logger.Warn("Failed to parse file: "+pe.Message, attrs...)
}

// IsFatal reports whether err ended a batch because the worker died or the
// host cancelled it, as opposed to a single-file failure.
func IsFatal(err error) bool {
	return errors.Is(err, ErrBridgeNotAnswering) || errors.Is(err, ErrCancelled)
}
