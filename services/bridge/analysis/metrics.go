// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("lintbridge.analysis")
	meter  = otel.Meter("lintbridge.analysis")
)

var (
	filesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lintbridge_analysis_files_total",
			Help: "Files processed by outcome (analyzed, replayed, failed)",
		},
		[]string{"outcome", "language"},
	)

	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lintbridge_analysis_batches_total",
			Help: "Batches by terminal state",
		},
		[]string{"state"},
	)
)

var (
	fileLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		fileLatency, metricsErr = meter.Float64Histogram(
			"analysis_file_duration_seconds",
			metric.WithDescription("Time to obtain the result of one file"),
			metric.WithUnit("s"),
		)
	})
	return metricsErr
}

func startBatchSpan(ctx context.Context, files int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "analysis.Run",
		trace.WithAttributes(attribute.Int("analysis.files", files)),
	)
}

func startFileSpan(ctx context.Context, key, language string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "analysis.File",
		trace.WithAttributes(
			attribute.String("analysis.file_key", key),
			attribute.String("analysis.language", language),
		),
	)
}

func recordFile(ctx context.Context, outcome, language string, duration time.Duration) {
	filesTotal.WithLabelValues(outcome, language).Inc()
	if err := initMetrics(); err != nil {
		return
	}
	fileLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("language", language),
	))
}

func recordBatch(state BatchState) {
	batchesTotal.WithLabelValues(state.String()).Inc()
}
