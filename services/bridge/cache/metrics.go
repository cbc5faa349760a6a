// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("lintbridge.cache")

var (
	strategyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lintbridge_cache_strategy_total",
			Help: "Cache strategies chosen, by kind and reason",
		},
		[]string{"kind", "reason"},
	)

	writeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lintbridge_cache_writes_total",
			Help: "Cache entry writes by outcome",
		},
		[]string{"success"},
	)
)

func recordStrategy(s *Strategy) {
	strategyTotal.WithLabelValues(s.kind.String(), string(s.reason)).Inc()
}

func recordWrite(success bool) {
	writeTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func startStrategySpan(ctx context.Context, key string, status FileStatus) (context.Context, trace.Span) {
	return tracer.Start(ctx, "cache.StrategyFor",
		trace.WithAttributes(
			attribute.String("cache.file_key", key),
			attribute.String("cache.file_status", status.String()),
		),
	)
}

func setStrategySpanResult(span trace.Span, s *Strategy) {
	span.SetAttributes(
		attribute.String("cache.kind", s.kind.String()),
		attribute.String("cache.reason", string(s.reason)),
	)
}
