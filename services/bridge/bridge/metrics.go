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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("lintbridge.bridge")
	meter  = otel.Meter("lintbridge.bridge")
)

var (
	requestLatency metric.Float64Histogram
	requestTotal   metric.Int64Counter
	serverStarts   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		requestLatency, err = meter.Float64Histogram(
			"bridge_request_duration_seconds",
			metric.WithDescription("Duration of bridge worker requests"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestTotal, err = meter.Int64Counter(
			"bridge_request_total",
			metric.WithDescription("Total number of bridge worker requests"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		serverStarts, err = meter.Int64Counter(
			"bridge_server_starts_total",
			metric.WithDescription("Total number of bridge worker starts"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startRequestSpan(ctx context.Context, route, session string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "bridge.Request",
		trace.WithAttributes(
			attribute.String("bridge.route", route),
			attribute.String("bridge.session", session),
		),
	)
}

func recordRequestMetrics(ctx context.Context, route string, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("route", route),
		attribute.Bool("success", success),
	)
	requestLatency.Record(ctx, duration.Seconds(), attrs)
	requestTotal.Add(ctx, 1, attrs)
}

func recordServerStart(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	serverStarts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}
