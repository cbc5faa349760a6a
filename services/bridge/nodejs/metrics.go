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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("lintbridge.nodejs")
	meter  = otel.Meter("lintbridge.nodejs")
)

var (
	processSpawns       metric.Int64Counter
	processWaits        metric.Int64Counter
	versionCheckLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		processSpawns, err = meter.Int64Counter(
			"nodejs_process_spawns_total",
			metric.WithDescription("Total number of Node.js process spawns"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		processWaits, err = meter.Int64Counter(
			"nodejs_process_waits_total",
			metric.WithDescription("Process waits by outcome (exited, timeout, interrupted)"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		versionCheckLatency, err = meter.Float64Histogram(
			"nodejs_version_check_duration_seconds",
			metric.WithDescription("Duration of the node -v version check"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startVersionCheckSpan(ctx context.Context, executable string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "nodejs.CheckVersion",
		trace.WithAttributes(attribute.String("nodejs.executable", executable)),
	)
}

func recordSpawn(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	processSpawns.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func recordWait(ctx context.Context, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	processWaits.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func recordVersionCheck(ctx context.Context, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	versionCheckLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
}
