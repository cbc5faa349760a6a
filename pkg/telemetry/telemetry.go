// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the OpenTelemetry providers of the lintbridge
// CLI and dumps its Prometheus counters.
//
// Libraries record spans and instruments through otel.Tracer and otel.Meter
// and stay no-ops until Init installs real providers. The CLI only exports
// to a writer (usually stderr) since a single analysis run is short-lived.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Exporter names accepted by Config.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

var (
	// ErrUnknownExporter is returned for an unsupported exporter name.
	ErrUnknownExporter = errors.New("unknown telemetry exporter")

	// ErrNilContext is returned when Init is called with a nil context.
	ErrNilContext = errors.New("nil context")
)

// Config controls which providers Init installs.
type Config struct {
	// ServiceName identifies the process in spans and metrics.
	ServiceName string

	// ServiceVersion is the CLI version.
	ServiceVersion string

	// TraceExporter is "stdout" or "none".
	TraceExporter string

	// MetricExporter is "stdout" or "none".
	MetricExporter string

	// Output receives exported telemetry. Default: os.Stderr.
	Output io.Writer
}

// DefaultConfig exports nothing.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "lintbridge",
		ServiceVersion: "dev",
		TraceExporter:  ExporterNone,
		MetricExporter: ExporterNone,
	}
}

// Init installs the global TracerProvider and MeterProvider.
//
// Description:
//
//	Providers are only replaced for exporters other than "none". The
//	returned shutdown flushes every installed provider and must be called
//	before the process exits.
//
// Inputs:
//
//	ctx - Context for initialization.
//	cfg - Exporter selection.
//
// Outputs:
//
//	shutdown - Flushes and stops the providers.
//	error - ErrUnknownExporter or an exporter construction error.
//
// Thread Safety: Call once at startup.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	switch cfg.TraceExporter {
	case "", ExporterNone:
	case ExporterStdout:
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		tp := trace.NewTracerProvider(
			trace.WithSyncer(exporter),
			trace.WithResource(res),
			trace.WithSampler(trace.AlwaysSample()),
		)
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}

	switch cfg.MetricExporter {
	case "", ExporterNone:
	case ExporterStdout:
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(out), stdoutmetric.WithPrettyPrint())
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}
		// The periodic reader also collects once on Shutdown.
		mp := metric.NewMeterProvider(
			metric.WithReader(metric.NewPeriodicReader(exporter)),
			metric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	default:
		_ = shutdown(ctx)
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.MetricExporter)
	}

	return shutdown, nil
}

// WriteMetricsFile writes every metric registered with the default
// Prometheus registry to path in the node-exporter textfile format.
func WriteMetricsFile(path string) error {
	return WriteMetricsFileFrom(prometheus.DefaultGatherer, path)
}

// WriteMetricsFileFrom is WriteMetricsFile for a specific gatherer.
func WriteMetricsFileFrom(g prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
