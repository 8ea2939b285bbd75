// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package builder

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for graph builds.
var (
	tracer = otel.Tracer("objectlens.builder")
	meter  = otel.Meter("objectlens.builder")
)

// Metrics for graph build operations.
var (
	buildLatency  metric.Float64Histogram
	buildTotal    metric.Int64Counter
	nodesBuilt    metric.Int64Histogram
	fetchFailures metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"lens_build_duration_seconds",
			metric.WithDescription("Duration of variable graph builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"lens_build_total",
			metric.WithDescription("Total number of variable graph builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesBuilt, err = meter.Int64Histogram(
			"lens_build_nodes",
			metric.WithDescription("Number of nodes per built graph"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fetchFailures, err = meter.Int64Counter(
			"lens_fetch_failures_total",
			metric.WithDescription("Variable and scope fetches that degraded to empty results"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for a build operation.
func recordBuildMetrics(ctx context.Context, duration time.Duration, stats BuildStats, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))
	buildLatency.Record(ctx, duration.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)

	if success {
		nodesBuilt.Record(ctx, int64(stats.NodeCount))
	}
	if stats.FetchErrors > 0 {
		fetchFailures.Add(ctx, int64(stats.FetchErrors))
	}
}

// startBuildSpan creates a span for a build operation.
func startBuildSpan(ctx context.Context, rootCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "VariableGraphBuilder.Build",
		trace.WithAttributes(
			attribute.Int("lens.root_count", rootCount),
		),
	)
}

// setBuildSpanResult sets the result attributes on a build span.
func setBuildSpanResult(span trace.Span, stats BuildStats) {
	span.SetAttributes(
		attribute.Int("lens.node_count", stats.NodeCount),
		attribute.Int("lens.relation_count", stats.RelationCount),
		attribute.Int("lens.levels", stats.Levels),
		attribute.Int("lens.fetch_errors", stats.FetchErrors),
		attribute.Int("lens.depth_limited", stats.DepthLimited),
	)
}
