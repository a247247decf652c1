// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sample

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for sampling runs.
var (
	tracer = otel.Tracer("basin.sample")
	meter  = otel.Meter("basin.sample")
)

// Metrics for sampling runs.
var (
	runTotal      metric.Int64Counter
	stepTotal     metric.Int64Counter
	drawTotal     metric.Int64Counter
	chainDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runTotal, err = meter.Int64Counter(
			"sample_runs_total",
			metric.WithDescription("Total number of sampling runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		stepTotal, err = meter.Int64Counter(
			"sample_steps_total",
			metric.WithDescription("Total optimizer steps across all chains"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		drawTotal, err = meter.Int64Counter(
			"sample_draws_total",
			metric.WithDescription("Total recorded draws across all chains"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		chainDuration, err = meter.Float64Histogram(
			"sample_chain_duration_seconds",
			metric.WithDescription("Wall-clock duration per chain"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startRunSpan creates a span for a sampling run.
func startRunSpan(ctx context.Context, runID string, chains, draws int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Sampler.Run",
		trace.WithAttributes(
			attribute.String("sample.run_id", runID),
			attribute.Int("sample.chains", chains),
			attribute.Int("sample.draws", draws),
		),
	)
}

// startChainSpan creates a span for one chain.
func startChainSpan(ctx context.Context, chain int, seed uint64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Sampler.runChain",
		trace.WithAttributes(
			attribute.Int("sample.chain", chain),
			attribute.Int64("sample.seed", int64(seed)),
		),
	)
}

// recordRunStart counts a run.
func recordRunStart(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	runTotal.Add(ctx, 1)
}

// recordChainMetrics records per-chain counters once the chain finishes.
func recordChainMetrics(ctx context.Context, duration time.Duration, steps, draws int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("success", success),
	)

	chainDuration.Record(ctx, duration.Seconds(), attrs)
	stepTotal.Add(ctx, int64(steps), attrs)
	drawTotal.Add(ctx, int64(draws), attrs)
}
