// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/basin/pkg/telemetry"
	"github.com/AleutianAI/basin/sample"
)

// sweepPoint is one dataset size's LLC estimate within a sweep.
type sweepPoint struct {
	NumSamples  int     `json:"num_samples"`
	LLCMean     float64 `json:"llc_mean"`
	LLCStd      float64 `json:"llc_std"`
	LossMean    float64 `json:"loss_mean"`
	ChainDraws  []int   `json:"chain_draws"`
	ElapsedSecs float64 `json:"elapsed_seconds"`
}

// sweepReport is the JSON document `basin sweep` prints.
type sweepReport struct {
	Model       string       `json:"model"`
	Method      string       `json:"method"`
	Points      []sweepPoint `json:"points"`
	Interrupted bool         `json:"interrupted,omitempty"`
	TraceID     string       `json:"trace_id,omitempty"`
}

func runSweep(cmd *cobra.Command, args []string) {
	if err := sweep(cmd); err != nil {
		log.Fatalf("sweep failed: %v", err)
	}
}

// sweep estimates the LLC at log-spaced dataset sizes. How the estimate
// moves with n separates a genuine geometry signal (stable) from an
// under-converged chain (drifting), so this is the first thing to run on
// an unfamiliar model.
func sweep(cmd *cobra.Command) error {
	lg, err := setupLogging()
	if err != nil {
		return err
	}
	defer lg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := setupTelemetry(ctx)
	if err != nil {
		return err
	}
	if shutdown != nil {
		defer shutdown(context.Background())
	}

	ctx, span := telemetry.StartSpan(ctx, "basin", "basin.sweep")
	defer span.End()

	sizes, err := sample.LogSteps(sweepMin, sweepMax, sweepPoints)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("basin.model", modelName),
		attribute.Int("basin.points", len(sizes)),
	)

	logger := telemetry.LoggerWithTrace(ctx, lg.Slog())
	logger.Info("sweep starting", "model", modelName, "sizes", sizes)

	report := sweepReport{
		Model:   modelName,
		TraceID: telemetry.TraceID(ctx),
	}

	for i, n := range sizes {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}

		// Fresh model and data per size; the same init seed keeps every
		// point starting from the same parameters.
		mr, err := buildModel()
		if err != nil {
			return err
		}
		ds, err := buildDataset(n)
		if err != nil {
			return err
		}
		factory, methodName, err := resolveSampler(cmd, n)
		if err != nil {
			return err
		}
		report.Method = methodName

		runCfg := resolveRunConfig(cmd, logger.With("num_samples", n))
		if runCfg.Seed != 0 {
			// Distinct but reproducible seeds per point.
			runCfg.Seed += uint64(i)
		}

		llc, err := sample.NewLLCEstimator(runCfg.NumChains, runCfg.NumDraws, n, estimateBeta)
		if err != nil {
			return err
		}
		loss, err := sample.NewOnlineLossStatistics(runCfg.NumChains, runCfg.NumDraws)
		if err != nil {
			return err
		}

		res, err := sample.Run(ctx, runCfg, mr.params, mr.eval, ds, factory, []sample.Observer{llc, loss})
		if err != nil {
			telemetry.RecordError(span, err)
			if res == nil {
				return err
			}
			logger.Warn("sweep point finished with errors", "num_samples", n, "error", err)
		}

		flat := res.Flat()
		report.Points = append(report.Points, sweepPoint{
			NumSamples:  n,
			LLCMean:     flat["llc/mean"],
			LLCStd:      flat["llc/std"],
			LossMean:    flat["loss/mean"],
			ChainDraws:  res.ChainDraws,
			ElapsedSecs: res.Elapsed.Seconds(),
		})
		logger.Info("sweep point finished",
			"num_samples", n,
			"llc_mean", flat["llc/mean"],
			"llc_std", flat["llc/std"],
			"elapsed", res.Elapsed)

		if res.Interrupted {
			report.Interrupted = true
			break
		}
	}

	return writeReport(report)
}
