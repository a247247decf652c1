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

// runReport is the JSON document `basin estimate` prints.
type runReport struct {
	RunID       string               `json:"run_id"`
	Model       string               `json:"model"`
	Method      string               `json:"method"`
	NumSamples  int                  `json:"num_samples"`
	Parameters  int                  `json:"parameters"`
	ChainDraws  []int                `json:"chain_draws"`
	Interrupted bool                 `json:"interrupted,omitempty"`
	ElapsedSecs float64              `json:"elapsed_seconds"`
	TraceID     string               `json:"trace_id,omitempty"`
	Results     map[string]float64   `json:"results"`
	Series      map[string][]float64 `json:"series,omitempty"`
}

func runEstimate(cmd *cobra.Command, args []string) {
	if err := estimate(cmd); err != nil {
		log.Fatalf("estimate failed: %v", err)
	}
}

func estimate(cmd *cobra.Command) error {
	lg, err := setupLogging()
	if err != nil {
		return err
	}
	defer lg.Close()

	// Ctrl-C cancels at the next step boundary; draws committed so far
	// still finalize into a labeled partial result.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := setupTelemetry(ctx)
	if err != nil {
		return err
	}
	if shutdown != nil {
		defer shutdown(context.Background())
	}

	ctx, span := telemetry.StartSpan(ctx, "basin", "basin.estimate")
	defer span.End()
	span.SetAttributes(
		attribute.String("basin.model", modelName),
		attribute.Int("basin.num_samples", numSamples),
	)

	logger := telemetry.LoggerWithTrace(ctx, lg.Slog())

	mr, err := buildModel()
	if err != nil {
		return err
	}
	ds, err := buildDataset(numSamples)
	if err != nil {
		return err
	}
	factory, methodName, err := resolveSampler(cmd, numSamples)
	if err != nil {
		return err
	}
	runCfg := resolveRunConfig(cmd, logger)
	observers, err := buildObservers(mr.layout, runCfg.NumChains, runCfg.NumDraws, numSamples)
	if err != nil {
		return err
	}

	logger.Info("estimating",
		"model", mr.name,
		"method", methodName,
		"num_samples", numSamples,
		"parameters", mr.params.Len())

	res, err := sample.Run(ctx, runCfg, mr.params, mr.eval, ds, factory, observers)
	if err != nil {
		telemetry.RecordError(span, err)
		if res == nil {
			return err
		}
		// Partial results from tolerated chain failures are still worth
		// printing; the report carries the achieved per-chain counts.
		logger.Warn("run finished with errors", "error", err)
	}

	report := runReport{
		RunID:       res.RunID.String(),
		Model:       mr.name,
		Method:      methodName,
		NumSamples:  numSamples,
		Parameters:  mr.params.Len(),
		ChainDraws:  res.ChainDraws,
		Interrupted: res.Interrupted,
		ElapsedSecs: res.Elapsed.Seconds(),
		TraceID:     telemetry.TraceID(ctx),
		Results:     res.Flat(),
	}
	if withSeries {
		report.Series = mergeSeries(res)
	}
	return writeReport(report)
}

// mergeSeries flattens every observer's series into one map. Keys are
// already namespaced by observer name, so they cannot collide.
func mergeSeries(res *sample.RunResult) map[string][]float64 {
	out := make(map[string][]float64)
	for _, r := range res.Results {
		for k, v := range r.Series {
			out[k] = v
		}
	}
	return out
}
