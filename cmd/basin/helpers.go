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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/basin/cmd/basin/config"
	"github.com/AleutianAI/basin/optim"
	"github.com/AleutianAI/basin/pkg/logging"
	"github.com/AleutianAI/basin/pkg/telemetry"
	"github.com/AleutianAI/basin/pkg/validation"
	"github.com/AleutianAI/basin/sample"
	"github.com/AleutianAI/basin/tensor"
	"github.com/AleutianAI/basin/zoo"
)

// modelRun bundles what a sampling run needs from a built model.
type modelRun struct {
	name   string
	eval   sample.GradientEvaluator
	params *tensor.Vector
	layout *tensor.Layout
}

// buildModel constructs the model named by --model at its starting point.
func buildModel() (*modelRun, error) {
	switch modelName {
	case "quadratic":
		m, err := zoo.NewQuadraticModel(modelDim, nil)
		if err != nil {
			return nil, err
		}
		return &modelRun{name: "quadratic", eval: m, params: m.Init(), layout: m.Layout()}, nil

	case "tms":
		m, err := zoo.NewTMSModel(numFeatures, hiddenDim)
		if err != nil {
			return nil, err
		}
		return &modelRun{name: "tms", eval: m, params: m.Init(initSeed), layout: m.Layout()}, nil

	default:
		return nil, fmt.Errorf("unknown model %q (want 'quadratic' or 'tms')", modelName)
	}
}

// buildDataset constructs the synthetic batch source for a run over n
// samples. The quadratic model ignores batch contents but still consumes
// the iterator, so both models share one source.
func buildDataset(n int) (*zoo.SyntheticDataset, error) {
	return zoo.NewSyntheticDataset(zoo.SyntheticConfig{
		NumSamples:  n,
		NumFeatures: numFeatures,
		Sparsity:    sparsity,
		ExactActive: exactActive,
		Binary:      binaryData,
		BatchSize:   batchSize,
		Seed:        dataSeed,
	})
}

// resolveRunConfig merges the run section of ~/.basin/basin.yaml with any
// explicitly set flags. Flags win only when the user set them, so a yaml
// edit changes defaults without recompiling muscle memory.
func resolveRunConfig(cmd *cobra.Command, logger *slog.Logger) sample.Config {
	rc := config.Global.Run
	f := cmd.Flags()
	if f.Changed("chains") {
		rc.Chains = chains
	}
	if f.Changed("draws") {
		rc.Draws = draws
	}
	if f.Changed("burnin") {
		rc.BurninSteps = burninSteps
	}
	if f.Changed("steps-bw-draws") {
		rc.StepsBwDraws = stepsBwDraws
	}
	if f.Changed("grad-accum") {
		rc.GradAccumSteps = gradAccumSteps
	}
	if f.Changed("workers") {
		rc.Workers = workers
	}
	if f.Changed("allow-partial") {
		rc.AllowPartial = allowPartial
	}
	return sample.Config{
		NumChains:       rc.Chains,
		NumDraws:        rc.Draws,
		NumBurninSteps:  rc.BurninSteps,
		NumStepsBwDraws: rc.StepsBwDraws,
		GradAccumSteps:  rc.GradAccumSteps,
		Workers:         rc.Workers,
		Seed:            runSeed,
		AllowPartial:    rc.AllowPartial,
		Logger:          logger,
	}
}

// resolveSampler merges the sampler section of the config with explicitly
// set flags and returns the optimizer factory for a dataset of n samples.
// Temperature 0 stays 0 here; the optimizer resolves it to log(n).
func resolveSampler(cmd *cobra.Command, n int) (optim.Factory, string, error) {
	sc := config.Global.Sampler
	f := cmd.Flags()
	if f.Changed("method") {
		sc.Method = method
	}
	if f.Changed("lr") {
		sc.LearningRate = learningRate
	}
	if f.Changed("noise") {
		sc.NoiseLevel = noiseLevel
	}
	if f.Changed("weight-decay") {
		sc.WeightDecay = weightDecay
	}
	if f.Changed("elasticity") {
		sc.Elasticity = elasticity
	}
	if f.Changed("temperature") {
		sc.Temperature = temperature
	}
	if f.Changed("diffusion") {
		sc.DiffusionFactor = diffusionFactor
	}
	if f.Changed("box") {
		sc.BoundingBoxSize = boundingBox
	}

	switch sc.Method {
	case "sgld":
		return optim.SGLDFactory(optim.SGLDConfig{
			LearningRate:    sc.LearningRate,
			NoiseLevel:      sc.NoiseLevel,
			WeightDecay:     sc.WeightDecay,
			Elasticity:      sc.Elasticity,
			Temperature:     sc.Temperature,
			BoundingBoxSize: sc.BoundingBoxSize,
			NumSamples:      n,
		}), "sgld", nil

	case "sgnht":
		return optim.SGNHTFactory(optim.SGNHTConfig{
			LearningRate:    sc.LearningRate,
			DiffusionFactor: sc.DiffusionFactor,
			BoundingBoxSize: sc.BoundingBoxSize,
			NumSamples:      n,
		}), "sgnht", nil

	default:
		return nil, "", fmt.Errorf("unknown sampler method %q (want 'sgld' or 'sgnht')", sc.Method)
	}
}

// buildObservers assembles the observer set named by --observers for a run
// of the given shape over n samples.
func buildObservers(layout *tensor.Layout, numChains, numDraws, n int) ([]sample.Observer, error) {
	var out []sample.Observer
	for _, raw := range strings.Split(observersCSV, ",") {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		ob, err := buildObserver(name, layout, numChains, numDraws, n)
		if err != nil {
			return nil, err
		}
		out = append(out, ob)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no observers requested")
	}
	return out, nil
}

func buildObserver(name string, layout *tensor.Layout, numChains, numDraws, n int) (sample.Observer, error) {
	switch name {
	case "llc":
		return sample.NewLLCEstimator(numChains, numDraws, n, estimateBeta)
	case "llc_online":
		return sample.NewOnlineLLCEstimator(numChains, numDraws, n, estimateBeta)
	case "wbic":
		return sample.NewOnlineWBICEstimator(numChains, numDraws, n)
	case "loss":
		return sample.NewOnlineLossStatistics(numChains, numDraws)
	case "grad_norm":
		return sample.NewGradientNorm(numChains, numDraws, normOrder)
	case "noise_norm":
		return sample.NewNoiseNorm(numChains, numDraws, normOrder)
	case "weight_norm":
		return sample.NewWeightNorm(numChains, numDraws, normOrder)
	case "grad_dist":
		return sample.NewGradientDistribution(sample.GradientDistributionConfig{
			Chains:   numChains,
			Draws:    numDraws,
			BinWidth: binWidth,
		})
	case "cov":
		return buildCovariance(layout, numChains, numDraws)
	default:
		return nil, fmt.Errorf("unknown observer %q (want llc, llc_online, wbic, loss, grad_norm, noise_norm, weight_norm, grad_dist, or cov)", name)
	}
}

// buildCovariance turns the --select expression into a covariance observer
// over the chosen parameter subset.
func buildCovariance(layout *tensor.Layout, numChains, numDraws int) (sample.Observer, error) {
	if selectExpr == "" {
		return nil, fmt.Errorf("observer 'cov' requires --select (e.g. --select 'W' or --select 'W/2')")
	}
	expr, err := validation.ParseSelectorExpr(selectExpr)
	if err != nil {
		return nil, err
	}

	switch {
	case expr.Heads > 0:
		return sample.NewWithinHeadCovariance(numChains, numDraws, layout, expr.Names[0], expr.Heads, topK)

	case expr.Ranged:
		sel, err := sample.ByRange(layout, expr.Names[0], expr.Lo, expr.Hi)
		if err != nil {
			return nil, err
		}
		return sample.NewCovarianceAccumulator(sample.CovarianceConfig{
			Chains:   numChains,
			Draws:    numDraws,
			Selector: sel,
			TopK:     topK,
		})

	default:
		sel, err := sample.ByNames(layout, expr.Names...)
		if err != nil {
			return nil, err
		}
		return sample.NewCovarianceAccumulator(sample.CovarianceConfig{
			Chains:   numChains,
			Draws:    numDraws,
			Selector: sel,
			TopK:     topK,
		})
	}
}

// setupLogging builds the process logger from the config file's logging
// section and the persistent --log-* flags.
func setupLogging() (*logging.Logger, error) {
	lc := config.Global.Logging
	if logLevel != "" {
		lc.Level = logLevel
	}
	if logFormat != "" {
		lc.Format = logFormat
	}
	if logDir != "" {
		lc.Dir = logDir
	}
	if lc.Level == "" {
		lc.Level = "info"
	}

	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(lc.Format)
	if err != nil {
		return nil, err
	}

	return logging.New(logging.Config{
		Level:     level,
		Format:    format,
		LogDir:    lc.Dir,
		Component: "basin",
		Quiet:     quiet,
	}), nil
}

// setupTelemetry installs SDK providers when any exporter is enabled.
// Precedence: flags, then OTEL_* environment, then the config file. The
// returned shutdown is nil when telemetry stays off.
func setupTelemetry(ctx context.Context) (func(context.Context) error, error) {
	tc := config.Global.Telemetry

	tcfg := telemetry.Config{
		ServiceName:    "basin",
		ServiceVersion: version,
		Environment:    firstNonEmpty(os.Getenv("BASIN_ENV"), "development"),
		TraceExporter:  firstNonEmpty(traceExporter, os.Getenv("OTEL_TRACES_EXPORTER"), tc.TraceExporter, "none"),
		MetricExporter: firstNonEmpty(os.Getenv("OTEL_METRICS_EXPORTER"), tc.MetricExporter, "none"),
		OTLPEndpoint:   firstNonEmpty(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), tc.OTLPEndpoint, "localhost:4317"),
		OTLPInsecure:   true,
	}
	if metricsEnabled {
		tcfg.MetricExporter = "stdout"
	}

	if tcfg.TraceExporter == "none" && tcfg.MetricExporter == "none" {
		return nil, nil
	}
	return telemetry.Init(ctx, tcfg)
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// writeReport renders v as indented JSON to --out or stdout.
func writeReport(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')

	if outPath != "" {
		if err := os.WriteFile(outPath, data, 0644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		return nil
	}
	_, err = os.Stdout.Write(data)
	return err
}
