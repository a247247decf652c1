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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/basin/cmd/basin/config"
)

// --- Global Command Variables ---
var (
	// Logging overrides (config file supplies the defaults)
	logLevel  string
	logFormat string
	logDir    string
	quiet     bool

	// Model selection
	modelName   string // "quadratic" or "tms"
	modelDim    int    // quadratic dimension
	numFeatures int    // tms input features m
	hiddenDim   int    // tms hidden dimension k
	initSeed    uint64 // tms weight init seed

	// Dataset
	numSamples  int
	batchSize   int
	sparsity    float64
	exactActive int
	binaryData  bool
	dataSeed    uint64

	// Run shape
	chains         int
	draws          int
	burninSteps    int
	stepsBwDraws   int
	gradAccumSteps int
	workers        int
	runSeed        uint64
	allowPartial   bool

	// Sampler hyperparameters
	method          string
	learningRate    float64
	noiseLevel      float64
	weightDecay     float64
	elasticity      float64
	temperature     float64
	diffusionFactor float64
	boundingBox     float64

	// Observers
	observersCSV string
	estimateBeta float64 // 0 selects 1/log(n)
	selectExpr   string  // covariance parameter selector
	topK         int
	binWidth     float64
	normOrder    float64

	// Telemetry
	metricsEnabled bool
	traceExporter  string

	// Output
	outPath    string
	withSeries bool

	// Sweep shape
	sweepMin    int
	sweepMax    int
	sweepPoints int

	// Config subcommand
	forceInit bool

	rootCmd = &cobra.Command{
		Use:   "basin",
		Short: "Estimate loss-landscape invariants with SG-MCMC sampling",
		Long: `Basin runs localized stochastic-gradient MCMC chains over a model's
loss landscape and reports the geometry of the basin the chains explore:
the local learning coefficient, WBIC, loss statistics, gradient and
weight norms, and covariance spectra of selected parameter groups.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// `config init` must work even when the existing file is corrupt.
			if cmd == configInitCmd {
				return nil
			}
			return config.Load()
		},
	}

	estimateCmd = &cobra.Command{
		Use:   "estimate",
		Short: "Run one sampling run on a model and print the finalized statistics",
		Run:   runEstimate, // Defined in cmd_estimate.go
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Estimate the LLC across log-spaced dataset sizes",
		Run:   runSweep, // Defined in cmd_sweep.go
	}

	modelsCmd = &cobra.Command{
		Use:   "models",
		Short: "List the built-in models and their parameter layouts",
		Run:   runModels, // Defined in cmd_models.go
	}

	// --- Config ---
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect or reset the basin configuration file",
	}
	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration as YAML",
		Run:   runConfigShow, // Defined in cmd_config.go
	}
	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a fresh default configuration file",
		Run:   runConfigInit, // Defined in cmd_config.go
	}
)

// addModelFlags registers the model and dataset flags shared by estimate
// and sweep. The same vars back both commands; only one parses per run.
func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&modelName, "model", "tms", "Model to sample: 'quadratic' or 'tms'")
	cmd.Flags().IntVar(&modelDim, "dim", 10, "Parameter dimension (quadratic)")
	cmd.Flags().IntVar(&numFeatures, "features", 10, "Input features m (tms)")
	cmd.Flags().IntVar(&hiddenDim, "hidden", 2, "Hidden dimension k (tms)")
	cmd.Flags().Uint64Var(&initSeed, "init-seed", 1, "Weight initialization seed (tms)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 32, "Rows per gradient batch")
	cmd.Flags().Float64Var(&sparsity, "sparsity", 0.5, "Per-feature zeroing probability")
	cmd.Flags().IntVar(&exactActive, "exact-active", 0, "Exactly this many active features per row (0 = use sparsity)")
	cmd.Flags().BoolVar(&binaryData, "binary", false, "Unit-valued activations instead of Uniform(0,1)")
	cmd.Flags().Uint64Var(&dataSeed, "data-seed", 1, "Dataset generation seed")
}

// addSamplerFlags registers the sampler hyperparameter flags. Unset flags
// fall back to the sampler section of ~/.basin/basin.yaml.
func addSamplerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&method, "method", "sgld", "Sampler: 'sgld' or 'sgnht'")
	cmd.Flags().Float64Var(&learningRate, "lr", 0.01, "Step size epsilon")
	cmd.Flags().Float64Var(&noiseLevel, "noise", 1.0, "Injected noise scale (sgld)")
	cmd.Flags().Float64Var(&weightDecay, "weight-decay", 0, "L2 penalty lambda (sgld)")
	cmd.Flags().Float64Var(&elasticity, "elasticity", 1.0, "Localization strength gamma (sgld)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Posterior temperature (0 = log n)")
	cmd.Flags().Float64Var(&diffusionFactor, "diffusion", 0.01, "Diffusion factor A (sgnht)")
	cmd.Flags().Float64Var(&boundingBox, "box", 0, "Bounding box half-width (0 = unbounded)")
}

// addRunFlags registers the run-shape flags. Unset flags fall back to the
// run section of ~/.basin/basin.yaml.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&chains, "chains", 4, "Independent chains")
	cmd.Flags().IntVar(&draws, "draws", 2000, "Recorded draws per chain")
	cmd.Flags().IntVar(&burninSteps, "burnin", 0, "Discarded steps before the first draw")
	cmd.Flags().IntVar(&stepsBwDraws, "steps-bw-draws", 1, "Optimizer steps between draws")
	cmd.Flags().IntVar(&gradAccumSteps, "grad-accum", 1, "Batch gradients averaged per step")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent chains (0 = auto)")
	cmd.Flags().Uint64Var(&runSeed, "seed", 0, "Run seed (0 = draw from the clock)")
	cmd.Flags().BoolVar(&allowPartial, "allow-partial", false, "Tolerate individual chain failures")
}

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Stderr log format: auto, text, json")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for JSON log files")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress stderr logging")

	rootCmd.AddCommand(estimateCmd)
	addModelFlags(estimateCmd)
	addSamplerFlags(estimateCmd)
	addRunFlags(estimateCmd)
	estimateCmd.Flags().IntVar(&numSamples, "samples", 10000, "Dataset size n")
	estimateCmd.Flags().StringVar(&observersCSV, "observers", "llc,loss",
		"Statistics to compute: llc, llc_online, wbic, loss, grad_norm, noise_norm, weight_norm, grad_dist, cov")
	estimateCmd.Flags().Float64Var(&estimateBeta, "beta", 0, "Inverse temperature for the LLC estimate (0 = 1/log n)")
	estimateCmd.Flags().StringVar(&selectExpr, "select", "",
		"Covariance parameter selector, e.g. 'W', 'W+b', 'W[0:8]', 'W/2'")
	estimateCmd.Flags().IntVar(&topK, "top-k", 3, "Eigenpairs reported by covariance observers")
	estimateCmd.Flags().Float64Var(&binWidth, "bin-width", 0, "Histogram bin width for grad_dist (0 = auto)")
	estimateCmd.Flags().Float64Var(&normOrder, "norm-order", 2, "p-norm order for the norm observers")
	estimateCmd.Flags().BoolVar(&metricsEnabled, "metrics", false, "Dump accumulated run metrics to stdout at exit")
	estimateCmd.Flags().StringVar(&traceExporter, "trace", "", "Trace exporter: otlp, stdout, none")
	estimateCmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the JSON report to a file instead of stdout")
	estimateCmd.Flags().BoolVar(&withSeries, "series", false, "Include per-draw series in the report")

	rootCmd.AddCommand(sweepCmd)
	addModelFlags(sweepCmd)
	addSamplerFlags(sweepCmd)
	addRunFlags(sweepCmd)
	sweepCmd.Flags().IntVar(&sweepMin, "min-samples", 1000, "Smallest dataset size")
	sweepCmd.Flags().IntVar(&sweepMax, "max-samples", 100000, "Largest dataset size")
	sweepCmd.Flags().IntVar(&sweepPoints, "points", 5, "Number of log-spaced dataset sizes")
	sweepCmd.Flags().Float64Var(&estimateBeta, "beta", 0, "Inverse temperature for the LLC estimate (0 = 1/log n)")
	sweepCmd.Flags().BoolVar(&metricsEnabled, "metrics", false, "Dump accumulated run metrics to stdout at exit")
	sweepCmd.Flags().StringVar(&traceExporter, "trace", "", "Trace exporter: otlp, stdout, none")
	sweepCmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the JSON report to a file instead of stdout")

	rootCmd.AddCommand(modelsCmd)

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing configuration file")
}
