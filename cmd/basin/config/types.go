// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

type BasinConfig struct {
	// Logging: destination and verbosity for run logs
	Logging LoggingConfig `yaml:"logging"`

	// Run: default sampling-run shape, overridable per command with flags
	Run RunConfig `yaml:"run"`

	// Sampler: default posterior sampler and its hyperparameters
	Sampler SamplerConfig `yaml:"sampler"`

	// Telemetry: exporter selection for spans and metrics
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // auto, text, json
	Dir    string `yaml:"dir"`    // optional JSON log file directory, "" disables
}

type RunConfig struct {
	Chains         int  `yaml:"chains"`           // independent chains per run
	Draws          int  `yaml:"draws"`            // recorded draws per chain
	BurninSteps    int  `yaml:"burnin_steps"`     // discarded steps before the first draw
	StepsBwDraws   int  `yaml:"steps_bw_draws"`   // optimizer steps between draws
	GradAccumSteps int  `yaml:"grad_accum_steps"` // batch gradients averaged per step
	Workers        int  `yaml:"workers"`          // concurrent chains, 0 = auto
	AllowPartial   bool `yaml:"allow_partial"`    // tolerate individual chain failures
}

type SamplerConfig struct {
	// Method can be "sgld" or "sgnht".
	Method          string  `yaml:"method"`
	LearningRate    float64 `yaml:"learning_rate"`
	NoiseLevel      float64 `yaml:"noise_level"`
	WeightDecay     float64 `yaml:"weight_decay"`
	Elasticity      float64 `yaml:"elasticity"`
	Temperature     float64 `yaml:"temperature"`       // 0 = WBIC-optimal log(n)
	DiffusionFactor float64 `yaml:"diffusion_factor"`  // sgnht only
	BoundingBoxSize float64 `yaml:"bounding_box_size"` // 0 disables clipping
}

type TelemetryConfig struct {
	// TraceExporter can be "otlp", "stdout", or "none".
	TraceExporter string `yaml:"trace_exporter"`
	// MetricExporter can be "stdout" or "none".
	MetricExporter string `yaml:"metric_exporter"`
	// OTLPEndpoint is the collector endpoint for the otlp exporter.
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

func DefaultConfig() BasinConfig {
	return BasinConfig{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Run: RunConfig{
			Chains:         4,
			Draws:          2000,
			BurninSteps:    0,
			StepsBwDraws:   1,
			GradAccumSteps: 1,
			Workers:        0,
		},
		Sampler: SamplerConfig{
			Method:          "sgld",
			LearningRate:    0.01,
			NoiseLevel:      1.0,
			Elasticity:      1.0,
			Temperature:     0,
			DiffusionFactor: 0.01,
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
			OTLPEndpoint:   "localhost:4317",
		},
	}
}
