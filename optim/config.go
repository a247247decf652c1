// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package optim

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/AleutianAI/basin/tensor"
)

// OptimalTemperature returns the WBIC-optimal temperature log(n) for a
// dataset of n samples. The matching inverse temperature is
// OptimalBeta(n) = 1/log(n).
func OptimalTemperature(n int) float64 {
	if n < 2 {
		return 1
	}
	return math.Log(float64(n))
}

// OptimalBeta returns 1/log(n), the inverse temperature at which the
// expected posterior loss gap estimates the local learning coefficient.
func OptimalBeta(n int) float64 {
	return 1 / OptimalTemperature(n)
}

// -----------------------------------------------------------------------------
// SGLD Configuration
// -----------------------------------------------------------------------------

// SGLDConfig configures a localized, tempered SGLD sampler.
type SGLDConfig struct {
	// LearningRate is the step size epsilon.
	LearningRate float64

	// NoiseLevel scales the injected Gaussian noise (sigma). The update
	// adds sigma*sqrt(epsilon)*N(0, I) per step. 1.0 gives the Langevin
	// stationary distribution exp(-loss/temperature) in the small-step
	// limit.
	NoiseLevel float64

	// WeightDecay is the L2 penalty coefficient lambda. Zero disables it.
	WeightDecay float64

	// Elasticity is the localization strength gamma pulling iterates back
	// toward the anchor. Zero disables localization.
	Elasticity float64

	// Temperature is the posterior temperature; the effective inverse
	// temperature is beta = 1/Temperature. Zero selects the WBIC-optimal
	// log(NumSamples).
	Temperature float64

	// BoundingBoxSize, when positive, hard-clips every coordinate into
	// [anchor-size, anchor+size] after each step. Silent policy, never an
	// error.
	BoundingBoxSize float64

	// NumSamples is the dataset size n used to scale the mean-loss
	// gradient up to a log-likelihood gradient. Required.
	NumSamples int

	// Anchor optionally fixes the localization anchor explicitly; it is
	// cloned at construction. Nil snapshots the chain's own starting
	// parameters, which is the common case. Supplying a shared anchor is
	// how callers make chains started from different points share one
	// basin reference.
	Anchor *tensor.Vector

	// Logger receives hyperparameter-mutation warnings. Nil uses
	// slog.Default().
	Logger *slog.Logger
}

// DefaultSGLDConfig returns the default SGLD configuration for a dataset
// of n samples.
func DefaultSGLDConfig(n int) SGLDConfig {
	return SGLDConfig{
		LearningRate: 0.01,
		NoiseLevel:   1.0,
		Elasticity:   1.0,
		NumSamples:   n,
	}
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *SGLDConfig) ApplyDefaults() {
	if c.Temperature == 0 {
		c.Temperature = OptimalTemperature(c.NumSamples)
	}
}

// Validate checks the configuration. Violations are reported at
// construction, never deferred to sampling time.
func (c *SGLDConfig) Validate() error {
	if c.LearningRate < 0 {
		return errors.New("LearningRate must be >= 0")
	}
	if c.NoiseLevel < 0 {
		return errors.New("NoiseLevel must be >= 0")
	}
	if c.WeightDecay < 0 {
		return errors.New("WeightDecay must be >= 0")
	}
	if c.Elasticity < 0 {
		return errors.New("Elasticity must be >= 0")
	}
	if c.Temperature <= 0 {
		return errors.New("Temperature must be > 0")
	}
	if c.BoundingBoxSize < 0 {
		return errors.New("BoundingBoxSize must be >= 0")
	}
	if c.NumSamples < 1 {
		return errors.New("NumSamples must be >= 1")
	}
	return nil
}

// -----------------------------------------------------------------------------
// SGNHT Configuration
// -----------------------------------------------------------------------------

// SGNHTConfig configures a stochastic gradient Nosé-Hoover thermostat
// sampler.
type SGNHTConfig struct {
	// LearningRate is the step size epsilon.
	LearningRate float64

	// DiffusionFactor is the injected-noise scale A. Each momentum update
	// adds sqrt(2*A)*N(0, epsilon*I).
	DiffusionFactor float64

	// BoundingBoxSize, when positive, hard-clips every coordinate into
	// [start-size, start+size] after each position update.
	BoundingBoxSize float64

	// NumSamples is the dataset size n scaling the mean-loss gradient.
	// Required.
	NumSamples int

	// Logger receives hyperparameter-mutation warnings. Nil uses
	// slog.Default().
	Logger *slog.Logger
}

// DefaultSGNHTConfig returns the default SGNHT configuration for a dataset
// of n samples.
func DefaultSGNHTConfig(n int) SGNHTConfig {
	return SGNHTConfig{
		LearningRate:    0.01,
		DiffusionFactor: 0.01,
		NumSamples:      n,
	}
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *SGNHTConfig) ApplyDefaults() {
	if c.DiffusionFactor == 0 {
		c.DiffusionFactor = 0.01
	}
}

// Validate checks the configuration.
func (c *SGNHTConfig) Validate() error {
	if c.LearningRate < 0 {
		return errors.New("LearningRate must be >= 0")
	}
	if c.DiffusionFactor <= 0 {
		return errors.New("DiffusionFactor must be > 0")
	}
	if c.BoundingBoxSize < 0 {
		return errors.New("BoundingBoxSize must be >= 0")
	}
	if c.NumSamples < 1 {
		return errors.New("NumSamples must be >= 1")
	}
	return nil
}

// wrapConfigErr tags a validation failure with the shared sentinel.
func wrapConfigErr(kind string, err error) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, kind, err)
}
