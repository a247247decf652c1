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

	"github.com/AleutianAI/basin/tensor"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNilParams is returned when a sampler is constructed without a
	// parameter vector.
	ErrNilParams = errors.New("optim: nil parameter vector")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("optim: invalid configuration")

	// ErrGradLayout is returned when Step receives a gradient whose layout
	// does not match the parameters.
	ErrGradLayout = errors.New("optim: gradient layout does not match parameters")

	// ErrNonFiniteGrad is returned when Step receives a gradient containing
	// NaN or Inf.
	ErrNonFiniteGrad = errors.New("optim: gradient contains non-finite values")

	// ErrHyperFixed is returned by SetHyper after the first Step outside
	// calibration mode. The mutation is rejected; the run is not aborted.
	ErrHyperFixed = errors.New("optim: hyperparameter is fixed once sampling begins")

	// ErrUnknownHyper is returned by SetHyper for a name the sampler does
	// not recognize.
	ErrUnknownHyper = errors.New("optim: unknown hyperparameter")

	// ErrHyperValue is returned by SetHyper for an out-of-range value.
	ErrHyperValue = errors.New("optim: hyperparameter value out of range")
)

// -----------------------------------------------------------------------------
// Optimizer Contract
// -----------------------------------------------------------------------------

// Hyper names a dynamics hyperparameter for SetHyper.
type Hyper string

const (
	HyperLearningRate    Hyper = "learning_rate"
	HyperNoiseLevel      Hyper = "noise_level"
	HyperWeightDecay     Hyper = "weight_decay"
	HyperElasticity      Hyper = "elasticity"
	HyperTemperature     Hyper = "temperature"
	HyperBoundingBoxSize Hyper = "bounding_box_size"
	HyperDiffusionFactor Hyper = "diffusion_factor"
)

// Optimizer is the update rule a sampling chain drives.
//
// Description:
//
//	One Optimizer instance belongs to exactly one chain. Step applies a
//	single SG-MCMC update to the chain's parameter vector in place, using
//	the supplied mini-batch gradient of the mean loss. LastNoise exposes
//	the noise vector injected by the most recent Step so noise observers
//	can record it without reaching into sampler internals.
//
// Thread Safety: NOT safe for concurrent use. One instance per chain.
type Optimizer interface {
	// Step applies one update. grad must share the parameter layout and be
	// finite everywhere.
	Step(grad *tensor.Vector) error

	// ZeroGrad clears per-step scratch state, including the LastNoise
	// snapshot. The orchestrator calls it once when a chain starts;
	// callers driving an optimizer by hand may call it to reset between
	// experiments.
	ZeroGrad()

	// Params returns the parameter vector the sampler mutates.
	Params() *tensor.Vector

	// LastNoise returns the noise vector injected by the most recent Step.
	// All zeros before the first Step or after ZeroGrad.
	LastNoise() *tensor.Vector

	// SetHyper adjusts a dynamics hyperparameter. After the first Step it
	// fails with ErrHyperFixed unless calibration mode is active.
	SetHyper(h Hyper, v float64) error

	// BeginCalibration and EndCalibration bracket an explicit calibration
	// phase during which SetHyper is permitted mid-run.
	BeginCalibration()
	EndCalibration()
}

// Factory builds a fresh Optimizer around a chain's private parameter
// replica. The orchestrator calls it once per chain with a per-chain seed.
type Factory func(params *tensor.Vector, seed uint64) (Optimizer, error)

// SGLDFactory returns a Factory producing SGLD samplers with the given
// configuration.
func SGLDFactory(cfg SGLDConfig) Factory {
	return func(params *tensor.Vector, seed uint64) (Optimizer, error) {
		return NewSGLD(params, cfg, seed)
	}
}

// SGNHTFactory returns a Factory producing SGNHT samplers with the given
// configuration.
func SGNHTFactory(cfg SGNHTConfig) Factory {
	return func(params *tensor.Vector, seed uint64) (Optimizer, error) {
		return NewSGNHT(params, cfg, seed)
	}
}

// -----------------------------------------------------------------------------
// Hyperparameter Guard
// -----------------------------------------------------------------------------

// hyperGuard tracks whether dynamics hyperparameters may still be mutated.
// Embedded by both samplers.
type hyperGuard struct {
	stepped     bool
	calibrating bool
	logger      *slog.Logger
}

// BeginCalibration enters calibration mode, unlocking SetHyper.
func (g *hyperGuard) BeginCalibration() { g.calibrating = true }

// EndCalibration leaves calibration mode.
func (g *hyperGuard) EndCalibration() { g.calibrating = false }

// checkMutable returns ErrHyperFixed (and logs a warning) when h may no
// longer be changed. The caller leaves its state untouched on error.
func (g *hyperGuard) checkMutable(h Hyper) error {
	if !g.stepped || g.calibrating {
		return nil
	}
	g.logger.Warn("rejected mid-run hyperparameter mutation",
		slog.String("hyperparameter", string(h)))
	return fmt.Errorf("%w: %s", ErrHyperFixed, h)
}

func errHyperValue(h Hyper, v float64) error {
	return fmt.Errorf("%w: %s=%v", ErrHyperValue, h, v)
}

func errUnknownHyper(h Hyper) error {
	return fmt.Errorf("%w: %s", ErrUnknownHyper, h)
}

// validateGrad enforces the Step input contract shared by both samplers.
func validateGrad(params, grad *tensor.Vector) error {
	if grad == nil || !grad.Layout().Same(params.Layout()) {
		return ErrGradLayout
	}
	if !grad.AllFinite() {
		return ErrNonFiniteGrad
	}
	return nil
}
