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
	"fmt"

	"github.com/AleutianAI/basin/tensor"
)

// -----------------------------------------------------------------------------
// Norm Observers
// -----------------------------------------------------------------------------

// The norm observers track the running mean of a p-norm of one draw vector.
// Each is a configuration of OnlineTraceStatistics: grad_norm over the
// mini-batch gradient, noise_norm over the optimizer's injected noise, and
// weight_norm over the parameter state itself.

// GradientNorm tracks the p-norm of the draw's gradient.
type GradientNorm struct {
	*OnlineTraceStatistics
}

// NewGradientNorm builds a gradient-norm tracker. order <= 0 selects the
// Euclidean norm.
func NewGradientNorm(chains, draws int, order float64) (*GradientNorm, error) {
	core, err := newNormCore("grad_norm", chains, draws, order,
		Needs{Gradient: true},
		func(rec DrawRecord) *tensor.Vector { return rec.Grad })
	if err != nil {
		return nil, err
	}
	return &GradientNorm{core}, nil
}

// NoiseNorm tracks the p-norm of the noise the optimizer injected. It is
// the reason optimizers surface LastNoise: the perturbation is otherwise
// invisible outside the update rule.
type NoiseNorm struct {
	*OnlineTraceStatistics
}

// NewNoiseNorm builds a noise-norm tracker. order <= 0 selects the
// Euclidean norm.
func NewNoiseNorm(chains, draws int, order float64) (*NoiseNorm, error) {
	core, err := newNormCore("noise_norm", chains, draws, order,
		Needs{Noise: true},
		func(rec DrawRecord) *tensor.Vector { return rec.Noise })
	if err != nil {
		return nil, err
	}
	return &NoiseNorm{core}, nil
}

// WeightNorm tracks the p-norm of the parameter state at each draw.
type WeightNorm struct {
	*OnlineTraceStatistics
}

// NewWeightNorm builds a weight-norm tracker. order <= 0 selects the
// Euclidean norm.
func NewWeightNorm(chains, draws int, order float64) (*WeightNorm, error) {
	core, err := newNormCore("weight_norm", chains, draws, order,
		Needs{Params: true},
		func(rec DrawRecord) *tensor.Vector { return rec.Params })
	if err != nil {
		return nil, err
	}
	return &WeightNorm{core}, nil
}

// newNormCore wires a p-norm extractor into the shared moment tracker.
func newNormCore(name string, chains, draws int, order float64, needs Needs, source func(DrawRecord) *tensor.Vector) (*OnlineTraceStatistics, error) {
	if order <= 0 {
		order = 2
	}
	if order < 1 {
		return nil, fmt.Errorf("%w: %s: norm order must be >= 1", ErrObserverConfig, name)
	}
	extract := func(rec DrawRecord) (float64, error) {
		v := source(rec)
		if v == nil {
			return 0, fmt.Errorf("%w: %s", ErrRecordField, name)
		}
		return v.Norm(order), nil
	}
	return NewTraceStatistics(name, chains, draws, needs, extract)
}
