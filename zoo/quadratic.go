// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package zoo

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/basin/tensor"
)

// ErrModelConfig wraps model construction failures.
var ErrModelConfig = errors.New("zoo: invalid model configuration")

// errParamsLayout reports parameters that do not match a model's layout.
var errParamsLayout = errors.New("zoo: parameter layout does not match model")

// QuadraticModel is the landscape L(theta) = 0.5 * sum_i h_i * theta_i^2
// with positive curvatures h.
//
// The minimum at the origin is regular, so its local learning coefficient
// is dim/2 regardless of the curvatures. That closed form is what makes
// this model the calibration target for the LLC estimators: sample around
// the origin and compare the estimate against TrueLLC.
//
// The loss is deterministic and ignores batches entirely.
type QuadraticModel struct {
	layout *tensor.Layout
	curv   []float64
}

// NewQuadraticModel builds a quadratic landscape over dim parameters.
// curvature may be nil for the isotropic bowl; otherwise it must supply
// one positive value per dimension.
func NewQuadraticModel(dim int, curvature []float64) (*QuadraticModel, error) {
	if dim < 1 {
		return nil, fmt.Errorf("%w: quadratic: dim must be >= 1", ErrModelConfig)
	}
	if curvature == nil {
		curvature = make([]float64, dim)
		for i := range curvature {
			curvature[i] = 1
		}
	}
	if len(curvature) != dim {
		return nil, fmt.Errorf("%w: quadratic: %d curvatures for %d dimensions", ErrModelConfig, len(curvature), dim)
	}
	for i, h := range curvature {
		if h <= 0 {
			return nil, fmt.Errorf("%w: quadratic: curvature %d must be > 0", ErrModelConfig, i)
		}
	}
	layout, err := tensor.NewLayout(tensor.Spec{Name: "theta", Shape: []int{dim}})
	if err != nil {
		return nil, err
	}
	return &QuadraticModel{layout: layout, curv: append([]float64(nil), curvature...)}, nil
}

// Layout returns the model's parameter layout.
func (m *QuadraticModel) Layout() *tensor.Layout { return m.layout }

// Init returns the parameter vector at the minimum (the origin).
func (m *QuadraticModel) Init() *tensor.Vector { return tensor.NewVector(m.layout) }

// TrueLLC returns the analytic local learning coefficient of the minimum.
func (m *QuadraticModel) TrueLLC() float64 { return float64(len(m.curv)) / 2 }

// Loss implements sample.GradientEvaluator.
func (m *QuadraticModel) Loss(_ context.Context, params *tensor.Vector, _ any) (float64, error) {
	if !params.Layout().Same(m.layout) {
		return 0, errParamsLayout
	}
	loss := 0.0
	for i, v := range params.Data() {
		loss += 0.5 * m.curv[i] * v * v
	}
	return loss, nil
}

// Gradient implements sample.GradientEvaluator.
func (m *QuadraticModel) Gradient(_ context.Context, params *tensor.Vector, grad *tensor.Vector, _ any) (float64, error) {
	if !params.Layout().Same(m.layout) || !grad.Layout().Same(m.layout) {
		return 0, errParamsLayout
	}
	loss := 0.0
	g := grad.Data()
	for i, v := range params.Data() {
		loss += 0.5 * m.curv[i] * v * v
		g[i] = m.curv[i] * v
	}
	return loss, nil
}
