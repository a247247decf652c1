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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/basin/optim"
	"github.com/AleutianAI/basin/sample"
	"github.com/AleutianAI/basin/tensor"
)

// Test construction rejects bad shapes and curvatures
func TestNewQuadraticModel_Validation(t *testing.T) {
	_, err := NewQuadraticModel(0, nil)
	assert.ErrorIs(t, err, ErrModelConfig)

	_, err = NewQuadraticModel(3, []float64{1, 2})
	assert.ErrorIs(t, err, ErrModelConfig)

	_, err = NewQuadraticModel(2, []float64{1, -1})
	assert.ErrorIs(t, err, ErrModelConfig)

	_, err = NewQuadraticModel(2, []float64{1, 0})
	assert.ErrorIs(t, err, ErrModelConfig)
}

// Test loss and gradient against hand-computed values
func TestQuadraticModel_LossAndGradient(t *testing.T) {
	m, err := NewQuadraticModel(3, []float64{1, 2, 4})
	require.NoError(t, err)

	params, err := tensor.FromSlice(m.Layout(), []float64{1, -1, 0.5})
	require.NoError(t, err)
	ctx := context.Background()

	loss, err := m.Loss(ctx, params, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, loss, 1e-12)

	grad := tensor.NewVector(m.Layout())
	gloss, err := m.Gradient(ctx, params, grad, nil)
	require.NoError(t, err)
	assert.InDelta(t, loss, gloss, 1e-12)
	assert.InDeltaSlice(t, []float64{1, -2, 2}, grad.Data(), 1e-12)
}

// Test the isotropic default curvature
func TestQuadraticModel_DefaultCurvature(t *testing.T) {
	m, err := NewQuadraticModel(2, nil)
	require.NoError(t, err)

	params, err := tensor.FromSlice(m.Layout(), []float64{3, 4})
	require.NoError(t, err)

	grad := tensor.NewVector(m.Layout())
	loss, err := m.Gradient(context.Background(), params, grad, nil)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, loss, 1e-12)
	assert.InDeltaSlice(t, []float64{3, 4}, grad.Data(), 1e-12)
}

// Test the analytic LLC of a regular minimum
func TestQuadraticModel_TrueLLC(t *testing.T) {
	m, err := NewQuadraticModel(4, nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, m.TrueLLC())

	m, err = NewQuadraticModel(7, nil)
	require.NoError(t, err)
	assert.Equal(t, 3.5, m.TrueLLC())
}

// Test Init places the chain at the minimum
func TestQuadraticModel_InitAtOrigin(t *testing.T) {
	m, err := NewQuadraticModel(3, nil)
	require.NoError(t, err)

	params := m.Init()
	require.True(t, params.Layout().Same(m.Layout()))
	for i, v := range params.Data() {
		assert.Zero(t, v, "component %d", i)
	}
}

// Test mismatched parameter layouts are rejected
func TestQuadraticModel_LayoutMismatch(t *testing.T) {
	m, err := NewQuadraticModel(3, nil)
	require.NoError(t, err)

	other, err := tensor.NewLayout(tensor.Spec{Name: "w", Shape: []int{2}})
	require.NoError(t, err)

	_, err = m.Loss(context.Background(), tensor.NewVector(other), nil)
	assert.ErrorIs(t, err, errParamsLayout)
}

// Test a full SGLD run recovers the analytic LLC of the quadratic bowl.
// With n=1000 samples and a small step size the chain equilibrates around
// the origin and the estimator should land near dim/2 = 1.
func TestQuadraticModel_SGLDRecoversTrueLLC(t *testing.T) {
	const n = 1000

	model, err := NewQuadraticModel(2, nil)
	require.NoError(t, err)

	data, err := NewSyntheticDataset(SyntheticConfig{
		NumSamples:  64,
		NumFeatures: 4,
		Sparsity:    0.5,
		BatchSize:   16,
		Seed:        1,
	})
	require.NoError(t, err)

	llc, err := sample.NewLLCEstimator(2, 2000, n, 0)
	require.NoError(t, err)

	cfg := sample.Config{
		NumChains:       2,
		NumDraws:        2000,
		NumBurninSteps:  500,
		NumStepsBwDraws: 1,
		Seed:            17,
		Workers:         2,
	}
	factory := optim.SGLDFactory(optim.SGLDConfig{
		LearningRate: 0.002,
		NoiseLevel:   1,
		Elasticity:   1,
		NumSamples:   n,
	})

	res, err := sample.Run(context.Background(), cfg, model.Init(), model, data, factory, []sample.Observer{llc})
	require.NoError(t, err)
	require.False(t, res.Interrupted)
	require.Equal(t, []int{2000, 2000}, res.ChainDraws)

	got := res.Flat()["llc/mean"]
	assert.InDelta(t, model.TrueLLC(), got, 0.35)
}
