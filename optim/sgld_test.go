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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/basin/tensor"
)

func paramsOf(t *testing.T, vals ...float64) *tensor.Vector {
	t.Helper()
	l, err := tensor.NewLayout(tensor.Spec{Name: "w", Shape: []int{len(vals)}})
	require.NoError(t, err)
	v, err := tensor.FromSlice(l, vals)
	require.NoError(t, err)
	return v
}

func gradOf(t *testing.T, params *tensor.Vector, vals ...float64) *tensor.Vector {
	t.Helper()
	g, err := tensor.FromSlice(params.Layout(), vals)
	require.NoError(t, err)
	return g
}

// Test construction rejects invalid configurations up front
func TestNewSGLD_ConfigValidation(t *testing.T) {
	params := paramsOf(t, 1, 2, 3)

	_, err := NewSGLD(nil, DefaultSGLDConfig(100), 1)
	assert.ErrorIs(t, err, ErrNilParams)

	cfg := DefaultSGLDConfig(100)
	cfg.LearningRate = -0.01
	_, err = NewSGLD(params, cfg, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultSGLDConfig(0)
	_, err = NewSGLD(params, cfg, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultSGLDConfig(100)
	cfg.Elasticity = -1
	_, err = NewSGLD(params, cfg, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	other := paramsOf(t, 1, 2)
	cfg = DefaultSGLDConfig(100)
	cfg.Anchor = other
	_, err = NewSGLD(params, cfg, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// Test identical seeds give byte-identical trajectories
func TestSGLD_DeterministicTrajectory(t *testing.T) {
	run := func(seed uint64) []float64 {
		params := paramsOf(t, 0.5, -0.25, 1.0, 2.0)
		s, err := NewSGLD(params, DefaultSGLDConfig(1000), seed)
		require.NoError(t, err)
		grad := gradOf(t, params, 0.1, -0.2, 0.3, -0.4)
		for i := 0; i < 25; i++ {
			require.NoError(t, s.Step(grad))
		}
		return append([]float64(nil), params.Data()...)
	}

	a := run(42)
	b := run(42)
	c := run(43)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

// Test zero learning rate freezes the chain entirely
func TestSGLD_ZeroLearningRateFreezesParams(t *testing.T) {
	params := paramsOf(t, 1, -2, 3)
	cfg := SGLDConfig{LearningRate: 0, NoiseLevel: 0, Elasticity: 0, NumSamples: 10}
	s, err := NewSGLD(params, cfg, 7)
	require.NoError(t, err)

	grad := gradOf(t, params, 5, 5, 5)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Step(grad))
	}
	assert.Equal(t, []float64{1, -2, 3}, params.Data())
	assert.Equal(t, []float64{0, 0, 0}, s.LastNoise().Data())
}

// Test gradient term scales by n/Temperature with the log(n) default
func TestSGLD_GradientScaleUsesTemperedDefault(t *testing.T) {
	const n = 100
	params := paramsOf(t, 1.0)
	cfg := SGLDConfig{LearningRate: 0.01, NoiseLevel: 0, NumSamples: n}
	s, err := NewSGLD(params, cfg, 1)
	require.NoError(t, err)

	grad := gradOf(t, params, 2.0)
	require.NoError(t, s.Step(grad))

	want := 1.0 - 0.5*0.01*(float64(n)/math.Log(n))*2.0
	assert.InDelta(t, want, params.Data()[0], 1e-12)
}

// Test elasticity pulls displaced parameters back toward the anchor
func TestSGLD_ElasticityRestoresTowardAnchor(t *testing.T) {
	params := paramsOf(t, 1.0, -1.0)
	anchor := paramsOf(t, 0.0, 0.0)
	cfg := SGLDConfig{
		LearningRate: 0.1,
		NoiseLevel:   0,
		Elasticity:   1.0,
		NumSamples:   10,
		Anchor:       anchor,
	}
	s, err := NewSGLD(params, cfg, 1)
	require.NoError(t, err)

	zero := gradOf(t, params, 0, 0)
	prev := math.Abs(params.Data()[0])
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Step(zero))
		cur := math.Abs(params.Data()[0])
		assert.Less(t, cur, prev, "step %d should contract toward the anchor", i)
		prev = cur
	}
	assert.InDelta(t, params.Data()[0], -params.Data()[1], 1e-12)
}

// Test bounding box clamps every coordinate around the anchor
func TestSGLD_BoundingBoxClips(t *testing.T) {
	params := paramsOf(t, 0, 0, 0, 0)
	cfg := DefaultSGLDConfig(1000)
	cfg.LearningRate = 0.5
	cfg.NoiseLevel = 5
	cfg.BoundingBoxSize = 0.25
	s, err := NewSGLD(params, cfg, 99)
	require.NoError(t, err)

	grad := gradOf(t, params, 1, -1, 2, -2)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Step(grad))
		for j, v := range params.Data() {
			assert.LessOrEqual(t, math.Abs(v), 0.25, "step %d coord %d", i, j)
		}
	}
}

// Test the applied noise is exactly the reported LastNoise
func TestSGLD_LastNoiseMatchesAppliedPerturbation(t *testing.T) {
	params := paramsOf(t, 1, 2, 3)
	cfg := SGLDConfig{LearningRate: 0.04, NoiseLevel: 1.5, NumSamples: 50}
	s, err := NewSGLD(params, cfg, 5)
	require.NoError(t, err)

	before := params.Clone()
	zero := gradOf(t, params, 0, 0, 0)
	require.NoError(t, s.Step(zero))

	noise := s.LastNoise()
	for i := range params.Data() {
		assert.InDelta(t, before.Data()[i]+noise.Data()[i], params.Data()[i], 1e-15)
	}
	assert.True(t, noise.Norm(2) > 0)

	s.ZeroGrad()
	assert.Equal(t, []float64{0, 0, 0}, s.LastNoise().Data())
}

// Test Step input contract
func TestSGLD_GradientContract(t *testing.T) {
	params := paramsOf(t, 1, 2)
	s, err := NewSGLD(params, DefaultSGLDConfig(10), 1)
	require.NoError(t, err)

	err = s.Step(nil)
	assert.ErrorIs(t, err, ErrGradLayout)

	wrong := paramsOf(t, 1, 2, 3)
	err = s.Step(wrong)
	assert.ErrorIs(t, err, ErrGradLayout)

	bad := gradOf(t, params, math.NaN(), 0)
	err = s.Step(bad)
	assert.ErrorIs(t, err, ErrNonFiniteGrad)
}

// Test hyperparameters freeze at the first step outside calibration
func TestSGLD_HyperparameterFreezing(t *testing.T) {
	params := paramsOf(t, 1)
	s, err := NewSGLD(params, DefaultSGLDConfig(100), 1)
	require.NoError(t, err)

	// Mutable before sampling begins.
	require.NoError(t, s.SetHyper(HyperNoiseLevel, 2.0))

	grad := gradOf(t, params, 0.5)
	require.NoError(t, s.Step(grad))

	err = s.SetHyper(HyperTemperature, 3.0)
	assert.ErrorIs(t, err, ErrHyperFixed)

	s.BeginCalibration()
	assert.NoError(t, s.SetHyper(HyperTemperature, 3.0))
	s.EndCalibration()

	err = s.SetHyper(HyperElasticity, 0.5)
	assert.ErrorIs(t, err, ErrHyperFixed)

	s.BeginCalibration()
	err = s.SetHyper(HyperTemperature, -1)
	assert.ErrorIs(t, err, ErrHyperValue)
	err = s.SetHyper(HyperDiffusionFactor, 0.1)
	assert.ErrorIs(t, err, ErrUnknownHyper)
}

// Test the factory builds independent per-chain instances
func TestSGLDFactory_IndependentInstances(t *testing.T) {
	cfg := DefaultSGLDConfig(500)
	factory := SGLDFactory(cfg)

	p1 := paramsOf(t, 1, 1)
	p2 := paramsOf(t, 1, 1)
	o1, err := factory(p1, 11)
	require.NoError(t, err)
	o2, err := factory(p2, 12)
	require.NoError(t, err)

	grad := gradOf(t, p1, 0.1, 0.1)
	require.NoError(t, o1.Step(grad))
	require.NoError(t, o2.Step(grad))

	assert.NotEqual(t, p1.Data(), p2.Data(), "different seeds must give different noise")
	assert.Same(t, p1, o1.Params())
	assert.Same(t, p2, o2.Params())
}
