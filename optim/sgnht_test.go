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
)

// Test construction rejects invalid configurations up front
func TestNewSGNHT_ConfigValidation(t *testing.T) {
	params := paramsOf(t, 1, 2)

	_, err := NewSGNHT(nil, DefaultSGNHTConfig(100), 1)
	assert.ErrorIs(t, err, ErrNilParams)

	cfg := DefaultSGNHTConfig(100)
	cfg.LearningRate = -1
	_, err = NewSGNHT(params, cfg, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultSGNHTConfig(100)
	cfg.DiffusionFactor = -0.5
	_, err = NewSGNHT(params, cfg, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSGNHT(params, DefaultSGNHTConfig(0), 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// Test auxiliary state starts at zero: the first position update is a no-op
func TestSGNHT_ZeroInitialAuxiliaryState(t *testing.T) {
	params := paramsOf(t, 1.5, -0.5)
	cfg := SGNHTConfig{LearningRate: 0.1, DiffusionFactor: 1e-12, NumSamples: 10}
	s, err := NewSGNHT(params, cfg, 3)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 0}, s.Momentum().Data())
	assert.Equal(t, []float64{0}, s.Thermostat())

	grad := gradOf(t, params, 0.2, -0.2)
	require.NoError(t, s.Step(grad))

	// Position used the pre-step (zero) momentum.
	assert.Equal(t, []float64{1.5, -0.5}, params.Data())
	// Thermostat integrated kinetic deficit: xi = eps*(0 - 1).
	assert.InDelta(t, -0.1, s.Thermostat()[0], 1e-15)
}

// Test two hand-computed steps with negligible noise
func TestSGNHT_TwoStepDynamics(t *testing.T) {
	const (
		eps = 0.05
		n   = 20
	)
	params := paramsOf(t, 1.0)
	cfg := SGNHTConfig{LearningRate: eps, DiffusionFactor: 1e-16, NumSamples: n}
	s, err := NewSGNHT(params, cfg, 9)
	require.NoError(t, err)

	grad := gradOf(t, params, 0.5)
	require.NoError(t, s.Step(grad))
	require.NoError(t, s.Step(grad))

	// After step 1: p1 ~= -eps*n*g. After step 2: theta = theta0 + eps*p1.
	p1 := -eps * float64(n) * 0.5
	want := 1.0 + eps*p1
	assert.InDelta(t, want, params.Data()[0], 1e-6)

	// xi2 = xi1 + eps*(p1^2/1 - 1), xi1 = -eps.
	wantXi := -eps + eps*(p1*p1-1)
	assert.InDelta(t, wantXi, s.Thermostat()[0], 1e-6)
}

// Test identical seeds give byte-identical trajectories
func TestSGNHT_DeterministicTrajectory(t *testing.T) {
	run := func(seed uint64) []float64 {
		params := paramsOf(t, 0.1, 0.2, 0.3)
		s, err := NewSGNHT(params, DefaultSGNHTConfig(200), seed)
		require.NoError(t, err)
		grad := gradOf(t, params, 0.05, -0.05, 0.1)
		for i := 0; i < 30; i++ {
			require.NoError(t, s.Step(grad))
		}
		return append([]float64(nil), params.Data()...)
	}

	assert.Equal(t, run(7), run(7))
	assert.NotEqual(t, run(7), run(8))
}

// Test thermostat responds to injected energy
func TestSGNHT_ThermostatRegulates(t *testing.T) {
	params := paramsOf(t, 0, 0, 0, 0, 0, 0, 0, 0)
	cfg := SGNHTConfig{LearningRate: 0.01, DiffusionFactor: 1.0, NumSamples: 1}
	s, err := NewSGNHT(params, cfg, 21)
	require.NoError(t, err)

	zero := gradOf(t, params, 0, 0, 0, 0, 0, 0, 0, 0)
	for i := 0; i < 500; i++ {
		require.NoError(t, s.Step(zero))
	}
	xi := s.Thermostat()[0]
	assert.False(t, math.IsNaN(xi))
	assert.NotZero(t, xi)
	assert.True(t, params.AllFinite())
}

// Test bounding box clamps around the starting point
func TestSGNHT_BoundingBoxClips(t *testing.T) {
	params := paramsOf(t, 1, 1)
	cfg := SGNHTConfig{
		LearningRate:    0.2,
		DiffusionFactor: 2.0,
		BoundingBoxSize: 0.3,
		NumSamples:      100,
	}
	s, err := NewSGNHT(params, cfg, 4)
	require.NoError(t, err)

	grad := gradOf(t, params, 1, -1)
	for i := 0; i < 50; i++ {
		require.NoError(t, s.Step(grad))
		for j, v := range params.Data() {
			assert.LessOrEqual(t, math.Abs(v-1), 0.3+1e-15, "step %d coord %d", i, j)
		}
	}
}

// Test hyperparameter freezing and the SGNHT hyper set
func TestSGNHT_HyperparameterFreezing(t *testing.T) {
	params := paramsOf(t, 1)
	s, err := NewSGNHT(params, DefaultSGNHTConfig(100), 1)
	require.NoError(t, err)

	require.NoError(t, s.SetHyper(HyperDiffusionFactor, 0.5))

	grad := gradOf(t, params, 0.1)
	require.NoError(t, s.Step(grad))

	err = s.SetHyper(HyperDiffusionFactor, 1.0)
	assert.ErrorIs(t, err, ErrHyperFixed)

	s.BeginCalibration()
	assert.NoError(t, s.SetHyper(HyperLearningRate, 0.02))
	err = s.SetHyper(HyperElasticity, 1.0)
	assert.ErrorIs(t, err, ErrUnknownHyper)
	s.EndCalibration()
}
