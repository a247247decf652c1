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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/basin/tensor"
)

// Helper building a 4-element single-tensor vector.
func vec4(t *testing.T, data ...float64) *tensor.Vector {
	t.Helper()
	l, err := tensor.NewLayout(tensor.Spec{Name: "w", Shape: []int{2, 2}})
	require.NoError(t, err)
	v, err := tensor.FromSlice(l, data)
	require.NoError(t, err)
	return v
}

// Test the Euclidean gradient norm over known vectors
func TestGradientNorm_Euclidean(t *testing.T) {
	g, err := NewGradientNorm(1, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, "grad_norm", g.Name())
	assert.True(t, g.Needs().Gradient)
	assert.False(t, g.Needs().Params)

	r0 := lossRec(0, 0, 0)
	r0.Grad = vec4(t, 3, 4, 0, 0) // norm 5
	require.NoError(t, g.Update(r0))

	r1 := lossRec(0, 1, 0)
	r1.Grad = vec4(t, 0, 0, 5, 12) // norm 13
	require.NoError(t, g.Update(r1))

	res, err := g.Finalize()
	require.NoError(t, err)

	assert.InDelta(t, 9.0, res.Scalars["grad_norm/mean"], 1e-12)
	assert.InDelta(t, 9.0, res.Scalars["grad_norm-chain/0"], 1e-12)
	assert.Equal(t, 5.0, res.Scalars["grad_norm/min"])
	assert.Equal(t, 13.0, res.Scalars["grad_norm/max"])
}

// Test the L1 weight norm
func TestWeightNorm_L1(t *testing.T) {
	w, err := NewWeightNorm(1, 1, 1)
	require.NoError(t, err)
	assert.True(t, w.Needs().Params)

	r := lossRec(0, 0, 0)
	r.Params = vec4(t, 1, -2, 3, -4)
	require.NoError(t, w.Update(r))

	res, err := w.Finalize()
	require.NoError(t, err)
	assert.InDelta(t, 10.0, res.Scalars["weight_norm/mean"], 1e-12)
}

// Test a record missing the declared field fails the update
func TestNoiseNorm_MissingField(t *testing.T) {
	n, err := NewNoiseNorm(1, 1, 0)
	require.NoError(t, err)
	assert.True(t, n.Needs().Noise)

	err = n.Update(lossRec(0, 0, 0))
	assert.ErrorIs(t, err, ErrRecordField)
}

// Test norm orders below one are rejected
func TestNewGradientNorm_InvalidOrder(t *testing.T) {
	_, err := NewGradientNorm(1, 1, 0.5)
	assert.ErrorIs(t, err, ErrObserverConfig)
}
