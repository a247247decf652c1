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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/basin/tensor"
)

// Helper building a two-tensor layout: wa (2 elements) and wb (3 elements).
func covLayout(t *testing.T) *tensor.Layout {
	t.Helper()
	l, err := tensor.NewLayout(
		tensor.Spec{Name: "wa", Shape: []int{2}},
		tensor.Spec{Name: "wb", Shape: []int{3}},
	)
	require.NoError(t, err)
	return l
}

// Test ByNames selects whole tensors in order
func TestByNames_SelectsConcatenation(t *testing.T) {
	l := covLayout(t)
	sel, err := ByNames(l, "wb", "wa")
	require.NoError(t, err)

	assert.Equal(t, "wb+wa", sel.Label())
	assert.Equal(t, 5, sel.Dim())

	v, err := tensor.FromSlice(l, []float64{1, 2, 10, 20, 30})
	require.NoError(t, err)
	dst := make([]float64, 5)
	sel.extract(v, dst)
	assert.Equal(t, []float64{10, 20, 30, 1, 2}, dst)
}

// Test ByNames rejects unknown tensors and empty selections
func TestByNames_Validation(t *testing.T) {
	l := covLayout(t)

	_, err := ByNames(l, "missing")
	assert.ErrorIs(t, err, ErrObserverConfig)

	_, err = ByNames(l)
	assert.ErrorIs(t, err, ErrObserverConfig)

	_, err = ByNames(nil, "wa")
	assert.ErrorIs(t, err, ErrObserverConfig)
}

// Test ByRange selects an element window within one tensor
func TestByRange_Window(t *testing.T) {
	l := covLayout(t)
	sel, err := ByRange(l, "wb", 1, 3)
	require.NoError(t, err)

	assert.Equal(t, "wb[1:3]", sel.Label())
	assert.Equal(t, 2, sel.Dim())

	v, err := tensor.FromSlice(l, []float64{1, 2, 10, 20, 30})
	require.NoError(t, err)
	dst := make([]float64, 2)
	sel.extract(v, dst)
	assert.Equal(t, []float64{20, 30}, dst)

	_, err = ByRange(l, "wb", 0, 4)
	assert.ErrorIs(t, err, ErrObserverConfig)
	_, err = ByRange(l, "wb", -1, 2)
	assert.ErrorIs(t, err, ErrObserverConfig)
	_, err = ByRange(l, "wb", 2, 2)
	assert.ErrorIs(t, err, ErrObserverConfig)
}

// Test Heads partitions a first dimension into equal contiguous groups
func TestHeads_Partition(t *testing.T) {
	l, err := tensor.NewLayout(tensor.Spec{Name: "w", Shape: []int{4, 2}})
	require.NoError(t, err)

	heads, err := Heads(l, "w", 2)
	require.NoError(t, err)
	require.Len(t, heads, 2)
	assert.Equal(t, "w/head0", heads[0].Label())
	assert.Equal(t, 4, heads[0].Dim())
	assert.Equal(t, 4, heads[1].Dim())

	v, err := tensor.FromSlice(l, []float64{0, 1, 2, 3, 4, 5, 6, 7})
	require.NoError(t, err)
	dst := make([]float64, 4)
	heads[1].extract(v, dst)
	assert.Equal(t, []float64{4, 5, 6, 7}, dst)

	_, err = Heads(l, "w", 3)
	assert.ErrorIs(t, err, ErrObserverConfig)
	_, err = Heads(l, "w", 0)
	assert.ErrorIs(t, err, ErrObserverConfig)
}

// Test the streamed, chain-merged spectrum matches a direct dense
// computation over the same samples
func TestCovarianceAccumulator_MatchesDirect(t *testing.T) {
	l := covLayout(t)
	sel, err := ByNames(l, "wb")
	require.NoError(t, err)

	const (
		chains = 2
		draws  = 20
		dim    = 3
	)
	acc, err := NewCovarianceAccumulator(CovarianceConfig{
		Chains:   chains,
		Draws:    draws,
		Selector: sel,
	})
	require.NoError(t, err)
	assert.Equal(t, "cov", acc.Name())
	assert.True(t, acc.Needs().Params)

	// Correlated 3-dimensional samples, split across two chains.
	rng := rand.New(rand.NewSource(7))
	flat := make([]float64, 0, chains*draws*dim)
	for d := 0; d < draws; d++ {
		for c := 0; c < chains; c++ {
			a := rng.NormFloat64()
			b := rng.NormFloat64()
			row := []float64{a, 2*a + 0.1*b, -a + rng.NormFloat64()}
			flat = append(flat, row...)

			v, err := tensor.FromSlice(l, append([]float64{0, 0}, row...))
			require.NoError(t, err)
			rec := lossRec(c, d, 0)
			rec.Params = v
			require.NoError(t, acc.Update(rec))
		}
	}

	res, err := acc.Finalize()
	require.NoError(t, err)
	assert.False(t, res.Incomplete)
	assert.Equal(t, float64(dim), res.Scalars["cov/dim"])

	// Direct covariance over all rows, chain split ignored.
	direct := mat.NewSymDense(dim, nil)
	stat.CovarianceMatrix(direct, mat.NewDense(chains*draws, dim, flat), nil)
	var es mat.EigenSym
	require.True(t, es.Factorize(direct, true))
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	for j := 0; j < dim; j++ {
		col := dim - 1 - j
		key := fmt.Sprintf("cov/eigenvalue/%d", j)
		require.Contains(t, res.Scalars, key)
		assert.InDelta(t, vals[col], res.Scalars[key], 1e-9, key)

		got := res.Series[fmt.Sprintf("cov/eigenvector/%d", j)]
		require.Len(t, got, dim)
		want := make([]float64, dim)
		mat.Col(want, col, &vecs)
		dot := 0.0
		for i := range want {
			dot += want[i] * got[i]
		}
		// Eigenvectors match up to sign.
		assert.InDelta(t, 1.0, math.Abs(dot), 1e-9, "eigenvector %d", j)
	}
}

// Test a single draw yields no spectrum but a valid result shell
func TestCovarianceAccumulator_SingleDraw(t *testing.T) {
	l := covLayout(t)
	sel, err := ByNames(l, "wa")
	require.NoError(t, err)

	acc, err := NewCovarianceAccumulator(CovarianceConfig{Chains: 1, Draws: 2, Selector: sel})
	require.NoError(t, err)

	v, err := tensor.FromSlice(l, []float64{1, 2, 0, 0, 0})
	require.NoError(t, err)
	rec := lossRec(0, 0, 0)
	rec.Params = v
	require.NoError(t, acc.Update(rec))

	res, err := acc.Finalize()
	require.NoError(t, err)
	assert.NotContains(t, res.Scalars, "cov/eigenvalue/0")
	assert.True(t, res.Incomplete)
}

// Test records without parameters are rejected
func TestCovarianceAccumulator_MissingParams(t *testing.T) {
	l := covLayout(t)
	sel, err := ByNames(l, "wa")
	require.NoError(t, err)

	acc, err := NewCovarianceAccumulator(CovarianceConfig{Chains: 1, Draws: 1, Selector: sel})
	require.NoError(t, err)

	assert.ErrorIs(t, acc.Update(lossRec(0, 0, 0)), ErrRecordField)
}

// Test configuration validation
func TestNewCovarianceAccumulator_Validation(t *testing.T) {
	l := covLayout(t)
	sel, err := ByNames(l, "wa")
	require.NoError(t, err)

	_, err = NewCovarianceAccumulator(CovarianceConfig{Chains: 1, Draws: 1})
	assert.ErrorIs(t, err, ErrObserverConfig)

	_, err = NewCovarianceAccumulator(CovarianceConfig{Chains: 0, Draws: 1, Selector: sel})
	assert.ErrorIs(t, err, ErrObserverConfig)

	_, err = NewCovarianceAccumulator(CovarianceConfig{Chains: 1, Draws: 1, Selector: sel, TopK: -1})
	assert.ErrorIs(t, err, ErrObserverConfig)
}

// Test the between-layer variant namespaces its keys
func TestBetweenLayerCovariance_Keys(t *testing.T) {
	l := covLayout(t)
	blc, err := NewBetweenLayerCovariance(1, 4, l, "wa", "wb", 2)
	require.NoError(t, err)
	assert.Equal(t, "between_layer_cov", blc.Name())

	rng := rand.New(rand.NewSource(3))
	for d := 0; d < 4; d++ {
		data := make([]float64, 5)
		for i := range data {
			data[i] = rng.NormFloat64()
		}
		v, err := tensor.FromSlice(l, data)
		require.NoError(t, err)
		rec := lossRec(0, d, 0)
		rec.Params = v
		require.NoError(t, blc.Update(rec))
	}

	res, err := blc.Finalize()
	require.NoError(t, err)
	assert.Contains(t, res.Scalars, "between_layer_cov/eigenvalue/0")
	assert.Contains(t, res.Scalars, "between_layer_cov/eigenvalue/1")
	assert.Equal(t, 5.0, res.Scalars["between_layer_cov/dim"])
}

// Test per-head covariances are independent
func TestWithinHeadCovariance_IndependentHeads(t *testing.T) {
	l, err := tensor.NewLayout(tensor.Spec{Name: "w", Shape: []int{4, 2}})
	require.NoError(t, err)

	w, err := NewWithinHeadCovariance(1, 8, l, "w", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, "within_head_cov", w.Name())

	// Head 0 varies with the draw index; head 1 stays constant, so its
	// covariance is exactly zero.
	rng := rand.New(rand.NewSource(11))
	for d := 0; d < 8; d++ {
		data := []float64{
			rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(),
			1, 2, 3, 4,
		}
		v, err := tensor.FromSlice(l, data)
		require.NoError(t, err)
		rec := lossRec(0, d, 0)
		rec.Params = v
		require.NoError(t, w.Update(rec))
	}

	res, err := w.Finalize()
	require.NoError(t, err)

	assert.Greater(t, res.Scalars["within_head_cov/head0/eigenvalue/0"], 0.0)
	assert.InDelta(t, 0.0, res.Scalars["within_head_cov/head1/eigenvalue/0"], 1e-12)
	require.Len(t, res.Series["within_head_cov/head0/eigenvector/0"], 4)
}
