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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test generation is deterministic under a fixed seed
func TestNewSyntheticDataset_Deterministic(t *testing.T) {
	cfg := SyntheticConfig{NumSamples: 16, NumFeatures: 8, Sparsity: 0.5, Seed: 42}

	a, err := NewSyntheticDataset(cfg)
	require.NoError(t, err)
	b, err := NewSyntheticDataset(cfg)
	require.NoError(t, err)

	require.Equal(t, a.Len(), b.Len())
	for i := 0; i < a.Len(); i++ {
		assert.Equal(t, a.Row(i), b.Row(i), "row %d", i)
	}
}

// Test ExactActive pins the per-row active count
func TestSyntheticDataset_ExactActive(t *testing.T) {
	d, err := NewSyntheticDataset(SyntheticConfig{
		NumSamples:  50,
		NumFeatures: 10,
		ExactActive: 3,
		Seed:        7,
	})
	require.NoError(t, err)

	for i := 0; i < d.Len(); i++ {
		active := 0
		for _, v := range d.Row(i) {
			if v != 0 {
				active++
			}
		}
		assert.Equal(t, 3, active, "row %d", i)
	}
}

// Test binary datasets carry unit activations
func TestSyntheticDataset_Binary(t *testing.T) {
	d, err := NewSyntheticDataset(SyntheticConfig{
		NumSamples:  50,
		NumFeatures: 6,
		ExactActive: 2,
		Binary:      true,
		Seed:        7,
	})
	require.NoError(t, err)

	for i := 0; i < d.Len(); i++ {
		for j, v := range d.Row(i) {
			if v != 0 {
				assert.Equal(t, 1.0, v, "row %d feature %d", i, j)
			}
		}
	}
}

// Test continuous activations stay inside the unit interval
func TestSyntheticDataset_ContinuousRange(t *testing.T) {
	d, err := NewSyntheticDataset(SyntheticConfig{
		NumSamples:  100,
		NumFeatures: 12,
		Sparsity:    0.5,
		Seed:        3,
	})
	require.NoError(t, err)

	for i := 0; i < d.Len(); i++ {
		for j, v := range d.Row(i) {
			assert.GreaterOrEqual(t, v, 0.0, "row %d feature %d", i, j)
			assert.Less(t, v, 1.0, "row %d feature %d", i, j)
		}
	}
}

// Test the empirical active fraction tracks 1-Sparsity
func TestSyntheticDataset_SparsityFraction(t *testing.T) {
	d, err := NewSyntheticDataset(SyntheticConfig{
		NumSamples:  2000,
		NumFeatures: 50,
		Sparsity:    0.8,
		Seed:        11,
	})
	require.NoError(t, err)

	active := 0
	for i := 0; i < d.Len(); i++ {
		for _, v := range d.Row(i) {
			if v != 0 {
				active++
			}
		}
	}
	frac := float64(active) / float64(d.Len()*d.NumFeatures())
	assert.InDelta(t, 0.2, frac, 0.02)
}

// Test invalid configurations are rejected
func TestSyntheticDataset_Validation(t *testing.T) {
	cases := []SyntheticConfig{
		{NumSamples: 0, NumFeatures: 4},
		{NumSamples: 8, NumFeatures: 0},
		{NumSamples: 8, NumFeatures: 4, Sparsity: 1.5},
		{NumSamples: 8, NumFeatures: 4, Sparsity: -0.1},
		{NumSamples: 8, NumFeatures: 4, ExactActive: 5},
		{NumSamples: 8, NumFeatures: 4, ExactActive: -1},
	}
	for i, cfg := range cases {
		_, err := NewSyntheticDataset(cfg)
		assert.ErrorIs(t, err, ErrDatasetConfig, "case %d", i)
	}
}

// Test batches carry exactly BatchSize rows and cycle across epochs
func TestSyntheticDataset_BatchesCycle(t *testing.T) {
	d, err := NewSyntheticDataset(SyntheticConfig{
		NumSamples:  5,
		NumFeatures: 3,
		Sparsity:    0.2,
		BatchSize:   2,
		Seed:        9,
	})
	require.NoError(t, err)

	iter := d.Batches(0)
	ctx := context.Background()
	seen := map[string]int{}
	for i := 0; i < 10; i++ {
		got, err := iter.Next(ctx)
		require.NoError(t, err)
		batch, ok := got.(Batch)
		require.True(t, ok, "batch %d has type %T", i, got)
		require.Len(t, batch.X, 2)
		for _, row := range batch.X {
			require.Len(t, row, 3)
			seen[key(row)]++
		}
	}
	// 20 rows drawn from 5 samples: every sample appears exactly 4 times.
	require.Len(t, seen, 5)
	for k, n := range seen {
		assert.Equal(t, 4, n, "row %s", k)
	}
}

// Test one full-dataset batch is a permutation of the rows
func TestSyntheticDataset_EpochPermutation(t *testing.T) {
	d, err := NewSyntheticDataset(SyntheticConfig{
		NumSamples:  8,
		NumFeatures: 4,
		Sparsity:    0.3,
		BatchSize:   8,
		Seed:        21,
	})
	require.NoError(t, err)

	got, err := d.Batches(1).Next(context.Background())
	require.NoError(t, err)
	batch := got.(Batch)

	want := map[string]int{}
	for i := 0; i < d.Len(); i++ {
		want[key(d.Row(i))]++
	}
	have := map[string]int{}
	for _, row := range batch.X {
		have[key(row)]++
	}
	assert.Equal(t, want, have)
}

// Test iteration is reproducible per chain
func TestSyntheticDataset_ChainIterationDeterministic(t *testing.T) {
	d, err := NewSyntheticDataset(SyntheticConfig{
		NumSamples:  6,
		NumFeatures: 2,
		Sparsity:    0.4,
		BatchSize:   3,
		Seed:        5,
	})
	require.NoError(t, err)

	ctx := context.Background()
	first := d.Batches(2)
	second := d.Batches(2)
	for i := 0; i < 6; i++ {
		a, err := first.Next(ctx)
		require.NoError(t, err)
		b, err := second.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, a, b, "batch %d", i)
	}
}

// Test iterators observe context cancellation
func TestSyntheticDataset_IteratorCancellation(t *testing.T) {
	d, err := NewSyntheticDataset(SyntheticConfig{
		NumSamples:  4,
		NumFeatures: 2,
		Seed:        1,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Batches(0).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func key(row []float64) string {
	return fmt.Sprintf("%v", row)
}
