// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLayout(t *testing.T) *Layout {
	t.Helper()
	l, err := NewLayout(
		Spec{Name: "encoder.weight", Shape: []int{2, 3}},
		Spec{Name: "encoder.bias", Shape: []int{2}},
	)
	require.NoError(t, err)
	return l
}

// Test layout construction assigns offsets in declaration order
func TestNewLayout_Offsets(t *testing.T) {
	l := testLayout(t)
	assert.Equal(t, 8, l.Len())
	assert.Equal(t, 2, l.NumTensors())
	assert.Equal(t, []string{"encoder.weight", "encoder.bias"}, l.Names())

	lo, hi, err := l.Range("encoder.weight")
	require.NoError(t, err)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 6, hi)

	lo, hi, err = l.Range("encoder.bias")
	require.NoError(t, err)
	assert.Equal(t, 6, lo)
	assert.Equal(t, 8, hi)
}

// Test layout construction rejects bad specs
func TestNewLayout_Invalid(t *testing.T) {
	_, err := NewLayout()
	assert.ErrorIs(t, err, ErrEmptyLayout)

	_, err = NewLayout(
		Spec{Name: "w", Shape: []int{2}},
		Spec{Name: "w", Shape: []int{3}},
	)
	assert.ErrorIs(t, err, ErrDuplicateName)

	_, err = NewLayout(Spec{Name: "w", Shape: []int{0, 4}})
	assert.ErrorIs(t, err, ErrBadShape)

	_, err = NewLayout(Spec{Name: "w", Shape: nil})
	assert.ErrorIs(t, err, ErrBadShape)
}

// Test unknown tensor lookups return ErrUnknownTensor
func TestLayout_UnknownTensor(t *testing.T) {
	l := testLayout(t)
	_, _, err := l.Range("decoder.weight")
	assert.ErrorIs(t, err, ErrUnknownTensor)

	v := NewVector(l)
	_, err = v.Slice("decoder.weight")
	assert.ErrorIs(t, err, ErrUnknownTensor)
}

// Test Slice aliases the backing array
func TestVector_SliceWritesThrough(t *testing.T) {
	l := testLayout(t)
	v := NewVector(l)

	bias, err := v.Slice("encoder.bias")
	require.NoError(t, err)
	bias[0] = 1.5
	bias[1] = -2.5

	assert.Equal(t, 1.5, v.Data()[6])
	assert.Equal(t, -2.5, v.Data()[7])
}

// Test Clone is deep and shares the layout
func TestVector_Clone(t *testing.T) {
	l := testLayout(t)
	v, err := FromSlice(l, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)

	c := v.Clone()
	require.Same(t, v.Layout(), c.Layout())
	c.Data()[0] = 99

	assert.Equal(t, 1.0, v.Data()[0])
	assert.Equal(t, 99.0, c.Data()[0])
}

// Test arithmetic primitives used by the optimizers
func TestVector_Arithmetic(t *testing.T) {
	l := testLayout(t)
	v, err := FromSlice(l, []float64{1, 1, 1, 1, 1, 1, 1, 1})
	require.NoError(t, err)
	x, err := FromSlice(l, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)

	ones := v.Clone()

	v.AddScaled(0.5, x)
	assert.InDelta(t, 1.5, v.Data()[0], 1e-15)
	assert.InDelta(t, 5.0, v.Data()[7], 1e-15)

	v.Scale(2)
	assert.InDelta(t, 3.0, v.Data()[0], 1e-15)

	assert.InDelta(t, 36.0, x.Dot(ones), 1e-15)
	assert.InDelta(t, 8.0, x.Norm(math.Inf(1)), 1e-15)
	assert.InDelta(t, math.Sqrt(204), x.Norm(2), 1e-12)
}

// Test box clipping clamps around the anchor
func TestVector_ClipToBox(t *testing.T) {
	l := testLayout(t)
	anchor := NewVector(l)
	v, err := FromSlice(l, []float64{-3, -0.2, 0, 0.2, 3, 0.6, -0.6, 10})
	require.NoError(t, err)

	v.ClipToBox(anchor, 0.5)
	want := []float64{-0.5, -0.2, 0, 0.2, 0.5, 0.5, -0.5, 0.5}
	for i, w := range want {
		assert.InDelta(t, w, v.Data()[i], 1e-15, "index %d", i)
	}
}

// Test layout mismatch panics with ErrLayoutMismatch
func TestVector_LayoutMismatchPanics(t *testing.T) {
	a := NewVector(testLayout(t))
	other, err := NewLayout(Spec{Name: "w", Shape: []int{3}})
	require.NoError(t, err)
	b := NewVector(other)

	assert.PanicsWithValue(t, ErrLayoutMismatch, func() { a.AddScaled(1, b) })
	assert.PanicsWithValue(t, ErrLayoutMismatch, func() { a.Dot(b) })
	assert.PanicsWithValue(t, ErrLayoutMismatch, func() { a.CopyFrom(b) })
}

// Test EachTensor visits tensors in declaration order
func TestVector_EachTensor(t *testing.T) {
	l := testLayout(t)
	v, err := FromSlice(l, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)

	var names []string
	var sizes []int
	v.EachTensor(func(name string, data []float64) {
		names = append(names, name)
		sizes = append(sizes, len(data))
	})
	assert.Equal(t, []string{"encoder.weight", "encoder.bias"}, names)
	assert.Equal(t, []int{6, 2}, sizes)
}

// Test finite detection
func TestVector_AllFinite(t *testing.T) {
	l := testLayout(t)
	v := NewVector(l)
	assert.True(t, v.AllFinite())

	v.Data()[3] = math.NaN()
	assert.False(t, v.AllFinite())

	v.Data()[3] = math.Inf(-1)
	assert.False(t, v.AllFinite())
}
