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
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// -----------------------------------------------------------------------------
// Vector
// -----------------------------------------------------------------------------

// Vector is one concrete value of a Layout: the named tensors packed into a
// single flat []float64.
//
// Description:
//
//	A Vector represents a full parameter state, a gradient, a momentum
//	buffer, or a noise snapshot. All arithmetic runs over the flat backing
//	slice via gonum/floats, so an SGLD step over a million parameters is a
//	handful of vectorized passes. Per-tensor subviews (Slice) alias the
//	backing array and cost nothing.
//
// Thread Safety: NOT safe for concurrent mutation. Each sampling chain owns
// its vectors exclusively; observers receive copies.
type Vector struct {
	layout *Layout
	data   []float64
}

// NewVector returns a zero-valued vector of the given layout.
func NewVector(l *Layout) *Vector {
	return &Vector{layout: l, data: make([]float64, l.Len())}
}

// FromSlice copies data into a fresh vector. The slice length must equal the
// layout length.
func FromSlice(l *Layout, data []float64) (*Vector, error) {
	if len(data) != l.Len() {
		return nil, fmt.Errorf("tensor: data length %d does not match layout length %d", len(data), l.Len())
	}
	v := NewVector(l)
	copy(v.data, data)
	return v, nil
}

// Layout returns the shared layout describing this vector.
func (v *Vector) Layout() *Layout { return v.layout }

// Len returns the number of scalar elements.
func (v *Vector) Len() int { return len(v.data) }

// Data returns the flat backing slice. Mutations write through.
func (v *Vector) Data() []float64 { return v.data }

// At returns the i-th element of the flat vector.
func (v *Vector) At(i int) float64 { return v.data[i] }

// Slice returns the named tensor's elements as a subslice of the backing
// array. Mutations write through.
func (v *Vector) Slice(name string) ([]float64, error) {
	lo, hi, err := v.layout.Range(name)
	if err != nil {
		return nil, err
	}
	return v.data[lo:hi], nil
}

// Clone returns a deep copy sharing the (immutable) layout.
func (v *Vector) Clone() *Vector {
	c := &Vector{layout: v.layout, data: make([]float64, len(v.data))}
	copy(c.data, v.data)
	return c
}

// Zero sets every element to 0.
func (v *Vector) Zero() {
	for i := range v.data {
		v.data[i] = 0
	}
}

// CopyFrom overwrites v's elements with src's. Panics on layout mismatch.
func (v *Vector) CopyFrom(src *Vector) {
	if !v.layout.Same(src.layout) {
		panic(ErrLayoutMismatch)
	}
	copy(v.data, src.data)
}

// AddScaled performs v += alpha * x. Panics on layout mismatch.
func (v *Vector) AddScaled(alpha float64, x *Vector) {
	if !v.layout.Same(x.layout) {
		panic(ErrLayoutMismatch)
	}
	floats.AddScaled(v.data, alpha, x.data)
}

// Scale performs v *= alpha.
func (v *Vector) Scale(alpha float64) {
	floats.Scale(alpha, v.data)
}

// Dot returns the inner product <v, x>. Panics on layout mismatch.
func (v *Vector) Dot(x *Vector) float64 {
	if !v.layout.Same(x.layout) {
		panic(ErrLayoutMismatch)
	}
	return floats.Dot(v.data, x.data)
}

// Norm returns the p-norm of the flat vector. p must be at least 1;
// math.Inf(1) selects the max norm.
func (v *Vector) Norm(p float64) float64 {
	return floats.Norm(v.data, p)
}

// ClipToBox clamps every element into [anchor_i - size, anchor_i + size].
// Panics on layout mismatch.
func (v *Vector) ClipToBox(anchor *Vector, size float64) {
	if !v.layout.Same(anchor.layout) {
		panic(ErrLayoutMismatch)
	}
	for i, a := range anchor.data {
		if v.data[i] < a-size {
			v.data[i] = a - size
		} else if v.data[i] > a+size {
			v.data[i] = a + size
		}
	}
}

// EachTensor calls fn once per named tensor, in declaration order, with a
// write-through subslice of the backing array.
func (v *Vector) EachTensor(fn func(name string, data []float64)) {
	for i, s := range v.layout.specs {
		lo := v.layout.offsets[i]
		fn(s.Name, v.data[lo:lo+s.Size()])
	}
}

// AllFinite reports whether every element is finite.
func (v *Vector) AllFinite() bool {
	for _, x := range v.data {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
