// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tensor provides the flat parameter-vector representation used by
// the sampling engine.
//
// A model's trainable parameters are described once as an ordered set of
// named, shaped tensors (a Layout) and stored as a single contiguous
// []float64 (a Vector). The flat encoding keeps whole-vector updates as
// single passes over one slice, while the layout gives accumulators cheap
// per-tensor subviews by name.
package tensor

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrEmptyLayout is returned when a layout is constructed with no tensors.
	ErrEmptyLayout = errors.New("tensor: layout has no tensors")

	// ErrDuplicateName is returned when two tensors share a name.
	ErrDuplicateName = errors.New("tensor: duplicate tensor name")

	// ErrBadShape is returned for empty shapes or non-positive dimensions.
	ErrBadShape = errors.New("tensor: invalid tensor shape")

	// ErrUnknownTensor is returned when a name is not part of the layout.
	ErrUnknownTensor = errors.New("tensor: unknown tensor name")

	// ErrLayoutMismatch reports an operation across vectors with different
	// layouts. Vector arithmetic panics with this value, following gonum's
	// convention for shape errors on programmer-error paths.
	ErrLayoutMismatch = errors.New("tensor: vectors have different layouts")
)

// -----------------------------------------------------------------------------
// Layout
// -----------------------------------------------------------------------------

// Spec names one tensor and gives its shape, in row-major element order.
type Spec struct {
	Name  string
	Shape []int
}

// Size returns the number of scalar elements the spec describes.
func (s Spec) Size() int {
	n := 1
	for _, d := range s.Shape {
		n *= d
	}
	return n
}

// Layout is an immutable description of an ordered set of named tensors
// packed into one flat backing array.
//
// Description:
//
//	A Layout is built once per model and shared by every Vector derived
//	from it (chain replicas, gradients, momenta, noise snapshots). Offsets
//	are assigned in declaration order. Layouts are never mutated after
//	construction, so sharing one across goroutines is safe.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Layout struct {
	specs   []Spec
	offsets []int
	index   map[string]int
	total   int
}

// NewLayout builds a layout from tensor specs in declaration order.
//
// Names must be unique and non-empty; shapes must have at least one
// dimension and every dimension must be positive.
func NewLayout(specs ...Spec) (*Layout, error) {
	if len(specs) == 0 {
		return nil, ErrEmptyLayout
	}
	l := &Layout{
		specs:   make([]Spec, 0, len(specs)),
		offsets: make([]int, 0, len(specs)),
		index:   make(map[string]int, len(specs)),
	}
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrBadShape)
		}
		if _, seen := l.index[s.Name]; seen {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, s.Name)
		}
		if len(s.Shape) == 0 {
			return nil, fmt.Errorf("%w: tensor %q has no dimensions", ErrBadShape, s.Name)
		}
		for _, d := range s.Shape {
			if d <= 0 {
				return nil, fmt.Errorf("%w: tensor %q has dimension %d", ErrBadShape, s.Name, d)
			}
		}
		cp := Spec{Name: s.Name, Shape: append([]int(nil), s.Shape...)}
		l.index[cp.Name] = len(l.specs)
		l.offsets = append(l.offsets, l.total)
		l.specs = append(l.specs, cp)
		l.total += cp.Size()
	}
	return l, nil
}

// Len returns the total number of scalar parameters in the layout.
func (l *Layout) Len() int { return l.total }

// NumTensors returns the number of named tensors.
func (l *Layout) NumTensors() int { return len(l.specs) }

// Names returns the tensor names in declaration order.
func (l *Layout) Names() []string {
	out := make([]string, len(l.specs))
	for i, s := range l.specs {
		out[i] = s.Name
	}
	return out
}

// Spec returns the spec for the i-th tensor.
func (l *Layout) Spec(i int) Spec { return l.specs[i] }

// Shape returns the shape of the named tensor.
func (l *Layout) Shape(name string) ([]int, error) {
	i, ok := l.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTensor, name)
	}
	return append([]int(nil), l.specs[i].Shape...), nil
}

// Range returns the half-open flat index range [lo, hi) of the named tensor.
func (l *Layout) Range(name string) (lo, hi int, err error) {
	i, ok := l.index[name]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnknownTensor, name)
	}
	lo = l.offsets[i]
	return lo, lo + l.specs[i].Size(), nil
}

// Contains reports whether the layout has a tensor with the given name.
func (l *Layout) Contains(name string) bool {
	_, ok := l.index[name]
	return ok
}

// Same reports whether two layouts are interchangeable. The fast path is
// pointer identity, which holds for every vector cloned from one template.
func (l *Layout) Same(o *Layout) bool {
	if l == o {
		return true
	}
	if o == nil || len(l.specs) != len(o.specs) || l.total != o.total {
		return false
	}
	for i, s := range l.specs {
		if s.Name != o.specs[i].Name || s.Size() != o.specs[i].Size() {
			return false
		}
	}
	return true
}
