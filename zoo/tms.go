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
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/basin/tensor"
)

// ErrBatchType reports a batch payload a model cannot consume.
var ErrBatchType = errors.New("zoo: unexpected batch payload")

// TMSModel is the toy model of superposition: a tied-weight autoencoder
// reconstructing sparse features through a narrow hidden layer,
//
//	xhat = ReLU(W^T W x + b)
//
// with mean squared reconstruction error. W is HiddenDim x NumFeatures
// and b has one entry per feature.
//
// Description:
//
//	Gradients are derived by hand. With z = Wx, a = W^T z + b, and
//	s = relu'(a) * dL/dxhat, the tied weight receives both paths:
//
//	    dL/dW = z s^T + (W s) x^T
//	    dL/db = s
//
//	averaged over the batch. The parameter layout exposes the tensors as
//	"W" (shape [HiddenDim, NumFeatures]) and "b" (shape [NumFeatures]),
//	which is what the covariance selectors key on.
//
// Thread Safety: the model is stateless; Loss and Gradient allocate their
// own scratch and are safe for concurrent chains.
type TMSModel struct {
	features int
	hidden   int
	layout   *tensor.Layout
}

// NewTMSModel builds a toy-superposition autoencoder shape.
func NewTMSModel(numFeatures, hiddenDim int) (*TMSModel, error) {
	if numFeatures < 1 {
		return nil, fmt.Errorf("%w: tms: NumFeatures must be >= 1", ErrModelConfig)
	}
	if hiddenDim < 1 {
		return nil, fmt.Errorf("%w: tms: HiddenDim must be >= 1", ErrModelConfig)
	}
	layout, err := tensor.NewLayout(
		tensor.Spec{Name: "W", Shape: []int{hiddenDim, numFeatures}},
		tensor.Spec{Name: "b", Shape: []int{numFeatures}},
	)
	if err != nil {
		return nil, err
	}
	return &TMSModel{features: numFeatures, hidden: hiddenDim, layout: layout}, nil
}

// Layout returns the model's parameter layout.
func (t *TMSModel) Layout() *tensor.Layout { return t.layout }

// NumFeatures returns the input width.
func (t *TMSModel) NumFeatures() int { return t.features }

// HiddenDim returns the bottleneck width.
func (t *TMSModel) HiddenDim() int { return t.hidden }

// Init returns Xavier-normal weights and zero biases, deterministic under
// seed.
func (t *TMSModel) Init(seed uint64) *tensor.Vector {
	params := tensor.NewVector(t.layout)
	w, _ := params.Slice("W")
	normal := distuv.Normal{
		Mu:    0,
		Sigma: math.Sqrt(2 / float64(t.features+t.hidden)),
		Src:   rand.NewSource(seed),
	}
	for i := range w {
		w[i] = normal.Rand()
	}
	return params
}

// Loss implements sample.GradientEvaluator.
func (t *TMSModel) Loss(_ context.Context, params *tensor.Vector, batch any) (float64, error) {
	rows, err := t.batchRows(params, batch)
	if err != nil {
		return 0, err
	}
	w, _ := params.Slice("W")
	b, _ := params.Slice("b")

	z := make([]float64, t.hidden)
	a := make([]float64, t.features)

	sqErr := 0.0
	for _, x := range rows {
		t.forward(w, b, x, z, a)
		for j, aj := range a {
			r := relu(aj) - x[j]
			sqErr += r * r
		}
	}
	return sqErr / float64(len(rows)*t.features), nil
}

// Gradient implements sample.GradientEvaluator.
func (t *TMSModel) Gradient(_ context.Context, params *tensor.Vector, grad *tensor.Vector, batch any) (float64, error) {
	rows, err := t.batchRows(params, batch)
	if err != nil {
		return 0, err
	}
	if !grad.Layout().Same(t.layout) {
		return 0, errParamsLayout
	}
	w, _ := params.Slice("W")
	b, _ := params.Slice("b")
	grad.Zero()
	gw, _ := grad.Slice("W")
	gb, _ := grad.Slice("b")

	m := t.features
	z := make([]float64, t.hidden)
	a := make([]float64, m)
	s := make([]float64, m)
	ws := make([]float64, t.hidden)

	scale := 2 / float64(len(rows)*m)
	sqErr := 0.0
	for _, x := range rows {
		t.forward(w, b, x, z, a)

		for j, aj := range a {
			r := relu(aj) - x[j]
			sqErr += r * r
			if aj > 0 {
				s[j] = scale * r
			} else {
				s[j] = 0
			}
			gb[j] += s[j]
		}

		// Tied weight: the gradient flows through both the encoder and
		// decoder occurrences of W.
		for k := 0; k < t.hidden; k++ {
			row := w[k*m : (k+1)*m]
			dot := 0.0
			for j, sj := range s {
				dot += row[j] * sj
			}
			ws[k] = dot
		}
		for k := 0; k < t.hidden; k++ {
			grow := gw[k*m : (k+1)*m]
			zk := z[k]
			wsk := ws[k]
			for j := range grow {
				grow[j] += zk*s[j] + wsk*x[j]
			}
		}
	}
	return sqErr / float64(len(rows)*m), nil
}

// forward computes z = Wx and a = W^T z + b into the provided buffers.
func (t *TMSModel) forward(w, b, x, z, a []float64) {
	m := t.features
	for k := 0; k < t.hidden; k++ {
		row := w[k*m : (k+1)*m]
		dot := 0.0
		for j, xj := range x {
			dot += row[j] * xj
		}
		z[k] = dot
	}
	copy(a, b)
	for k := 0; k < t.hidden; k++ {
		row := w[k*m : (k+1)*m]
		zk := z[k]
		for j := range a {
			a[j] += row[j] * zk
		}
	}
}

// batchRows validates the collaborating pieces and unwraps the batch.
func (t *TMSModel) batchRows(params *tensor.Vector, batch any) ([][]float64, error) {
	if !params.Layout().Same(t.layout) {
		return nil, errParamsLayout
	}
	pb, ok := batch.(Batch)
	if !ok {
		return nil, fmt.Errorf("%w: tms expects zoo.Batch, got %T", ErrBatchType, batch)
	}
	if len(pb.X) == 0 {
		return nil, fmt.Errorf("%w: tms: empty batch", ErrBatchType)
	}
	for _, row := range pb.X {
		if len(row) != t.features {
			return nil, fmt.Errorf("%w: tms: row width %d, want %d", ErrBatchType, len(row), t.features)
		}
	}
	return pb.X, nil
}

func relu(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}
