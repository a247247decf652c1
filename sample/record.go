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
	"context"

	"github.com/AleutianAI/basin/tensor"
)

// DrawRecord is one draw observed on one chain.
//
// Loss, Grad, and Params describe the chain state at the draw boundary
// (before the step taken from it); Noise is the perturbation the optimizer
// injected by the step that produced this state, all zeros for a chain's
// very first evaluation. Grad, Params, and Noise are copies made only when
// some attached observer declared the need; they are nil otherwise.
//
// Records are ephemeral. Observers must copy anything they keep beyond the
// Update call.
type DrawRecord struct {
	Chain int
	Draw  int
	Loss  float64

	Grad   *tensor.Vector
	Params *tensor.Vector
	Noise  *tensor.Vector
}

// Needs declares which optional DrawRecord fields an observer consumes.
// The orchestrator snapshots a field only if some observer needs it, so a
// run that only tracks losses never copies parameter vectors.
type Needs struct {
	Gradient bool
	Params   bool
	Noise    bool
}

// union folds another observer's needs into n.
func (n Needs) union(o Needs) Needs {
	return Needs{
		Gradient: n.Gradient || o.Gradient,
		Params:   n.Params || o.Params,
		Noise:    n.Noise || o.Noise,
	}
}

// GradientEvaluator is the external loss/gradient collaborator.
//
// Description:
//
//	Implementations compute the mean loss over a batch at the given
//	parameters, and its gradient. The engine treats both as black boxes:
//	model architecture, autodiff, and device placement are entirely the
//	implementation's concern. Gradient writes into the caller-owned grad
//	vector (same layout as params) and returns the loss so one evaluation
//	serves both needs.
//
// Thread Safety: Must be safe for concurrent calls when chains run in
// parallel; calls never share params or grad vectors across chains.
type GradientEvaluator interface {
	Loss(ctx context.Context, params *tensor.Vector, batch any) (float64, error)
	Gradient(ctx context.Context, params *tensor.Vector, grad *tensor.Vector, batch any) (float64, error)
}

// BatchSource supplies data batches to chains. Batches(chain) must return
// an iterator private to that chain; iteration order may differ per chain
// but must be deterministic for a fixed configuration.
type BatchSource interface {
	Batches(chain int) BatchIter
}

// BatchIter yields successive batches. It must not return io.EOF-style
// exhaustion for the run lengths it was configured for; sources are
// expected to cycle.
type BatchIter interface {
	Next(ctx context.Context) (any, error)
}
