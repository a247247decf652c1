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
	"log/slog"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/basin/tensor"
)

// SGNHT is the stochastic gradient Nosé-Hoover thermostat sampler.
//
// Description:
//
//	Each Step applies, per named tensor group of dimension d,
//
//	    theta <- theta + eps*p
//	    xi    <- xi + eps*( <p, p>/d - 1 )
//	    p     <- p - eps*xi_old*p - eps*n*g + sqrt(2*A)*N(0, eps*I)
//
//	with momentum p and thermostat xi both zero at chain start. The
//	thermostat tracks the kinetic energy per degree of freedom and damps
//	the momentum exactly as hard as the (unknown) stochastic gradient
//	noise requires, so no step-size decay schedule is needed.
//
//	The thermostat is one scalar per tensor group: its update depends on
//	the group mean <p,p>/d only, so per-element copies of the scalar would
//	carry identical values. n*g keeps the gradient at log-likelihood scale
//	(g is the mean-loss gradient).
//
// Thread Safety: NOT safe for concurrent use. One instance per chain.
type SGNHT struct {
	hyperGuard

	cfg        SGNHTConfig
	params     *tensor.Vector
	start      *tensor.Vector
	momentum   *tensor.Vector
	noise      *tensor.Vector
	thermostat []float64
	normal     distuv.Normal
}

// NewSGNHT builds an SGNHT sampler around a chain's parameter vector. The
// starting point is snapshotted for bounding-box clipping. seed determines
// the noise stream.
func NewSGNHT(params *tensor.Vector, cfg SGNHTConfig, seed uint64) (*SGNHT, error) {
	if params == nil {
		return nil, ErrNilParams
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, wrapConfigErr("sgnht", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SGNHT{
		hyperGuard: hyperGuard{logger: logger.With(slog.String("component", "sgnht"))},
		cfg:        cfg,
		params:     params,
		start:      params.Clone(),
		momentum:   tensor.NewVector(params.Layout()),
		noise:      tensor.NewVector(params.Layout()),
		thermostat: make([]float64, params.Layout().NumTensors()),
		normal:     distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)},
	}, nil
}

// Step applies one SGNHT update to the parameters in place.
func (s *SGNHT) Step(grad *tensor.Vector) error {
	if err := validateGrad(s.params, grad); err != nil {
		return err
	}
	eps := s.cfg.LearningRate
	gradScale := eps * float64(s.cfg.NumSamples)
	noiseStd := math.Sqrt(2 * s.cfg.DiffusionFactor * eps)

	// Position update uses the pre-step momentum.
	s.params.AddScaled(eps, s.momentum)

	layout := s.params.Layout()
	for k := 0; k < layout.NumTensors(); k++ {
		lo, hi, _ := layout.Range(layout.Spec(k).Name)
		p := s.momentum.Data()[lo:hi]
		g := grad.Data()[lo:hi]
		z := s.noise.Data()[lo:hi]

		kinetic := floats.Dot(p, p) / float64(len(p))
		xi := s.thermostat[k]
		s.thermostat[k] = xi + eps*(kinetic-1)

		for i := range p {
			z[i] = noiseStd * s.normal.Rand()
			p[i] += z[i] - eps*xi*p[i] - gradScale*g[i]
		}
	}
	if s.cfg.BoundingBoxSize > 0 {
		s.params.ClipToBox(s.start, s.cfg.BoundingBoxSize)
	}
	s.stepped = true
	return nil
}

// ZeroGrad clears the per-step noise snapshot.
func (s *SGNHT) ZeroGrad() { s.noise.Zero() }

// Params returns the chain's parameter vector.
func (s *SGNHT) Params() *tensor.Vector { return s.params }

// LastNoise returns the noise injected by the most recent Step.
func (s *SGNHT) LastNoise() *tensor.Vector { return s.noise }

// Momentum returns a copy of the sampler's momentum vector.
func (s *SGNHT) Momentum() *tensor.Vector { return s.momentum.Clone() }

// Thermostat returns the per-tensor thermostat values in layout order.
func (s *SGNHT) Thermostat() []float64 {
	out := make([]float64, len(s.thermostat))
	copy(out, s.thermostat)
	return out
}

// SetHyper adjusts a dynamics hyperparameter. Rejected with ErrHyperFixed
// after the first Step unless calibration mode is active.
func (s *SGNHT) SetHyper(h Hyper, v float64) error {
	if err := s.checkMutable(h); err != nil {
		return err
	}
	switch h {
	case HyperLearningRate:
		if v <= 0 {
			return errHyperValue(h, v)
		}
		s.cfg.LearningRate = v
	case HyperDiffusionFactor:
		if v <= 0 {
			return errHyperValue(h, v)
		}
		s.cfg.DiffusionFactor = v
	case HyperBoundingBoxSize:
		if v < 0 {
			return errHyperValue(h, v)
		}
		s.cfg.BoundingBoxSize = v
	default:
		return errUnknownHyper(h)
	}
	return nil
}
