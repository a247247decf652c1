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
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/basin/tensor"
)

// SGLD is stochastic gradient Langevin dynamics, localized around an anchor
// point and tempered by an inverse temperature.
//
// Description:
//
//	Each Step applies
//
//	    theta <- theta - (eps/2)*[ n*beta*g + gamma*(theta - anchor) + lambda*theta ]
//	             + sigma*sqrt(eps)*N(0, I)
//
//	where g is the mini-batch gradient of the mean loss, n the dataset
//	size, beta = 1/Temperature, gamma the elasticity, and lambda the
//	weight decay. The elastic term is restoring: it pulls the chain back
//	toward the anchor so draws measure the local basin. When a bounding
//	box is configured, coordinates are then clamped into
//	[anchor-b, anchor+b].
//
// Thread Safety: NOT safe for concurrent use. One instance per chain.
type SGLD struct {
	hyperGuard

	cfg    SGLDConfig
	params *tensor.Vector
	anchor *tensor.Vector
	noise  *tensor.Vector
	normal distuv.Normal
}

// NewSGLD builds an SGLD sampler around a chain's parameter vector. The
// anchor is cloned from cfg.Anchor when set, otherwise snapshotted from
// params. seed determines the noise stream.
func NewSGLD(params *tensor.Vector, cfg SGLDConfig, seed uint64) (*SGLD, error) {
	if params == nil {
		return nil, ErrNilParams
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, wrapConfigErr("sgld", err)
	}
	anchor := cfg.Anchor
	if anchor == nil {
		anchor = params
	}
	if !anchor.Layout().Same(params.Layout()) {
		return nil, wrapConfigErr("sgld", tensor.ErrLayoutMismatch)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &SGLD{
		hyperGuard: hyperGuard{logger: logger.With(slog.String("component", "sgld"))},
		cfg:        cfg,
		params:     params,
		anchor:     anchor.Clone(),
		noise:      tensor.NewVector(params.Layout()),
		normal:     distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)},
	}
	s.cfg.Anchor = nil
	return s, nil
}

// Step applies one SGLD update to the parameters in place.
func (s *SGLD) Step(grad *tensor.Vector) error {
	if err := validateGrad(s.params, grad); err != nil {
		return err
	}
	var (
		halfEps   = 0.5 * s.cfg.LearningRate
		gradScale = halfEps * float64(s.cfg.NumSamples) / s.cfg.Temperature
		noiseStd  = s.cfg.NoiseLevel * math.Sqrt(s.cfg.LearningRate)
		gamma     = s.cfg.Elasticity
		lambda    = s.cfg.WeightDecay
	)
	p := s.params.Data()
	g := grad.Data()
	a := s.anchor.Data()
	z := s.noise.Data()
	for i := range p {
		var eta float64
		if noiseStd > 0 {
			eta = noiseStd * s.normal.Rand()
		}
		z[i] = eta
		drift := gradScale*g[i] + halfEps*(gamma*(p[i]-a[i])+lambda*p[i])
		p[i] += eta - drift
	}
	if s.cfg.BoundingBoxSize > 0 {
		s.params.ClipToBox(s.anchor, s.cfg.BoundingBoxSize)
	}
	s.stepped = true
	return nil
}

// ZeroGrad clears the per-step noise snapshot.
func (s *SGLD) ZeroGrad() { s.noise.Zero() }

// Params returns the chain's parameter vector.
func (s *SGLD) Params() *tensor.Vector { return s.params }

// Anchor returns the localization anchor snapshot.
func (s *SGLD) Anchor() *tensor.Vector { return s.anchor }

// LastNoise returns the noise injected by the most recent Step.
func (s *SGLD) LastNoise() *tensor.Vector { return s.noise }

// SetHyper adjusts a dynamics hyperparameter. Rejected with ErrHyperFixed
// after the first Step unless calibration mode is active.
func (s *SGLD) SetHyper(h Hyper, v float64) error {
	if err := s.checkMutable(h); err != nil {
		return err
	}
	switch h {
	case HyperLearningRate:
		if v <= 0 {
			return errHyperValue(h, v)
		}
		s.cfg.LearningRate = v
	case HyperNoiseLevel:
		if v < 0 {
			return errHyperValue(h, v)
		}
		s.cfg.NoiseLevel = v
	case HyperWeightDecay:
		if v < 0 {
			return errHyperValue(h, v)
		}
		s.cfg.WeightDecay = v
	case HyperElasticity:
		if v < 0 {
			return errHyperValue(h, v)
		}
		s.cfg.Elasticity = v
	case HyperTemperature:
		if v <= 0 {
			return errHyperValue(h, v)
		}
		s.cfg.Temperature = v
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
