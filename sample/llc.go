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
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/basin/optim"
)

// -----------------------------------------------------------------------------
// LLC Estimator
// -----------------------------------------------------------------------------

// LLCEstimator estimates the local learning coefficient from sampled
// losses.
//
// Description:
//
//	For each chain c the estimator keeps a running mean of the sampled
//	losses. Finalize computes
//
//	    llc_c = n * beta * ( meanLoss_c - initLoss_c )
//
//	and reports the cross-chain mean and sample standard deviation. The
//	initial loss is the loss at the chain's untouched starting
//	parameters, captured by the orchestrator before any optimizer step.
//	The per-chain loss trace is retained and emitted under
//	"loss/trace/<chain>".
//
//	At beta = 1/log(n) (the default) the expectation of llc_c is the
//	local learning coefficient of the basin the chain explores.
//
// Thread Safety: Update locks internally; chains touch disjoint slots.
type LLCEstimator struct {
	mu         sync.Mutex
	chains     int
	draws      int
	numSamples int
	beta       float64

	initLoss []float64
	initSet  []bool
	losses   [][]float64
	meanLoss []float64
	counts   []int
}

// NewLLCEstimator builds an LLC estimator for a run of the given shape.
// numSamples is the dataset size n. beta <= 0 selects the WBIC-optimal
// 1/log(n).
func NewLLCEstimator(chains, draws, numSamples int, beta float64) (*LLCEstimator, error) {
	if err := checkShape("llc", chains, draws); err != nil {
		return nil, err
	}
	if numSamples < 1 {
		return nil, fmt.Errorf("%w: llc: numSamples must be >= 1", ErrObserverConfig)
	}
	if beta <= 0 {
		beta = optim.OptimalBeta(numSamples)
	}
	e := &LLCEstimator{
		chains:     chains,
		draws:      draws,
		numSamples: numSamples,
		beta:       beta,
		initLoss:   make([]float64, chains),
		initSet:    make([]bool, chains),
		losses:     make([][]float64, chains),
		meanLoss:   make([]float64, chains),
		counts:     make([]int, chains),
	}
	for c := range e.losses {
		e.losses[c] = make([]float64, draws)
	}
	return e, nil
}

// Name implements Observer.
func (e *LLCEstimator) Name() string { return "llc" }

// Needs implements Observer. Losses arrive on every record.
func (e *LLCEstimator) Needs() Needs { return Needs{} }

// SetInitLoss records a chain's loss at its untouched starting parameters.
func (e *LLCEstimator) SetInitLoss(chain int, loss float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if chain < 0 || chain >= e.chains {
		return
	}
	e.initLoss[chain] = loss
	e.initSet[chain] = true
}

// Update implements Observer.
func (e *LLCEstimator) Update(rec DrawRecord) error {
	if err := checkRecord(rec, e.chains, e.draws); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c := rec.Chain
	e.losses[c][rec.Draw] = rec.Loss
	e.counts[c]++
	e.meanLoss[c] += (rec.Loss - e.meanLoss[c]) / float64(e.counts[c])
	return nil
}

// Finalize implements Observer.
func (e *LLCEstimator) Finalize() (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := newResult(e.Name(), e.counts, e.draws)
	nbeta := float64(e.numSamples) * e.beta
	var perChain []float64
	for c := 0; c < e.chains; c++ {
		if e.counts[c] == 0 {
			continue
		}
		if !e.initSet[c] {
			return nil, fmt.Errorf("%w: chain %d", ErrNoInitLoss, c)
		}
		llc := nbeta * (e.meanLoss[c] - e.initLoss[c])
		perChain = append(perChain, llc)
		res.Scalars[fmt.Sprintf("llc-chain/%d", c)] = llc
		res.Series[fmt.Sprintf("loss/trace/%d", c)] = append([]float64(nil), e.losses[c][:e.counts[c]]...)
	}
	if len(perChain) > 0 {
		res.Scalars["llc/mean"] = stat.Mean(perChain, nil)
		res.Scalars["llc/std"] = 0
		if len(perChain) > 1 {
			res.Scalars["llc/std"] = stat.StdDev(perChain, nil)
		}
	}
	return res, nil
}

// -----------------------------------------------------------------------------
// Online LLC Estimator
// -----------------------------------------------------------------------------

// OnlineLLCEstimator maintains a rolling LLC estimate per chain, updated at
// every draw, and retains the estimate series for convergence diagnostics.
//
// Description:
//
//	The per-chain estimate after t draws is the running mean of
//	n*beta*(loss_i - initLoss), updated incrementally as
//
//	    llc_t = llc_{t-1} + ( n*beta*(loss_t - initLoss) - llc_{t-1} ) / t
//
//	Finalize emits the final cross-chain mean/std plus per-draw
//	cross-chain means and stds, which is the series callers plot to judge
//	burn-in adequacy.
//
//	Unlike LLCEstimator, the rolling form needs the initial loss at the
//	first update; updates before SetInitLoss fail with ErrNoInitLoss.
//
// Thread Safety: Update locks internally; chains touch disjoint slots.
type OnlineLLCEstimator struct {
	mu         sync.Mutex
	chains     int
	draws      int
	numSamples int
	beta       float64

	initLoss []float64
	initSet  []bool
	series   [][]float64
	current  []float64
	counts   []int
}

// NewOnlineLLCEstimator builds a rolling LLC estimator. beta <= 0 selects
// the WBIC-optimal 1/log(n).
func NewOnlineLLCEstimator(chains, draws, numSamples int, beta float64) (*OnlineLLCEstimator, error) {
	if err := checkShape("llc_online", chains, draws); err != nil {
		return nil, err
	}
	if numSamples < 1 {
		return nil, fmt.Errorf("%w: llc_online: numSamples must be >= 1", ErrObserverConfig)
	}
	if beta <= 0 {
		beta = optim.OptimalBeta(numSamples)
	}
	e := &OnlineLLCEstimator{
		chains:     chains,
		draws:      draws,
		numSamples: numSamples,
		beta:       beta,
		initLoss:   make([]float64, chains),
		initSet:    make([]bool, chains),
		series:     make([][]float64, chains),
		current:    make([]float64, chains),
		counts:     make([]int, chains),
	}
	for c := range e.series {
		e.series[c] = make([]float64, draws)
	}
	return e, nil
}

// Name implements Observer.
func (e *OnlineLLCEstimator) Name() string { return "llc_online" }

// Needs implements Observer.
func (e *OnlineLLCEstimator) Needs() Needs { return Needs{} }

// SetInitLoss records a chain's loss at its untouched starting parameters.
// Must precede the chain's first Update.
func (e *OnlineLLCEstimator) SetInitLoss(chain int, loss float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if chain < 0 || chain >= e.chains {
		return
	}
	e.initLoss[chain] = loss
	e.initSet[chain] = true
}

// Update implements Observer.
func (e *OnlineLLCEstimator) Update(rec DrawRecord) error {
	if err := checkRecord(rec, e.chains, e.draws); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c := rec.Chain
	if !e.initSet[c] {
		return fmt.Errorf("%w: chain %d", ErrNoInitLoss, c)
	}
	est := float64(e.numSamples) * e.beta * (rec.Loss - e.initLoss[c])
	e.counts[c]++
	e.current[c] += (est - e.current[c]) / float64(e.counts[c])
	e.series[c][rec.Draw] = e.current[c]
	return nil
}

// Finalize implements Observer.
func (e *OnlineLLCEstimator) Finalize() (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := newResult(e.Name(), e.counts, e.draws)
	var finals []float64
	maxDraws := 0
	for c := 0; c < e.chains; c++ {
		if e.counts[c] == 0 {
			continue
		}
		finals = append(finals, e.current[c])
		res.Scalars[fmt.Sprintf("llc_online-chain/%d", c)] = e.current[c]
		res.Series[fmt.Sprintf("llc/trace/%d", c)] = append([]float64(nil), e.series[c][:e.counts[c]]...)
		if e.counts[c] > maxDraws {
			maxDraws = e.counts[c]
		}
	}
	if len(finals) > 0 {
		res.Scalars["llc_online/mean"] = stat.Mean(finals, nil)
		res.Scalars["llc_online/std"] = 0
		if len(finals) > 1 {
			res.Scalars["llc_online/std"] = stat.StdDev(finals, nil)
		}
	}

	// Per-draw cross-chain convergence series, over the chains that
	// reached each draw.
	means := make([]float64, maxDraws)
	stds := make([]float64, maxDraws)
	scratch := make([]float64, 0, e.chains)
	for d := 0; d < maxDraws; d++ {
		scratch = scratch[:0]
		for c := 0; c < e.chains; c++ {
			if e.counts[c] > d {
				scratch = append(scratch, e.series[c][d])
			}
		}
		means[d] = stat.Mean(scratch, nil)
		if len(scratch) > 1 {
			stds[d] = stat.StdDev(scratch, nil)
		}
	}
	res.Series["llc/means"] = means
	res.Series["llc/stds"] = stds
	return res, nil
}
