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
)

// OnlineWBICEstimator tracks the widely applicable Bayesian information
// criterion, n * E[loss], online per chain.
//
// Description:
//
//	WBIC is the expected full-dataset loss under the tempered posterior
//	at inverse temperature beta = 1/log(n). The estimator only averages
//	the losses it is fed and multiplies by n; running the chains at the
//	correct temperature is the caller's precondition (use
//	optim.OptimalTemperature for the optimizer config) and is not
//	something the estimator can verify from the loss stream.
//
//	Finalize reports the cross-chain mean and standard deviation plus the
//	per-chain running WBIC series under "wbic/trace/<chain>".
//
// Thread Safety: Update locks internally; chains touch disjoint slots.
type OnlineWBICEstimator struct {
	mu         sync.Mutex
	chains     int
	draws      int
	numSamples int

	moments []welford
	series  [][]float64
	counts  []int
}

// NewOnlineWBICEstimator builds a WBIC estimator for a run of the given
// shape. numSamples is the dataset size n.
func NewOnlineWBICEstimator(chains, draws, numSamples int) (*OnlineWBICEstimator, error) {
	if err := checkShape("wbic", chains, draws); err != nil {
		return nil, err
	}
	if numSamples < 1 {
		return nil, fmt.Errorf("%w: wbic: numSamples must be >= 1", ErrObserverConfig)
	}
	e := &OnlineWBICEstimator{
		chains:     chains,
		draws:      draws,
		numSamples: numSamples,
		moments:    make([]welford, chains),
		series:     make([][]float64, chains),
		counts:     make([]int, chains),
	}
	for c := range e.series {
		e.series[c] = make([]float64, draws)
	}
	return e, nil
}

// Name implements Observer.
func (e *OnlineWBICEstimator) Name() string { return "wbic" }

// Needs implements Observer.
func (e *OnlineWBICEstimator) Needs() Needs { return Needs{} }

// Update implements Observer.
func (e *OnlineWBICEstimator) Update(rec DrawRecord) error {
	if err := checkRecord(rec, e.chains, e.draws); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c := rec.Chain
	e.moments[c].add(rec.Loss)
	e.counts[c]++
	e.series[c][rec.Draw] = float64(e.numSamples) * e.moments[c].mean
	return nil
}

// Finalize implements Observer.
func (e *OnlineWBICEstimator) Finalize() (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := newResult(e.Name(), e.counts, e.draws)
	var finals []float64
	for c := 0; c < e.chains; c++ {
		if e.counts[c] == 0 {
			continue
		}
		wbic := float64(e.numSamples) * e.moments[c].mean
		finals = append(finals, wbic)
		res.Scalars[fmt.Sprintf("wbic-chain/%d", c)] = wbic
		res.Series[fmt.Sprintf("wbic/trace/%d", c)] = append([]float64(nil), e.series[c][:e.counts[c]]...)
	}
	if len(finals) > 0 {
		res.Scalars["wbic/mean"] = stat.Mean(finals, nil)
		res.Scalars["wbic/std"] = 0
		if len(finals) > 1 {
			res.Scalars["wbic/std"] = stat.StdDev(finals, nil)
		}
	}
	return res, nil
}
