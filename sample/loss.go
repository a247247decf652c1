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
)

// OnlineLossStatistics tracks running moments of the sampled losses, per
// chain and pooled, without retaining the loss history.
//
// Description:
//
//	Every chain gets its own Welford tracker, so after k draws the
//	running mean and standard deviation equal the batch statistics of
//	those k losses. Finalize merges the chains in ascending order and
//	emits pooled mean/std/min/max plus per-chain means.
//
// Thread Safety: Update locks internally; chains touch disjoint slots.
type OnlineLossStatistics struct {
	mu     sync.Mutex
	chains int
	draws  int

	moments []welford
	counts  []int
}

// NewOnlineLossStatistics builds a loss-moment tracker for a run of the
// given shape.
func NewOnlineLossStatistics(chains, draws int) (*OnlineLossStatistics, error) {
	if err := checkShape("loss", chains, draws); err != nil {
		return nil, err
	}
	return &OnlineLossStatistics{
		chains:  chains,
		draws:   draws,
		moments: make([]welford, chains),
		counts:  make([]int, chains),
	}, nil
}

// Name implements Observer.
func (s *OnlineLossStatistics) Name() string { return "loss" }

// Needs implements Observer.
func (s *OnlineLossStatistics) Needs() Needs { return Needs{} }

// Update implements Observer.
func (s *OnlineLossStatistics) Update(rec DrawRecord) error {
	if err := checkRecord(rec, s.chains, s.draws); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moments[rec.Chain].add(rec.Loss)
	s.counts[rec.Chain]++
	return nil
}

// ChainMoments returns the running (count, mean, std) for one chain. Used
// by callers monitoring a live run.
func (s *OnlineLossStatistics) ChainMoments(chain int) (n int, mean, std float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chain < 0 || chain >= s.chains {
		return 0, 0, 0
	}
	w := s.moments[chain]
	return w.n, w.mean, w.std()
}

// Finalize implements Observer.
func (s *OnlineLossStatistics) Finalize() (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := newResult(s.Name(), s.counts, s.draws)
	var pooled welford
	for c := 0; c < s.chains; c++ {
		if s.counts[c] == 0 {
			continue
		}
		res.Scalars[fmt.Sprintf("loss-chain/%d/mean", c)] = s.moments[c].mean
		res.Scalars[fmt.Sprintf("loss-chain/%d/std", c)] = s.moments[c].std()
		pooled = mergeWelford(pooled, s.moments[c])
	}
	if pooled.n > 0 {
		res.Scalars["loss/mean"] = pooled.mean
		res.Scalars["loss/std"] = pooled.std()
		res.Scalars["loss/min"] = pooled.min
		res.Scalars["loss/max"] = pooled.max
	}
	return res, nil
}
