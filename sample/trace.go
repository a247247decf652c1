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

// OnlineTraceStatistics is a generic running-moment tracker over any scalar
// derived from a draw.
//
// Description:
//
//	The extract function maps each DrawRecord to one scalar; the tracker
//	keeps Welford moments per chain and merges them at Finalize. The norm
//	observers are thin configurations of this core, and callers can track
//	arbitrary custom quantities (acceptance proxies, per-layer scales)
//	without writing a full Observer. RetainSeries additionally keeps every
//	extracted value for per-draw inspection.
//
// Thread Safety: Update locks internally; chains touch disjoint slots.
type OnlineTraceStatistics struct {
	mu     sync.Mutex
	name   string
	chains int
	draws  int
	needs  Needs

	extract func(DrawRecord) (float64, error)
	moments []welford
	counts  []int
	series  [][]float64
}

// NewTraceStatistics builds a running-moment tracker.
//
// name prefixes the result keys and identifies the observer. needs declares
// which optional record fields extract reads so the orchestrator snapshots
// them.
func NewTraceStatistics(name string, chains, draws int, needs Needs, extract func(DrawRecord) (float64, error)) (*OnlineTraceStatistics, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: trace: name must not be empty", ErrObserverConfig)
	}
	if extract == nil {
		return nil, fmt.Errorf("%w: trace %q: nil extract function", ErrObserverConfig, name)
	}
	if err := checkShape(name, chains, draws); err != nil {
		return nil, err
	}
	return &OnlineTraceStatistics{
		name:    name,
		chains:  chains,
		draws:   draws,
		needs:   needs,
		extract: extract,
		moments: make([]welford, chains),
		counts:  make([]int, chains),
	}, nil
}

// RetainSeries keeps the per-draw extracted values and emits them under
// "<name>/trace/<chain>" at Finalize. Call before the run starts.
func (s *OnlineTraceStatistics) RetainSeries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.series != nil {
		return
	}
	s.series = make([][]float64, s.chains)
	for c := range s.series {
		s.series[c] = make([]float64, s.draws)
	}
}

// Name implements Observer.
func (s *OnlineTraceStatistics) Name() string { return s.name }

// Needs implements Observer.
func (s *OnlineTraceStatistics) Needs() Needs { return s.needs }

// Update implements Observer.
func (s *OnlineTraceStatistics) Update(rec DrawRecord) error {
	if err := checkRecord(rec, s.chains, s.draws); err != nil {
		return err
	}
	x, err := s.extract(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moments[rec.Chain].add(x)
	if s.series != nil {
		s.series[rec.Chain][rec.Draw] = x
	}
	s.counts[rec.Chain]++
	return nil
}

// Finalize implements Observer.
func (s *OnlineTraceStatistics) Finalize() (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := newResult(s.name, s.counts, s.draws)
	var pooled welford
	for c := 0; c < s.chains; c++ {
		if s.counts[c] == 0 {
			continue
		}
		res.Scalars[fmt.Sprintf("%s-chain/%d", s.name, c)] = s.moments[c].mean
		if s.series != nil {
			res.Series[fmt.Sprintf("%s/trace/%d", s.name, c)] = append([]float64(nil), s.series[c][:s.counts[c]]...)
		}
		pooled = mergeWelford(pooled, s.moments[c])
	}
	if pooled.n > 0 {
		res.Scalars[s.name+"/mean"] = pooled.mean
		res.Scalars[s.name+"/std"] = pooled.std()
		res.Scalars[s.name+"/min"] = pooled.min
		res.Scalars[s.name+"/max"] = pooled.max
	}
	return res, nil
}
