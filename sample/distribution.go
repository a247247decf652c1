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
	"math"
	"sync"
)

// maxHistogramSpan caps the number of bins a gradient histogram may cover.
// A span past this limit means the bin width is far too small for the
// observed gradient scale.
const maxHistogramSpan = 1 << 16

// GradientDistribution accumulates a fixed-width histogram over every
// gradient component seen at recorded draws.
//
// Description:
//
//	Bins are anchored at zero and grow in both directions: component v
//	lands in bin floor(v/width). When BinWidth is zero the width is locked
//	to the smallest nonzero |v| in the first recorded gradient, and any
//	later nonzero component smaller than that width fails the run with
//	ErrBinWidthExceeded rather than silently losing resolution. An
//	explicit BinWidth never errors; undersized components simply land in
//	the bins adjacent to zero.
//
//	Auto width depends on which gradient arrives first, so in auto mode
//	the observer demands serial chain execution via RequiresSerialChains.
//
// Thread Safety: Update locks internally.
type GradientDistribution struct {
	mu     sync.Mutex
	chains int
	draws  int
	auto   bool

	width  float64
	bins   map[int]int64
	minBin int
	maxBin int
	total  int64
	counts []int
}

// GradientDistributionConfig configures a gradient histogram.
type GradientDistributionConfig struct {
	// Chains and Draws give the run shape.
	Chains int
	Draws  int

	// BinCount is a capacity hint for the bin table. Default 20.
	BinCount int

	// BinWidth fixes the bin width. Zero selects auto width from the
	// first recorded gradient.
	BinWidth float64
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *GradientDistributionConfig) ApplyDefaults() {
	if c.BinCount == 0 {
		c.BinCount = 20
	}
}

// Validate checks the configuration.
func (c *GradientDistributionConfig) Validate() error {
	if err := checkShape("grad_dist", c.Chains, c.Draws); err != nil {
		return err
	}
	if c.BinCount < 1 {
		return fmt.Errorf("%w: grad_dist: BinCount must be >= 1", ErrObserverConfig)
	}
	if c.BinWidth < 0 || math.IsNaN(c.BinWidth) || math.IsInf(c.BinWidth, 0) {
		return fmt.Errorf("%w: grad_dist: BinWidth must be finite and >= 0", ErrObserverConfig)
	}
	return nil
}

// NewGradientDistribution builds a gradient histogram observer from cfg.
func NewGradientDistribution(cfg GradientDistributionConfig) (*GradientDistribution, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &GradientDistribution{
		chains: cfg.Chains,
		draws:  cfg.Draws,
		auto:   cfg.BinWidth == 0,
		width:  cfg.BinWidth,
		bins:   make(map[int]int64, cfg.BinCount),
		counts: make([]int, cfg.Chains),
	}, nil
}

// Name implements Observer.
func (g *GradientDistribution) Name() string { return "grad_dist" }

// Needs implements Observer.
func (g *GradientDistribution) Needs() Needs { return Needs{Gradient: true} }

// RequiresSerialChains reports whether chains must run one at a time so
// the auto bin width is reproducible.
func (g *GradientDistribution) RequiresSerialChains() bool { return g.auto }

// Update implements Observer.
func (g *GradientDistribution) Update(rec DrawRecord) error {
	if err := checkRecord(rec, g.chains, g.draws); err != nil {
		return err
	}
	if rec.Grad == nil {
		return fmt.Errorf("%w: grad_dist", ErrRecordField)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	data := rec.Grad.Data()
	if g.auto && g.width == 0 {
		g.width = minNonzeroAbs(data)
	}
	for _, v := range data {
		if err := g.addLocked(v); err != nil {
			return err
		}
	}
	g.counts[rec.Chain]++
	return nil
}

// addLocked bins one gradient component. Caller holds g.mu.
func (g *GradientDistribution) addLocked(v float64) error {
	k := 0
	if v != 0 && g.width != 0 {
		av := math.Abs(v)
		if g.auto && av < g.width {
			return fmt.Errorf("%w: grad_dist: component %g below auto bin width %g", ErrBinWidthExceeded, v, g.width)
		}
		if av/g.width > maxHistogramSpan {
			return fmt.Errorf("%w: grad_dist: component %g spans more than %d bins of width %g",
				ErrBinRange, v, maxHistogramSpan, g.width)
		}
		k = int(math.Floor(v / g.width))
	}
	if len(g.bins) == 0 {
		g.minBin, g.maxBin = k, k
	} else if k < g.minBin {
		g.minBin = k
	} else if k > g.maxBin {
		g.maxBin = k
	}
	if g.maxBin-g.minBin+1 > maxHistogramSpan {
		return fmt.Errorf("%w: grad_dist: histogram spans more than %d bins of width %g",
			ErrBinRange, maxHistogramSpan, g.width)
	}
	g.bins[k]++
	g.total++
	return nil
}

// minNonzeroAbs returns the smallest nonzero magnitude in data, or 0 when
// every component is zero.
func minNonzeroAbs(data []float64) float64 {
	m := 0.0
	for _, v := range data {
		av := math.Abs(v)
		if av == 0 {
			continue
		}
		if m == 0 || av < m {
			m = av
		}
	}
	return m
}

// Finalize implements Observer.
func (g *GradientDistribution) Finalize() (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	res := newResult(g.Name(), g.counts, g.draws)
	res.Scalars["grad_dist/bin_width"] = g.width
	res.Scalars["grad_dist/count"] = float64(g.total)
	if g.total == 0 {
		return res, nil
	}
	if g.width == 0 {
		// Every recorded component was exactly zero.
		res.Scalars["grad_dist/min"] = 0
		res.Scalars["grad_dist/max"] = 0
		res.Series["grad_dist/edges"] = []float64{0, 0}
		res.Series["grad_dist/counts"] = []float64{float64(g.bins[0])}
		return res, nil
	}

	lo, hi := g.minBin, g.maxBin
	nbins := hi - lo + 1
	edges := make([]float64, nbins+1)
	hist := make([]float64, nbins)
	for i := range edges {
		edges[i] = float64(lo+i) * g.width
	}
	for k, n := range g.bins {
		hist[k-lo] = float64(n)
	}
	res.Scalars["grad_dist/min"] = edges[0]
	res.Scalars["grad_dist/max"] = edges[nbins]
	res.Series["grad_dist/edges"] = edges
	res.Series["grad_dist/counts"] = hist
	return res, nil
}
