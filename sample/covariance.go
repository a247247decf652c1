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

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/basin/tensor"
)

// -----------------------------------------------------------------------------
// Parameter Selectors
// -----------------------------------------------------------------------------

// Selector picks a fixed subset of parameter scalars out of a vector.
// Selectors are resolved against a concrete layout at construction, so a
// bad tensor name or range fails before any sampling starts.
type Selector struct {
	label  string
	ranges [][2]int
	dim    int
}

// ByNames selects the concatenation of whole named tensors, in the order
// given.
func ByNames(layout *tensor.Layout, names ...string) (*Selector, error) {
	if layout == nil {
		return nil, fmt.Errorf("%w: selector: nil layout", ErrObserverConfig)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: selector: no tensor names", ErrObserverConfig)
	}
	s := &Selector{}
	for i, name := range names {
		lo, hi, err := layout.Range(name)
		if err != nil {
			return nil, fmt.Errorf("%w: selector: %s", ErrObserverConfig, err)
		}
		s.ranges = append(s.ranges, [2]int{lo, hi})
		s.dim += hi - lo
		if i > 0 {
			s.label += "+"
		}
		s.label += name
	}
	return s, nil
}

// ByRange selects elements [lo, hi) of one named tensor, in flat row-major
// element order.
func ByRange(layout *tensor.Layout, name string, lo, hi int) (*Selector, error) {
	if layout == nil {
		return nil, fmt.Errorf("%w: selector: nil layout", ErrObserverConfig)
	}
	tlo, thi, err := layout.Range(name)
	if err != nil {
		return nil, fmt.Errorf("%w: selector: %s", ErrObserverConfig, err)
	}
	if lo < 0 || hi <= lo || thi-tlo < hi {
		return nil, fmt.Errorf("%w: selector: range [%d,%d) outside tensor %q of size %d",
			ErrObserverConfig, lo, hi, name, thi-tlo)
	}
	return &Selector{
		label:  fmt.Sprintf("%s[%d:%d]", name, lo, hi),
		ranges: [][2]int{{tlo + lo, tlo + hi}},
		dim:    hi - lo,
	}, nil
}

// Heads partitions a named tensor into numHeads equal contiguous groups
// along its first dimension, one selector per head.
func Heads(layout *tensor.Layout, name string, numHeads int) ([]*Selector, error) {
	if layout == nil {
		return nil, fmt.Errorf("%w: selector: nil layout", ErrObserverConfig)
	}
	if numHeads < 1 {
		return nil, fmt.Errorf("%w: selector: numHeads must be >= 1", ErrObserverConfig)
	}
	shape, err := layout.Shape(name)
	if err != nil {
		return nil, fmt.Errorf("%w: selector: %s", ErrObserverConfig, err)
	}
	if shape[0]%numHeads != 0 {
		return nil, fmt.Errorf("%w: selector: tensor %q first dimension %d not divisible by %d heads",
			ErrObserverConfig, name, shape[0], numHeads)
	}
	lo, hi, _ := layout.Range(name)
	per := (hi - lo) / numHeads
	heads := make([]*Selector, numHeads)
	for h := 0; h < numHeads; h++ {
		heads[h] = &Selector{
			label:  fmt.Sprintf("%s/head%d", name, h),
			ranges: [][2]int{{lo + h*per, lo + (h+1)*per}},
			dim:    per,
		}
	}
	return heads, nil
}

// Label describes the selection for result keys and logs.
func (s *Selector) Label() string { return s.label }

// Dim returns the number of selected scalars.
func (s *Selector) Dim() int { return s.dim }

// extract copies the selected scalars into dst (length Dim).
func (s *Selector) extract(v *tensor.Vector, dst []float64) {
	data := v.Data()
	i := 0
	for _, r := range s.ranges {
		i += copy(dst[i:], data[r[0]:r[1]])
	}
}

// -----------------------------------------------------------------------------
// Streaming Covariance Core
// -----------------------------------------------------------------------------

// covChain holds one chain's Welford covariance state: sample count, mean
// vector, and the comoment matrix M = sum (x-mean) outer (x-mean).
type covChain struct {
	n    int
	mean []float64
	m    *mat.SymDense
}

func newCovChain(dim int) covChain {
	return covChain{
		mean: make([]float64, dim),
		m:    mat.NewSymDense(dim, nil),
	}
}

// covUpdate folds one observation into the chain state. dx is caller scratch
// of length dim. The rank-one comoment update uses the identity
// (x - meanNew) = (x - meanOld)*(n-1)/n, which keeps M symmetric.
func covUpdate(st *covChain, x, dx []float64) {
	st.n++
	n := float64(st.n)
	for i := range x {
		dx[i] = x[i] - st.mean[i]
		st.mean[i] += dx[i] / n
	}
	if f := (n - 1) / n; f > 0 {
		st.m.SymRankOne(st.m, f, mat.NewVecDense(len(dx), dx))
	}
}

// covMerge combines two disjoint chains' states (Chan et al.), preserving
// the exact streaming moments.
func covMerge(a, b covChain, dim int) covChain {
	if a.n == 0 {
		return b
	}
	if b.n == 0 {
		return a
	}
	out := newCovChain(dim)
	out.n = a.n + b.n
	n := float64(out.n)
	delta := make([]float64, dim)
	for i := range delta {
		delta[i] = b.mean[i] - a.mean[i]
		out.mean[i] = a.mean[i] + delta[i]*float64(b.n)/n
	}
	out.m.AddSym(a.m, b.m)
	f := float64(a.n) * float64(b.n) / n
	out.m.SymRankOne(out.m, f, mat.NewVecDense(dim, delta))
	return out
}

// covSpectrum finalizes a merged state into the top-k eigenvalues and
// eigenvectors of the sample covariance M/(n-1). Values are emitted largest
// first.
func covSpectrum(st covChain, dim, topK int) (vals []float64, vecs [][]float64, err error) {
	if st.n < 2 {
		return nil, nil, nil
	}
	cov := mat.NewSymDense(dim, nil)
	cov.CopySym(st.m)
	raw := cov.RawSymmetric()
	scale := 1 / float64(st.n-1)
	for i := range raw.Data {
		raw.Data[i] *= scale
	}

	var es mat.EigenSym
	if ok := es.Factorize(cov, true); !ok {
		return nil, nil, fmt.Errorf("sample: covariance eigendecomposition failed (dim %d, n %d)", dim, st.n)
	}
	all := es.Values(nil)
	var evecs mat.Dense
	es.VectorsTo(&evecs)

	k := topK
	if k > dim {
		k = dim
	}
	vals = make([]float64, k)
	vecs = make([][]float64, k)
	for j := 0; j < k; j++ {
		// gonum returns eigenvalues in ascending order.
		col := dim - 1 - j
		vals[j] = all[col]
		v := make([]float64, dim)
		mat.Col(v, col, &evecs)
		vecs[j] = v
	}
	return vals, vecs, nil
}

// -----------------------------------------------------------------------------
// Covariance Observers
// -----------------------------------------------------------------------------

// CovarianceAccumulator streams the covariance of a selected parameter
// subset and reports its top-k eigenvalues and eigenvectors at Finalize.
//
// Description:
//
//	Each chain keeps Welford mean/comoment state over the selected
//	scalars; Finalize merges the chains in ascending order, forms the
//	sample covariance, and eigendecomposes it. Memory is O(dim^2) in the
//	selected subset, so callers restrict the selection (a named layer, a
//	range, a pair of layers) rather than tracking a full network.
//
// Thread Safety: Update locks internally.
type CovarianceAccumulator struct {
	mu     sync.Mutex
	name   string
	chains int
	draws  int
	topK   int
	sel    *Selector

	states  []covChain
	counts  []int
	x       []float64
	scratch []float64
}

// CovarianceConfig configures a covariance accumulator.
type CovarianceConfig struct {
	// Chains and Draws give the run shape.
	Chains int
	Draws  int

	// Selector picks the tracked parameter subset. Required.
	Selector *Selector

	// TopK is how many leading eigenpairs Finalize reports. Default 3.
	TopK int

	// Name prefixes result keys. Default "cov".
	Name string
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *CovarianceConfig) ApplyDefaults() {
	if c.TopK == 0 {
		c.TopK = 3
	}
	if c.Name == "" {
		c.Name = "cov"
	}
}

// Validate checks the configuration.
func (c *CovarianceConfig) Validate() error {
	if err := checkShape(c.Name, c.Chains, c.Draws); err != nil {
		return err
	}
	if c.Selector == nil {
		return fmt.Errorf("%w: %s: nil selector", ErrObserverConfig, c.Name)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: %s: TopK must be >= 1", ErrObserverConfig, c.Name)
	}
	return nil
}

// NewCovarianceAccumulator builds a covariance observer from cfg.
func NewCovarianceAccumulator(cfg CovarianceConfig) (*CovarianceAccumulator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dim := cfg.Selector.Dim()
	a := &CovarianceAccumulator{
		name:    cfg.Name,
		chains:  cfg.Chains,
		draws:   cfg.Draws,
		topK:    cfg.TopK,
		sel:     cfg.Selector,
		states:  make([]covChain, cfg.Chains),
		counts:  make([]int, cfg.Chains),
		x:       make([]float64, dim),
		scratch: make([]float64, dim),
	}
	for c := range a.states {
		a.states[c] = newCovChain(dim)
	}
	return a, nil
}

// Name implements Observer.
func (a *CovarianceAccumulator) Name() string { return a.name }

// Needs implements Observer.
func (a *CovarianceAccumulator) Needs() Needs { return Needs{Params: true} }

// Update implements Observer.
func (a *CovarianceAccumulator) Update(rec DrawRecord) error {
	if err := checkRecord(rec, a.chains, a.draws); err != nil {
		return err
	}
	if rec.Params == nil {
		return fmt.Errorf("%w: %s", ErrRecordField, a.name)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sel.extract(rec.Params, a.x)
	covUpdate(&a.states[rec.Chain], a.x, a.scratch)
	a.counts[rec.Chain]++
	return nil
}

// Finalize implements Observer.
func (a *CovarianceAccumulator) Finalize() (*Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res := newResult(a.name, a.counts, a.draws)
	dim := a.sel.Dim()
	merged := newCovChain(dim)
	for c := 0; c < a.chains; c++ {
		merged = covMerge(merged, a.states[c], dim)
	}
	vals, vecs, err := covSpectrum(merged, dim, a.topK)
	if err != nil {
		return nil, err
	}
	res.Scalars[a.name+"/dim"] = float64(dim)
	for j := range vals {
		res.Scalars[fmt.Sprintf("%s/eigenvalue/%d", a.name, j)] = vals[j]
		res.Series[fmt.Sprintf("%s/eigenvector/%d", a.name, j)] = vecs[j]
	}
	return res, nil
}

// BetweenLayerCovariance tracks the joint covariance of two named layers,
// exposing cross-layer correlation structure in its leading eigenpairs.
type BetweenLayerCovariance struct {
	*CovarianceAccumulator
}

// NewBetweenLayerCovariance builds a covariance observer over the
// concatenation of two named tensors.
func NewBetweenLayerCovariance(chains, draws int, layout *tensor.Layout, layerA, layerB string, topK int) (*BetweenLayerCovariance, error) {
	sel, err := ByNames(layout, layerA, layerB)
	if err != nil {
		return nil, err
	}
	inner, err := NewCovarianceAccumulator(CovarianceConfig{
		Chains:   chains,
		Draws:    draws,
		Selector: sel,
		TopK:     topK,
		Name:     "between_layer_cov",
	})
	if err != nil {
		return nil, err
	}
	return &BetweenLayerCovariance{inner}, nil
}

// WithinHeadCovariance tracks an independent covariance per attention
// head, partitioning one named tensor along its first dimension.
//
// Thread Safety: Update locks internally.
type WithinHeadCovariance struct {
	mu     sync.Mutex
	chains int
	draws  int
	topK   int
	heads  []*Selector

	states  [][]covChain // [head][chain]
	counts  []int
	x       []float64
	scratch []float64
}

// NewWithinHeadCovariance builds a per-head covariance observer over the
// named tensor split into numHeads groups.
func NewWithinHeadCovariance(chains, draws int, layout *tensor.Layout, name string, numHeads, topK int) (*WithinHeadCovariance, error) {
	if err := checkShape("within_head_cov", chains, draws); err != nil {
		return nil, err
	}
	heads, err := Heads(layout, name, numHeads)
	if err != nil {
		return nil, err
	}
	if topK == 0 {
		topK = 3
	}
	if topK < 1 {
		return nil, fmt.Errorf("%w: within_head_cov: TopK must be >= 1", ErrObserverConfig)
	}
	dim := heads[0].Dim()
	w := &WithinHeadCovariance{
		chains:  chains,
		draws:   draws,
		topK:    topK,
		heads:   heads,
		states:  make([][]covChain, numHeads),
		counts:  make([]int, chains),
		x:       make([]float64, dim),
		scratch: make([]float64, dim),
	}
	for h := range w.states {
		w.states[h] = make([]covChain, chains)
		for c := range w.states[h] {
			w.states[h][c] = newCovChain(dim)
		}
	}
	return w, nil
}

// Name implements Observer.
func (w *WithinHeadCovariance) Name() string { return "within_head_cov" }

// Needs implements Observer.
func (w *WithinHeadCovariance) Needs() Needs { return Needs{Params: true} }

// Update implements Observer.
func (w *WithinHeadCovariance) Update(rec DrawRecord) error {
	if err := checkRecord(rec, w.chains, w.draws); err != nil {
		return err
	}
	if rec.Params == nil {
		return fmt.Errorf("%w: within_head_cov", ErrRecordField)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for h, sel := range w.heads {
		sel.extract(rec.Params, w.x)
		covUpdate(&w.states[h][rec.Chain], w.x, w.scratch)
	}
	w.counts[rec.Chain]++
	return nil
}

// Finalize implements Observer.
func (w *WithinHeadCovariance) Finalize() (*Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	res := newResult(w.Name(), w.counts, w.draws)
	dim := w.heads[0].Dim()
	for h := range w.heads {
		merged := newCovChain(dim)
		for c := 0; c < w.chains; c++ {
			merged = covMerge(merged, w.states[h][c], dim)
		}
		vals, vecs, err := covSpectrum(merged, dim, w.topK)
		if err != nil {
			return nil, fmt.Errorf("head %d: %w", h, err)
		}
		for j := range vals {
			res.Scalars[fmt.Sprintf("within_head_cov/head%d/eigenvalue/%d", h, j)] = vals[j]
			res.Series[fmt.Sprintf("within_head_cov/head%d/eigenvector/%d", h, j)] = vecs[j]
		}
	}
	return res, nil
}
