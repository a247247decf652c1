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
	"sort"
	"time"

	"github.com/google/uuid"
)

// Result is one observer's finalized output.
//
// Scalars and Series use slash-namespaced keys ("llc/mean",
// "llc-chain/0", "loss/trace/1") so results from several observers merge
// into one flat map without collisions.
type Result struct {
	// Name is the producing observer's name.
	Name string

	// Scalars holds the finalized scalar statistics.
	Scalars map[string]float64

	// Series holds finalized per-draw or per-dimension sequences.
	Series map[string][]float64

	// SamplesSeen is the total number of draws consumed.
	SamplesSeen int

	// ExpectedSamples is chains*draws from the observer's configuration.
	ExpectedSamples int

	// ChainSamples reports the achieved draw count per chain.
	ChainSamples []int

	// Incomplete is true when any chain delivered fewer draws than
	// configured, e.g. after cancellation. The statistics are still valid
	// for the samples seen.
	Incomplete bool
}

// newResult allocates a result shell for an observer of the given shape.
func newResult(name string, chainSamples []int, draws int) *Result {
	r := &Result{
		Name:            name,
		Scalars:         make(map[string]float64),
		Series:          make(map[string][]float64),
		ExpectedSamples: len(chainSamples) * draws,
		ChainSamples:    append([]int(nil), chainSamples...),
	}
	for _, n := range chainSamples {
		r.SamplesSeen += n
		if n < draws {
			r.Incomplete = true
		}
	}
	return r
}

// RunResult aggregates every observer's Result for one sampling run.
type RunResult struct {
	// RunID uniquely identifies the run in logs and exported metrics.
	RunID uuid.UUID

	// Results maps observer name to its finalized result.
	Results map[string]*Result

	// ChainDraws is the number of draws each chain committed.
	ChainDraws []int

	// Interrupted is true when the run stopped before every chain
	// delivered its configured draws (cancellation or tolerated chain
	// failures).
	Interrupted bool

	// Elapsed is the wall-clock run duration.
	Elapsed time.Duration
}

// Flat merges all observers' scalar statistics into one map, mirroring the
// flat dictionaries the estimation entry points return.
func (r *RunResult) Flat() map[string]float64 {
	out := make(map[string]float64)
	for _, res := range r.Results {
		for k, v := range res.Scalars {
			out[k] = v
		}
	}
	return out
}

// FlatKeys returns the merged scalar keys in sorted order, for stable
// presentation.
func (r *RunResult) FlatKeys() []string {
	flat := r.Flat()
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
