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

import "math"

// -----------------------------------------------------------------------------
// Streaming Moments
// -----------------------------------------------------------------------------

// welford tracks running count/mean/variance/min/max of a scalar stream
// using Welford's update. The incremental mean keeps single-pass numerics
// stable over long runs.
type welford struct {
	n    int
	mean float64
	m2   float64
	min  float64
	max  float64
}

// add consumes one value.
func (w *welford) add(x float64) {
	if w.n == 0 {
		w.min, w.max = x, x
	} else {
		if x < w.min {
			w.min = x
		}
		if x > w.max {
			w.max = x
		}
	}
	w.n++
	d := x - w.mean
	w.mean += d / float64(w.n)
	w.m2 += d * (x - w.mean)
}

// variance returns the sample variance (n-1 denominator), 0 for n < 2.
func (w *welford) variance() float64 {
	if w.n < 2 {
		return 0
	}
	return w.m2 / float64(w.n-1)
}

// std returns the sample standard deviation.
func (w *welford) std() float64 {
	return math.Sqrt(w.variance())
}

// mergeWelford combines two disjoint streams' moments (Chan et al.). The
// observers call it left-to-right over chains at Finalize, so the merged
// numbers never depend on chain scheduling.
func mergeWelford(a, b welford) welford {
	if a.n == 0 {
		return b
	}
	if b.n == 0 {
		return a
	}
	n := a.n + b.n
	delta := b.mean - a.mean
	out := welford{
		n:    n,
		mean: a.mean + delta*float64(b.n)/float64(n),
		m2:   a.m2 + b.m2 + delta*delta*float64(a.n)*float64(b.n)/float64(n),
		min:  math.Min(a.min, b.min),
		max:  math.Max(a.max, b.max),
	}
	return out
}
