// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sample orchestrates SG-MCMC chains and aggregates their draws
// into loss-landscape statistics.
//
// # Overview
//
// Run drives one or more independent sampling chains over a model's
// parameter space. Each chain clones the trained parameters, builds a
// fresh optimizer from an optim.Factory, burns in, and then emits one
// DrawRecord every few steps. Records flow into shared Observers that
// maintain online statistics: local learning coefficient estimates, WBIC,
// loss moments, gradient/noise/weight norms, parameter covariance
// spectra, and gradient histograms.
//
// # Architecture
//
//	Run
//	├── chain 0 ──┐
//	├── chain 1 ──┼── DrawRecord ──> Observer.Update (per-chain slots)
//	└── chain N ──┘                        │
//	                                       └── Finalize (merge in chain order)
//
// Chains execute sequentially or in parallel under an errgroup with a
// worker limit. Observers keep independent per-chain sub-state and only
// combine chains at Finalize, in ascending chain order, so a run's
// finalized numbers are identical whether it used one worker or many.
//
// # Determinism
//
// Chain c draws its noise from seed Seed+c (or an explicit per-chain seed
// list). Given a deterministic GradientEvaluator and BatchSource, two runs
// with the same configuration produce byte-identical parameter
// trajectories and identical finalized statistics at any parallelism.
//
// # Cancellation
//
// The context is checked between steps. A cancelled run stops cleanly:
// draws already committed remain valid, and every Result reports how many
// samples each chain achieved instead of presenting itself as complete.
package sample
