// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package optim implements the SG-MCMC update rules that drive basin's
// sampling chains.
//
// # Overview
//
// Two stochastic-gradient samplers are provided:
//
//   - SGLD: localized, tempered stochastic gradient Langevin dynamics.
//     Gradient descent plus Gaussian noise, with an elastic pull toward an
//     anchor point and an optional hard bounding box around it. The
//     localization keeps chains exploring the basin around a trained
//     solution instead of drifting to unrelated minima.
//
//   - SGNHT: stochastic gradient Nosé-Hoover thermostat. A momentum
//     sampler whose thermostat variable absorbs the unknown stochastic
//     gradient noise scale, self-regulating the injected energy without a
//     step-size decay schedule.
//
// Both mutate a chain-owned tensor.Vector in place, one Step per
// mini-batch gradient, and surface the noise vector they injected so that
// observers can track it.
//
// # Determinism
//
// Every sampler draws its noise from a private golang.org/x/exp/rand
// source seeded at construction. Two samplers built with the same
// configuration, parameters, and seed produce byte-identical trajectories
// given the same gradient sequence.
//
// # Hyperparameter Freezing
//
// Temperature, elasticity, noise level, and the other dynamics
// hyperparameters are fixed once the first Step runs. SetHyper rejects
// later mutation with ErrHyperFixed (and a warning log) unless the caller
// has explicitly entered calibration mode via BeginCalibration.
package optim
