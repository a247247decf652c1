// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package zoo provides small reference models and synthetic datasets for
// exercising the sampling engine.
//
// # Overview
//
// The models implement sample.GradientEvaluator with hand-derived
// gradients, and the datasets implement sample.BatchSource with
// deterministic per-chain iteration. They exist for calibration and
// testing: QuadraticModel has a known local learning coefficient (dim/2),
// and TMSModel reproduces the toy-model-of-superposition setting whose
// basin geometry the estimators were built to probe.
//
// Everything in this package is deterministic under an explicit seed.
package zoo
