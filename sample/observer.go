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
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrConfig wraps run-configuration validation failures.
	ErrConfig = errors.New("sample: invalid run configuration")

	// ErrObserverConfig wraps observer-construction failures.
	ErrObserverConfig = errors.New("sample: invalid observer configuration")

	// ErrNilCollaborator is returned when Run is missing its evaluator,
	// batch source, optimizer factory, or parameter vector.
	ErrNilCollaborator = errors.New("sample: nil collaborator")

	// ErrDuplicateObserver is returned when two attached observers share a
	// name. Result keys are namespaced by observer name, so duplicates
	// would silently shadow each other.
	ErrDuplicateObserver = errors.New("sample: duplicate observer name")

	// ErrRecordRange is returned by Update for a record whose chain or draw
	// index falls outside the observer's configured shape.
	ErrRecordRange = errors.New("sample: draw record out of configured range")

	// ErrRecordField is returned by Update when a record lacks a field the
	// observer declared in Needs.
	ErrRecordField = errors.New("sample: draw record missing required field")

	// ErrNoInitLoss is returned by Finalize when an LLC estimator consumed
	// draws for a chain that never received its initial loss.
	ErrNoInitLoss = errors.New("sample: initial loss never set for chain")

	// ErrBinWidthExceeded is returned by GradientDistribution.Update when a
	// value would need a finer bin width than the one already inferred.
	ErrBinWidthExceeded = errors.New("sample: update requires finer bin width than fixed")

	// ErrBinRange is returned when a histogram update would grow the bin
	// span beyond the supported maximum.
	ErrBinRange = errors.New("sample: histogram bin span exceeds maximum")
)

// -----------------------------------------------------------------------------
// Observer Contract
// -----------------------------------------------------------------------------

// Observer is a stateful online accumulator fed one DrawRecord per draw.
//
// Description:
//
//	Observers are shared across chains within a run. Update must be O(1)
//	amortized in the number of draws and must not retain the record or
//	its vectors. Implementations serialize Update internally and keep
//	per-chain sub-state, merging across chains only in Finalize (in
//	ascending chain order) so results do not depend on update
//	interleaving.
//
//	Finalize is pure with respect to accumulated state: it may be called
//	after any number of updates and reports per-chain achieved sample
//	counts, flagging Incomplete when a chain delivered fewer draws than
//	configured.
//
// Thread Safety: Update is safe for concurrent use; implementations lock
// internally.
type Observer interface {
	// Name identifies the observer and prefixes its result keys.
	Name() string

	// Needs declares which optional DrawRecord fields to snapshot.
	Needs() Needs

	// Update consumes one draw.
	Update(rec DrawRecord) error

	// Finalize computes the observer's statistics from the draws seen.
	Finalize() (*Result, error)
}

// initLossReceiver is implemented by observers that need each chain's loss
// at its untouched starting parameters. The orchestrator captures it from
// the chain's first gradient evaluation, before any optimizer step.
type initLossReceiver interface {
	SetInitLoss(chain int, loss float64)
}

// serialOnly marks observers whose results depend on cross-chain update
// order. The orchestrator refuses to run them with more than one worker.
type serialOnly interface {
	RequiresSerialChains() bool
}

// checkShape validates an observer's (chains, draws) constructor arguments.
func checkShape(kind string, chains, draws int) error {
	if chains < 1 {
		return fmt.Errorf("%w: %s: chains must be >= 1", ErrObserverConfig, kind)
	}
	if draws < 1 {
		return fmt.Errorf("%w: %s: draws must be >= 1", ErrObserverConfig, kind)
	}
	return nil
}

// checkRecord validates a record against an observer's configured shape.
func checkRecord(rec DrawRecord, chains, draws int) error {
	if rec.Chain < 0 || rec.Chain >= chains || rec.Draw < 0 || rec.Draw >= draws {
		return fmt.Errorf("%w: chain %d draw %d", ErrRecordRange, rec.Chain, rec.Draw)
	}
	return nil
}
