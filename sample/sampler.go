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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/basin/optim"
	"github.com/AleutianAI/basin/tensor"
)

// Run executes one sampling run and finalizes every observer.
//
// Description:
//
//	Run launches cfg.NumChains chains, at most cfg.Workers at a time. Each
//	chain clones the starting parameters, builds its own optimizer from
//	factory with its own seed, and walks the loss landscape for
//	cfg.TotalSteps() steps, feeding recorded draws to every observer.
//	Draws commit one at a time, so an interrupted run leaves observers
//	holding a valid prefix of each chain.
//
//	Results are independent of Workers: observers keep per-chain state and
//	merge it in chain order during Finalize, and every chain's randomness
//	comes from its own seed.
//
// Outputs:
//
//	Cancelling ctx stops chains at the next step boundary and still
//	finalizes, returning a RunResult with Interrupted set and a nil error.
//	A chain failure fails the run unless cfg.AllowPartial is set, in which
//	case surviving chains finalize and the per-chain errors come back
//	joined alongside the partial RunResult. An observer Finalize failure
//	omits that observer's entry and joins its error, so a non-nil
//	RunResult can accompany a non-nil error.
func Run(
	ctx context.Context,
	cfg Config,
	params *tensor.Vector,
	eval GradientEvaluator,
	data BatchSource,
	factory optim.Factory,
	observers []Observer,
) (*RunResult, error) {
	if params == nil || eval == nil || data == nil || factory == nil {
		return nil, fmt.Errorf("%w: sampler requires params, evaluator, batch source, and optimizer factory", ErrNilCollaborator)
	}
	requestedWorkers := cfg.Workers
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		needs         Needs
		initReceivers []initLossReceiver
		serialName    string
	)
	seen := make(map[string]struct{}, len(observers))
	for _, ob := range observers {
		if ob == nil {
			return nil, fmt.Errorf("%w: nil observer", ErrNilCollaborator)
		}
		name := ob.Name()
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateObserver, name)
		}
		seen[name] = struct{}{}
		needs = needs.union(ob.Needs())
		if r, ok := ob.(initLossReceiver); ok {
			initReceivers = append(initReceivers, r)
		}
		if s, ok := ob.(serialOnly); ok && s.RequiresSerialChains() {
			serialName = name
		}
	}
	if serialName != "" && cfg.Workers > 1 {
		if requestedWorkers > 1 {
			return nil, fmt.Errorf("%w: observer %s requires serial chains but Workers=%d",
				ErrConfig, serialName, requestedWorkers)
		}
		cfg.Logger.Warn("limiting run to one worker for serial-only observer", "observer", serialName)
		cfg.Workers = 1
	}

	seeds, derived := cfg.chainSeeds(func() int64 { return time.Now().UnixNano() })
	runID := uuid.New()
	logger := cfg.Logger.With("run_id", runID.String())
	if derived {
		logger.Info("no seed configured, drew one from the clock", "seed", seeds[0])
	}

	rctx, span := startRunSpan(ctx, runID.String(), cfg.NumChains, cfg.NumDraws)
	defer span.End()
	recordRunStart(rctx)

	logger.Info("sampling run starting",
		"chains", cfg.NumChains,
		"draws", cfg.NumDraws,
		"burnin_steps", cfg.NumBurninSteps,
		"steps_between_draws", cfg.NumStepsBwDraws,
		"grad_accum_steps", cfg.GradAccumSteps,
		"workers", cfg.Workers,
		"total_steps", cfg.TotalSteps(),
		"parameters", params.Len())

	start := time.Now()
	chainDraws := make([]int, cfg.NumChains)
	chainErrs := make([]error, cfg.NumChains)
	stopped := make([]bool, cfg.NumChains)
	progress := progressSteps(cfg.TotalSteps())

	g, gctx := errgroup.WithContext(rctx)
	g.SetLimit(cfg.Workers)
	for c := 0; c < cfg.NumChains; c++ {
		c := c
		g.Go(func() error {
			draws, interrupted, err := runChain(gctx, chainRun{
				chain:         c,
				seed:          seeds[c],
				cfg:           cfg,
				logger:        logger,
				start:         params,
				eval:          eval,
				data:          data,
				factory:       factory,
				observers:     observers,
				initReceivers: initReceivers,
				needs:         needs,
				progress:      progress,
			})
			chainDraws[c] = draws
			stopped[c] = interrupted
			if err != nil {
				chainErrs[c] = err
				if !cfg.AllowPartial {
					return fmt.Errorf("chain %d: %w", c, err)
				}
				logger.Warn("chain failed, continuing without it", "chain", c, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	interrupted := false
	for _, b := range stopped {
		interrupted = interrupted || b
	}
	for _, cerr := range chainErrs {
		interrupted = interrupted || cerr != nil
	}

	res := &RunResult{
		RunID:       runID,
		Results:     make(map[string]*Result, len(observers)),
		ChainDraws:  chainDraws,
		Interrupted: interrupted,
	}
	var errs []error
	for c, cerr := range chainErrs {
		if cerr != nil {
			errs = append(errs, fmt.Errorf("chain %d: %w", c, cerr))
		}
	}
	for _, ob := range observers {
		r, ferr := ob.Finalize()
		if ferr != nil {
			if interrupted {
				logger.Warn("observer finalize failed after interrupt", "observer", ob.Name(), "error", ferr)
				continue
			}
			errs = append(errs, fmt.Errorf("finalize %s: %w", ob.Name(), ferr))
			continue
		}
		res.Results[ob.Name()] = r
	}
	res.Elapsed = time.Since(start)

	logger.Info("sampling run finished",
		"elapsed", res.Elapsed,
		"interrupted", interrupted,
		"chain_draws", chainDraws,
		"failed_chains", len(errs))

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	return res, nil
}

// chainRun bundles everything one chain needs.
type chainRun struct {
	chain         int
	seed          uint64
	cfg           Config
	logger        *slog.Logger
	start         *tensor.Vector
	eval          GradientEvaluator
	data          BatchSource
	factory       optim.Factory
	observers     []Observer
	initReceivers []initLossReceiver
	needs         Needs
	progress      map[int]struct{}
}

// runChain walks one chain. It reports the number of committed draws,
// whether it stopped early on context cancellation, and any failure.
func runChain(ctx context.Context, cr chainRun) (draws int, interrupted bool, err error) {
	begin := time.Now()
	cctx, span := startChainSpan(ctx, cr.chain, cr.seed)
	defer span.End()

	steps := 0
	defer func() {
		recordChainMetrics(cctx, time.Since(begin), steps, draws, err == nil)
	}()

	opt, err := cr.factory(cr.start.Clone(), cr.seed)
	if err != nil {
		return 0, false, fmt.Errorf("optimizer factory: %w", err)
	}
	opt.ZeroGrad()

	iter := cr.data.Batches(cr.chain)
	if iter == nil {
		return 0, false, fmt.Errorf("%w: batch source returned nil iterator", ErrNilCollaborator)
	}

	layout := cr.start.Layout()
	grad := tensor.NewVector(layout)
	var accum *tensor.Vector
	if cr.cfg.GradAccumSteps > 1 {
		accum = tensor.NewVector(layout)
	}

	// Snapshot buffers exist only for fields some observer asked for; they
	// are reused across draws, which is what makes DrawRecord ephemeral.
	var gradSnap, paramSnap, noiseSnap *tensor.Vector
	if cr.needs.Gradient {
		gradSnap = tensor.NewVector(layout)
	}
	if cr.needs.Params {
		paramSnap = tensor.NewVector(layout)
	}
	if cr.needs.Noise {
		noiseSnap = tensor.NewVector(layout)
	}

	total := cr.cfg.TotalSteps()
	for step := 0; step < total; step++ {
		if ctx.Err() != nil {
			cr.logger.Info("chain interrupted", "chain", cr.chain, "step", step, "draws", draws)
			return draws, true, nil
		}

		loss, gvec, gerr := nextGradient(cctx, cr, opt, iter, grad, accum)
		if gerr != nil {
			// A collaborator error that coincides with cancellation is the
			// cancellation surfacing mid-step, not a chain failure.
			if ctx.Err() != nil {
				cr.logger.Info("chain interrupted", "chain", cr.chain, "step", step, "draws", draws)
				return draws, true, nil
			}
			return draws, false, fmt.Errorf("step %d: %w", step, gerr)
		}

		if step == 0 {
			for _, r := range cr.initReceivers {
				r.SetInitLoss(cr.chain, loss)
			}
		}

		if step >= cr.cfg.NumBurninSteps &&
			(step-cr.cfg.NumBurninSteps)%cr.cfg.NumStepsBwDraws == 0 &&
			draws < cr.cfg.NumDraws {
			rec := DrawRecord{Chain: cr.chain, Draw: draws, Loss: loss}
			if gradSnap != nil {
				gradSnap.CopyFrom(gvec)
				rec.Grad = gradSnap
			}
			if paramSnap != nil {
				paramSnap.CopyFrom(opt.Params())
				rec.Params = paramSnap
			}
			if noiseSnap != nil {
				noiseSnap.CopyFrom(opt.LastNoise())
				rec.Noise = noiseSnap
			}
			for _, ob := range cr.observers {
				if uerr := ob.Update(rec); uerr != nil {
					return draws, false, fmt.Errorf("observer %s at draw %d: %w", ob.Name(), draws, uerr)
				}
			}
			draws++
		}

		if serr := opt.Step(gvec); serr != nil {
			return draws, false, fmt.Errorf("step %d: %w", step, serr)
		}
		steps++

		if _, ok := cr.progress[step+1]; ok {
			cr.logger.Debug("chain progress",
				"chain", cr.chain, "step", step+1, "total", total, "loss", loss)
		}
	}

	cr.logger.Debug("chain finished", "chain", cr.chain, "draws", draws, "elapsed", time.Since(begin))
	return draws, false, nil
}

// nextGradient produces the gradient driving the next optimizer step,
// averaging over GradAccumSteps batch evaluations when configured. The
// returned vector aliases one of the caller's buffers.
func nextGradient(ctx context.Context, cr chainRun, opt optim.Optimizer, iter BatchIter, grad, accum *tensor.Vector) (float64, *tensor.Vector, error) {
	if accum == nil {
		batch, err := iter.Next(ctx)
		if err != nil {
			return 0, nil, fmt.Errorf("next batch: %w", err)
		}
		loss, err := cr.eval.Gradient(ctx, opt.Params(), grad, batch)
		if err != nil {
			return 0, nil, fmt.Errorf("gradient: %w", err)
		}
		return loss, grad, nil
	}

	accum.Zero()
	lossSum := 0.0
	for a := 0; a < cr.cfg.GradAccumSteps; a++ {
		batch, err := iter.Next(ctx)
		if err != nil {
			return 0, nil, fmt.Errorf("next batch: %w", err)
		}
		l, err := cr.eval.Gradient(ctx, opt.Params(), grad, batch)
		if err != nil {
			return 0, nil, fmt.Errorf("gradient: %w", err)
		}
		lossSum += l
		accum.AddScaled(1, grad)
	}
	n := float64(cr.cfg.GradAccumSteps)
	accum.Scale(1 / n)
	return lossSum / n, accum, nil
}

// progressSteps returns the log-spaced step counts progress is logged at.
func progressSteps(total int) map[int]struct{} {
	pts, err := LogSteps(1, total, 10)
	if err != nil {
		return nil
	}
	m := make(map[int]struct{}, len(pts))
	for _, s := range pts {
		m[s] = struct{}{}
	}
	return m
}
