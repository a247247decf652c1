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
	"log/slog"
	"runtime"

	"github.com/go-playground/validator/v10"
)

// -----------------------------------------------------------------------------
// Shared Validator Instance
// -----------------------------------------------------------------------------

// cfgValidate validates sampling configurations. Initialized in init with
// the struct-level seed check registered.
var cfgValidate *validator.Validate

func init() {
	cfgValidate = validator.New()
	cfgValidate.RegisterStructValidation(validateConfigSeeds, Config{})
}

// validateConfigSeeds enforces that an explicit per-chain seed list covers
// every chain exactly.
func validateConfigSeeds(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)
	if len(cfg.Seeds) != 0 && len(cfg.Seeds) != cfg.NumChains {
		sl.ReportError(cfg.Seeds, "Seeds", "Seeds", "eqfield=NumChains", "")
	}
}

// -----------------------------------------------------------------------------
// Run Configuration
// -----------------------------------------------------------------------------

// Config describes one sampling run.
//
// Description:
//
//	A run executes NumChains independent chains. Each chain performs
//	NumBurninSteps discarded steps followed by NumDraws recorded draws
//	spaced NumStepsBwDraws optimizer steps apart. Draw d of a chain is
//	recorded at step NumBurninSteps + d*NumStepsBwDraws, before that
//	step's parameter update, so the total step count per chain is
//	NumBurninSteps + NumDraws*NumStepsBwDraws.
type Config struct {
	// NumChains is the number of independent chains.
	NumChains int `validate:"gte=1,lte=4096"`

	// NumDraws is the number of recorded draws per chain.
	NumDraws int `validate:"gte=1"`

	// NumBurninSteps is the number of discarded steps before the first
	// draw.
	NumBurninSteps int `validate:"gte=0"`

	// NumStepsBwDraws is the number of optimizer steps between recorded
	// draws. Default 1.
	NumStepsBwDraws int `validate:"gte=1"`

	// GradAccumSteps averages this many consecutive batch gradients into
	// each optimizer step. Default 1.
	GradAccumSteps int `validate:"gte=1"`

	// Workers bounds how many chains run concurrently. Zero picks
	// min(NumChains, GOMAXPROCS).
	Workers int `validate:"gte=0"`

	// Seed derives per-chain seeds (seed+chain). Zero draws a seed from
	// the wall clock, which the run logs so it can be replayed.
	Seed uint64

	// Seeds optionally fixes every chain seed explicitly. When set its
	// length must equal NumChains and Seed is ignored.
	Seeds []uint64

	// AllowPartial finalizes surviving chains when some chains fail,
	// instead of failing the whole run.
	AllowPartial bool

	// Logger receives run progress. Defaults to slog.Default.
	Logger *slog.Logger `validate:"-"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.NumStepsBwDraws == 0 {
		c.NumStepsBwDraws = 1
	}
	if c.GradAccumSteps == 0 {
		c.GradAccumSteps = 1
	}
	if c.Workers == 0 || c.Workers > c.NumChains {
		c.Workers = c.NumChains
		if p := runtime.GOMAXPROCS(0); c.Workers > p {
			c.Workers = p
		}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	if err := cfgValidate.Struct(*c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}

// TotalSteps returns the number of optimizer steps each chain performs.
func (c *Config) TotalSteps() int {
	return c.NumBurninSteps + c.NumDraws*c.NumStepsBwDraws
}

// chainSeeds resolves the per-chain seeds. derived reports that the base
// seed came from the wall clock rather than the configuration.
func (c *Config) chainSeeds(now func() int64) (seeds []uint64, derived bool) {
	if len(c.Seeds) != 0 {
		out := make([]uint64, len(c.Seeds))
		copy(out, c.Seeds)
		return out, false
	}
	base := c.Seed
	if base == 0 {
		base = uint64(now())
		derived = true
	}
	seeds = make([]uint64, c.NumChains)
	for i := range seeds {
		seeds[i] = base + uint64(i)
	}
	return seeds, derived
}
