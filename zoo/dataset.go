// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package zoo

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/AleutianAI/basin/sample"
)

// ErrDatasetConfig wraps synthetic dataset construction failures.
var ErrDatasetConfig = errors.New("zoo: invalid dataset configuration")

// Batch is the payload the zoo datasets yield: BatchSize feature rows.
// Rows alias the dataset's backing storage and must be treated as
// read-only.
type Batch struct {
	X [][]float64
}

// SyntheticConfig configures a synthetic sparse-feature dataset.
type SyntheticConfig struct {
	// NumSamples is the number of generated rows.
	NumSamples int

	// NumFeatures is the row width.
	NumFeatures int

	// Sparsity is the probability each feature is zeroed. Ignored when
	// ExactActive is set.
	Sparsity float64

	// ExactActive, when positive, makes every row have exactly this many
	// active features.
	ExactActive int

	// Binary emits unit activations instead of Uniform(0,1) values.
	Binary bool

	// BatchSize is the number of rows per yielded batch. Default 32,
	// capped at NumSamples.
	BatchSize int

	// Seed drives generation and per-chain iteration order.
	Seed uint64
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *SyntheticConfig) ApplyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.BatchSize > c.NumSamples && c.NumSamples > 0 {
		c.BatchSize = c.NumSamples
	}
}

// Validate checks the configuration.
func (c *SyntheticConfig) Validate() error {
	if c.NumSamples < 1 {
		return fmt.Errorf("%w: NumSamples must be >= 1", ErrDatasetConfig)
	}
	if c.NumFeatures < 1 {
		return fmt.Errorf("%w: NumFeatures must be >= 1", ErrDatasetConfig)
	}
	if c.Sparsity < 0 || c.Sparsity > 1 {
		return fmt.Errorf("%w: Sparsity must be in [0, 1]", ErrDatasetConfig)
	}
	if c.ExactActive < 0 || c.ExactActive > c.NumFeatures {
		return fmt.Errorf("%w: ExactActive must be in [0, NumFeatures]", ErrDatasetConfig)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: BatchSize must be >= 1", ErrDatasetConfig)
	}
	return nil
}

// SyntheticDataset is a materialized sparse-feature dataset.
//
// Description:
//
//	Rows are generated once at construction: each feature is active with
//	probability 1-Sparsity (or exactly ExactActive features per row), and
//	active features carry Uniform(0,1) values, or 1 in the Binary
//	variant. The dataset implements sample.BatchSource; every chain gets
//	its own shuffled cycling iterator seeded from Seed+chain, so chains
//	see independent but reproducible batch orders.
//
// Thread Safety: the dataset is immutable after construction; iterators
// are private to their chain.
type SyntheticDataset struct {
	cfg  SyntheticConfig
	rows [][]float64
}

// NewSyntheticDataset generates a dataset from cfg.
func NewSyntheticDataset(cfg SyntheticConfig) (*SyntheticDataset, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	rows := make([][]float64, cfg.NumSamples)
	for i := range rows {
		row := make([]float64, cfg.NumFeatures)
		if cfg.ExactActive > 0 {
			for _, j := range rng.Perm(cfg.NumFeatures)[:cfg.ExactActive] {
				row[j] = activation(rng, cfg.Binary)
			}
		} else {
			for j := range row {
				if rng.Float64() >= cfg.Sparsity {
					row[j] = activation(rng, cfg.Binary)
				}
			}
		}
		rows[i] = row
	}
	return &SyntheticDataset{cfg: cfg, rows: rows}, nil
}

func activation(rng *rand.Rand, binary bool) float64 {
	if binary {
		return 1
	}
	return rng.Float64()
}

// Len returns the number of rows.
func (d *SyntheticDataset) Len() int { return d.cfg.NumSamples }

// NumFeatures returns the row width.
func (d *SyntheticDataset) NumFeatures() int { return d.cfg.NumFeatures }

// Row returns a copy of row i.
func (d *SyntheticDataset) Row(i int) []float64 {
	return append([]float64(nil), d.rows[i]...)
}

// Batches implements sample.BatchSource. Each chain iterates the dataset
// in its own shuffled order, reshuffling every epoch, and cycles forever.
func (d *SyntheticDataset) Batches(chain int) sample.BatchIter {
	return &batchIter{
		d:   d,
		rng: rand.New(rand.NewSource(d.cfg.Seed + uint64(chain))),
	}
}

type batchIter struct {
	d    *SyntheticDataset
	rng  *rand.Rand
	perm []int
	pos  int
}

// Next implements sample.BatchIter.
func (it *batchIter) Next(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := make([][]float64, 0, it.d.cfg.BatchSize)
	for len(rows) < it.d.cfg.BatchSize {
		if it.pos >= len(it.perm) {
			it.perm = it.rng.Perm(it.d.cfg.NumSamples)
			it.pos = 0
		}
		rows = append(rows, it.d.rows[it.perm[it.pos]])
		it.pos++
	}
	return Batch{X: rows}, nil
}
