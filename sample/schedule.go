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
	"math"
	"slices"
)

// LinSteps returns num linearly spaced integer step indices from start to
// stop inclusive, sorted and deduplicated. Rounding collisions can return
// fewer than num indices; a warning is logged when that happens.
func LinSteps(start, stop, num int) ([]int, error) {
	if err := checkScheduleArgs("lin", start, stop, num, 0); err != nil {
		return nil, err
	}
	raw := make([]int, num)
	if num == 1 {
		raw[0] = start
	} else {
		span := float64(stop - start)
		for i := range raw {
			raw[i] = start + int(math.Round(span*float64(i)/float64(num-1)))
		}
	}
	return dedupSteps("lin", raw, num), nil
}

// LogSteps returns num logarithmically spaced integer step indices from
// start to stop inclusive, sorted and deduplicated. start must be at least
// 1. Rounding collisions near the low end commonly shrink the result; a
// warning is logged when that happens.
func LogSteps(start, stop, num int) ([]int, error) {
	if err := checkScheduleArgs("log", start, stop, num, 1); err != nil {
		return nil, err
	}
	raw := make([]int, num)
	if num == 1 {
		raw[0] = start
	} else {
		l0 := math.Log(float64(start))
		l1 := math.Log(float64(stop))
		for i := range raw {
			f := float64(i) / float64(num-1)
			raw[i] = int(math.Round(math.Exp(l0 + (l1-l0)*f)))
		}
	}
	return dedupSteps("log", raw, num), nil
}

func checkScheduleArgs(kind string, start, stop, num, minStart int) error {
	if num < 1 {
		return fmt.Errorf("%w: %s steps: num must be >= 1", ErrConfig, kind)
	}
	if start < minStart {
		return fmt.Errorf("%w: %s steps: start must be >= %d", ErrConfig, kind, minStart)
	}
	if stop < start {
		return fmt.Errorf("%w: %s steps: stop must be >= start", ErrConfig, kind)
	}
	return nil
}

func dedupSteps(kind string, raw []int, requested int) []int {
	slices.Sort(raw)
	out := slices.Compact(raw)
	if len(out) < requested {
		slog.Warn("step schedule shrank after deduplication",
			"kind", kind,
			"requested", requested,
			"unique", len(out))
	}
	return slices.Clip(out)
}
