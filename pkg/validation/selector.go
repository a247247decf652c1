// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for user-supplied identifiers.
//
// Tensor names and selector expressions arrive from CLI flags and YAML
// configs and end up as result-map keys and log attributes. These
// validators reject names that would corrupt key paths (embedded
// separators, brackets) or smuggle control characters into log output.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// namePattern matches valid tensor names.
// Allows: letters, digits, underscores, dots (module paths like
// layers.0.weight), hyphens. Max length: 64 characters.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]{0,63}$`)

// ValidateTensorName validates a parameter tensor name.
//
// Valid names:
//   - 1-64 characters
//   - Letters, digits, underscores
//   - Dots (.) for module paths like layers.0.weight
//   - Hyphens (-)
//   - Must start with a letter, digit, or underscore
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateTensorName(name); err != nil {
//	    return nil, fmt.Errorf("invalid tensor name: %w", err)
//	}
//	// Safe to use as a result key
func ValidateTensorName(name string) error {
	if name == "" {
		return fmt.Errorf("tensor name cannot be empty")
	}

	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid tensor name: %q (must be 1-64 chars of letters, digits, underscores, dots, or hyphens)", name)
	}

	return nil
}

// ValidateTensorNames validates multiple tensor names.
// Returns an error listing all invalid names if any fail validation.
func ValidateTensorNames(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateTensorName(n); err != nil {
			invalid = append(invalid, n)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid tensor names: %v", invalid)
	}
	return nil
}

// SelectorExpr is a parsed parameter selection expression. Exactly one
// of the three forms is populated:
//
//   - concatenation: Names holds two or more tensor names
//   - window: Names holds one name, Ranged is true, [Lo, Hi) is the slice
//   - heads: Names holds one name, Heads > 1 is the partition count
type SelectorExpr struct {
	Names  []string
	Lo, Hi int
	Ranged bool
	Heads  int
}

// ParseSelectorExpr parses a parameter selection expression from user
// input. Supported forms:
//
//	"w"        a single tensor
//	"wa+wb"    concatenation of tensors
//	"w[2:7]"   a half-open window into one tensor's flat elements
//	"w/4"      one tensor split into 4 attention heads
//
// Names are trimmed and validated; windows must satisfy 0 <= lo < hi.
// The forms do not compose.
func ParseSelectorExpr(expr string) (*SelectorExpr, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("selector expression cannot be empty")
	}

	switch {
	case strings.Contains(expr, "["):
		name, rest, ok := strings.Cut(expr, "[")
		if !ok || !strings.HasSuffix(rest, "]") {
			return nil, fmt.Errorf("malformed window expression: %q", expr)
		}
		if err := ValidateTensorName(strings.TrimSpace(name)); err != nil {
			return nil, err
		}
		loStr, hiStr, ok := strings.Cut(strings.TrimSuffix(rest, "]"), ":")
		if !ok {
			return nil, fmt.Errorf("window expression needs lo:hi bounds: %q", expr)
		}
		lo, err := strconv.Atoi(strings.TrimSpace(loStr))
		if err != nil {
			return nil, fmt.Errorf("window lower bound %q: %w", loStr, err)
		}
		hi, err := strconv.Atoi(strings.TrimSpace(hiStr))
		if err != nil {
			return nil, fmt.Errorf("window upper bound %q: %w", hiStr, err)
		}
		if lo < 0 || hi <= lo {
			return nil, fmt.Errorf("window bounds must satisfy 0 <= lo < hi, got [%d:%d]", lo, hi)
		}
		return &SelectorExpr{Names: []string{strings.TrimSpace(name)}, Lo: lo, Hi: hi, Ranged: true}, nil

	case strings.Contains(expr, "/"):
		name, headStr, _ := strings.Cut(expr, "/")
		if err := ValidateTensorName(strings.TrimSpace(name)); err != nil {
			return nil, err
		}
		heads, err := strconv.Atoi(strings.TrimSpace(headStr))
		if err != nil {
			return nil, fmt.Errorf("head count %q: %w", headStr, err)
		}
		if heads < 2 {
			return nil, fmt.Errorf("head count must be >= 2, got %d", heads)
		}
		return &SelectorExpr{Names: []string{strings.TrimSpace(name)}, Heads: heads}, nil

	default:
		parts := strings.Split(expr, "+")
		names := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if err := ValidateTensorName(p); err != nil {
				return nil, err
			}
			names = append(names, p)
		}
		return &SelectorExpr{Names: names}, nil
	}
}

// String reassembles the canonical form of the expression.
func (e *SelectorExpr) String() string {
	switch {
	case e.Ranged:
		return fmt.Sprintf("%s[%d:%d]", e.Names[0], e.Lo, e.Hi)
	case e.Heads > 0:
		return fmt.Sprintf("%s/%d", e.Names[0], e.Heads)
	default:
		return strings.Join(e.Names, "+")
	}
}
