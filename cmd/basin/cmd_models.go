// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/basin/tensor"
	"github.com/AleutianAI/basin/zoo"
)

func runModels(cmd *cobra.Command, args []string) {
	fmt.Println("Built-in models:")
	fmt.Println()

	quad, err := zoo.NewQuadraticModel(10, nil)
	if err != nil {
		log.Fatalf("building quadratic model: %v", err)
	}
	fmt.Println("  quadratic    L(theta) = 1/2 * sum h_i theta_i^2")
	fmt.Println("               flags: --dim (default 10)")
	fmt.Printf("               layout: %s (%d parameters at --dim 10)\n",
		layoutString(quad.Layout()), quad.Layout().Len())
	fmt.Printf("               known LLC: dim/2 (%.1f at --dim 10), the calibration target\n", quad.TrueLLC())
	fmt.Println()

	tms, err := zoo.NewTMSModel(10, 2)
	if err != nil {
		log.Fatalf("building tms model: %v", err)
	}
	fmt.Println("  tms          toy model of superposition: ReLU(W^T W x + b), MSE loss")
	fmt.Println("               flags: --features (default 10), --hidden (default 2), --init-seed")
	fmt.Printf("               layout: %s (%d parameters at defaults)\n",
		layoutString(tms.Layout()), tms.Layout().Len())
	fmt.Println("               covariance selectors address 'W' and 'b', e.g. --select 'W[0:8]'")
}

// layoutString renders a parameter layout as name[shape] pairs.
func layoutString(l *tensor.Layout) string {
	parts := make([]string, 0, l.NumTensors())
	for _, name := range l.Names() {
		shape, err := l.Shape(name)
		if err != nil {
			continue
		}
		dims := make([]string, len(shape))
		for i, d := range shape {
			dims[i] = fmt.Sprintf("%d", d)
		}
		parts = append(parts, fmt.Sprintf("%s[%s]", name, strings.Join(dims, "x")))
	}
	return strings.Join(parts, " ")
}
