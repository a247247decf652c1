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

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/basin/cmd/basin/config"
)

func runConfigShow(cmd *cobra.Command, args []string) {
	path, err := config.Path()
	if err != nil {
		log.Fatalf("Error resolving config path: %v", err)
	}
	data, err := yaml.Marshal(config.Global)
	if err != nil {
		log.Fatalf("Error marshaling config: %v", err)
	}
	fmt.Printf("# %s\n%s", path, data)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	path, err := config.Path()
	if err != nil {
		log.Fatalf("Error resolving config path: %v", err)
	}
	if err := config.CreateDefault(path, forceInit); err != nil {
		log.Fatalf("Error writing config: %v", err)
	}
	fmt.Printf("Wrote default config to %s\n", path)
	fmt.Println("Edit it to change defaults, or override per run with flags.")
}
