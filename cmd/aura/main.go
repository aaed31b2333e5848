// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hxrts/aura/types"
)

var rootCmd = &cobra.Command{
	Use:   "aura",
	Short: "Aura consensus tools for simulation and configuration checking",
	Long: `The aura command provides harness tools for the Aura coordinated
state layer: deterministic consensus simulation with fault injection,
configuration validation, and parameter inspection.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(
		simCmd(),
		checkCmd(),
		paramsCmd(),
	)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(types.ExitCodeFor(err))
	}
}
