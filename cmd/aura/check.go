// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hxrts/aura/config"
)

func checkCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a configuration file plus environment overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(path)
			if err != nil {
				return err
			}
			fmt.Printf("configuration ok: %d-of-%d witnesses, storage %s, pipelining %v\n",
				c.Threshold, c.TotalWitnesses, c.StorageDir, c.EnablePipelining)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "config", "", "path to a YAML configuration file")
	return cmd
}

func paramsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "Print the default parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := config.DefaultConfig()
			fmt.Printf("threshold=%d total=%d phase_timeout=%s overall_timeout=%s pipelining=%v\n",
				c.Threshold, c.TotalWitnesses, c.PhaseTimeout, c.OverallTimeout, c.EnablePipelining)
			return nil
		},
	}
}
