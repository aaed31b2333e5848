// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hxrts/aura/simulator"
)

func simCmd() *cobra.Command {
	var (
		witnesses   uint16
		threshold   uint16
		seed        uint64
		steps       int
		dropRate    uint64
		equivocator uint16
		pipelining  bool
	)

	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run a deterministic consensus simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := simulator.Options{
				Witnesses:  witnesses,
				Threshold:  threshold,
				Seed:       seed,
				DropRate:   dropRate,
				Pipelining: pipelining,
			}
			if equivocator > 0 {
				opts.Modes = map[uint16]simulator.ByzantineMode{
					equivocator: simulator.Equivocate,
				}
			}
			sim, err := simulator.New(opts)
			if err != nil {
				return err
			}

			committed := 0
			fastPath := 0
			for i := 0; i < steps; i++ {
				operation := fmt.Appendf(nil, "op-%d", i)
				resp, err := sim.Step(context.Background(), operation)
				if err != nil {
					return err
				}
				if resp.Commit != nil {
					committed++
				}
				if resp.FastPath {
					fastPath++
				}
			}

			fmt.Printf("steps=%d committed=%d fast_path=%d equivocators=%v\n",
				steps, committed, fastPath, sim.Engine.EquivocationLog())
			return nil
		},
	}

	cmd.Flags().Uint16Var(&witnesses, "witnesses", 3, "number of witnesses")
	cmd.Flags().Uint16Var(&threshold, "threshold", 2, "signing threshold")
	cmd.Flags().Uint64Var(&seed, "seed", 42, "deterministic seed")
	cmd.Flags().IntVar(&steps, "steps", 10, "consensus steps to run")
	cmd.Flags().Uint64Var(&dropRate, "drop-rate", 0, "message loss in parts per 65536")
	cmd.Flags().Uint16Var(&equivocator, "equivocator", 0, "witness index to make Byzantine")
	cmd.Flags().BoolVar(&pipelining, "pipelining", true, "enable the fast path")
	return cmd
}
