// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hxrts/aura/frost"
	"github.com/hxrts/aura/journal"
	"github.com/hxrts/aura/types"
	"github.com/hxrts/aura/utils/bag"
)

// gossipRoundInterval paces epidemic rounds.
const gossipRoundInterval = 100 * time.Millisecond

// runEpidemicGossip is the partition-tolerant fallback. Instead of a
// coordinator-led run, every reachable witness re-contributes its
// latest commitment and partial each round; a witness declares
// convergence locally once >= threshold partials agree on the same
// (consensus id, operation hash) with no conflicting hash from any
// listed signer, then aggregates locally. The convergence quorum equals
// the signing threshold, never lower.
func (e *Engine) runEpidemicGossip(ctx context.Context, inst *Instance) (*journal.CommitFact, error) {
	inst.State = EpidemicGossip
	e.metrics.gossipRounds.Inc()

	votes := bag.New[types.Hash32]()
	seen := make(map[uint16]types.Hash32)

	for {
		select {
		case <-ctx.Done():
			inst.State = TimedOut
			return nil, types.WrapError(types.ErrTimeout, ctx.Err(), "epidemic gossip")
		default:
		}

		// One epidemic round: every reachable witness contributes a
		// fresh commitment; the lowest threshold indexes then sign over
		// the agreed sorted set.
		commitments, responsive := e.collectNonces(ctx, inst, e.witnesses)
		if len(commitments) >= int(e.cfg.Threshold) {
			sort.Slice(commitments, func(i, j int) bool {
				return commitments[i].Signer < commitments[j].Signer
			})
			subset := commitments[:e.cfg.Threshold]
			tracker := NewTracker()
			for _, c := range subset {
				tracker.AddNonce(c)
			}

			partials := make([]frost.PartialSignature, 0, len(subset))
			conflict := false
			for _, c := range subset {
				w := findWitness(responsive, c.Signer)
				if w == nil {
					continue
				}
				resp, err := w.Sign(ctx, SignRequest{
					ConsensusID:    inst.ConsensusID,
					Epoch:          inst.Epoch,
					OperationHash:  inst.OperationHash,
					OperationBytes: inst.OperationBytes,
					Commitments:    subset,
				})
				if err != nil {
					continue
				}
				if prev, ok := seen[c.Signer]; ok && prev != resp.OperationHash {
					conflict = true
					break
				}
				seen[c.Signer] = resp.OperationHash
				if err := tracker.AddPartial(resp.Partial, resp.OperationHash); err != nil {
					conflict = true
					break
				}
				votes.Add(resp.OperationHash)
				partials = append(partials, resp.Partial)
			}
			if conflict {
				inst.State = Conflicted
				return nil, types.NewError(types.ErrByzantine, "conflicting operation hash during gossip")
			}
			if len(partials) == len(subset) && votes.Count(inst.OperationHash) >= int(e.cfg.Threshold) {
				commit, err := e.aggregate(inst, partials, subset)
				if err == nil {
					e.log.Info("epidemic gossip converged",
						zap.Stringer("consensusID", inst.ConsensusID),
						zap.Int("partials", len(partials)),
					)
					return commit, nil
				}
			}
		}

		select {
		case <-ctx.Done():
			inst.State = TimedOut
			return nil, types.WrapError(types.ErrTimeout, ctx.Err(), "epidemic gossip")
		case <-time.After(gossipRoundInterval):
		}
	}
}

func findWitness(from []WitnessClient, index uint16) WitnessClient {
	for _, w := range from {
		if w.Index() == index {
			return w
		}
	}
	return nil
}
