// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package simulator

import (
	"github.com/hxrts/aura/consensus"
	"github.com/hxrts/aura/frost"
	"github.com/hxrts/aura/journal"
	"github.com/hxrts/aura/types"
)

// InvariantChecker validates the safety conditions after every step:
// a commit carries at least threshold signers, verifies under the group
// key, and committed devices agree on the operation per prestate.
type InvariantChecker struct {
	threshold uint16
}

// NewInvariantChecker builds a checker for one threshold.
func NewInvariantChecker(threshold uint16) *InvariantChecker {
	return &InvariantChecker{threshold: threshold}
}

// Check validates a step outcome against the journal.
func (c *InvariantChecker) Check(jrnl *journal.Journal, resp *consensus.Response) error {
	if resp.Commit != nil {
		if len(resp.Commit.Sig.Signers) < int(c.threshold) {
			return types.NewError(types.ErrInternal,
				"invariant: commit with %d signers below threshold %d",
				len(resp.Commit.Sig.Signers), c.threshold)
		}
		if !frost.Verify(&resp.Commit.Sig, resp.Commit.OperationBytes, resp.Commit.GroupPK) {
			return types.NewError(types.ErrInternal, "invariant: commit signature does not verify")
		}
	}

	// Per prestate, the journal accepted exactly one operation hash.
	seen := make(map[types.Hash32]types.Hash32)
	for _, cf := range jrnl.Commits() {
		if prev, ok := seen[cf.PrestateHash]; ok && prev != cf.OperationHash {
			return types.NewError(types.ErrInternal,
				"invariant: two operations accepted on prestate %s", cf.PrestateHash)
		}
		seen[cf.PrestateHash] = cf.OperationHash
	}
	return nil
}

// CheckAgreement verifies that every journal that accepted a commit for
// a consensus id agrees on its operation hash.
func CheckAgreement(journals []*journal.Journal) error {
	agreed := make(map[types.Hash32]types.Hash32)
	for _, j := range journals {
		for _, cf := range j.Commits() {
			if prev, ok := agreed[cf.ConsensusID]; ok && prev != cf.OperationHash {
				return types.NewError(types.ErrInternal,
					"agreement violated for consensus id %s", cf.ConsensusID)
			}
			agreed[cf.ConsensusID] = cf.OperationHash
		}
	}
	return nil
}
