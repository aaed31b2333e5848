// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"sort"
	"sync"

	"github.com/hxrts/aura/frost"
	"github.com/hxrts/aura/types"
)

// Tracker enforces the per-instance ordering guarantees: a partial
// signature from signer S is not accepted until S's nonce commitment is
// registered, nonce and signature thresholds are tracked independently,
// and a signer contributing two different operation hashes in-epoch is
// an equivocator.
type Tracker struct {
	mu sync.Mutex

	nonces   map[uint16]frost.NonceCommitment
	partials map[uint16]frost.PartialSignature
	opHashes map[uint16]types.Hash32

	equivocators map[uint16]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		nonces:       make(map[uint16]frost.NonceCommitment),
		partials:     make(map[uint16]frost.PartialSignature),
		opHashes:     make(map[uint16]types.Hash32),
		equivocators: make(map[uint16]struct{}),
	}
}

// AddNonce registers a signer's nonce commitment.
func (t *Tracker) AddNonce(c frost.NonceCommitment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nonces[c.Signer] = c
}

// AddPartial registers a partial signature bound to an operation hash.
// It fails if the signer's nonce is unregistered, and flags the signer
// if it has already signed a different operation hash.
func (t *Tracker) AddPartial(p frost.PartialSignature, opHash types.Hash32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nonces[p.Signer]; !ok {
		return types.NewError(types.ErrProtocolViolation,
			"partial from signer %d before its nonce commitment", p.Signer)
	}
	if prev, ok := t.opHashes[p.Signer]; ok && prev != opHash {
		t.equivocators[p.Signer] = struct{}{}
		delete(t.partials, p.Signer)
		return types.NewError(types.ErrByzantine,
			"signer %d equivocated: %s vs %s", p.Signer, prev, opHash)
	}
	t.opHashes[p.Signer] = opHash
	t.partials[p.Signer] = p
	return nil
}

// HasNonceThreshold reports >= k registered nonces.
func (t *Tracker) HasNonceThreshold(k int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nonces) >= k
}

// HasSignatureThreshold reports >= k registered partials.
func (t *Tracker) HasSignatureThreshold(k int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.partials) >= k
}

// Equivocators returns the flagged signers in ascending order.
func (t *Tracker) Equivocators() []uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint16, 0, len(t.equivocators))
	for s := range t.equivocators {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Collect returns the partials and the matching commitments for
// signers that produced both, excluding equivocators.
func (t *Tracker) Collect() ([]frost.PartialSignature, []frost.NonceCommitment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	signers := make([]uint16, 0, len(t.partials))
	for s := range t.partials {
		if _, bad := t.equivocators[s]; !bad {
			signers = append(signers, s)
		}
	}
	sort.Slice(signers, func(i, j int) bool { return signers[i] < signers[j] })

	partials := make([]frost.PartialSignature, 0, len(signers))
	commitments := make([]frost.NonceCommitment, 0, len(signers))
	for _, s := range signers {
		partials = append(partials, t.partials[s])
		commitments = append(commitments, t.nonces[s])
	}
	return partials, commitments
}
