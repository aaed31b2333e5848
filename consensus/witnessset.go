// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package consensus implements the pipelined FROST consensus engine:
// a 1-RTT fast path over pre-staged nonces, a 2-RTT slow path, and an
// epidemic-gossip fallback for partitions.
package consensus

import (
	"sync"

	"github.com/hxrts/aura/frost"
	"github.com/hxrts/aura/types"
)

// cachedNonce pairs a public commitment with its secret token.
type cachedNonce struct {
	commitment frost.NonceCommitment
	token      *frost.NonceToken
}

// WitnessSet owns the epoch-keyed cache of pre-staged nonce
// commitments. All invariants are single-writer under the lock;
// consumers take entries with move semantics, so a cached nonce is
// signed with at most once.
type WitnessSet struct {
	mu     sync.Mutex
	epoch  types.Epoch
	cached map[types.Epoch]map[uint16]*cachedNonce
}

// NewWitnessSet starts at the given epoch.
func NewWitnessSet(epoch types.Epoch) *WitnessSet {
	return &WitnessSet{
		epoch:  epoch,
		cached: make(map[types.Epoch]map[uint16]*cachedNonce),
	}
}

// Epoch returns the current epoch.
func (w *WitnessSet) Epoch() types.Epoch {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.epoch
}

// Enqueue caches a commitment for its epoch. Pipelined commitments
// arriving after an epoch change are dropped.
func (w *WitnessSet) Enqueue(epoch types.Epoch, commitment frost.NonceCommitment, token *frost.NonceToken) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if epoch != w.epoch {
		token.Discard()
		return false
	}
	byEpoch, ok := w.cached[epoch]
	if !ok {
		byEpoch = make(map[uint16]*cachedNonce)
		w.cached[epoch] = byEpoch
	}
	if prev, ok := byEpoch[commitment.Signer]; ok {
		prev.token.Discard()
	}
	byEpoch[commitment.Signer] = &cachedNonce{commitment: commitment, token: token}
	return true
}

// Take removes and returns the cached entry for (epoch, signer).
func (w *WitnessSet) Take(epoch types.Epoch, signer uint16) (frost.NonceCommitment, *frost.NonceToken, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	byEpoch, ok := w.cached[epoch]
	if !ok {
		return frost.NonceCommitment{}, nil, false
	}
	entry, ok := byEpoch[signer]
	if !ok {
		return frost.NonceCommitment{}, nil, false
	}
	delete(byEpoch, signer)
	return entry.commitment, entry.token, true
}

// SnapshotCommitments returns the cached commitments at an epoch,
// without consuming them.
func (w *WitnessSet) SnapshotCommitments(epoch types.Epoch) []frost.NonceCommitment {
	w.mu.Lock()
	defer w.mu.Unlock()
	byEpoch := w.cached[epoch]
	out := make([]frost.NonceCommitment, 0, len(byEpoch))
	for _, entry := range byEpoch {
		out = append(out, entry.commitment)
	}
	return out
}

// HasFastPathQuorum reports whether >= threshold cached commitments
// exist at the epoch.
func (w *WitnessSet) HasFastPathQuorum(epoch types.Epoch, threshold int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.cached[epoch]) >= threshold
}

// AdvanceEpoch moves to a new epoch, discarding every cached artifact
// from other epochs.
func (w *WitnessSet) AdvanceEpoch(epoch types.Epoch) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.epoch = epoch
	for e, byEpoch := range w.cached {
		if e != epoch {
			for _, entry := range byEpoch {
				entry.token.Discard()
			}
			delete(w.cached, e)
		}
	}
}

// CachedSigners returns the signer identifiers with entries at epoch,
// for tests.
func (w *WitnessSet) CachedSigners(epoch types.Epoch) []uint16 {
	w.mu.Lock()
	defer w.mu.Unlock()
	byEpoch := w.cached[epoch]
	out := make([]uint16, 0, len(byEpoch))
	for signer := range byEpoch {
		out = append(out, signer)
	}
	return out
}
