// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"context"
	"sync"

	"github.com/hxrts/aura/effects"
	"github.com/hxrts/aura/frost"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// SignRequest asks a witness for its partial signature.
type SignRequest struct {
	ConsensusID    types.Hash32
	Epoch          types.Epoch
	OperationHash  types.Hash32
	OperationBytes []byte
	Commitments    []frost.NonceCommitment
	// UseCached signs with the pre-staged nonce taken from the witness
	// set (fast path); otherwise the witness uses the per-instance
	// token retained in round 1 (slow path).
	UseCached bool
	// Pipeline asks the witness to also stage a fresh nonce for the
	// next round at the same epoch.
	Pipeline bool
}

// SignResponse is a witness's signing answer.
type SignResponse struct {
	Partial frost.PartialSignature
	// OperationHash echoes what the witness believes it signed; a
	// mismatch against the request is equivocation evidence.
	OperationHash types.Hash32
}

// WitnessClient is the engine's handle on one witness. The simulator
// wraps it to inject partitions and Byzantine behavior.
type WitnessClient interface {
	Index() uint16
	Device() ids.DeviceID
	// CommitNonce generates a fresh nonce for an instance (slow path
	// round 1), retaining the token locally.
	CommitNonce(ctx context.Context, consensusID types.Hash32, epoch types.Epoch) (frost.NonceCommitment, error)
	// Sign produces the partial signature for the request.
	Sign(ctx context.Context, req SignRequest) (*SignResponse, error)
}

// LocalWitness is the in-process witness runner. It holds one FROST
// share, shares the witness-set cache by id, and keeps per-instance
// tokens for slow-path rounds.
type LocalWitness struct {
	mu sync.Mutex

	index    uint16
	device   ids.DeviceID
	share    *frost.Share
	rand     effects.Random
	cache    *WitnessSet
	retained map[types.Hash32]*frost.NonceToken
}

// NewLocalWitness builds a runner around a share.
func NewLocalWitness(device ids.DeviceID, share *frost.Share, rand effects.Random, cache *WitnessSet) *LocalWitness {
	return &LocalWitness{
		index:    share.Identifier,
		device:   device,
		share:    share,
		rand:     rand,
		cache:    cache,
		retained: make(map[types.Hash32]*frost.NonceToken),
	}
}

func (w *LocalWitness) Index() uint16        { return w.index }
func (w *LocalWitness) Device() ids.DeviceID { return w.device }

// Share exposes the witness share for recovery tooling.
func (w *LocalWitness) Share() *frost.Share { return w.share }

// StageNonce pre-stages a cached nonce for the fast path at the given
// epoch.
func (w *LocalWitness) StageNonce(epoch types.Epoch) error {
	commitment, token, err := frost.GenerateNonce(w.share, w.rand)
	if err != nil {
		return types.WrapError(types.ErrCrypto, err, "stage nonce")
	}
	if !w.cache.Enqueue(epoch, commitment, token) {
		return types.NewError(types.ErrProtocolViolation, "stale epoch %d", epoch)
	}
	return nil
}

func (w *LocalWitness) CommitNonce(_ context.Context, consensusID types.Hash32, _ types.Epoch) (frost.NonceCommitment, error) {
	commitment, token, err := frost.GenerateNonce(w.share, w.rand)
	if err != nil {
		return frost.NonceCommitment{}, types.WrapError(types.ErrCrypto, err, "commit nonce")
	}
	w.mu.Lock()
	if prev, ok := w.retained[consensusID]; ok {
		prev.Discard()
	}
	w.retained[consensusID] = token
	w.mu.Unlock()
	return commitment, nil
}

func (w *LocalWitness) Sign(_ context.Context, req SignRequest) (*SignResponse, error) {
	var token *frost.NonceToken
	if req.UseCached {
		_, cached, ok := w.cache.Take(req.Epoch, w.index)
		if !ok {
			return nil, types.NewError(types.ErrProtocolViolation,
				"no cached nonce for signer %d at epoch %d", w.index, req.Epoch)
		}
		token = cached
	} else {
		w.mu.Lock()
		retained, ok := w.retained[req.ConsensusID]
		delete(w.retained, req.ConsensusID)
		w.mu.Unlock()
		if !ok {
			return nil, types.NewError(types.ErrProtocolViolation,
				"no retained nonce for instance %s", req.ConsensusID)
		}
		token = retained
	}

	partial, err := frost.SignWithNonce(req.OperationBytes, w.share, token, req.Commitments)
	if err != nil {
		return nil, types.WrapError(types.ErrCrypto, err, "sign")
	}

	if req.Pipeline {
		// Stage the next round's nonce; failure to stage never fails
		// the signature that was already produced.
		_ = w.StageNonce(req.Epoch)
	}
	return &SignResponse{Partial: partial, OperationHash: req.OperationHash}, nil
}

// DropInstance discards a retained token after an aborted round.
func (w *LocalWitness) DropInstance(consensusID types.Hash32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if token, ok := w.retained[consensusID]; ok {
		token.Discard()
		delete(w.retained, consensusID)
	}
}

var _ WitnessClient = (*LocalWitness)(nil)
