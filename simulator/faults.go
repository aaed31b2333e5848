// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package simulator is the deterministic harness over the consensus and
// choreography components: partitioned and lossy networks, Byzantine
// witnesses, an invariant checker, and a passive trace recorder.
package simulator

import (
	"context"
	"sync"

	"github.com/hxrts/aura/consensus"
	"github.com/hxrts/aura/frost"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// LCG is the linear-congruential generator used for loss decisions.
// Drop rates are expressed in parts per 65536.
type LCG struct {
	mu    sync.Mutex
	state uint64
}

// NewLCG seeds the generator.
func NewLCG(seed uint64) *LCG {
	return &LCG{state: seed}
}

// Next returns the next raw value.
func (l *LCG) Next() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = l.state*6364136223846793005 + 1442695040888963407
	return l.state
}

// Drop decides a loss event at the given rate in parts per 65536.
func (l *LCG) Drop(ratePer65536 uint64) bool {
	return l.Next()>>48 < ratePer65536
}

// ByzantineMode enumerates injected witness faults.
type ByzantineMode uint8

const (
	Honest ByzantineMode = iota
	Equivocate
	InvalidSignature
	WithholdCommit
	WrongPrestate
)

// Partition groups witnesses; only witnesses sharing a group with the
// coordinator are reachable.
type Partition struct {
	mu     sync.Mutex
	groups map[uint16]int
}

// NewPartition starts fully connected (every witness in group 0).
func NewPartition() *Partition {
	return &Partition{groups: make(map[uint16]int)}
}

// Split assigns witnesses to a partition group.
func (p *Partition) Split(group int, witnesses ...uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range witnesses {
		p.groups[w] = group
	}
}

// Heal reconnects everything.
func (p *Partition) Heal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.groups = make(map[uint16]int)
}

// Reachable reports whether two witnesses share a partition group.
func (p *Partition) Reachable(a, b uint16) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.groups[a] == p.groups[b]
}

// FaultyWitness wraps a witness client with partition and Byzantine
// behavior. The coordinator observes faults exactly as a remote peer
// would: errors for unreachable peers, corrupt answers for Byzantine
// ones.
type FaultyWitness struct {
	inner       consensus.WitnessClient
	mode        ByzantineMode
	partition   *Partition
	coordinator uint16
	lcg         *LCG
	dropRate    uint64
}

// NewFaultyWitness wraps inner with fault injection relative to the
// coordinator's partition position.
func NewFaultyWitness(
	inner consensus.WitnessClient,
	mode ByzantineMode,
	partition *Partition,
	coordinator uint16,
	lcg *LCG,
	dropRate uint64,
) *FaultyWitness {
	return &FaultyWitness{
		inner:       inner,
		mode:        mode,
		partition:   partition,
		coordinator: coordinator,
		lcg:         lcg,
		dropRate:    dropRate,
	}
}

func (f *FaultyWitness) Index() uint16        { return f.inner.Index() }
func (f *FaultyWitness) Device() ids.DeviceID { return f.inner.Device() }

func (f *FaultyWitness) reachable() error {
	if f.partition != nil && !f.partition.Reachable(f.coordinator, f.inner.Index()) {
		return types.NewError(types.ErrNetwork, "witness %d unreachable across partition", f.inner.Index())
	}
	if f.lcg != nil && f.dropRate > 0 && f.lcg.Drop(f.dropRate) {
		return types.NewError(types.ErrNetwork, "message to witness %d lost", f.inner.Index())
	}
	return nil
}

func (f *FaultyWitness) CommitNonce(ctx context.Context, consensusID types.Hash32, epoch types.Epoch) (frost.NonceCommitment, error) {
	if err := f.reachable(); err != nil {
		return frost.NonceCommitment{}, err
	}
	if f.mode == WithholdCommit {
		return frost.NonceCommitment{}, types.NewError(types.ErrTimeout, "witness %d withheld its commitment", f.inner.Index())
	}
	return f.inner.CommitNonce(ctx, consensusID, epoch)
}

func (f *FaultyWitness) Sign(ctx context.Context, req consensus.SignRequest) (*consensus.SignResponse, error) {
	if err := f.reachable(); err != nil {
		return nil, err
	}
	switch f.mode {
	case Equivocate:
		// Sign honestly but claim a different operation was signed, the
		// observable shape of sending different hashes to different
		// peers.
		resp, err := f.inner.Sign(ctx, req)
		if err != nil {
			return nil, err
		}
		resp.OperationHash = types.HashConcat(req.OperationHash[:], []byte("equivocation"))
		return resp, nil
	case InvalidSignature:
		resp, err := f.inner.Sign(ctx, req)
		if err != nil {
			return nil, err
		}
		resp.Partial.Z[0] ^= 0xFF
		return resp, nil
	case WrongPrestate:
		alteredReq := req
		altered := types.HashConcat(req.OperationBytes, []byte("wrong-prestate"))
		alteredReq.OperationBytes = altered[:]
		return f.inner.Sign(ctx, alteredReq)
	default:
		return f.inner.Sign(ctx, req)
	}
}

var _ consensus.WitnessClient = (*FaultyWitness)(nil)
