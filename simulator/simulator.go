// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package simulator

import (
	"context"

	"github.com/luxfi/log"

	"github.com/hxrts/aura/consensus"
	"github.com/hxrts/aura/effects/effectstest"
	"github.com/hxrts/aura/frost"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/journal"
	"github.com/hxrts/aura/types"
)

// Options configures a simulation.
type Options struct {
	Witnesses  uint16
	Threshold  uint16
	Seed       uint64
	DropRate   uint64 // parts per 65536
	Modes      map[uint16]ByzantineMode
	TimeoutMS  uint64
	Pipelining bool
	Gossip     bool
}

// Simulator drives one engine over faulty witnesses and checks
// invariants after every step.
type Simulator struct {
	Engine    *consensus.Engine
	Witnesses []*consensus.LocalWitness
	Cache     *consensus.WitnessSet
	Partition *Partition
	Journal   *journal.Journal
	GroupPK   [32]byte
	Clock     *effectstest.Clock
	Rand      *effectstest.Rand
	Trace     *TraceRecorder

	invariants *InvariantChecker
}

// New builds a deterministic simulation from options.
func New(opts Options) (*Simulator, error) {
	rand := effectstest.NewRand(opts.Seed)
	clock := effectstest.NewClock(1_000_000)
	lcg := NewLCG(opts.Seed)

	shares, pkg, err := frost.GenerateWithDealer(rand, opts.Threshold, opts.Witnesses)
	if err != nil {
		return nil, err
	}

	cache := consensus.NewWitnessSet(1)
	partition := NewPartition()
	const coordinatorIndex = 1

	locals := make([]*consensus.LocalWitness, 0, opts.Witnesses)
	clients := make([]consensus.WitnessClient, 0, opts.Witnesses)
	for id := uint16(1); id <= opts.Witnesses; id++ {
		local := consensus.NewLocalWitness(ids.NewDeviceID(), shares[id], rand, cache)
		locals = append(locals, local)
		mode := Honest
		if m, ok := opts.Modes[id]; ok {
			mode = m
		}
		clients = append(clients, NewFaultyWitness(local, mode, partition, coordinatorIndex, lcg, opts.DropRate))
	}

	cfg := consensus.DefaultConfig(opts.Threshold)
	cfg.PipeliningEnabled = opts.Pipelining
	cfg.GossipEnabled = opts.Gossip
	if opts.TimeoutMS > 0 {
		cfg.TimeoutMS = opts.TimeoutMS
	}

	engine := consensus.NewEngine(cfg, pkg.GroupPK, clients, cache, clock, rand, log.NewNoOpLogger(), nil)
	jrnl := journal.New(ids.NewAuthorityID(), log.NewNoOpLogger(), nil)

	return &Simulator{
		Engine:     engine,
		Witnesses:  locals,
		Cache:      cache,
		Partition:  partition,
		Journal:    jrnl,
		GroupPK:    pkg.GroupPK,
		Clock:      clock,
		Rand:       rand,
		Trace:      NewTraceRecorder(),
		invariants: NewInvariantChecker(opts.Threshold),
	}, nil
}

// Step runs one consensus request and applies the invariant checker.
func (s *Simulator) Step(ctx context.Context, operation []byte) (*consensus.Response, error) {
	req := consensus.Request{
		PrestateHash:   s.Journal.HeadHash(),
		OperationHash:  types.HashBytes(operation),
		OperationBytes: operation,
	}
	resp := s.Engine.Execute(ctx, req)
	s.Trace.Record(Event{
		Kind:        "consensus",
		ConsensusID: resp.ConsensusID,
		FastPath:    resp.FastPath,
		Err:         resp.Err,
	})
	if resp.Commit != nil {
		if err := s.Journal.AcceptCommit(resp.Commit); err != nil {
			return resp, err
		}
		// Record the committed operation as a fact so the journal head
		// advances and the next step binds a fresh prestate.
		var factID ids.ID
		copy(factID[:], resp.Commit.ConsensusID[:16])
		s.Journal.Append(&journal.Fact{
			ID:           factID,
			Kind:         journal.FactCommitRecord,
			Value:        resp.Commit.CanonicalBytes(),
			Timestamp:    types.ProvenancedTime{Stamp: types.Physical(s.Clock.NowMS())},
			AuthorDevice: s.Witnesses[0].Device(),
			Epoch:        s.Engine.Epoch(),
		})
	}
	if err := s.invariants.Check(s.Journal, resp); err != nil {
		return resp, err
	}
	return resp, resp.Err
}
