// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"github.com/hxrts/aura/types"
)

// InstanceState is the per-instance state machine.
type InstanceState uint8

const (
	// Initiated: the instance exists but no round has run.
	Initiated InstanceState = iota
	// CollectingNonces: slow-path round 1 in flight.
	CollectingNonces
	// CollectingSignatures: signature round in flight.
	CollectingSignatures
	// Completed: a CommitFact was produced and verified.
	Completed
	// EpidemicGossip: coordinator-led rounds exhausted; gossiping.
	EpidemicGossip
	// Conflicted: equivocation detected during aggregation.
	Conflicted
	// TimedOut: the deadline passed without threshold.
	TimedOut
)

func (s InstanceState) String() string {
	switch s {
	case Initiated:
		return "initiated"
	case CollectingNonces:
		return "collecting_nonces"
	case CollectingSignatures:
		return "collecting_signatures"
	case Completed:
		return "completed"
	case EpidemicGossip:
		return "epidemic_gossip"
	case Conflicted:
		return "conflicted"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Instance tracks one consensus run.
type Instance struct {
	ConsensusID    types.Hash32
	PrestateHash   types.Hash32
	OperationHash  types.Hash32
	OperationBytes []byte
	Epoch          types.Epoch
	State          InstanceState
	StartedMS      uint64
	Tracker        *Tracker
}

func newInstance(consensusID, prestate, opHash types.Hash32, opBytes []byte, epoch types.Epoch, nowMS uint64) *Instance {
	return &Instance{
		ConsensusID:    consensusID,
		PrestateHash:   prestate,
		OperationHash:  opHash,
		OperationBytes: opBytes,
		Epoch:          epoch,
		State:          Initiated,
		StartedMS:      nowMS,
		Tracker:        NewTracker(),
	}
}
