// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package journal

import (
	"github.com/hxrts/aura/codec"
	"github.com/hxrts/aura/frost"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// CommitFact is the atomic, signed record that an operation was
// consented to by a threshold of witnesses.
type CommitFact struct {
	ConsensusID    types.Hash32
	PrestateHash   types.Hash32
	OperationHash  types.Hash32
	OperationBytes []byte
	Sig            frost.ThresholdSignature
	GroupPK        [32]byte
	Participants   []ids.DeviceID
	Threshold      uint16
	FastPath       bool
	Timestamp      types.TimeStamp
}

// Verify re-checks the threshold signature and signer count from
// scratch against the group public key.
func (cf *CommitFact) Verify() error {
	if len(cf.Sig.Signers) < int(cf.Threshold) {
		return types.NewError(types.ErrCrypto, "commit has %d signers, threshold %d",
			len(cf.Sig.Signers), cf.Threshold)
	}
	if cf.OperationHash != types.HashBytes(cf.OperationBytes) {
		return types.NewError(types.ErrCrypto, "operation hash does not bind operation bytes")
	}
	if !frost.Verify(&cf.Sig, cf.OperationBytes, cf.GroupPK) {
		return types.NewError(types.ErrCrypto, "threshold signature verify failed")
	}
	return nil
}

// CanonicalBytes encodes the commit for hashing and persistence,
// signature excluded from the hashable prefix per the wire rules.
func (cf *CommitFact) CanonicalBytes() []byte {
	p := codec.NewPacker(256 + len(cf.OperationBytes))
	p.PackFixed(cf.ConsensusID[:])
	p.PackFixed(cf.PrestateHash[:])
	p.PackFixed(cf.OperationHash[:])
	p.PackBytes(cf.OperationBytes)
	p.PackFixed(cf.GroupPK[:])
	p.PackU16(cf.Threshold)
	p.PackBool(cf.FastPath)
	p.PackU64(cf.Timestamp.Value())
	p.PackU32(uint32(len(cf.Participants)))
	sorted := make([]ids.DeviceID, len(cf.Participants))
	copy(sorted, cf.Participants)
	ids.SortDeviceIDs(sorted)
	for _, d := range sorted {
		p.PackFixed(d.Bytes())
	}
	return p.Bytes
}

// ConsensusIDFor derives the instance id H(prestate ‖ operation ‖ nonce).
func ConsensusIDFor(prestateHash, operationHash types.Hash32, nonce [32]byte) types.Hash32 {
	return types.HashConcat(prestateHash[:], operationHash[:], nonce[:])
}

// Equivocation records a rejected CommitFact that conflicted with an
// accepted one on the same prestate.
type Equivocation struct {
	PrestateHash types.Hash32
	AcceptedOp   types.Hash32
	RejectedOp   types.Hash32
	Commit       *CommitFact
}
