// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package choreo

import (
	"bytes"
	"context"
	"time"

	"github.com/hxrts/aura/codec"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// ConsistencyResult reports a commit-reveal agreement round.
type ConsistencyResult struct {
	Agreed      bool
	Value       []byte
	AgreeCount  int
	RevealCount int
	Byzantine   []ids.DeviceID
}

func commitDigest(result, nonce []byte) types.Hash32 {
	p := codec.NewPacker(len(result) + len(nonce) + 8)
	p.PackBytes(result)
	p.PackBytes(nonce)
	return codec.HashCanonical(p)
}

type reveal struct {
	Result []byte
	Nonce  []byte
}

func (r *reveal) marshal() []byte {
	p := codec.NewPacker(len(r.Result) + len(r.Nonce) + 8)
	p.PackBytes(r.Result)
	p.PackBytes(r.Nonce)
	return p.Bytes
}

func unmarshalReveal(b []byte) (*reveal, error) {
	u := codec.NewUnpacker(b)
	r := &reveal{Result: u.UnpackBytes(), Nonce: u.UnpackBytes()}
	if !u.Done() {
		return nil, types.NewError(types.ErrProtocolViolation, "malformed reveal")
	}
	return r, nil
}

// VerifyConsistentResult confirms that >= threshold participants
// computed the same result without any participant learning another's
// result before committing its own. Phase 1 commits H(result ‖ nonce);
// phase 2 reveals (result, nonce). Byzantine participants are exactly
// those whose reveal disagrees with their commit.
func (s *Session) VerifyConsistentResult(
	ctx context.Context,
	result []byte,
	threshold int,
	timeout time.Duration,
) (*ConsistencyResult, error) {
	var nonce [32]byte
	s.Effects.Rand.Fill(nonce[:])
	myCommit := commitDigest(result, nonce[:])

	// Phase 1: exchange commitments.
	commitRound, err := s.BroadcastAndGatherTyped(ctx, MsgCommitment, myCommit[:], timeout)
	if err != nil {
		return nil, err
	}

	// Phase 2: exchange reveals.
	myReveal := (&reveal{Result: result, Nonce: nonce[:]}).marshal()
	revealRound, err := s.BroadcastAndGatherTyped(ctx, MsgReveal, myReveal, timeout)
	if err != nil {
		return nil, err
	}

	out := &ConsistencyResult{Value: result}
	agreement := make(map[types.Hash32]int)
	myHash := types.HashBytes(result)

	for index, payload := range revealRound.Messages {
		role := revealRound.Roles[index]
		rev, err := unmarshalReveal(payload)
		if err != nil {
			out.Byzantine = append(out.Byzantine, role.Device)
			continue
		}
		committed, ok := commitRound.Messages[index]
		if !ok || len(committed) != 32 {
			out.Byzantine = append(out.Byzantine, role.Device)
			continue
		}
		expect := commitDigest(rev.Result, rev.Nonce)
		if !bytes.Equal(committed, expect[:]) {
			out.Byzantine = append(out.Byzantine, role.Device)
			continue
		}
		out.RevealCount++
		agreement[types.HashBytes(rev.Result)]++
	}
	ids.SortDeviceIDs(out.Byzantine)

	out.AgreeCount = agreement[myHash]
	out.Agreed = out.AgreeCount >= threshold
	return out, nil
}

// BroadcastAndGatherTyped is BroadcastAndGather with an explicit
// message type, used by multi-phase primitives that exchange several
// rounds inside one session.
func (s *Session) BroadcastAndGatherTyped(
	ctx context.Context,
	t MsgType,
	payload []byte,
	timeout time.Duration,
) (*GatherResult, error) {
	if err := s.broadcast(ctx, t, payload); err != nil {
		return nil, err
	}
	result := &GatherResult{
		Messages: map[uint16][]byte{s.Self.Index: payload},
		Roles:    map[uint16]ids.Role{s.Self.Index: s.Self},
	}
	for device, env := range s.collect(ctx, t, timeout) {
		role, ok := s.roleFor(device)
		if !ok {
			continue
		}
		result.Messages[role.Index] = env.Payload
		result.Roles[role.Index] = role
	}
	return result, nil
}
