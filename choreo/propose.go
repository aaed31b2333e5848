// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package choreo

import (
	"context"
	"time"

	"github.com/hxrts/aura/codec"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// ProposeConfig tunes Propose-and-Acknowledge.
type ProposeConfig struct {
	AckTimeout          time.Duration
	RequireExplicitAcks bool
	MaxProposalSize     int
	DetectDupes         bool
}

// DefaultProposeConfig is absence-as-acknowledgment with a 30s window.
func DefaultProposeConfig() ProposeConfig {
	return ProposeConfig{
		AckTimeout:      DefaultPhaseTimeout,
		MaxProposalSize: 1 << 20,
		DetectDupes:     true,
	}
}

// Proposal is the broadcast body of a Propose-and-Acknowledge round.
type Proposal struct {
	Proposer ids.Role
	Payload  []byte
	Seq      uint64
	Epoch    types.Epoch
	Hash     types.Hash32
}

func (p *Proposal) marshal() []byte {
	pk := codec.NewPacker(64 + len(p.Payload))
	pk.PackFixed(p.Proposer.Device.Bytes())
	pk.PackU16(p.Proposer.Index)
	pk.PackBytes(p.Payload)
	pk.PackU64(p.Seq)
	pk.PackU64(uint64(p.Epoch))
	pk.PackFixed(p.Hash[:])
	return pk.Bytes
}

func unmarshalProposal(b []byte) (*Proposal, error) {
	u := codec.NewUnpacker(b)
	p := &Proposal{}
	device := u.UnpackFixed(16)
	p.Proposer.Index = u.UnpackU16()
	p.Payload = u.UnpackBytes()
	p.Seq = u.UnpackU64()
	p.Epoch = types.Epoch(u.UnpackU64())
	copy(p.Hash[:], u.UnpackFixed(32))
	if !u.Done() {
		return nil, types.NewError(types.ErrProtocolViolation, "malformed proposal")
	}
	id, err := ids.FromBytes(device)
	if err != nil {
		return nil, types.NewError(types.ErrProtocolViolation, "malformed proposer id")
	}
	p.Proposer.Device = ids.DeviceID(id)
	return p, nil
}

// ProposeResult is the initiator's view of the round.
type ProposeResult struct {
	Proposal        Proposal
	Acknowledged    []ids.DeviceID
	Count           int
	AllAcknowledged bool
	DurationMS      uint64
	Success         bool
}

// Propose validates the payload locally, broadcasts it to every other
// participant, and collects acknowledgments. With explicit acks off
// (the default) absence counts as acknowledgment.
func (s *Session) Propose(ctx context.Context, payload []byte, validate func([]byte) error, cfg ProposeConfig) (*ProposeResult, error) {
	start := s.Effects.Clock.NowMS()
	if len(payload) > cfg.MaxProposalSize {
		return nil, types.NewError(types.ErrProtocolViolation,
			"proposal size %d exceeds cap %d", len(payload), cfg.MaxProposalSize)
	}
	if validate != nil {
		if err := validate(payload); err != nil {
			return nil, types.WrapError(types.ErrProtocolViolation, err, "local validation")
		}
	}

	proposal := Proposal{
		Proposer: s.Self,
		Payload:  payload,
		Seq:      s.seq + 1,
		Epoch:    s.Epoch,
		Hash:     types.HashBytes(payload),
	}
	if err := s.broadcast(ctx, MsgProposal, proposal.marshal()); err != nil {
		return nil, err
	}

	result := &ProposeResult{Proposal: proposal}
	if cfg.RequireExplicitAcks {
		acks := s.collect(ctx, MsgAck, cfg.AckTimeout)
		for device := range acks {
			result.Acknowledged = append(result.Acknowledged, device)
		}
		ids.SortDeviceIDs(result.Acknowledged)
	} else {
		// Implicit acknowledgment: every peer that was not flagged
		// counts as acknowledged.
		for _, p := range s.Peers() {
			if s.byzantine[p.Device] == 0 {
				result.Acknowledged = append(result.Acknowledged, p.Device)
			}
		}
	}
	result.Count = len(result.Acknowledged)
	result.AllAcknowledged = result.Count == len(s.Peers())
	result.Success = result.AllAcknowledged || !cfg.RequireExplicitAcks
	result.DurationMS = s.Effects.Clock.NowMS() - start
	return result, nil
}

// AwaitProposal is the participant side: receive, verify epoch and
// proposer identity, run the injected validator, and acknowledge.
func (s *Session) AwaitProposal(ctx context.Context, validate func([]byte) error, cfg ProposeConfig) (*Proposal, error) {
	deadline, cancel := context.WithTimeout(ctx, cfg.AckTimeout)
	defer cancel()

	var seen *types.Hash32
	for {
		in, err := s.Effects.Net.Receive(deadline)
		if err != nil {
			return nil, types.WrapError(types.ErrTimeout, err, "awaiting proposal")
		}
		env, err := UnmarshalEnvelope(in.Bytes)
		if err != nil {
			s.markByzantine(in.From, VerifyHashMismatch)
			continue
		}
		if v := env.verifyMeta(s.Epoch, s.OperationID, in.From); v != VerifyOK {
			s.markByzantine(in.From, v)
			continue
		}
		if env.Type != MsgProposal {
			s.stash[env.Type] = append(s.stash[env.Type], env)
			continue
		}
		proposal, err := unmarshalProposal(env.Payload)
		if err != nil || proposal.Proposer.Device != env.Role.Device {
			s.markByzantine(in.From, VerifySenderMismatch)
			continue
		}
		if proposal.Epoch != s.Epoch || proposal.Hash != types.HashBytes(proposal.Payload) {
			s.markByzantine(in.From, VerifyHashMismatch)
			continue
		}
		if cfg.DetectDupes && seen != nil && *seen == proposal.Hash {
			s.markByzantine(in.From, VerifyWrongType)
			continue
		}
		if validate != nil {
			if err := validate(proposal.Payload); err != nil {
				return nil, types.WrapError(types.ErrProtocolViolation, err, "proposal rejected")
			}
		}
		h := proposal.Hash
		seen = &h
		if cfg.RequireExplicitAcks {
			if err := s.send(ctx, proposal.Proposer.Device, MsgAck, proposal.Hash[:]); err != nil {
				return nil, err
			}
		}
		return proposal, nil
	}
}
