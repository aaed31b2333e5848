// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package choreo

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hxrts/aura/effects"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// DefaultPhaseTimeout bounds each choreography phase.
const DefaultPhaseTimeout = 30 * time.Second

// Session is one participant's handle on a running choreography: its
// role, the participant roster, the epoch and operation binding, and
// the effects bundle it drives I/O through.
type Session struct {
	Self         ids.Role
	Participants []ids.Role
	Epoch        types.Epoch
	OperationID  types.Hash32
	Effects      *effects.Bundle

	seq       uint64
	byzantine map[ids.DeviceID]uint64
	skipped   uint64
	stash     map[MsgType][]*Envelope
}

// NewSession builds a session handle. Participants are ordered by role
// index; the roster must include self.
func NewSession(self ids.Role, participants []ids.Role, epoch types.Epoch, opID types.Hash32, bundle *effects.Bundle) *Session {
	sorted := make([]ids.Role, len(participants))
	copy(sorted, participants)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	return &Session{
		Self:         self,
		Participants: sorted,
		Epoch:        epoch,
		OperationID:  opID,
		Effects:      bundle,
		byzantine:    make(map[ids.DeviceID]uint64),
		stash:        make(map[MsgType][]*Envelope),
	}
}

// Peers returns every participant but self.
func (s *Session) Peers() []ids.Role {
	peers := make([]ids.Role, 0, len(s.Participants)-1)
	for _, p := range s.Participants {
		if p.Device != s.Self.Device {
			peers = append(peers, p)
		}
	}
	return peers
}

// roleFor maps a device to its roster role.
func (s *Session) roleFor(device ids.DeviceID) (ids.Role, bool) {
	for _, p := range s.Participants {
		if p.Device == device {
			return p, true
		}
	}
	return ids.Role{}, false
}

// markByzantine counts a verification failure against a peer without
// aborting the round.
func (s *Session) markByzantine(device ids.DeviceID, reason VerifyError) {
	s.byzantine[device]++
	s.skipped++
	s.Effects.Log.Debug("skipped inbound choreography message",
		zap.Stringer("peer", ids.ID(device)),
		zap.Uint8("reason", uint8(reason)),
	)
}

// ByzantineCounts returns the per-peer skip counters.
func (s *Session) ByzantineCounts() map[ids.DeviceID]uint64 {
	out := make(map[ids.DeviceID]uint64, len(s.byzantine))
	for k, v := range s.byzantine {
		out[k] = v
	}
	return out
}

// send frames and sends a payload to one peer.
func (s *Session) send(ctx context.Context, to ids.DeviceID, t MsgType, payload []byte) error {
	s.seq++
	env := NewEnvelope(t, s.Self, s.seq, s.Epoch, s.OperationID, payload)
	if err := s.Effects.Net.SendToPeer(ctx, to, env.Marshal()); err != nil {
		return types.WrapError(types.ErrNetwork, err, "send to %s", to)
	}
	return nil
}

// broadcast frames and sends a payload to every peer in the roster.
func (s *Session) broadcast(ctx context.Context, t MsgType, payload []byte) error {
	for _, p := range s.Peers() {
		if err := s.send(ctx, p.Device, t, payload); err != nil {
			return err
		}
	}
	return nil
}

// SendTo frames and sends a payload to a single participant, for
// pairwise rounds (for example DKG share revelation).
func (s *Session) SendTo(ctx context.Context, to ids.DeviceID, t MsgType, payload []byte) error {
	return s.send(ctx, to, t, payload)
}

// Collect gathers one verified envelope of the given type from every
// peer, keyed by role index, returning on timeout with what arrived.
func (s *Session) Collect(ctx context.Context, t MsgType, timeout time.Duration) map[uint16][]byte {
	out := make(map[uint16][]byte)
	for device, env := range s.collect(ctx, t, timeout) {
		if role, ok := s.roleFor(device); ok {
			out[role.Index] = env.Payload
		}
	}
	return out
}

// collect gathers verified envelopes of one type from distinct peers
// until every peer answered or the timeout expires. Envelopes for other
// phases are stashed for their own collect; envelopes failing
// verification are skipped and counted, never aborting the phase.
func (s *Session) collect(ctx context.Context, want MsgType, timeout time.Duration) map[ids.DeviceID]*Envelope {
	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	expected := len(s.Peers())
	got := make(map[ids.DeviceID]*Envelope, expected)

	var leftover []*Envelope
	for _, env := range s.stash[want] {
		if _, dup := got[env.Role.Device]; dup {
			leftover = append(leftover, env)
			continue
		}
		got[env.Role.Device] = env
	}
	if leftover == nil {
		delete(s.stash, want)
	} else {
		s.stash[want] = leftover
	}

	for len(got) < expected {
		in, err := s.Effects.Net.Receive(deadline)
		if err != nil {
			break
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
		if _, ok := s.roleFor(env.Role.Device); !ok {
			s.markByzantine(in.From, VerifySenderMismatch)
			continue
		}
		if env.Type != want {
			s.stash[env.Type] = append(s.stash[env.Type], env)
			continue
		}
		if _, dup := got[env.Role.Device]; dup {
			// Likely next-round traffic of the same type from a fast
			// peer; keep it for the next collect of this type.
			s.stash[env.Type] = append(s.stash[env.Type], env)
			continue
		}
		got[env.Role.Device] = env
	}
	return got
}
