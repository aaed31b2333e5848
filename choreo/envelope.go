// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package choreo implements the choreography primitives every Aura
// protocol composes: Propose-and-Acknowledge, Broadcast-and-Gather,
// Verify-Consistent-Result, and Threshold-Collect. Each primitive is a
// Session method that sends and gathers verified envelopes through the
// send and collect helpers in session.go.
package choreo

import (
	"github.com/hxrts/aura/codec"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// MsgType tags choreography messages inside the shared envelope.
type MsgType uint8

const (
	MsgProposal   MsgType = MsgType(codec.PayloadProposal)
	MsgAck        MsgType = MsgType(codec.PayloadAck)
	MsgBroadcast  MsgType = MsgType(codec.PayloadBroadcastPayload)
	MsgCommitment MsgType = MsgType(codec.PayloadCommitment)
	MsgReveal     MsgType = MsgType(codec.PayloadReveal)
	MsgResult     MsgType = MsgType(codec.PayloadResult)

	// Internal phase tags above the wire payload range, so concurrent
	// phases inside one session never consume each other's traffic.
	MsgContext  MsgType = 0x20
	MsgMaterial MsgType = 0x21
)

// Envelope is the message frame all primitives share. Receivers verify
// that (epoch, operation id) match the local session, that the claimed
// sender equals the transport-authenticated sender, and that the
// payload hash matches a locally-recomputed BLAKE3 of the payload.
type Envelope struct {
	Type        MsgType
	Role        ids.Role
	Sequence    uint64
	Epoch       types.Epoch
	OperationID types.Hash32
	PayloadHash types.Hash32
	Payload     []byte
}

// NewEnvelope frames a payload, hashing it canonically.
func NewEnvelope(t MsgType, role ids.Role, seq uint64, epoch types.Epoch, opID types.Hash32, payload []byte) *Envelope {
	return &Envelope{
		Type:        t,
		Role:        role,
		Sequence:    seq,
		Epoch:       epoch,
		OperationID: opID,
		PayloadHash: types.HashBytes(payload),
		Payload:     payload,
	}
}

// Marshal serializes the envelope.
func (e *Envelope) Marshal() []byte {
	p := codec.NewPacker(96 + len(e.Payload))
	p.PackByte(byte(e.Type))
	p.PackFixed(e.Role.Device.Bytes())
	p.PackU16(e.Role.Index)
	p.PackU64(e.Sequence)
	p.PackU64(uint64(e.Epoch))
	p.PackFixed(e.OperationID[:])
	p.PackFixed(e.PayloadHash[:])
	p.PackBytes(e.Payload)
	return p.Bytes
}

// UnmarshalEnvelope parses an envelope.
func UnmarshalEnvelope(b []byte) (*Envelope, error) {
	u := codec.NewUnpacker(b)
	e := &Envelope{}
	e.Type = MsgType(u.UnpackByte())
	device := u.UnpackFixed(16)
	e.Role.Index = u.UnpackU16()
	e.Sequence = u.UnpackU64()
	e.Epoch = types.Epoch(u.UnpackU64())
	copy(e.OperationID[:], u.UnpackFixed(32))
	copy(e.PayloadHash[:], u.UnpackFixed(32))
	e.Payload = u.UnpackBytes()
	if !u.Done() {
		return nil, types.NewError(types.ErrProtocolViolation, "malformed choreography envelope")
	}
	id, err := ids.FromBytes(device)
	if err != nil {
		return nil, types.NewError(types.ErrProtocolViolation, "malformed role device id")
	}
	e.Role.Device = ids.DeviceID(id)
	return e, nil
}

// VerifyError classifies why an inbound envelope was skipped.
type VerifyError uint8

const (
	VerifyOK VerifyError = iota
	VerifyWrongEpoch
	VerifyWrongOperation
	VerifySenderMismatch
	VerifyHashMismatch
	VerifyWrongType
)

// verifyMeta checks everything but the message type. from is the
// transport-authenticated sender.
func (e *Envelope) verifyMeta(epoch types.Epoch, opID types.Hash32, from ids.DeviceID) VerifyError {
	if e.Epoch != epoch {
		return VerifyWrongEpoch
	}
	if e.OperationID != opID {
		return VerifyWrongOperation
	}
	if e.Role.Device != from {
		return VerifySenderMismatch
	}
	if types.HashBytes(e.Payload) != e.PayloadHash {
		return VerifyHashMismatch
	}
	return VerifyOK
}
