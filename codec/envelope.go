// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"errors"

	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// PayloadType tags the wire payload union.
type PayloadType uint8

const (
	PayloadProposal         PayloadType = 0x01
	PayloadAck              PayloadType = 0x02
	PayloadBroadcastPayload PayloadType = 0x03
	PayloadCommitment       PayloadType = 0x04
	PayloadReveal           PayloadType = 0x05
	PayloadResult           PayloadType = 0x06
	PayloadNonceCommit      PayloadType = 0x07
	PayloadSignShare        PayloadType = 0x08
	PayloadGossipRequest    PayloadType = 0x09
	PayloadSyncRequest      PayloadType = 0x0A
	PayloadSyncResponse     PayloadType = 0x0B
	PayloadRecoveryInit     PayloadType = 0x0C
	PayloadRecoveryShare    PayloadType = 0x0D
	PayloadOTAProposal      PayloadType = 0x0E
	PayloadOTAApproval      PayloadType = 0x0F
	PayloadSBBEnvelope      PayloadType = 0x10
)

const (
	// EnvelopeVersion is the current wire format version.
	EnvelopeVersion uint8 = 1

	// envelopeHeaderLen is version + authority + envelope id + ttl +
	// timestamp + signature.
	envelopeHeaderLen = 1 + 16 + 32 + 1 + 8 + 64
)

var (
	ErrBadVersion  = errors.New("unsupported envelope version")
	ErrBadEnvelope = errors.New("malformed envelope")
)

// Envelope is the wire frame every inter-peer message travels in.
// The signature covers everything but itself.
type Envelope struct {
	Version     uint8
	AuthorityID ids.AuthorityID
	EnvelopeID  types.Hash32
	TTL         uint8
	TimestampMS uint64
	Signature   [64]byte
	PayloadType PayloadType
	Payload     []byte
}

// SigningBytes returns the canonical bytes the envelope signature
// covers: every field in declaration order, signature excluded.
func (e *Envelope) SigningBytes() []byte {
	p := NewPacker(envelopeHeaderLen + len(e.Payload))
	p.PackByte(e.Version)
	p.PackFixed(e.AuthorityID.Bytes())
	p.PackFixed(e.EnvelopeID[:])
	p.PackByte(e.TTL)
	p.PackU64(e.TimestampMS)
	p.PackByte(byte(e.PayloadType))
	p.PackBytes(e.Payload)
	return p.Bytes
}

// Marshal serializes the envelope to wire bytes.
func (e *Envelope) Marshal() []byte {
	p := NewPacker(envelopeHeaderLen + 5 + len(e.Payload))
	p.PackByte(e.Version)
	p.PackFixed(e.AuthorityID.Bytes())
	p.PackFixed(e.EnvelopeID[:])
	p.PackByte(e.TTL)
	p.PackU64(e.TimestampMS)
	p.PackFixed(e.Signature[:])
	p.PackByte(byte(e.PayloadType))
	p.PackBytes(e.Payload)
	return p.Bytes
}

// UnmarshalEnvelope parses wire bytes into an envelope.
func UnmarshalEnvelope(b []byte) (*Envelope, error) {
	u := NewUnpacker(b)
	e := &Envelope{}
	e.Version = u.UnpackByte()
	if u.Err == nil && e.Version != EnvelopeVersion {
		return nil, ErrBadVersion
	}
	authority := u.UnpackFixed(16)
	envelopeID := u.UnpackFixed(32)
	e.TTL = u.UnpackByte()
	e.TimestampMS = u.UnpackU64()
	sig := u.UnpackFixed(64)
	e.PayloadType = PayloadType(u.UnpackByte())
	e.Payload = u.UnpackBytes()
	if !u.Done() {
		return nil, ErrBadEnvelope
	}
	id, err := ids.FromBytes(authority)
	if err != nil {
		return nil, ErrBadEnvelope
	}
	e.AuthorityID = ids.AuthorityID(id)
	copy(e.EnvelopeID[:], envelopeID)
	copy(e.Signature[:], sig)
	return e, nil
}
