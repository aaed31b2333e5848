// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

func TestPackerLittleEndian(t *testing.T) {
	require := require.New(t)
	p := NewPacker(16)
	p.PackU16(0x0102)
	p.PackU32(0x03040506)
	p.PackU64(0x0708090a0b0c0d0e)
	require.NoError(p.Err)
	require.Equal([]byte{
		0x02, 0x01,
		0x06, 0x05, 0x04, 0x03,
		0x0e, 0x0d, 0x0c, 0x0b, 0x0a, 0x09, 0x08, 0x07,
	}, p.Bytes)
}

func TestPackUnpackRoundTrip(t *testing.T) {
	require := require.New(t)
	p := NewPacker(64)
	p.PackByte(0x7f)
	p.PackBool(true)
	p.PackBytes([]byte("variable"))
	p.PackString("text")
	p.PackU64(42)

	u := NewUnpacker(p.Bytes)
	require.Equal(byte(0x7f), u.UnpackByte())
	require.True(u.UnpackBool())
	require.Equal([]byte("variable"), u.UnpackBytes())
	require.Equal("text", u.UnpackString())
	require.EqualValues(42, u.UnpackU64())
	require.True(u.Done())
}

func TestUnpackerShortBuffer(t *testing.T) {
	require := require.New(t)
	u := NewUnpacker([]byte{0x01})
	u.UnpackU64()
	require.ErrorIs(u.Err, ErrShortBuffer)
}

func TestUnpackerLengthTooLong(t *testing.T) {
	require := require.New(t)
	p := NewPacker(8)
	p.PackU32(1000)
	u := NewUnpacker(p.Bytes)
	u.UnpackBytes()
	require.ErrorIs(u.Err, ErrLengthTooLong)
}

func TestCanonicalMapSorted(t *testing.T) {
	require := require.New(t)
	a := NewPacker(64)
	CanonicalMap(a, map[string][]byte{"b": {2}, "a": {1}})
	b := NewPacker(64)
	CanonicalMap(b, map[string][]byte{"a": {1}, "b": {2}})
	require.Equal(a.Bytes, b.Bytes)
}

func TestCanonicalHashSetSorted(t *testing.T) {
	require := require.New(t)
	h1 := types.HashBytes([]byte("1"))
	h2 := types.HashBytes([]byte("2"))

	a := NewPacker(64)
	CanonicalHashSet(a, []types.Hash32{h1, h2})
	b := NewPacker(64)
	CanonicalHashSet(b, []types.Hash32{h2, h1})
	require.Equal(a.Bytes, b.Bytes)
}

func TestEnvelopeRoundTripAndSigningBytes(t *testing.T) {
	require := require.New(t)
	env := &Envelope{
		Version:     EnvelopeVersion,
		AuthorityID: ids.NewAuthorityID(),
		EnvelopeID:  types.HashBytes([]byte("envelope")),
		TTL:         3,
		TimestampMS: 99,
		PayloadType: PayloadProposal,
		Payload:     []byte("payload"),
	}
	env.Signature[0] = 0xAA

	got, err := UnmarshalEnvelope(env.Marshal())
	require.NoError(err)
	require.Equal(env.AuthorityID, got.AuthorityID)
	require.Equal(env.Signature, got.Signature)
	require.Equal(env.PayloadType, got.PayloadType)

	// The signature never covers itself.
	signed := env.SigningBytes()
	env.Signature[1] = 0xBB
	require.Equal(signed, env.SigningBytes())
}

func TestEnvelopeRejectsBadVersion(t *testing.T) {
	require := require.New(t)
	env := &Envelope{Version: 9, AuthorityID: ids.NewAuthorityID()}
	_, err := UnmarshalEnvelope(env.Marshal())
	require.ErrorIs(err, ErrBadVersion)
}

func TestEnvelopeRejectsTrailingBytes(t *testing.T) {
	require := require.New(t)
	env := &Envelope{
		Version:     EnvelopeVersion,
		AuthorityID: ids.NewAuthorityID(),
		PayloadType: PayloadAck,
	}
	raw := append(env.Marshal(), 0x00)
	_, err := UnmarshalEnvelope(raw)
	require.ErrorIs(err, ErrBadEnvelope)
}
