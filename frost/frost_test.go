// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package frost

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura/effects/effectstest"
)

func collectCommitments(t *testing.T, rand *effectstest.Rand, shares map[uint16]*Share, signers []uint16) ([]NonceCommitment, map[uint16]*NonceToken) {
	t.Helper()
	commitments := make([]NonceCommitment, 0, len(signers))
	tokens := make(map[uint16]*NonceToken, len(signers))
	for _, id := range signers {
		c, token, err := GenerateNonce(shares[id], rand)
		require.NoError(t, err)
		commitments = append(commitments, c)
		tokens[id] = token
	}
	return commitments, tokens
}

func TestSignAndVerifyTwoOfThree(t *testing.T) {
	require := require.New(t)
	rand := effectstest.NewRand(42)

	shares, pkg, err := GenerateWithDealer(rand, 2, 3)
	require.NoError(err)
	require.Len(shares, 3)
	require.EqualValues(2, pkg.Threshold)

	msg := []byte("tx-A")
	signers := []uint16{1, 2}
	commitments, tokens := collectCommitments(t, rand, shares, signers)

	partials := make([]PartialSignature, 0, len(signers))
	for _, id := range signers {
		p, err := SignWithNonce(msg, shares[id], tokens[id], commitments)
		require.NoError(err)
		partials = append(partials, p)
	}

	sig, err := Aggregate(partials, msg, commitments, pkg.GroupPK)
	require.NoError(err)
	require.True(Verify(sig, msg, pkg.GroupPK))
	require.Equal([]uint16{1, 2}, sig.Signers)
	require.False(Verify(sig, []byte("tx-B"), pkg.GroupPK))
}

func TestDifferentSignerSubsetsAgreeOnKey(t *testing.T) {
	require := require.New(t)
	rand := effectstest.NewRand(7)

	shares, pkg, err := GenerateWithDealer(rand, 2, 3)
	require.NoError(err)
	msg := []byte("same message")

	for _, subset := range [][]uint16{{1, 2}, {1, 3}, {2, 3}} {
		commitments, tokens := collectCommitments(t, rand, shares, subset)
		partials := make([]PartialSignature, 0, 2)
		for _, id := range subset {
			p, err := SignWithNonce(msg, shares[id], tokens[id], commitments)
			require.NoError(err)
			partials = append(partials, p)
		}
		sig, err := Aggregate(partials, msg, commitments, pkg.GroupPK)
		require.NoError(err)
		require.True(Verify(sig, msg, pkg.GroupPK))
	}
}

func TestNonceTokenSingleUse(t *testing.T) {
	require := require.New(t)
	rand := effectstest.NewRand(3)

	shares, _, err := GenerateWithDealer(rand, 2, 2)
	require.NoError(err)

	msg := []byte("once")
	commitments, tokens := collectCommitments(t, rand, shares, []uint16{1, 2})

	_, err = SignWithNonce(msg, shares[1], tokens[1], commitments)
	require.NoError(err)

	_, err = SignWithNonce(msg, shares[1], tokens[1], commitments)
	require.ErrorIs(err, ErrNonceConsumed)

	tokens[2].Discard()
	_, err = SignWithNonce(msg, shares[2], tokens[2], commitments)
	require.ErrorIs(err, ErrNonceConsumed)
}

func TestAggregateRejectsBadPartial(t *testing.T) {
	require := require.New(t)
	rand := effectstest.NewRand(9)

	shares, pkg, err := GenerateWithDealer(rand, 2, 2)
	require.NoError(err)
	msg := []byte("tamper")
	commitments, tokens := collectCommitments(t, rand, shares, []uint16{1, 2})

	p1, err := SignWithNonce(msg, shares[1], tokens[1], commitments)
	require.NoError(err)
	p2, err := SignWithNonce(msg, shares[2], tokens[2], commitments)
	require.NoError(err)

	p2.Z[0] ^= 0x01
	_, err = Aggregate([]PartialSignature{p1, p2}, msg, commitments, pkg.GroupPK)
	require.Error(err)
}

func TestVSSRoundTrip(t *testing.T) {
	require := require.New(t)
	rand := effectstest.NewRand(11)

	const threshold, total = 2, 3
	polys := make([]*VSSPolynomial, total)
	for i := range polys {
		polys[i] = NewVSSPolynomial(rand, threshold)
	}

	constants := make([][32]byte, total)
	for i, p := range polys {
		constants[i] = p.Commitments[0]
	}

	shares := make(map[uint16]*Share, total)
	for id := uint16(1); id <= total; id++ {
		received := make([][32]byte, 0, total)
		for _, p := range polys {
			s := p.ShareFor(id)
			require.True(VerifyVSSShare(id, s, p.Commitments))
			received = append(received, s)
		}
		share, err := CombineVSSShares(id, received, constants)
		require.NoError(err)
		shares[id] = share
	}

	msg := []byte("dkg-backed signature")
	subset := []uint16{2, 3}
	commitments, tokens := collectCommitments(t, rand, shares, subset)
	partials := make([]PartialSignature, 0, 2)
	for _, id := range subset {
		p, err := SignWithNonce(msg, shares[id], tokens[id], commitments)
		require.NoError(err)
		partials = append(partials, p)
	}
	sig, err := Aggregate(partials, msg, commitments, shares[2].GroupPK)
	require.NoError(err)
	require.True(Verify(sig, msg, shares[2].GroupPK))
}

func TestVSSShareRejectsTampering(t *testing.T) {
	require := require.New(t)
	rand := effectstest.NewRand(13)

	p := NewVSSPolynomial(rand, 2)
	s := p.ShareFor(1)
	s[0] ^= 0xFF
	require.False(VerifyVSSShare(1, s, p.Commitments))
}
