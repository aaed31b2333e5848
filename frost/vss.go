// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package frost

import (
	"filippo.io/edwards25519"

	"github.com/hxrts/aura/effects"
)

// VSSPolynomial is a participant's secret polynomial plus the Feldman
// point commitments to its coefficients. The commitments are broadcast;
// the polynomial never leaves the participant.
type VSSPolynomial struct {
	coeffs      []*edwards25519.Scalar
	Commitments [][32]byte
}

// NewVSSPolynomial samples a degree threshold-1 polynomial.
func NewVSSPolynomial(rand effects.Random, threshold uint16) *VSSPolynomial {
	p := &VSSPolynomial{
		coeffs:      make([]*edwards25519.Scalar, threshold),
		Commitments: make([][32]byte, threshold),
	}
	for i := range p.coeffs {
		var seed [64]byte
		rand.Fill(seed[:])
		p.coeffs[i] = uniformScalar(seed[:])
		copy(p.Commitments[i][:], new(edwards25519.Point).ScalarBaseMult(p.coeffs[i]).Bytes())
	}
	return p
}

// ShareFor evaluates the polynomial at the recipient's identifier.
func (p *VSSPolynomial) ShareFor(id uint16) [32]byte {
	var out [32]byte
	copy(out[:], evalPoly(p.coeffs, id).Bytes())
	return out
}

// Constant returns the polynomial's secret constant term.
func (p *VSSPolynomial) Constant() *edwards25519.Scalar {
	return edwards25519.NewScalar().Set(p.coeffs[0])
}

// VerifyVSSShare checks share*B == sum(commitment_k * id^k), the
// Feldman consistency equation.
func VerifyVSSShare(id uint16, share [32]byte, commitments [][32]byte) bool {
	s, err := scalarFromBytes(share)
	if err != nil {
		return false
	}
	lhs := new(edwards25519.Point).ScalarBaseMult(s)

	x := scalarFromU16(id)
	power := scalarFromU16(1)
	rhs := edwards25519.NewIdentityPoint()
	for _, cb := range commitments {
		c, err := new(edwards25519.Point).SetBytes(cb[:])
		if err != nil {
			return false
		}
		rhs.Add(rhs, new(edwards25519.Point).ScalarMult(power, c))
		power.Multiply(power, x)
	}
	return lhs.Equal(rhs) == 1
}

// CombineVSSShares sums the per-dealer shares a participant received
// into its final signing share, and combines the dealers' constant-term
// commitments into the group public key.
func CombineVSSShares(id uint16, received [][32]byte, constantCommitments [][32]byte) (*Share, error) {
	acc := edwards25519.NewScalar()
	for _, r := range received {
		s, err := scalarFromBytes(r)
		if err != nil {
			return nil, ErrInvalidShare
		}
		acc.Add(acc, s)
	}
	groupPoint := edwards25519.NewIdentityPoint()
	for _, cb := range constantCommitments {
		c, err := new(edwards25519.Point).SetBytes(cb[:])
		if err != nil {
			return nil, ErrInvalidCommitment
		}
		groupPoint.Add(groupPoint, c)
	}
	share := &Share{Identifier: id}
	copy(share.Value[:], acc.Bytes())
	copy(share.GroupPK[:], groupPoint.Bytes())
	return share, nil
}

// VerifyingShareFor derives participant id's verifying share from every
// dealer's full commitment vector.
func VerifyingShareFor(id uint16, dealerCommitments [][][32]byte) ([32]byte, error) {
	var out [32]byte
	x := scalarFromU16(id)
	acc := edwards25519.NewIdentityPoint()
	for _, commitments := range dealerCommitments {
		power := scalarFromU16(1)
		for _, cb := range commitments {
			c, err := new(edwards25519.Point).SetBytes(cb[:])
			if err != nil {
				return out, ErrInvalidCommitment
			}
			acc.Add(acc, new(edwards25519.Point).ScalarMult(power, c))
			power.Multiply(power, x)
		}
	}
	copy(out[:], acc.Bytes())
	return out, nil
}
