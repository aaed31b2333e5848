// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package frost implements Ed25519 threshold signing: shares, nonce
// commitments, partial signatures, aggregation, and verification.
// Aggregated signatures verify under ordinary Ed25519, so the
// challenge hash is SHA-512 per RFC 8032; every other hash is BLAKE3.
package frost

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"sort"

	"filippo.io/edwards25519"
	"github.com/zeebo/blake3"

	"github.com/hxrts/aura/effects"
)

var (
	ErrInvalidShare      = errors.New("invalid share")
	ErrInvalidCommitment = errors.New("invalid nonce commitment")
	ErrAggregateFailed   = errors.New("aggregate failed")
	ErrVerifyFailed      = errors.New("verify failed")
)

const nonceDeriveContext = "github.com/hxrts/aura/frost 2024-11-02T00:00+00:00 nonce derivation"

// Share is one participant's slice of the group signing key.
type Share struct {
	Identifier uint16
	Value      [32]byte
	GroupPK    [32]byte
}

// PublicKeyPackage carries the group verifying key and the per-signer
// verifying shares.
type PublicKeyPackage struct {
	GroupPK         [32]byte
	VerifyingShares map[uint16][32]byte
	Threshold       uint16
	Total           uint16
}

// NonceCommitment is a signer's public commitment to its signing nonces.
type NonceCommitment struct {
	Signer  uint16
	Hiding  [32]byte
	Binding [32]byte
}

// Bytes returns the commitment's canonical 64-byte form.
func (c NonceCommitment) Bytes() [64]byte {
	var out [64]byte
	copy(out[:32], c.Hiding[:])
	copy(out[32:], c.Binding[:])
	return out
}

// PartialSignature is one signer's contribution to the group signature.
type PartialSignature struct {
	Signer uint16
	Z      [32]byte
}

// ThresholdSignature is the aggregated 64-byte Ed25519 signature plus
// the identifiers that produced it.
type ThresholdSignature struct {
	Signature [64]byte
	Signers   []uint16
}

func scalarFromU16(v uint16) *edwards25519.Scalar {
	var b [32]byte
	binary.LittleEndian.PutUint16(b[:2], v)
	s, _ := edwards25519.NewScalar().SetCanonicalBytes(b[:])
	return s
}

func scalarFromBytes(b [32]byte) (*edwards25519.Scalar, error) {
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b[:])
	if err != nil {
		return nil, ErrInvalidShare
	}
	return s, nil
}

func uniformScalar(digest []byte) *edwards25519.Scalar {
	s, _ := edwards25519.NewScalar().SetUniformBytes(digest[:64])
	return s
}

// GenerateWithDealer produces threshold-of-total shares and the public
// key package from a locally-sampled polynomial. Used by the
// trusted-dealer fallback and by tests; online setup runs the DKG
// choreography instead.
func GenerateWithDealer(rand effects.Random, threshold, total uint16) (map[uint16]*Share, *PublicKeyPackage, error) {
	if threshold == 0 || total == 0 || threshold > total {
		return nil, nil, ErrInvalidShare
	}
	coeffs := make([]*edwards25519.Scalar, threshold)
	for i := range coeffs {
		var seed [64]byte
		rand.Fill(seed[:])
		coeffs[i] = uniformScalar(seed[:])
	}
	groupPoint := new(edwards25519.Point).ScalarBaseMult(coeffs[0])
	var groupPK [32]byte
	copy(groupPK[:], groupPoint.Bytes())

	shares := make(map[uint16]*Share, total)
	verifying := make(map[uint16][32]byte, total)
	for id := uint16(1); id <= total; id++ {
		v := evalPoly(coeffs, id)
		share := &Share{Identifier: id, GroupPK: groupPK}
		copy(share.Value[:], v.Bytes())
		shares[id] = share
		var vs [32]byte
		copy(vs[:], new(edwards25519.Point).ScalarBaseMult(v).Bytes())
		verifying[id] = vs
	}
	pkg := &PublicKeyPackage{
		GroupPK:         groupPK,
		VerifyingShares: verifying,
		Threshold:       threshold,
		Total:           total,
	}
	return shares, pkg, nil
}

// evalPoly evaluates the polynomial at x = id by Horner's rule.
func evalPoly(coeffs []*edwards25519.Scalar, id uint16) *edwards25519.Scalar {
	x := scalarFromU16(id)
	acc := edwards25519.NewScalar()
	for i := len(coeffs) - 1; i >= 0; i-- {
		acc.MultiplyAdd(acc, x, coeffs[i])
	}
	return acc
}

// GenerateNonce derives hedged signing nonces for one round and returns
// the public commitment plus the single-use token holding the secret
// halves. Derivation keys BLAKE3 with the share so bad randomness alone
// cannot repeat a nonce.
func GenerateNonce(share *Share, rand effects.Random) (NonceCommitment, *NonceToken, error) {
	if _, err := scalarFromBytes(share.Value); err != nil {
		return NonceCommitment{}, nil, err
	}
	var hashKey [32]byte
	blake3.DeriveKey(nonceDeriveContext, share.Value[:], hashKey[:])
	hasher, err := blake3.NewKeyed(hashKey[:])
	if err != nil {
		return NonceCommitment{}, nil, err
	}
	var entropy [32]byte
	rand.Fill(entropy[:])
	_, _ = hasher.Write(entropy[:])
	digest := hasher.Digest()

	var buf [128]byte
	_, _ = digest.Read(buf[:])
	hiding := uniformScalar(buf[:64])
	binding := uniformScalar(buf[64:])

	commitment := NonceCommitment{Signer: share.Identifier}
	copy(commitment.Hiding[:], new(edwards25519.Point).ScalarBaseMult(hiding).Bytes())
	copy(commitment.Binding[:], new(edwards25519.Point).ScalarBaseMult(binding).Bytes())

	token := newNonceToken(share.Identifier, hiding, binding)
	return commitment, token, nil
}

// bindingFactor computes rho_j over the full sorted commitment list, so
// every signer derives the same factors.
func bindingFactor(signer uint16, msg []byte, commitments []NonceCommitment) *edwards25519.Scalar {
	h := blake3.New()
	var sb [2]byte
	binary.LittleEndian.PutUint16(sb[:], signer)
	_, _ = h.Write(sb[:])
	_, _ = h.Write(msg)
	for _, c := range commitments {
		binary.LittleEndian.PutUint16(sb[:], c.Signer)
		_, _ = h.Write(sb[:])
		b := c.Bytes()
		_, _ = h.Write(b[:])
	}
	var buf [64]byte
	d := h.Digest()
	_, _ = d.Read(buf[:])
	return uniformScalar(buf[:])
}

// groupCommitment computes R = sum(D_j + rho_j * E_j).
func groupCommitment(msg []byte, commitments []NonceCommitment) (*edwards25519.Point, error) {
	r := edwards25519.NewIdentityPoint()
	for _, c := range commitments {
		hiding, err := new(edwards25519.Point).SetBytes(c.Hiding[:])
		if err != nil {
			return nil, ErrInvalidCommitment
		}
		binding, err := new(edwards25519.Point).SetBytes(c.Binding[:])
		if err != nil {
			return nil, ErrInvalidCommitment
		}
		rho := bindingFactor(c.Signer, msg, commitments)
		r.Add(r, new(edwards25519.Point).Add(hiding, new(edwards25519.Point).ScalarMult(rho, binding)))
	}
	return r, nil
}

// challenge computes the Ed25519 challenge scalar SHA-512(R || A || M).
func challenge(r *edwards25519.Point, groupPK [32]byte, msg []byte) *edwards25519.Scalar {
	h := sha512.New()
	_, _ = h.Write(r.Bytes())
	_, _ = h.Write(groupPK[:])
	_, _ = h.Write(msg)
	return uniformScalar(h.Sum(nil))
}

// lagrangeCoefficient computes lambda_i over the identifier set at x=0.
func lagrangeCoefficient(self uint16, signers []uint16) (*edwards25519.Scalar, error) {
	num := scalarFromU16(1)
	den := scalarFromU16(1)
	xi := scalarFromU16(self)
	for _, j := range signers {
		if j == self {
			continue
		}
		xj := scalarFromU16(j)
		num.Multiply(num, xj)
		den.Multiply(den, edwards25519.NewScalar().Subtract(xj, xi))
	}
	zero := edwards25519.NewScalar()
	if den.Equal(zero) == 1 {
		return nil, ErrAggregateFailed
	}
	return num.Multiply(num, den.Invert(den)), nil
}

func sortedCommitments(commitments []NonceCommitment) []NonceCommitment {
	sorted := make([]NonceCommitment, len(commitments))
	copy(sorted, commitments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Signer < sorted[j].Signer })
	return sorted
}

// SignWithNonce produces this signer's partial signature. The token is
// consumed: a second call with the same token fails.
func SignWithNonce(msg []byte, share *Share, token *NonceToken, commitments []NonceCommitment) (PartialSignature, error) {
	secret, err := scalarFromBytes(share.Value)
	if err != nil {
		return PartialSignature{}, err
	}
	hiding, binding, err := token.take()
	if err != nil {
		return PartialSignature{}, err
	}
	sorted := sortedCommitments(commitments)
	signers := make([]uint16, len(sorted))
	found := false
	for i, c := range sorted {
		signers[i] = c.Signer
		if c.Signer == share.Identifier {
			found = true
		}
	}
	if !found {
		return PartialSignature{}, ErrInvalidCommitment
	}

	r, err := groupCommitment(msg, sorted)
	if err != nil {
		return PartialSignature{}, err
	}
	c := challenge(r, share.GroupPK, msg)
	lambda, err := lagrangeCoefficient(share.Identifier, signers)
	if err != nil {
		return PartialSignature{}, err
	}
	rho := bindingFactor(share.Identifier, msg, sorted)

	// z_i = d_i + e_i*rho_i + lambda_i*s_i*c
	z := edwards25519.NewScalar().Multiply(binding, rho)
	z.Add(z, hiding)
	lsc := edwards25519.NewScalar().Multiply(lambda, secret)
	lsc.Multiply(lsc, c)
	z.Add(z, lsc)

	partial := PartialSignature{Signer: share.Identifier}
	copy(partial.Z[:], z.Bytes())
	return partial, nil
}

// Aggregate combines partial signatures into a 64-byte Ed25519
// signature over msg.
func Aggregate(partials []PartialSignature, msg []byte, commitments []NonceCommitment, groupPK [32]byte) (*ThresholdSignature, error) {
	if len(partials) == 0 || len(partials) != len(commitments) {
		return nil, ErrAggregateFailed
	}
	sorted := sortedCommitments(commitments)
	r, err := groupCommitment(msg, sorted)
	if err != nil {
		return nil, err
	}
	z := edwards25519.NewScalar()
	signers := make([]uint16, 0, len(partials))
	for _, p := range partials {
		zi, err := scalarFromBytes(p.Z)
		if err != nil {
			return nil, ErrAggregateFailed
		}
		z.Add(z, zi)
		signers = append(signers, p.Signer)
	}
	sort.Slice(signers, func(i, j int) bool { return signers[i] < signers[j] })

	sig := &ThresholdSignature{Signers: signers}
	copy(sig.Signature[:32], r.Bytes())
	copy(sig.Signature[32:], z.Bytes())
	if !Verify(sig, msg, groupPK) {
		return nil, ErrAggregateFailed
	}
	return sig, nil
}

// Verify checks the aggregated signature under ordinary Ed25519.
func Verify(sig *ThresholdSignature, msg []byte, groupPK [32]byte) bool {
	return ed25519.Verify(ed25519.PublicKey(groupPK[:]), msg, sig.Signature[:])
}
