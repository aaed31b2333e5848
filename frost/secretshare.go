// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package frost

import (
	"sort"

	"filippo.io/edwards25519"

	"github.com/hxrts/aura/effects"
)

// SplitScalarSecret shares a scalar secret threshold-of-total via a
// random polynomial. The secret must be a canonical scalar.
func SplitScalarSecret(rand effects.Random, secret [32]byte, threshold, total uint16) (map[uint16][32]byte, error) {
	if threshold == 0 || threshold > total {
		return nil, ErrInvalidShare
	}
	constant, err := scalarFromBytes(secret)
	if err != nil {
		return nil, err
	}
	coeffs := make([]*edwards25519.Scalar, threshold)
	coeffs[0] = constant
	for i := 1; i < int(threshold); i++ {
		var seed [64]byte
		rand.Fill(seed[:])
		coeffs[i] = uniformScalar(seed[:])
	}
	shares := make(map[uint16][32]byte, total)
	for id := uint16(1); id <= total; id++ {
		var out [32]byte
		copy(out[:], evalPoly(coeffs, id).Bytes())
		shares[id] = out
	}
	return shares, nil
}

// CombineSecretShares reconstructs the secret by Lagrange interpolation
// at zero. Reconstruction is deterministic given the same sorted share
// set: shares are folded in ascending identifier order.
func CombineSecretShares(shares map[uint16][32]byte) ([32]byte, error) {
	var zero [32]byte
	if len(shares) == 0 {
		return zero, ErrInvalidShare
	}
	indexes := make([]uint16, 0, len(shares))
	for id := range shares {
		indexes = append(indexes, id)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	acc := edwards25519.NewScalar()
	for _, id := range indexes {
		v, err := scalarFromBytes(shares[id])
		if err != nil {
			return zero, err
		}
		lambda, err := lagrangeCoefficient(id, indexes)
		if err != nil {
			return zero, err
		}
		acc.Add(acc, edwards25519.NewScalar().Multiply(lambda, v))
	}
	var out [32]byte
	copy(out[:], acc.Bytes())
	return out, nil
}

// RandomScalarSecret samples a canonical scalar suitable for splitting.
func RandomScalarSecret(rand effects.Random) [32]byte {
	var seed [64]byte
	rand.Fill(seed[:])
	var out [32]byte
	copy(out[:], uniformScalar(seed[:]).Bytes())
	return out
}
