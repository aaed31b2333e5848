// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unwrap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura/choreo"
	"github.com/hxrts/aura/effects/effectstest"
	"github.com/hxrts/aura/frost"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

func TestUnwrapReconstructsSecret(t *testing.T) {
	require := require.New(t)
	rand := effectstest.NewRand(42)

	secret := frost.RandomScalarSecret(rand)
	shares, err := frost.SplitScalarSecret(rand, secret, 2, 3)
	require.NoError(err)

	hub := effectstest.NewHub()
	roles := make([]ids.Role, 3)
	for i := range roles {
		roles[i] = ids.Role{Device: ids.NewDeviceID(), Index: uint16(i + 1)}
	}
	tctx := &ThresholdContext{
		SecretID:  ids.NewID(),
		Threshold: 2,
		Total:     3,
		Epoch:     1,
	}
	rand.Fill(tctx.Nonce[:])
	opID := types.HashBytes(tctx.Marshal())

	sessions := make([]*choreo.Session, 3)
	for i := range roles {
		bundle := effectstest.NewBundle(100+uint64(i), hub, roles[i].Device)
		sessions[i] = choreo.NewSession(roles[i], roles, 1, opID, bundle)
	}

	var wg sync.WaitGroup
	results := make([]*Result, 3)
	for i := range roles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := sessions[i]
			index := uint16(i + 1)
			r, err := Run(context.Background(), sess, tctx, index, shares[index], 2*time.Second)
			require.NoError(err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.Equal(secret, r.Secret)
		require.Equal(3, r.Contributed)
		require.Empty(r.Byzantine)
	}
}

func TestCombineDeterministicAcrossSubsets(t *testing.T) {
	require := require.New(t)
	rand := effectstest.NewRand(7)

	secret := frost.RandomScalarSecret(rand)
	shares, err := frost.SplitScalarSecret(rand, secret, 2, 4)
	require.NoError(err)

	for _, subset := range [][]uint16{{1, 2}, {2, 3}, {1, 4}, {3, 4}} {
		pick := make(map[uint16][32]byte, 2)
		for _, i := range subset {
			pick[i] = shares[i]
		}
		got, err := frost.CombineSecretShares(pick)
		require.NoError(err)
		require.Equal(secret, got)
	}
}

func TestContextMismatchRejected(t *testing.T) {
	require := require.New(t)
	p := &provider{context: &ThresholdContext{Threshold: 2, Total: 3}}
	other := &ThresholdContext{Threshold: 3, Total: 3}
	require.Error(p.ValidateContext(other.Marshal()))
}
