// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package simulator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura/frost"
	"github.com/hxrts/aura/types"
)

func TestScenarioFastPathHappyCase(t *testing.T) {
	require := require.New(t)
	sim, err := New(Options{Witnesses: 3, Threshold: 2, Seed: 42, Pipelining: true})
	require.NoError(err)

	// Pre-seed cached nonces for W1 and W2 at epoch 1.
	require.NoError(sim.Witnesses[0].StageNonce(1))
	require.NoError(sim.Witnesses[1].StageNonce(1))

	resp, err := sim.Step(context.Background(), []byte("tx-A"))
	require.NoError(err)
	require.True(resp.FastPath)
	require.Subset(resp.Commit.Sig.Signers, []uint16{1, 2})
	require.True(frost.Verify(&resp.Commit.Sig, []byte("tx-A"), sim.GroupPK))
	require.Len(sim.Cache.CachedSigners(1), 2, "fresh nonces re-staged at epoch 1")
}

func TestScenarioSlowPathNoCachedNonces(t *testing.T) {
	require := require.New(t)
	sim, err := New(Options{Witnesses: 3, Threshold: 2, Seed: 42, Pipelining: true})
	require.NoError(err)

	resp, err := sim.Step(context.Background(), []byte("tx-A"))
	require.NoError(err)
	require.False(resp.FastPath)
	require.True(frost.Verify(&resp.Commit.Sig, []byte("tx-A"), sim.GroupPK))
}

func TestScenarioEpochChangeInvalidation(t *testing.T) {
	require := require.New(t)
	sim, err := New(Options{Witnesses: 3, Threshold: 2, Seed: 42, Pipelining: true})
	require.NoError(err)

	require.NoError(sim.Witnesses[0].StageNonce(1))
	require.NoError(sim.Witnesses[1].StageNonce(1))

	sim.Engine.HandleEpochChange(2)
	resp, err := sim.Step(context.Background(), []byte("tx-A"))
	require.NoError(err)
	require.False(resp.FastPath, "fast path disabled this run")
	require.Empty(sim.Cache.CachedSigners(1))
	require.NotEmpty(sim.Cache.CachedSigners(2), "nonces cached at epoch 2 only")
}

func TestScenarioPartitionAndHeal(t *testing.T) {
	require := require.New(t)
	sim, err := New(Options{Witnesses: 5, Threshold: 3, Seed: 42, TimeoutMS: 500})
	require.NoError(err)

	// Coordinator W1 lands in the minority {W1, W2}.
	sim.Partition.Split(1, 1, 2)
	sim.Partition.Split(2, 3, 4, 5)

	resp, err := sim.Step(context.Background(), []byte("tx-P"))
	require.Error(err)
	require.True(types.IsKind(err, types.ErrTimeout))
	require.Nil(resp.Commit)

	// Heal and resubmit.
	sim.Partition.Heal()
	resp, err = sim.Step(context.Background(), []byte("tx-P"))
	require.NoError(err)
	require.NotNil(resp.Commit)
	require.False(resp.FastPath)
	require.GreaterOrEqual(len(resp.Commit.Sig.Signers), 3)
	require.True(frost.Verify(&resp.Commit.Sig, []byte("tx-P"), sim.GroupPK))
}

func TestScenarioByzantineEquivocator(t *testing.T) {
	require := require.New(t)
	sim, err := New(Options{
		Witnesses: 5,
		Threshold: 3,
		Seed:      42,
		Modes:     map[uint16]ByzantineMode{1: Equivocate},
	})
	require.NoError(err)

	resp, err := sim.Step(context.Background(), []byte("tx-B"))
	if err == nil {
		// Clean commit without the equivocator.
		require.NotNil(resp.Commit)
		require.NotContains(resp.Commit.Sig.Signers, uint16(1))
		require.Contains(sim.Engine.EquivocationLog(), uint16(1))
		require.True(frost.Verify(&resp.Commit.Sig, []byte("tx-B"), sim.GroupPK))
	} else {
		// Or a clean abort; never a commit binding two hashes.
		require.Nil(resp.Commit)
	}
}

func TestScenarioInvalidSignatureWitness(t *testing.T) {
	require := require.New(t)
	sim, err := New(Options{
		Witnesses: 4,
		Threshold: 2,
		Seed:      42,
		Modes:     map[uint16]ByzantineMode{2: InvalidSignature},
	})
	require.NoError(err)

	resp, err := sim.Step(context.Background(), []byte("tx-C"))
	if err == nil {
		require.NotNil(resp.Commit)
		require.True(frost.Verify(&resp.Commit.Sig, []byte("tx-C"), sim.GroupPK))
		require.NotContains(resp.Commit.Sig.Signers, uint16(2))
	}
}

func TestScenarioWithholdCommit(t *testing.T) {
	require := require.New(t)
	sim, err := New(Options{
		Witnesses: 3,
		Threshold: 2,
		Seed:      42,
		Modes:     map[uint16]ByzantineMode{3: WithholdCommit},
	})
	require.NoError(err)

	// Two honest witnesses still reach threshold.
	resp, err := sim.Step(context.Background(), []byte("tx-D"))
	require.NoError(err)
	require.NotNil(resp.Commit)
	require.NotContains(resp.Commit.Sig.Signers, uint16(3))
}

func TestScenarioLossyLinksEventuallyCommit(t *testing.T) {
	require := require.New(t)
	sim, err := New(Options{
		Witnesses: 3,
		Threshold: 2,
		Seed:      42,
		DropRate:  6554, // ~10% per message
		TimeoutMS: 5_000,
	})
	require.NoError(err)

	committed := false
	for attempt := 0; attempt < 10 && !committed; attempt++ {
		resp, err := sim.Step(context.Background(), []byte("tx-L"))
		if err == nil && resp.Commit != nil {
			committed = true
		}
	}
	require.True(committed, "lossy run commits within retries")
}

func TestTraceRecorderCapturesSteps(t *testing.T) {
	require := require.New(t)
	sim, err := New(Options{Witnesses: 3, Threshold: 2, Seed: 42})
	require.NoError(err)

	_, err = sim.Step(context.Background(), []byte("tx-T"))
	require.NoError(err)
	require.Equal(1, sim.Trace.Len())
	require.Equal("consensus", sim.Trace.Events()[0].Kind)
}

func TestLCGDeterminism(t *testing.T) {
	require := require.New(t)
	a, b := NewLCG(42), NewLCG(42)
	for i := 0; i < 100; i++ {
		require.Equal(a.Next(), b.Next())
	}
	// At rate 0 nothing drops; at full rate everything drops.
	l := NewLCG(7)
	require.False(l.Drop(0))
	require.True(NewLCG(7).Drop(65536))
}
