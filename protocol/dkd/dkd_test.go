// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dkd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura/choreo"
	"github.com/hxrts/aura/effects/effectstest"
	"github.com/hxrts/aura/guard"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/journal"
	"github.com/hxrts/aura/types"
)

func testSessions(t *testing.T, n int, seed uint64) []*choreo.Session {
	t.Helper()
	hub := effectstest.NewHub()
	roles := make([]ids.Role, n)
	for i := range roles {
		roles[i] = ids.Role{Device: ids.NewDeviceID(), Index: uint16(i + 1)}
	}
	opID := types.HashBytes([]byte("dkd-op"))
	sessions := make([]*choreo.Session, n)
	for i := range sessions {
		bundle := effectstest.NewBundle(seed+uint64(i), hub, roles[i].Device)
		sessions[i] = choreo.NewSession(roles[i], roles, 1, opID, bundle)
	}
	return sessions
}

func TestDKDAllParticipantsDeriveSameKey(t *testing.T) {
	require := require.New(t)
	sessions := testSessions(t, 3, 42)
	authority := ids.NewAuthorityID()
	cfg := DefaultConfig(3)
	cfg.PhaseTimeout = 2 * time.Second

	var wg sync.WaitGroup
	results := make([]*Result, len(sessions))
	for i, sess := range sessions {
		wg.Add(1)
		go func(i int, sess *choreo.Session) {
			defer wg.Done()
			jrnl := journal.New(authority, log.NewNoOpLogger(), nil)
			r, err := Run(context.Background(), sess, guard.NewForTesting(log.NewNoOpLogger()),
				jrnl, nil, authority, cfg)
			require.NoError(err)
			results[i] = r
			require.NotZero(jrnl.Stats().Facts, "session annotation recorded")
		}(i, sess)
	}
	wg.Wait()

	for _, r := range results[1:] {
		require.Equal(results[0].Seed, r.Seed)
		require.Equal(results[0].Fingerprint, r.Fingerprint)
		require.Equal(results[0].MerkleRoot, r.MerkleRoot)
		require.Empty(r.Byzantine)
		require.Equal(types.SessionComplete, r.Session.State)
	}
	require.Len(results[0].VerifyingKey, 32)
}

func TestDKDDeniedWithoutCapability(t *testing.T) {
	require := require.New(t)
	sessions := testSessions(t, 2, 7)
	authority := ids.NewAuthorityID()

	pub, _, err := guard.GenerateRoot()
	require.NoError(err)
	g := guard.New(pub, log.NewNoOpLogger(), nil)
	jrnl := journal.New(authority, log.NewNoOpLogger(), nil)

	_, err = Run(context.Background(), sessions[0], g, jrnl, nil, authority, DefaultConfig(2))
	require.Error(err)
	require.True(types.IsKind(err, types.ErrCapability))
}

func TestMerkleRootOrderIndependent(t *testing.T) {
	require := require.New(t)
	a := merkleRoot(map[uint16][]byte{1: {0xaa}, 2: {0xbb}})
	b := merkleRoot(map[uint16][]byte{2: {0xbb}, 1: {0xaa}})
	require.Equal(a, b)
}
