// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dkg

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

func testSessions(t *testing.T, n int, seed uint64) []*choreo.Session {
	t.Helper()
	hub := effectstest.NewHub()
	roles := make([]ids.Role, n)
	for i := range roles {
		roles[i] = ids.Role{Device: ids.NewDeviceID(), Index: uint16(i + 1)}
	}
	opID := types.HashBytes([]byte("dkg-op"))
	sessions := make([]*choreo.Session, n)
	for i := range sessions {
		bundle := effectstest.NewBundle(seed+uint64(i), hub, roles[i].Device)
		sessions[i] = choreo.NewSession(roles[i], roles, 1, opID, bundle)
	}
	return sessions
}

func TestDKGProducesWorkingGroup(t *testing.T) {
	require := require.New(t)
	sessions := testSessions(t, 3, 42)
	cfg := Config{Threshold: 2, Total: 3, PhaseTimeout: 2 * time.Second}

	var wg sync.WaitGroup
	results := make([]*Result, len(sessions))
	for i, sess := range sessions {
		wg.Add(1)
		go func(i int, sess *choreo.Session) {
			defer wg.Done()
			var r *Result
			var err error
			if i == 0 {
				r, err = RunCoordinator(context.Background(), sess, cfg)
			} else {
				r, err = RunParticipant(context.Background(), sess, cfg)
			}
			require.NoError(err)
			results[i] = r
		}(i, sess)
	}
	wg.Wait()

	for _, r := range results {
		require.True(r.Verified)
		require.Empty(r.Complaints)
		require.False(r.UsedDealer)
		require.Equal(results[0].Package.GroupPK, r.Package.GroupPK)
	}

	// Two of the generated shares sign a message that verifies under
	// the group key.
	rand := effectstest.NewRand(99)
	msg := []byte("dkg-signed")
	signers := []*frost.Share{results[0].Share, results[2].Share}
	commitments := make([]frost.NonceCommitment, 0, 2)
	tokens := make([]*frost.NonceToken, 0, 2)
	for _, s := range signers {
		c, token, err := frost.GenerateNonce(s, rand)
		require.NoError(err)
		commitments = append(commitments, c)
		tokens = append(tokens, token)
	}
	partials := make([]frost.PartialSignature, 0, 2)
	for i, s := range signers {
		p, err := frost.SignWithNonce(msg, s, tokens[i], commitments)
		require.NoError(err)
		partials = append(partials, p)
	}
	sig, err := frost.Aggregate(partials, msg, commitments, results[0].Package.GroupPK)
	require.NoError(err)
	require.True(frost.Verify(sig, msg, results[0].Package.GroupPK))
}

func TestDKGParameterDisagreementRejected(t *testing.T) {
	require := require.New(t)
	sessions := testSessions(t, 2, 7)

	var wg sync.WaitGroup
	wg.Add(1)
	var participantErr error
	go func() {
		defer wg.Done()
		_, participantErr = RunParticipant(context.Background(), sessions[1],
			Config{Threshold: 3, Total: 4, PhaseTimeout: time.Second})
	}()

	_, _ = RunCoordinator(context.Background(), sessions[0],
		Config{Threshold: 2, Total: 2, PhaseTimeout: time.Second})
	wg.Wait()
	require.Error(participantErr)
}

func TestDealerFallback(t *testing.T) {
	require := require.New(t)
	sessions := testSessions(t, 2, 11)

	r, err := dealerFallback(sessions[0], Config{Threshold: 2, Total: 2})
	require.NoError(err)
	require.True(r.UsedDealer)
	require.NotNil(r.Share)
	require.EqualValues(1, r.Share.Identifier)
}
