// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura/choreo"
	"github.com/hxrts/aura/effects/effectstest"
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
	opID := types.HashBytes([]byte("ota-op"))
	sessions := make([]*choreo.Session, n)
	for i := range sessions {
		bundle := effectstest.NewBundle(seed+uint64(i), hub, roles[i].Device)
		sessions[i] = choreo.NewSession(roles[i], roles, 1, opID, bundle)
	}
	return sessions
}

func testProposal() *Proposal {
	return &Proposal{
		Version:           "1.4.0",
		BinaryHash:        types.HashBytes([]byte("binary")),
		ChangeSet:         []byte("config-delta"),
		DisputeWindowSecs: 3600,
	}
}

func TestOTAUnanimousUpgrade(t *testing.T) {
	require := require.New(t)
	sessions := testSessions(t, 3, 42)
	proposal := testProposal()

	apply := func(*Proposal) error { return nil }
	approve := func(*Proposal) error { return nil }

	var wg sync.WaitGroup
	for _, sess := range sessions[1:] {
		wg.Add(1)
		go func(sess *choreo.Session) {
			defer wg.Done()
			jrnl := journal.New(ids.NewAuthorityID(), log.NewNoOpLogger(), nil)
			r, err := Participate(context.Background(), sess, jrnl, approve, apply, 2*time.Second)
			require.NoError(err)
			require.True(r.Applied)
		}(sess)
	}

	jrnl := journal.New(ids.NewAuthorityID(), log.NewNoOpLogger(), nil)
	r, err := Propose(context.Background(), sessions[0], jrnl, proposal, apply, 2*time.Second)
	require.NoError(err)
	require.True(r.Approved)
	require.True(r.Applied)
	require.Equal(3, r.Approvals)
	require.Equal(2, r.Required)
	wg.Wait()

	require.NotZero(jrnl.Stats().Facts)
}

func TestOTARejectedBelowMajority(t *testing.T) {
	require := require.New(t)
	sessions := testSessions(t, 4, 7)
	proposal := testProposal()

	reject := func(*Proposal) error {
		return types.NewError(types.ErrProtocolViolation, "version not allowed")
	}
	approve := func(*Proposal) error { return nil }
	apply := func(*Proposal) error { return nil }

	var wg sync.WaitGroup
	// One approver, two rejectors: 2 approvals total against a
	// majority of 3.
	wg.Add(1)
	go func() {
		defer wg.Done()
		jrnl := journal.New(ids.NewAuthorityID(), log.NewNoOpLogger(), nil)
		_, _ = Participate(context.Background(), sessions[1], jrnl, approve, apply, 2*time.Second)
	}()
	for _, sess := range sessions[2:] {
		wg.Add(1)
		go func(sess *choreo.Session) {
			defer wg.Done()
			jrnl := journal.New(ids.NewAuthorityID(), log.NewNoOpLogger(), nil)
			_, err := Participate(context.Background(), sess, jrnl, reject, apply, 2*time.Second)
			require.Error(err)
		}(sess)
	}

	jrnl := journal.New(ids.NewAuthorityID(), log.NewNoOpLogger(), nil)
	r, err := Propose(context.Background(), sessions[0], jrnl, proposal, apply, 2*time.Second)
	require.Error(err)
	require.False(r.Approved)
	require.Equal(2, r.Approvals)
	require.Equal(3, r.Required)
	wg.Wait()
}

func TestMajorityFor(t *testing.T) {
	require := require.New(t)
	require.Equal(2, MajorityFor(3))
	require.Equal(3, MajorityFor(4))
	require.Equal(3, MajorityFor(5))
	require.Equal(5, MajorityFor(8))
}

func TestProposalRoundTrip(t *testing.T) {
	require := require.New(t)
	p := testProposal()
	got, err := UnmarshalProposal(p.Marshal())
	require.NoError(err)
	require.Equal(p.Version, got.Version)
	require.Equal(p.BinaryHash, got.BinaryHash)
	require.Equal(p.ChangeSet, got.ChangeSet)
}
