// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package recovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura/choreo"
	"github.com/hxrts/aura/effects/effectstest"
	"github.com/hxrts/aura/frost"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/journal"
	"github.com/hxrts/aura/types"
)

func TestGuardianRecoveryNormalPriority(t *testing.T) {
	require := require.New(t)
	rand := effectstest.NewRand(42)

	// 4 guardians, threshold 2, dispute window 48h.
	const guardians = 4
	secret := frost.RandomScalarSecret(rand)
	secretShares, err := frost.SplitScalarSecret(rand, secret, 2, guardians)
	require.NoError(err)
	signShares, _, err := frost.GenerateWithDealer(rand, 2, guardians)
	require.NoError(err)

	hub := effectstest.NewHub()
	roles := make([]ids.Role, guardians)
	guardianIDs := make([]ids.GuardianID, guardians)
	for i := range roles {
		roles[i] = ids.Role{Device: ids.NewDeviceID(), Index: uint16(i + 1)}
		guardianIDs[i] = ids.NewGuardianID()
	}
	account := ids.NewAccountID()
	requesting := ids.NewDeviceID()
	contextBytes := []byte("recover account keys")
	opID := types.HashBytes(contextBytes)

	sessions := make([]*choreo.Session, guardians)
	for i := range roles {
		bundle := effectstest.NewBundle(200+uint64(i), hub, roles[i].Device)
		sessions[i] = choreo.NewSession(roles[i], roles, 1, opID, bundle)
	}

	var wg sync.WaitGroup
	results := make([]*Result, guardians)
	journals := make([]*journal.Journal, guardians)
	for i := range roles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := sessions[i]
			journals[i] = journal.New(ids.NewAuthorityID(), log.NewNoOpLogger(), nil)
			coordinator := NewCoordinator(DefaultPolicy(), journals[i])
			index := uint16(i + 1)
			req := &Request{
				RequestingDevice:   requesting,
				AccountID:          account,
				RecoveryContext:    contextBytes,
				RequiredThreshold:  2,
				AvailableGuardians: guardianIDs,
				Priority:           PriorityNormal,
				DisputeWindowSecs:  48 * 3600,
			}
			share := GuardianShare{Guardian: guardianIDs[i], Index: index, Value: secretShares[index]}
			r, err := coordinator.Execute(context.Background(), sess, req, share,
				signShares[index], false, 2*time.Second)
			require.NoError(err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		require.Equal(secret, r.RecoveredKey)
		require.Len(r.RecoveredKey, 32)
		require.NotNil(r.ThresholdSignature)
		require.True(frost.Verify(r.ThresholdSignature, contextBytes, signShares[1].GroupPK))
		require.False(r.Assessment.Denied())

		// The journal carries the account status change.
		found := false
		for _, f := range journals[i].ReadFacts() {
			if f.Kind == journal.FactAccountStatusChange {
				found = true
			}
		}
		require.True(found, "AccountStatusChange entry recorded")
	}
}

func TestPolicyThresholdByPriority(t *testing.T) {
	require := require.New(t)
	policy := DefaultPolicy()

	req := &Request{
		RequiredThreshold:  1,
		AvailableGuardians: []ids.GuardianID{ids.NewGuardianID(), ids.NewGuardianID()},
		Priority:           PriorityNormal,
		DisputeWindowSecs:  NormalMinDisputeSecs,
	}
	a := policy.Evaluate(req, 0, false)
	require.True(a.Denied())
	require.Equal("threshold_by_priority", a.Violations[0].Rule)
}

func TestPolicyAttemptLimit(t *testing.T) {
	require := require.New(t)
	policy := DefaultPolicy()

	req := &Request{
		RequiredThreshold:  2,
		AvailableGuardians: []ids.GuardianID{ids.NewGuardianID(), ids.NewGuardianID()},
		Priority:           PriorityNormal,
		DisputeWindowSecs:  NormalMinDisputeSecs,
	}
	a := policy.Evaluate(req, policy.MaxAttemptsPerEpoch, false)
	require.True(a.Denied())
}

func TestPolicyEmergencyOverride(t *testing.T) {
	require := require.New(t)
	policy := DefaultPolicy()

	req := &Request{
		RequiredThreshold:  1,
		AvailableGuardians: []ids.GuardianID{ids.NewGuardianID(), ids.NewGuardianID()},
		Priority:           PriorityEmergency,
		DisputeWindowSecs:  72 * 3600,
	}
	denied := policy.Evaluate(req, 0, false)
	require.True(denied.Denied())

	allowed := policy.Evaluate(req, 0, true)
	require.False(allowed.Denied())
	require.Equal(EmergencyMaxDisputeSecs, allowed.AdjustedWindowSecs,
		"emergency dispute window clamped to 24h")
}

func TestPolicyDisputeWindowRaisedForNormal(t *testing.T) {
	require := require.New(t)
	policy := DefaultPolicy()

	req := &Request{
		RequiredThreshold:  2,
		AvailableGuardians: []ids.GuardianID{ids.NewGuardianID(), ids.NewGuardianID()},
		Priority:           PriorityNormal,
		DisputeWindowSecs:  3600,
	}
	a := policy.Evaluate(req, 0, false)
	require.False(a.Denied())
	require.Equal(NormalMinDisputeSecs, a.AdjustedWindowSecs)
}

func TestRepeatAttemptCooldown(t *testing.T) {
	require := require.New(t)
	policy := DefaultPolicy()

	req := &Request{
		RequiredThreshold:  2,
		AvailableGuardians: []ids.GuardianID{ids.NewGuardianID(), ids.NewGuardianID()},
		Priority:           PriorityNormal,
		DisputeWindowSecs:  NormalMinDisputeSecs,
	}
	a := policy.Evaluate(req, 2, false)
	require.False(a.Denied())
	require.EqualValues(4, a.CooldownMultiplier)
}
