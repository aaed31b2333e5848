// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package guard

import (
	"testing"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

func mintFixture(t *testing.T) (*Guard, *Minter, ids.AuthorityID) {
	t.Helper()
	pub, priv, err := GenerateRoot()
	require.NoError(t, err)
	return New(pub, log.NewNoOpLogger(), nil), NewMinter(priv), ids.NewAuthorityID()
}

func TestAuthorityBindingAllows(t *testing.T) {
	require := require.New(t)
	g, minter, authority := mintFixture(t)

	token, err := minter.Mint(TokenSpec{AuthorityID: &authority})
	require.NoError(err)

	err = g.Authorize(Request{
		Operation:         OpWrite,
		Resource:          ResourceStorage(authority, "journal/facts"),
		ExpectedAuthority: authority,
		Token:             token,
	})
	require.NoError(err)
}

func TestWrongAuthorityDenied(t *testing.T) {
	require := require.New(t)
	g, minter, authority := mintFixture(t)

	other := ids.NewAuthorityID()
	token, err := minter.Mint(TokenSpec{AuthorityID: &other})
	require.NoError(err)

	err = g.Authorize(Request{
		Operation:         OpWrite,
		Resource:          ResourceStorage(authority, "journal/facts"),
		ExpectedAuthority: authority,
		Token:             token,
	})
	require.Error(err)
	require.True(types.IsKind(err, types.ErrCapability))
}

func TestCapabilityClauseAllows(t *testing.T) {
	require := require.New(t)
	g, minter, authority := mintFixture(t)

	// Token bound to a different authority but granting the capability.
	other := ids.NewAuthorityID()
	token, err := minter.Mint(TokenSpec{AuthorityID: &other, Capabilities: []string{OpRead}})
	require.NoError(err)

	err = g.Authorize(Request{
		Operation:         OpRead,
		Resource:          ResourceStorage(authority, "journal/facts"),
		ExpectedAuthority: authority,
		Token:             token,
	})
	require.NoError(err)

	// The capability does not stretch to other operations.
	err = g.Authorize(Request{
		Operation:         OpAdmin,
		Resource:          ResourceStorage(authority, "journal/facts"),
		ExpectedAuthority: authority,
		Token:             token,
	})
	require.Error(err)
}

func TestMissingTokenDenied(t *testing.T) {
	require := require.New(t)
	g, _, authority := mintFixture(t)

	err := g.Authorize(Request{
		Operation:         OpRead,
		Resource:          ResourceStorage(authority, "x"),
		ExpectedAuthority: authority,
	})
	require.Error(err)
}

func TestTestingModeAllowsAndLogs(t *testing.T) {
	require := require.New(t)
	g := NewForTesting(log.NewNoOpLogger())
	authority := ids.NewAuthorityID()

	err := g.Authorize(Request{
		Operation:         OpAdmin,
		Resource:          ResourceStorage(authority, "x"),
		ExpectedAuthority: authority,
	})
	require.NoError(err)
	require.Len(g.AuditLog(), 1)
}

func TestAuditLogRecordsDenials(t *testing.T) {
	require := require.New(t)
	g, _, authority := mintFixture(t)

	_ = g.Authorize(Request{
		Operation:         OpRead,
		Resource:          ResourceStorage(authority, "x"),
		ExpectedAuthority: authority,
	})
	entries := g.AuditLog()
	require.Len(entries, 1)
	require.False(entries[0].Allowed)
	require.Equal(OpRead, entries[0].Operation)
}

func TestFlowBudget(t *testing.T) {
	require := require.New(t)

	b := NewFlowBudget(100, 3600, 1000)
	require.True(b.CanSpend(60, 1000))
	require.NoError(b.Spend(60, 1000))
	require.False(b.CanSpend(50, 1500))
	require.Error(b.Spend(50, 1500))
	require.EqualValues(40, b.Remaining(1500))

	// Period rollover resets exactly at period_start + period_seconds.
	require.True(b.CanSpend(100, 1000+3600))
	require.NoError(b.Spend(100, 1000+3600))
	require.EqualValues(0, b.Remaining(1000+3600))
}

func TestRelayOperationFormat(t *testing.T) {
	require := require.New(t)
	require.Equal("relay:1024:5", OpRelay(1024, 5))
}
