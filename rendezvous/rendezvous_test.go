// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rendezvous

import (
	"context"
	"testing"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura/codec"
	"github.com/hxrts/aura/effects/effectstest"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

func newCoordinator(t *testing.T) (*Coordinator, *effectstest.Hub, ids.DeviceID) {
	t.Helper()
	hub := effectstest.NewHub()
	device := ids.NewDeviceID()
	clock := effectstest.NewClock(1_700_000_000_000)
	c := NewCoordinator(device, DefaultForwardingPolicy(), hub.Join(device), clock, log.NewNoOpLogger(), nil)
	return c, hub, device
}

func TestTrustLevelBudgets(t *testing.T) {
	require := require.New(t)
	require.EqualValues(0, TrustNone.DefaultBudget())
	require.EqualValues(10*1024, TrustLow.DefaultBudget())
	require.EqualValues(100*1024, TrustMedium.DefaultBudget())
	require.EqualValues(10*1024*1024, TrustHigh.DefaultBudget())
}

func TestCanForwardGates(t *testing.T) {
	require := require.New(t)
	policy := DefaultForwardingPolicy()
	now := uint64(1000)

	// Trust below the floor.
	r := NewRelationship(ids.NewDeviceID(), TrustNone, false, now)
	require.False(r.CanForward(100, policy, now))

	// Low trust forwards small messages within the usage ceiling.
	r = NewRelationship(ids.NewDeviceID(), TrustLow, false, now)
	require.True(r.CanForward(1024, policy, now))

	// The 30% usage ceiling rejects before the raw budget does.
	require.False(r.CanForward(4*1024, policy, now), "4KB exceeds 30%% of 10KB")

	// Spending eats into the ceiling.
	require.NoError(r.Budget.Spend(2*1024, now))
	require.True(r.CanForward(512, policy, now))
	require.False(r.CanForward(1536, policy, now))
}

func TestForwardingPeersPrefersGuardians(t *testing.T) {
	require := require.New(t)
	c, hub, _ := newCoordinator(t)
	now := uint64(1_700_000_000)

	plain := ids.NewDeviceID()
	guardian := ids.NewDeviceID()
	hub.Join(plain)
	hub.Join(guardian)
	c.AddRelationship(NewRelationship(plain, TrustHigh, false, now))
	c.AddRelationship(NewRelationship(guardian, TrustHigh, true, now))

	peers := c.ForwardingPeers(512, ids.DeviceID{})
	require.Len(peers, 2)
	require.Equal(guardian, peers[0], "guardians listed first")
}

func TestFloodDeduplicatesAndDecrementsTTL(t *testing.T) {
	require := require.New(t)
	c, hub, device := newCoordinator(t)
	now := uint64(1_700_000_000)

	peer := ids.NewDeviceID()
	peerEndpoint := hub.Join(peer)
	c.AddRelationship(NewRelationship(peer, TrustHigh, false, now))

	env, err := c.Flood(context.Background(), ids.NewAuthorityID(), []byte("hello"))
	require.NoError(err)
	require.Len(c.SeenEnvelopes(), 1)
	require.Equal(1, peerEndpoint.Pending())

	// Duplicate delivery is dropped without forwarding again.
	dup := *env
	dup.TTL = DefaultTTL
	require.NoError(c.HandleEnvelope(context.Background(), device, &dup))
	require.Equal(1, peerEndpoint.Pending())

	// Expired TTL is dropped.
	expired := *env
	expired.TTL = 0
	expired.EnvelopeID = types.HashBytes([]byte("fresh-id"))
	require.NoError(c.HandleEnvelope(context.Background(), device, &expired))
	require.Equal(1, peerEndpoint.Pending())
}

func TestFloodChargesBudget(t *testing.T) {
	require := require.New(t)
	c, hub, _ := newCoordinator(t)
	now := uint64(1_700_000_000)

	peer := ids.NewDeviceID()
	hub.Join(peer)
	c.AddRelationship(NewRelationship(peer, TrustMedium, false, now))

	_, err := c.Flood(context.Background(), ids.NewAuthorityID(), []byte("payload"))
	require.NoError(err)

	r, ok := c.Relationship(peer)
	require.True(ok)
	require.Less(r.Budget.Remaining(now), TrustMedium.DefaultBudget())
}

func TestFloodRejectsOversizedPayload(t *testing.T) {
	require := require.New(t)
	c, _, _ := newCoordinator(t)
	_, err := c.Flood(context.Background(), ids.NewAuthorityID(), make([]byte, SBBMessageSize+1))
	require.Error(err)
}

func TestEnvelopeWireRoundTrip(t *testing.T) {
	require := require.New(t)
	env := &codec.Envelope{
		Version:     codec.EnvelopeVersion,
		AuthorityID: ids.NewAuthorityID(),
		EnvelopeID:  types.HashBytes([]byte("id")),
		TTL:         4,
		TimestampMS: 123456,
		PayloadType: codec.PayloadSBBEnvelope,
		Payload:     []byte("sbb"),
	}
	got, err := codec.UnmarshalEnvelope(env.Marshal())
	require.NoError(err)
	require.Equal(env.AuthorityID, got.AuthorityID)
	require.Equal(env.EnvelopeID, got.EnvelopeID)
	require.Equal(env.TTL, got.TTL)
	require.Equal(env.Payload, got.Payload)
}

func TestDiscoveryLayerPriority(t *testing.T) {
	require := require.New(t)
	self := ids.NewAuthorityID()
	selfDevice := ids.NewDeviceID()
	topo := NewSocialTopology(self, selfDevice)

	// Self is always Direct.
	sel := topo.DiscoveryLayerFor(self)
	require.Equal(LayerDirect, sel.Layer)
	require.Equal([]ids.DeviceID{selfDevice}, sel.Candidates)

	// Known peer: Direct.
	friend := ids.NewAuthorityID()
	friendDevice := ids.NewDeviceID()
	topo.AddKnownPeer(friend, friendDevice)
	sel = topo.DiscoveryLayerFor(friend)
	require.Equal(LayerDirect, sel.Layer)
	require.Contains(sel.Candidates, friendDevice)

	// Shared home: Home layer.
	housemate := ids.NewAuthorityID()
	housemateDevice := ids.NewDeviceID()
	home := ids.NewHomeID()
	topo.JoinHome(home, self)
	topo.JoinHome(home, housemate)
	topo.AddKnownPeer(housemate, housemateDevice)
	// Known peers win over home routing.
	require.Equal(LayerDirect, topo.DiscoveryLayerFor(housemate).Layer)

	stranger := ids.NewAuthorityID()
	topo.JoinHome(home, stranger)
	sel = topo.DiscoveryLayerFor(stranger)
	require.Equal(LayerHome, sel.Layer)
	require.NotEmpty(sel.Candidates)

	// Shared neighborhood: Neighborhood layer.
	neighbor := ids.NewAuthorityID()
	otherHome := ids.NewHomeID()
	neighborhood := ids.NewNeighborhoodID()
	topo.JoinHome(otherHome, neighbor)
	topo.AddKnownPeer(neighbor, ids.NewDeviceID())
	topo.LinkNeighborhood(neighborhood, home)
	topo.LinkNeighborhood(neighborhood, otherHome)
	// Remove direct route knowledge by using a fresh authority in that home.
	distant := ids.NewAuthorityID()
	topo.JoinHome(otherHome, distant)
	sel = topo.DiscoveryLayerFor(distant)
	require.Equal(LayerNeighborhood, sel.Layer)

	// No social presence: Rendezvous.
	relay := ids.NewDeviceID()
	topo.SetRelayPeers([]ids.DeviceID{relay})
	sel = topo.DiscoveryLayerFor(ids.NewAuthorityID())
	require.Equal(LayerRendezvous, sel.Layer)
	require.Equal([]ids.DeviceID{relay}, sel.Candidates)
}
