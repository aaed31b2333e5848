// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rendezvous

import (
	"sync"

	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/utils/set"
)

// DiscoveryLayer names the path to a target authority, in priority
// order.
type DiscoveryLayer uint8

const (
	LayerDirect DiscoveryLayer = iota
	LayerHome
	LayerNeighborhood
	LayerRendezvous
)

func (l DiscoveryLayer) String() string {
	switch l {
	case LayerDirect:
		return "direct"
	case LayerHome:
		return "home"
	case LayerNeighborhood:
		return "neighborhood"
	case LayerRendezvous:
		return "rendezvous"
	default:
		return "unknown"
	}
}

// Selection is the chosen layer plus its candidate peers.
type Selection struct {
	Layer      DiscoveryLayer
	Candidates []ids.DeviceID
}

// SocialTopology tracks who we can reach and how: known peers, home
// co-residents, and neighborhood adjacency.
type SocialTopology struct {
	mu sync.RWMutex

	self          ids.AuthorityID
	selfDevice    ids.DeviceID
	knownPeers    map[ids.AuthorityID][]ids.DeviceID
	homes         map[ids.HomeID]set.Set[ids.AuthorityID]
	neighborhoods map[ids.NeighborhoodID]set.Set[ids.HomeID]
	myHomes       set.Set[ids.HomeID]
	relayPeers    []ids.DeviceID
}

// NewSocialTopology roots the topology at one authority and device.
func NewSocialTopology(self ids.AuthorityID, selfDevice ids.DeviceID) *SocialTopology {
	return &SocialTopology{
		self:          self,
		selfDevice:    selfDevice,
		knownPeers:    make(map[ids.AuthorityID][]ids.DeviceID),
		homes:         make(map[ids.HomeID]set.Set[ids.AuthorityID]),
		neighborhoods: make(map[ids.NeighborhoodID]set.Set[ids.HomeID]),
		myHomes:       set.NewSet[ids.HomeID](2),
	}
}

// AddKnownPeer records a direct device route to an authority.
func (t *SocialTopology) AddKnownPeer(authority ids.AuthorityID, device ids.DeviceID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.knownPeers[authority] = append(t.knownPeers[authority], device)
}

// JoinHome places an authority in a home. The topology only mirrors
// membership; it places no limit on the number of residents.
func (t *SocialTopology) JoinHome(home ids.HomeID, authority ids.AuthorityID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	members, ok := t.homes[home]
	if !ok {
		members = set.NewSet[ids.AuthorityID](8)
		t.homes[home] = members
	}
	members.Add(authority)
	if authority == t.self {
		t.myHomes.Add(home)
	}
}

// LinkNeighborhood makes a home part of a neighborhood.
func (t *SocialTopology) LinkNeighborhood(n ids.NeighborhoodID, home ids.HomeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	homes, ok := t.neighborhoods[n]
	if !ok {
		homes = set.NewSet[ids.HomeID](4)
		t.neighborhoods[n] = homes
	}
	homes.Add(home)
}

// SetRelayPeers installs the rendezvous-layer fallback candidates.
func (t *SocialTopology) SetRelayPeers(peers []ids.DeviceID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.relayPeers = append([]ids.DeviceID(nil), peers...)
}

// DiscoveryLayerFor selects exactly one layer for a target authority:
// Direct if the target is self or a known peer, Home if we share a
// home, Neighborhood if we share a neighborhood, Rendezvous otherwise.
func (t *SocialTopology) DiscoveryLayerFor(target ids.AuthorityID) Selection {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if target == t.self {
		return Selection{Layer: LayerDirect, Candidates: []ids.DeviceID{t.selfDevice}}
	}
	if devices, ok := t.knownPeers[target]; ok && len(devices) > 0 {
		sorted := append([]ids.DeviceID(nil), devices...)
		ids.SortDeviceIDs(sorted)
		return Selection{Layer: LayerDirect, Candidates: sorted}
	}

	if home, ok := t.sharedHomeLocked(target); ok {
		return Selection{Layer: LayerHome, Candidates: t.residentsDevicesLocked(home, target)}
	}

	if home, ok := t.sharedNeighborhoodLocked(target); ok {
		return Selection{Layer: LayerNeighborhood, Candidates: t.residentsDevicesLocked(home, target)}
	}

	return Selection{Layer: LayerRendezvous, Candidates: append([]ids.DeviceID(nil), t.relayPeers...)}
}

func (t *SocialTopology) sharedHomeLocked(target ids.AuthorityID) (ids.HomeID, bool) {
	for home := range t.myHomes {
		if t.homes[home].Contains(target) {
			return home, true
		}
	}
	return ids.HomeID{}, false
}

func (t *SocialTopology) sharedNeighborhoodLocked(target ids.AuthorityID) (ids.HomeID, bool) {
	for _, homes := range t.neighborhoods {
		mine := false
		for home := range t.myHomes {
			if homes.Contains(home) {
				mine = true
				break
			}
		}
		if !mine {
			continue
		}
		for home := range homes {
			if t.homes[home].Contains(target) {
				return home, true
			}
		}
	}
	return ids.HomeID{}, false
}

// residentsDevicesLocked returns the known devices of every resident of
// home other than self, in sorted order; target does not narrow the
// result.
func (t *SocialTopology) residentsDevicesLocked(home ids.HomeID, target ids.AuthorityID) []ids.DeviceID {
	var out []ids.DeviceID
	for resident := range t.homes[home] {
		if resident == t.self {
			continue
		}
		out = append(out, t.knownPeers[resident]...)
	}
	ids.SortDeviceIDs(out)
	return out
}
