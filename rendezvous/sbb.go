// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rendezvous

import (
	"context"
	"sort"
	"sync"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/hxrts/aura/codec"
	"github.com/hxrts/aura/effects"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

const (
	// SBBMessageSize is the largest envelope payload Flood accepts;
	// shorter payloads are sent as they are, without padding.
	SBBMessageSize = 1024

	// envelopeCacheSecs expires flooded envelopes after one hour.
	envelopeCacheSecs = 3600

	// DefaultTTL bounds flood depth.
	DefaultTTL = 8
)

// Coordinator floods SBB envelopes across trust-weighted relationships.
type Coordinator struct {
	mu sync.Mutex

	device  ids.DeviceID
	policy  ForwardingPolicy
	net     effects.Network
	clock   effects.Clock
	log     log.Logger
	metrics *sbbMetrics

	relationships map[ids.DeviceID]*Relationship
	seen          map[types.Hash32]uint64 // envelope id -> cached-at secs
}

// NewCoordinator builds the relay for one device.
func NewCoordinator(
	device ids.DeviceID,
	policy ForwardingPolicy,
	net effects.Network,
	clock effects.Clock,
	logger log.Logger,
	metrics *sbbMetrics,
) *Coordinator {
	if metrics == nil {
		metrics = newNoopMetrics()
	}
	return &Coordinator{
		device:        device,
		policy:        policy,
		net:           net,
		clock:         clock,
		log:           logger,
		metrics:       metrics,
		relationships: make(map[ids.DeviceID]*Relationship),
		seen:          make(map[types.Hash32]uint64),
	}
}

// AddRelationship registers a peer link.
func (c *Coordinator) AddRelationship(r *Relationship) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relationships[r.Peer] = r
}

// UpdateTrust changes a relationship's trust level, resetting its
// budget to the new default.
func (c *Coordinator) UpdateTrust(peer ids.DeviceID, trust TrustLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.relationships[peer]; ok {
		r.Trust = trust
		r.CanRelay = trust > TrustNone
		r.Budget.Limit = trust.DefaultBudget()
	}
}

// RemoveRelationship drops a peer link.
func (c *Coordinator) RemoveRelationship(peer ids.DeviceID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.relationships, peer)
}

// Relationship returns a peer link.
func (c *Coordinator) Relationship(peer ids.DeviceID) (*Relationship, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.relationships[peer]
	return r, ok
}

// ForwardingPeers returns peers eligible to carry msgSize bytes, with
// guardians listed first when the policy prefers them.
func (c *Coordinator) ForwardingPeers(msgSize uint64, exclude ids.DeviceID) []ids.DeviceID {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.NowMS() / 1000

	var guardians, others []ids.DeviceID
	for peer, r := range c.relationships {
		if peer == exclude {
			continue
		}
		if !r.CanForward(msgSize, c.policy, now) {
			continue
		}
		if r.IsGuardian {
			guardians = append(guardians, peer)
		} else {
			others = append(others, peer)
		}
	}
	ids.SortDeviceIDs(guardians)
	ids.SortDeviceIDs(others)
	if c.policy.PreferGuardians {
		return append(guardians, others...)
	}
	all := append(others, guardians...)
	ids.SortDeviceIDs(all)
	return all
}

// HandleEnvelope processes an inbound SBB envelope: drop on expired TTL
// or duplicate id, cache, decrement TTL, and forward to every eligible
// peer but the sender. Budgets are charged only on successful forward.
func (c *Coordinator) HandleEnvelope(ctx context.Context, from ids.DeviceID, env *codec.Envelope) error {
	c.mu.Lock()
	now := c.clock.NowMS() / 1000
	c.expireLocked(now)
	if env.TTL == 0 {
		c.mu.Unlock()
		c.metrics.dropped.Inc()
		return nil
	}
	if _, dup := c.seen[env.EnvelopeID]; dup {
		c.mu.Unlock()
		c.metrics.dropped.Inc()
		return nil
	}
	c.seen[env.EnvelopeID] = now
	c.mu.Unlock()

	env.TTL--
	size := uint64(len(env.Payload))
	forwarded := 0
	for _, peer := range c.ForwardingPeers(size, from) {
		if err := c.net.SendToPeer(ctx, peer, env.Marshal()); err != nil {
			c.log.Debug("sbb forward failed",
				zap.Stringer("peer", ids.ID(peer)),
				zap.Error(err),
			)
			continue
		}
		c.mu.Lock()
		if r, ok := c.relationships[peer]; ok {
			_ = r.Budget.Spend(size, now)
		}
		c.mu.Unlock()
		forwarded++
	}
	c.metrics.forwarded.Add(float64(forwarded))
	return nil
}

// Flood originates an envelope from this device.
func (c *Coordinator) Flood(ctx context.Context, authority ids.AuthorityID, payload []byte) (*codec.Envelope, error) {
	if len(payload) > SBBMessageSize {
		return nil, types.NewError(types.ErrProtocolViolation,
			"sbb payload %d exceeds maximum size %d", len(payload), SBBMessageSize)
	}
	env := &codec.Envelope{
		Version:     codec.EnvelopeVersion,
		AuthorityID: authority,
		EnvelopeID:  types.HashBytes(payload),
		TTL:         DefaultTTL,
		TimestampMS: c.clock.NowMS(),
		PayloadType: codec.PayloadSBBEnvelope,
		Payload:     payload,
	}
	return env, c.HandleEnvelope(ctx, c.device, env)
}

// expireLocked drops cache entries older than the expiry window.
func (c *Coordinator) expireLocked(nowSecs uint64) {
	for id, cachedAt := range c.seen {
		if nowSecs-cachedAt > envelopeCacheSecs {
			delete(c.seen, id)
		}
	}
}

// TrustStatistics summarizes the relationship set.
type TrustStatistics struct {
	Total     int
	Guardians int
	ByLevel   map[TrustLevel]int
	AvgTrust  float64
	FlowUsage float64
}

// Statistics computes trust and flow aggregates.
func (c *Coordinator) Statistics() TrustStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.NowMS() / 1000

	stats := TrustStatistics{ByLevel: make(map[TrustLevel]int)}
	trustSum := 0
	var usageSum float64
	for _, r := range c.relationships {
		stats.Total++
		if r.IsGuardian {
			stats.Guardians++
		}
		stats.ByLevel[r.Trust]++
		trustSum += int(r.Trust)
		usageSum += r.Budget.Utilization(now)
	}
	if stats.Total > 0 {
		stats.AvgTrust = float64(trustSum) / float64(stats.Total)
		stats.FlowUsage = usageSum / float64(stats.Total)
	}
	return stats
}

// SeenEnvelopes returns the cached envelope ids in sorted order.
func (c *Coordinator) SeenEnvelopes() []types.Hash32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Hash32, 0, len(c.seen))
	for id := range c.seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}
