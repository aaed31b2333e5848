// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rendezvous implements the capability-aware SBB relay fabric:
// trust-gated flooding over size-capped envelopes with per-relationship
// flow budgets, and the social-topology discovery layer selection.
package rendezvous

import (
	"github.com/hxrts/aura/guard"
	"github.com/hxrts/aura/ids"
)

// TrustLevel weights a relationship.
type TrustLevel uint8

const (
	TrustNone TrustLevel = iota
	TrustLow
	TrustMedium
	TrustHigh
)

func (t TrustLevel) String() string {
	switch t {
	case TrustNone:
		return "none"
	case TrustLow:
		return "low"
	case TrustMedium:
		return "medium"
	case TrustHigh:
		return "high"
	default:
		return "unknown"
	}
}

// DefaultBudget returns the hourly byte budget a trust level grants:
// None=0, Low=10KB/h, Medium=100KB/h, High=10MB/h.
func (t TrustLevel) DefaultBudget() uint64 {
	switch t {
	case TrustLow:
		return 10 << 10
	case TrustMedium:
		return 100 << 10
	case TrustHigh:
		return 10 << 20
	default:
		return 0
	}
}

// budgetPeriodSecs is one hour.
const budgetPeriodSecs = 3600

// Relationship is one trust-weighted peer link.
type Relationship struct {
	Peer       ids.DeviceID
	Trust      TrustLevel
	CanRelay   bool
	IsGuardian bool
	Budget     *guard.FlowBudget
}

// NewRelationship builds a relationship with the trust level's default
// budget.
func NewRelationship(peer ids.DeviceID, trust TrustLevel, isGuardian bool, nowSecs uint64) *Relationship {
	return &Relationship{
		Peer:       peer,
		Trust:      trust,
		CanRelay:   trust > TrustNone,
		IsGuardian: isGuardian,
		Budget:     guard.NewFlowBudget(trust.DefaultBudget(), budgetPeriodSecs, nowSecs),
	}
}

// ForwardingPolicy gates SBB forwarding.
type ForwardingPolicy struct {
	MinTrust          TrustLevel
	MaxFlowUsage      float64
	PreferGuardians   bool
	MaxStreamsPerPeer uint32
}

// DefaultForwardingPolicy mirrors the platform defaults.
func DefaultForwardingPolicy() ForwardingPolicy {
	return ForwardingPolicy{
		MinTrust:          TrustLow,
		MaxFlowUsage:      0.30,
		PreferGuardians:   true,
		MaxStreamsPerPeer: 5,
	}
}

// CanForward evaluates the full forwarding gate: trust floor, flow
// usage ceiling, relay capability, and budget headroom.
func (r *Relationship) CanForward(msgSize uint64, policy ForwardingPolicy, nowSecs uint64) bool {
	if r.Trust < policy.MinTrust {
		return false
	}
	if !r.CanRelay {
		return false
	}
	limit := r.Budget.Limit
	if limit == 0 {
		return false
	}
	projected := float64(r.Budget.Limit-r.Budget.Remaining(nowSecs)) + float64(msgSize)
	if projected > policy.MaxFlowUsage*float64(limit) {
		return false
	}
	return r.Budget.CanSpend(msgSize, nowSecs)
}
